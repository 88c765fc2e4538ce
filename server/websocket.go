package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/xhad/booksage/internal/models"
	"github.com/xhad/booksage/pkg/rag"
)

const writeWait = 10 * time.Second

// Message is the websocket envelope in both directions. Clients send
// {"type":"query","content":"..."}; the server replies with "stream"
// fragments when streaming is on, then one "response" carrying the sources.
type Message struct {
	Type    string      `json:"type"`
	Content string      `json:"content"`
	Data    interface{} `json:"data,omitempty"`
}

type answerData struct {
	Sources    []models.Source `json:"sources"`
	Confidence float64         `json:"confidence"`
}

// wsConn serialises writes; gorilla connections allow one concurrent writer.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteJSON(msg)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	// The HTTP server's read deadline would otherwise end idle chats.
	_ = conn.SetReadDeadline(time.Time{})

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ws := &wsConn{conn: conn}
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("error reading websocket message", zap.Error(err))
			}
			cancel()
			return
		}

		var msg Message
		if err := json.Unmarshal(message, &msg); err != nil {
			s.reply(ws, Message{Type: "error", Content: "invalid message"})
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleMessage(ctx, ws, msg)
		}()
	}
}

func (s *Server) handleMessage(ctx context.Context, ws *wsConn, msg Message) {
	if err := checkQuery(msg.Content, 1000); err != nil {
		s.reply(ws, Message{Type: "error", Content: err.Error()})
		return
	}

	var opts []rag.Option
	if s.config.Streaming {
		opts = append(opts, rag.WithStream(func(fragment string) {
			s.reply(ws, Message{Type: "stream", Content: fragment})
		}))
	}

	answer := s.rag.Answer(ctx, msg.Content, opts...)

	s.reply(ws, Message{
		Type:    "response",
		Content: answer.Response,
		Data:    answerData{Sources: answer.Sources, Confidence: answer.Confidence},
	})
}

func (s *Server) reply(ws *wsConn, msg Message) {
	if err := ws.send(msg); err != nil {
		s.logger.Debug("error sending websocket message", zap.Error(err))
	}
}
