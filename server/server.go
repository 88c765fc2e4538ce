// Package server exposes the question answering pipeline over HTTP and a
// websocket chat.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"

	"github.com/xhad/booksage/internal/models"
	"github.com/xhad/booksage/pkg/indexer"
	"github.com/xhad/booksage/pkg/rag"
)

type Answerer interface {
	Answer(ctx context.Context, query string, opts ...rag.Option) models.RAGAnswer
	Search(ctx context.Context, query string, maxResults int, filters map[string]any) ([]models.Source, error)
}

type BookIndexer interface {
	IndexHierarchy(ctx context.Context, rootID models.ContentID) (models.IndexReport, error)
}

type Config struct {
	Addr           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	RequestTimeout time.Duration
	AllowedOrigins []string
	// Streaming sends websocket answers fragment by fragment.
	Streaming bool
}

type Server struct {
	config   Config
	rag      Answerer
	indexer  BookIndexer
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func New(config Config, answerer Answerer, indexer BookIndexer, logger *zap.Logger) *Server {
	if config.Addr == "" {
		config.Addr = ":8080"
	}
	if config.RequestTimeout == 0 {
		config.RequestTimeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		config:  config,
		rag:     answerer,
		indexer: indexer,
		logger:  logger,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.config.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range s.config.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(requestLogger(s.logger))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	r.Get("/ws", s.handleWebSocket)

	r.Route("/rag", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(s.config.RequestTimeout))
		r.Post("/query", s.handleQuery)
		r.Post("/search", s.handleSearch)
		r.Post("/index-book/{book_id}", s.handleIndexBook)
	})

	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.config.Addr,
		Handler:      s.Router(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", zap.String("addr", s.config.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

type queryRequest struct {
	Query       string         `json:"query"`
	MaxResults  *int           `json:"max_results"`
	Temperature *float64       `json:"temperature"`
	Filters     map[string]any `json:"filters"`
}

type queryResponse struct {
	ID           uuid.UUID       `json:"id"`
	Query        string          `json:"query"`
	Response     string          `json:"response"`
	Sources      []models.Source `json:"sources"`
	Confidence   float64         `json:"confidence"`
	ResponseTime float64         `json:"response_time"`
	CreatedAt    time.Time       `json:"created_at"`
}

type searchRequest struct {
	Query      string         `json:"query"`
	MaxResults *int           `json:"max_results"`
	Filters    map[string]any `json:"filters"`
}

type searchResult struct {
	ID         models.ChunkID     `json:"id"`
	Title      string             `json:"title"`
	Content    string             `json:"content"`
	SourceType models.ContentType `json:"sourceType"`
	Score      float64            `json:"score"`
	Metadata   map[string]any     `json:"metadata"`
}

type indexResponse struct {
	Message          string   `json:"message"`
	ChunksIndexed    int      `json:"chunks_indexed"`
	ValidationIssues []string `json:"validation_issues,omitempty"`
}

func checkQuery(query string, maxLen int) error {
	if n := utf8.RuneCountInString(query); n < 3 || n > maxLen {
		return fmt.Errorf("%w: query must be between 3 and %d characters", models.ErrInvalidArgument, maxLen)
	}
	return nil
}

func intOr(p *int, def, lo, hi int, field string) (int, error) {
	if p == nil {
		return def, nil
	}
	if *p < lo || *p > hi {
		return 0, fmt.Errorf("%w: %s must be between %d and %d", models.ErrInvalidArgument, field, lo, hi)
	}
	return *p, nil
}

// handleQuery handles POST /rag/query
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := checkQuery(req.Query, 1000); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	maxResults, err := intOr(req.MaxResults, 5, 1, 10, "max_results")
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	opts := []rag.Option{rag.WithMaxResults(maxResults), rag.WithFilters(req.Filters)}
	if req.Temperature != nil {
		if *req.Temperature < 0 || *req.Temperature > 1 {
			writeError(w, http.StatusBadRequest, "temperature must be between 0 and 1")
			return
		}
		opts = append(opts, rag.WithTemperature(*req.Temperature))
	}

	answer := s.rag.Answer(ctx, req.Query, opts...)

	ctxzap.Debug(ctx, "answered query",
		zap.Int("sources", len(answer.Sources)),
		zap.Float64("confidence", answer.Confidence),
	)

	writeJSON(w, http.StatusOK, queryResponse{
		ID:           uuid.New(),
		Query:        req.Query,
		Response:     answer.Response,
		Sources:      answer.Sources,
		Confidence:   answer.Confidence,
		ResponseTime: answer.ResponseTime.Seconds(),
		CreatedAt:    time.Now().UTC(),
	})
}

// handleSearch handles POST /rag/search
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := checkQuery(req.Query, 500); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	maxResults, err := intOr(req.MaxResults, 10, 1, 20, "max_results")
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	sources, err := s.rag.Search(ctx, req.Query, maxResults, req.Filters)
	if err != nil {
		ctxzap.Error(ctx, "search failed", zap.Error(err))
		writeError(w, statusFor(err), "search failed")
		return
	}

	results := make([]searchResult, len(sources))
	for i, src := range sources {
		results[i] = searchResult{
			ID:         src.ID,
			Title:      src.Title,
			Content:    src.Content,
			SourceType: src.SourceType,
			Score:      src.Confidence,
			Metadata:   src.Metadata,
		}
	}
	writeJSON(w, http.StatusOK, results)
}

// handleIndexBook handles POST /rag/index-book/{book_id}
func (s *Server) handleIndexBook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	bookID, err := models.ParseContentID(chi.URLParam(r, "book_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid book id")
		return
	}

	report, err := s.indexer.IndexHierarchy(ctx, bookID)
	if err != nil {
		if errors.Is(err, indexer.ErrRootNotFound) {
			writeError(w, http.StatusNotFound, "Book not found")
			return
		}
		ctxzap.Error(ctx, "indexing failed", zap.String("book_id", bookID.String()), zap.Error(err))
		writeError(w, statusFor(err), fmt.Sprintf("Error indexing book: %v", err))
		return
	}

	resp := indexResponse{
		Message:       fmt.Sprintf("Successfully indexed %d content chunks from book %s", report.ChunksIndexed, bookID),
		ChunksIndexed: report.ChunksIndexed,
	}
	if len(report.ValidationIssues) > 0 {
		resp.ValidationIssues = report.ValidationIssues
		resp.Message += fmt.Sprintf(" with %d validation issues found", len(report.ValidationIssues))
	}
	writeJSON(w, http.StatusOK, resp)
}
