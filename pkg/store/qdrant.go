package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xhad/booksage/internal/models"
)

// pointNamespace derives Qdrant point ids, which must be UUIDs or integers,
// from chunk ids.
var pointNamespace = uuid.MustParse("6f1c3c52-8d0e-4b8e-9a57-2f0b5c0e7a41")

type QdrantConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// QdrantStore is a minimal REST client to Qdrant.
type QdrantStore struct {
	url    string
	apiKey string
	client *http.Client
	logger *zap.Logger
}

func NewQdrant(config QdrantConfig, logger *zap.Logger) *QdrantStore {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	if config.URL == "" {
		config.URL = "http://localhost:6333"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QdrantStore{
		url:    strings.TrimRight(config.URL, "/"),
		apiKey: config.APIKey,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// PointID is the Qdrant id stored for a chunk.
func PointID(id models.ChunkID) string {
	return uuid.NewSHA1(pointNamespace, []byte(id)).String()
}

func distance(metric models.Metric) (string, error) {
	switch metric {
	case models.Cosine, "":
		return "Cosine", nil
	case models.Euclid:
		return "Euclid", nil
	case models.Dot:
		return "Dot", nil
	}
	return "", fmt.Errorf("%w: unknown metric %q", models.ErrInvalidConfiguration, metric)
}

// EnsureCollection creates the collection when it does not exist and checks
// the vector size when it does.
func (s *QdrantStore) EnsureCollection(ctx context.Context, spec models.CollectionSpec) error {
	if spec.Name == "" || spec.Dimension < 1 {
		return fmt.Errorf("%w: collection %q with dimension %d", models.ErrInvalidConfiguration, spec.Name, spec.Dimension)
	}
	dist, err := distance(spec.Metric)
	if err != nil {
		return err
	}

	var info struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	status, err := s.do(ctx, http.MethodGet, "/collections/"+spec.Name, nil, &info)
	switch {
	case err == nil:
		if size := info.Result.Config.Params.Vectors.Size; size != 0 && size != spec.Dimension {
			return fmt.Errorf("%w: collection %q exists with dimension %d", models.ErrInvalidConfiguration, spec.Name, size)
		}
		return nil
	case status != http.StatusNotFound:
		return err
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     spec.Dimension,
			"distance": dist,
		},
	}
	if _, err := s.do(ctx, http.MethodPut, "/collections/"+spec.Name, body, nil); err != nil {
		return err
	}

	index := map[string]any{"field_name": "content_id", "field_schema": "keyword"}
	if _, err := s.do(ctx, http.MethodPut, "/collections/"+spec.Name+"/index?wait=true", index, nil); err != nil {
		return err
	}

	s.logger.Info("qdrant collection created",
		zap.String("collection", spec.Name),
		zap.Int("dimension", spec.Dimension),
		zap.String("distance", dist),
	)
	return nil
}

type qdrantPayload struct {
	ChunkID     string         `json:"chunk_id"`
	ContentID   string         `json:"content_id"`
	ContentType string         `json:"content_type"`
	ChunkText   string         `json:"chunk_text"`
	ChunkIndex  int            `json:"chunk_index"`
	Metadata    map[string]any `json:"metadata"`
}

func (s *QdrantStore) Upsert(ctx context.Context, collection string, records []models.Record) error {
	if len(records) == 0 {
		return nil
	}
	points := make([]map[string]any, len(records))
	for i, r := range records {
		points[i] = map[string]any{
			"id":     PointID(r.ID),
			"vector": r.Vector,
			"payload": qdrantPayload{
				ChunkID:     r.ID.String(),
				ContentID:   r.Payload.ContentID.String(),
				ContentType: string(r.Payload.ContentType),
				ChunkText:   r.Payload.ChunkText,
				ChunkIndex:  r.Payload.ChunkIndex,
				Metadata:    r.Payload.Metadata,
			},
		}
	}
	body := map[string]any{"points": points}
	_, err := s.do(ctx, http.MethodPut, "/collections/"+collection+"/points?wait=true", body, nil)
	return err
}

func (s *QdrantStore) Search(ctx context.Context, collection string, vector models.Vector, filter map[string]any, limit int) ([]models.StoreHit, error) {
	if limit < 1 {
		return nil, fmt.Errorf("%w: limit must be at least 1, got %d", models.ErrInvalidArgument, limit)
	}

	req := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}
	if len(filter) > 0 {
		must := make([]map[string]any, 0, len(filter))
		for k, v := range filter {
			must = append(must, map[string]any{
				"key":   "metadata." + k,
				"match": map[string]any{"value": v},
			})
		}
		req["filter"] = map[string]any{"must": must}
	}

	var resp struct {
		Result []struct {
			Score   float64       `json:"score"`
			Payload qdrantPayload `json:"payload"`
		} `json:"result"`
	}
	if _, err := s.do(ctx, http.MethodPost, "/collections/"+collection+"/points/search", req, &resp); err != nil {
		return nil, err
	}

	hits := make([]models.StoreHit, 0, len(resp.Result))
	for _, r := range resp.Result {
		contentID, err := models.ParseContentID(r.Payload.ContentID)
		if err != nil {
			return nil, models.DependencyError("decode qdrant payload", err)
		}
		hits = append(hits, models.StoreHit{
			ID:    models.ChunkID(r.Payload.ChunkID),
			Score: r.Score,
			Payload: models.ChunkPayload{
				ContentID:   contentID,
				ContentType: models.ContentType(r.Payload.ContentType),
				ChunkText:   r.Payload.ChunkText,
				ChunkIndex:  r.Payload.ChunkIndex,
				Metadata:    r.Payload.Metadata,
			},
		})
	}
	return hits, nil
}

func (s *QdrantStore) DeleteStale(ctx context.Context, collection string, contentID models.ContentID, fromIndex int) error {
	body := map[string]any{
		"filter": map[string]any{
			"must": []map[string]any{
				{"key": "content_id", "match": map[string]any{"value": contentID.String()}},
				{"key": "chunk_index", "range": map[string]any{"gte": fromIndex}},
			},
		},
	}
	_, err := s.do(ctx, http.MethodPost, "/collections/"+collection+"/points/delete?wait=true", body, nil)
	return err
}

func (s *QdrantStore) Close() {
	s.client.CloseIdleConnections()
}

// do sends a JSON request and decodes the JSON response into out. It returns
// the HTTP status so callers can tell a missing collection from a failure.
func (s *QdrantStore) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("%w: encode qdrant request: %v", models.ErrInvalidArgument, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.url+path, reader)
	if err != nil {
		return 0, fmt.Errorf("%w: build qdrant request: %v", models.ErrInvalidArgument, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, models.DependencyError("qdrant "+method+" "+path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("status %s: %s", resp.Status, strings.TrimSpace(string(msg)))
		if resp.StatusCode == http.StatusNotFound {
			return resp.StatusCode, fmt.Errorf("%w: qdrant %s %s: %v", models.ErrNotFound, method, path, err)
		}
		return resp.StatusCode, models.DependencyError("qdrant "+method+" "+path, err)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, models.DependencyError("decode qdrant response", err)
		}
	}
	return resp.StatusCode, nil
}
