package models

import (
	"fmt"
	"time"
)

// Vector is an embedding. Its length is fixed per collection.
type Vector []float32

// CheckDim reports a mismatch between the vector and the collection dimension.
func (v Vector) CheckDim(dim int) error {
	if len(v) != dim {
		return fmt.Errorf("%w: vector has %d dimensions, collection expects %d", ErrInvalidArgument, len(v), dim)
	}
	return nil
}

type Metric string

const (
	Cosine Metric = "cosine"
	Euclid Metric = "euclid"
	Dot    Metric = "dot"
)

type CollectionSpec struct {
	Name      string
	Dimension int
	Metric    Metric
}

// ChunkPayload is stored alongside each vector.
type ChunkPayload struct {
	ContentID   ContentID      `json:"content_id"`
	ContentType ContentType    `json:"content_type"`
	ChunkText   string         `json:"chunk_text"`
	ChunkIndex  int            `json:"chunk_index"`
	Metadata    map[string]any `json:"metadata"`
}

// Record is one upsert unit for a vector store.
type Record struct {
	ID      ChunkID
	Vector  Vector
	Payload ChunkPayload
}

// StoreHit is a raw nearest-neighbour result.
type StoreHit struct {
	ID      ChunkID
	Score   float64
	Payload ChunkPayload
}

type SearchHit struct {
	ID          ChunkID        `json:"id"`
	Content     string         `json:"content"`
	ContentID   ContentID      `json:"content_id"`
	ContentType ContentType    `json:"content_type"`
	Metadata    map[string]any `json:"metadata"`
	Score       float64        `json:"score"`
}

type ValidationResult struct {
	IsValid           bool     `json:"is_valid"`
	Issues            []string `json:"issues"`
	ReadabilityScore  *float64 `json:"readability_score"`
	CitationCheck     bool     `json:"citation_check"`
	TechnicalAccuracy bool     `json:"technical_accuracy"`
}

// Map renders the result the way it is stored in chunk metadata.
func (v ValidationResult) Map() map[string]any {
	issues := make([]any, len(v.Issues))
	for i, s := range v.Issues {
		issues[i] = s
	}
	m := map[string]any{
		"is_valid":           v.IsValid,
		"issues":             issues,
		"readability_score":  nil,
		"citation_check":     v.CitationCheck,
		"technical_accuracy": v.TechnicalAccuracy,
	}
	if v.ReadabilityScore != nil {
		m["readability_score"] = *v.ReadabilityScore
	}
	return m
}

type IndexReport struct {
	ChunksIndexed    int      `json:"chunks_indexed"`
	ValidationIssues []string `json:"validation_issues,omitempty"`
}

type Source struct {
	ID         ChunkID        `json:"id"`
	Title      string         `json:"title"`
	Content    string         `json:"content"`
	SourceType ContentType    `json:"sourceType"`
	Confidence float64        `json:"confidence"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

type RAGAnswer struct {
	Response     string        `json:"response"`
	Sources      []Source      `json:"sources"`
	Confidence   float64       `json:"confidence"`
	ResponseTime time.Duration `json:"response_time"`
}
