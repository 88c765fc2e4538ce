package models

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// ContentID identifies a unit of the book hierarchy.
type ContentID uuid.UUID

// NewContentID returns a random identifier.
func NewContentID() ContentID {
	return ContentID(uuid.New())
}

// ParseContentID parses the canonical UUID form.
func ParseContentID(s string) (ContentID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return ContentID{}, fmt.Errorf("%w: content id %q: %v", ErrInvalidArgument, s, err)
	}
	return ContentID(id), nil
}

func (id ContentID) String() string {
	return uuid.UUID(id).String()
}

// UUID exposes the underlying value for drivers.
func (id ContentID) UUID() uuid.UUID {
	return uuid.UUID(id)
}

func (id ContentID) IsZero() bool {
	return id == ContentID{}
}

func (id ContentID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *ContentID) UnmarshalText(b []byte) error {
	parsed, err := ParseContentID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

type ContentType string

const (
	Book    ContentType = "Book"
	Module  ContentType = "Module"
	Chapter ContentType = "Chapter"
	Section ContentType = "Section"
)

// Child returns the level directly below t, or "" for sections.
func (t ContentType) Child() ContentType {
	switch t {
	case Book:
		return Module
	case Module:
		return Chapter
	case Chapter:
		return Section
	}
	return ""
}

func (t ContentType) Valid() bool {
	switch t {
	case Book, Module, Chapter, Section:
		return true
	}
	return false
}

// ContentUnit is a read-only view of one node of the hierarchy.
type ContentUnit struct {
	ID       ContentID
	Type     ContentType
	ParentID ContentID
	Title    string
	Number   int
	// Kind is the section kind (text, code, diagram, exercise, summary).
	Kind string
	Text string
}

// ChunkID is the store key of one chunk: "{content_id}_{chunk_index}".
type ChunkID string

func NewChunkID(contentID ContentID, index int) ChunkID {
	return ChunkID(contentID.String() + "_" + strconv.Itoa(index))
}

func (id ChunkID) String() string {
	return string(id)
}
