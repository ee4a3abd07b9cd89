// Package ldes defines the data model shared by stream readers, the
// orchestrator and the sink connectors: shapes, members (entity versions),
// reader events and the narrow interfaces through which the replicator
// consumes a Linked Data Event Stream.
package ldes

import (
	"context"
	"time"
)

// ShapeField describes one expected property of a stream member
type ShapeField struct {
	Path     string `yaml:"path" json:"path"`
	Datatype string `yaml:"datatype" json:"datatype"`
	MinCount *int   `yaml:"min_count,omitempty" json:"minCount,omitempty"`
	MaxCount *int   `yaml:"max_count,omitempty" json:"maxCount,omitempty"`
}

// Shape is the ordered list of fields a stream declares for its members.
// It is never modified after it has been fetched.
type Shape []ShapeField

// Has reports whether the shape declares a field with the given path
func (s Shape) Has(path string) bool {
	_, ok := s.Field(path)
	return ok
}

// Field returns the field declared for path
func (s Shape) Field(path string) (ShapeField, bool) {
	for _, f := range s {
		if f.Path == path {
			return f, true
		}
	}
	return ShapeField{}, false
}

// Paths returns the declared paths in shape order
func (s Shape) Paths() []string {
	paths := make([]string, len(s))
	for i, f := range s {
		paths[i] = f.Path
	}
	return paths
}

// Member is one serialized entity version (a JSON-LD document) as emitted
// by the reader. Members are immutable once emitted.
type Member []byte

// Clone returns an independent copy of the member
func (m Member) Clone() Member {
	if m == nil {
		return nil
	}
	c := make(Member, len(m))
	copy(c, m)
	return c
}

// EventKind distinguishes the events a reader emits
type EventKind int

const (
	// EventMember carries one entity version
	EventMember EventKind = iota
	// EventPage announces that the reader moved to a new page
	EventPage
)

// String returns the event kind name
func (k EventKind) String() string {
	switch k {
	case EventMember:
		return "member"
	case EventPage:
		return "page"
	default:
		return "unknown"
	}
}

// Event is one item of a reader's output. Page events precede the members
// of the page they announce.
type Event struct {
	Kind   EventKind
	Page   string
	Member Member
}

// EventStream is the output of a Reader. Events is closed at end-of-stream.
// A reader error is sent on Errors before Events is closed; at most one
// error is ever sent.
type EventStream struct {
	Events <-chan Event
	Errors <-chan error
}

// ReaderOptions positions a reader on a stream
type ReaderOptions struct {
	// URL is the stream's root URL
	URL string
	// StartPage is the page to resume from. It is always read, even when it
	// is also listed in ExcludePages.
	StartPage string
	// ExcludePages lists pages that were already processed
	ExcludePages []string
	// PollingInterval enables polling mode when positive
	PollingInterval time.Duration
}

// Reader produces the events of one stream. Events are unbuffered so a
// reader never runs ahead of its consumer.
type Reader interface {
	Stream(ctx context.Context) *EventStream
	Close() error
}

// ReaderFactory opens a reader positioned according to opts
type ReaderFactory func(ctx context.Context, opts ReaderOptions) (Reader, error)

// ShapeFetcher resolves the shape of a stream
type ShapeFetcher interface {
	FetchShape(ctx context.Context, url string) (Shape, error)
}

// StaticShapes serves shapes from configuration, keyed by stream URL
type StaticShapes map[string]Shape

// FetchShape implements ShapeFetcher. Unknown streams have an empty shape.
func (s StaticShapes) FetchShape(_ context.Context, url string) (Shape, error) {
	return s[url], nil
}
