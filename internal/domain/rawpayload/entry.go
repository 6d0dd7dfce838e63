// Package rawpayload is the append-only archive of untouched source payloads.
// Documents reference entries here by an opaque ref; at most one document
// points at a given entry.
package rawpayload

import (
	"context"
	"time"
)

// Entry stores one document's verbatim external payload.
type Entry struct {
	Ref        string    `json:"ref" bson:"ref"`
	Source     string    `json:"source" bson:"source"`
	EntityType string    `json:"entity_type" bson:"entity_type"`
	NaturalKey string    `json:"natural_key" bson:"natural_key"`
	Payload    string    `json:"payload" bson:"payload"`
	FetchedAt  time.Time `json:"fetched_at" bson:"fetched_at"`
	CreatedAt  time.Time `json:"created_at" bson:"created_at"`
}

// Repository provides append and keyed retrieval over the archive. Pruning by
// age is an operator-scheduled concern, not part of any import flow.
type Repository interface {
	Save(ctx context.Context, entry *Entry) error
	GetByRef(ctx context.Context, ref string) (*Entry, error)
	CleanupOlderThan(ctx context.Context, maxAge time.Duration) (int64, error)
}

// ErrPayloadNotFound indicates a missing archive entry
type ErrPayloadNotFound struct {
	Ref string
}

func (e ErrPayloadNotFound) Error() string {
	return "raw payload not found: " + e.Ref
}

// Is implements the errors.Is interface for ErrPayloadNotFound
func (e ErrPayloadNotFound) Is(target error) bool {
	t, ok := target.(ErrPayloadNotFound)
	if !ok {
		return false
	}
	return t.Ref == "" || t.Ref == e.Ref
}
