package document

import (
	"context"

	"github.com/google/uuid"
)

// SaleRepository manages sale document persistence. Upsert is keyed on the
// natural key and reports what it did; SetPosted is reserved for the posting
// engine.
type SaleRepository interface {
	Upsert(ctx context.Context, sale *Sale) (UpsertOutcome, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Sale, error)
	GetByDocumentNo(ctx context.Context, documentNo string) (*Sale, error)
	SetPosted(ctx context.Context, id uuid.UUID, posted bool) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
}

// ShipmentRepository manages shipment document persistence.
type ShipmentRepository interface {
	Upsert(ctx context.Context, shipment *Shipment) (UpsertOutcome, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Shipment, error)
	GetByDocumentNo(ctx context.Context, documentNo string) (*Shipment, error)
	SetPosted(ctx context.Context, id uuid.UUID, posted bool) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
}

// ProductRepository manages marketplace product persistence. Products never
// post, so there is no posted-flag mutation here.
type ProductRepository interface {
	Upsert(ctx context.Context, product *Product) (UpsertOutcome, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Product, error)
	GetBySKU(ctx context.Context, sku string) (*Product, error)
	SoftDelete(ctx context.Context, id uuid.UUID) error
}

// ErrNotFound indicates a missing document
type ErrNotFound struct {
	Kind string
	Key  string
}

func (e ErrNotFound) Error() string {
	return e.Kind + " not found: " + e.Key
}

// Is implements the errors.Is interface for ErrNotFound
func (e ErrNotFound) Is(target error) bool {
	t, ok := target.(ErrNotFound)
	if !ok {
		return false
	}
	// An empty target key matches any missing document of the same kind
	if t.Key == "" {
		return t.Kind == "" || t.Kind == e.Kind
	}
	return e.Kind == t.Kind && e.Key == t.Key
}

// ErrConcurrentModification indicates an optimistic version check failure
type ErrConcurrentModification struct {
	Kind string
	ID   uuid.UUID
}

func (e ErrConcurrentModification) Error() string {
	return "concurrent modification detected for " + e.Kind + ": " + e.ID.String()
}
