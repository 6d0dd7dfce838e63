package ledger

import (
	"context"
	"time"
)

// Repository manages ledger entry persistence. The write path is deliberately
// narrow: a registrator's entries are deleted and re-inserted as a whole set,
// never patched row by row.
type Repository interface {
	InsertMany(ctx context.Context, entries []*Entry) error
	DeleteByRegistrator(ctx context.Context, registratorRef, registratorType string) (int64, error)
	GetByRegistrator(ctx context.Context, registratorRef, registratorType string) ([]*Entry, error)
	CountByRegistrator(ctx context.Context, registratorRef, registratorType string) (int64, error)
	ListByDateRange(ctx context.Context, from, to time.Time, marketplace string, limit, offset int) ([]*Entry, error)
}
