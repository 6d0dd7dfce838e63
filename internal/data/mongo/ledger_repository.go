// Package mongo provides MongoDB implementations of the projection-side
// repositories: the sales ledger and the raw payload archive.
package mongo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/marketsync-ledger/internal/domain/ledger"
)

const (
	// LedgerCollectionName is the name of the sales ledger collection in MongoDB
	LedgerCollectionName = "sales_ledger"
)

// LedgerRepository implements the ledger.Repository interface for MongoDB
type LedgerRepository struct {
	db     *mongo.Database
	logger *slog.Logger
}

// NewLedgerRepository creates a new MongoDB sales ledger repository
func NewLedgerRepository(logger *slog.Logger, db *mongo.Database) ledger.Repository {
	return &LedgerRepository{
		db:     db,
		logger: logger,
	}
}

// InsertMany stores a batch of ledger entries. Callers always delete the
// registrator's previous entries first, so this is plain append.
func (r *LedgerRepository) InsertMany(ctx context.Context, entries []*ledger.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	collection := r.db.Collection(LedgerCollectionName)

	docs := make([]interface{}, len(entries))
	for i, e := range entries {
		docs[i] = e
	}

	if _, err := collection.InsertMany(ctx, docs); err != nil {
		r.logger.Error("Failed to insert ledger entries",
			"registrator_ref", entries[0].RegistratorRef,
			"count", len(entries),
			"error", err)
		return fmt.Errorf("failed to insert ledger entries: %w", err)
	}

	return nil
}

// DeleteByRegistrator removes every entry of one registrator and returns how
// many were deleted. Deleting a registrator with no entries is not an error.
func (r *LedgerRepository) DeleteByRegistrator(ctx context.Context, registratorRef, registratorType string) (int64, error) {
	collection := r.db.Collection(LedgerCollectionName)

	filter := bson.M{
		"registrator_ref":  registratorRef,
		"registrator_type": registratorType,
	}

	result, err := collection.DeleteMany(ctx, filter)
	if err != nil {
		r.logger.Error("Failed to delete ledger entries",
			"registrator_ref", registratorRef,
			"registrator_type", registratorType,
			"error", err)
		return 0, fmt.Errorf("failed to delete ledger entries: %w", err)
	}

	return result.DeletedCount, nil
}

// GetByRegistrator retrieves the entries of one registrator sorted by line id
func (r *LedgerRepository) GetByRegistrator(ctx context.Context, registratorRef, registratorType string) ([]*ledger.Entry, error) {
	collection := r.db.Collection(LedgerCollectionName)

	filter := bson.M{
		"registrator_ref":  registratorRef,
		"registrator_type": registratorType,
	}
	opts := options.Find().SetSort(bson.M{"line_id": 1})

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		r.logger.Error("Failed to get ledger entries",
			"registrator_ref", registratorRef,
			"registrator_type", registratorType,
			"error", err)
		return nil, fmt.Errorf("failed to get ledger entries: %w", err)
	}
	defer cursor.Close(ctx)

	var entries []*ledger.Entry
	if err := cursor.All(ctx, &entries); err != nil {
		r.logger.Error("Failed to decode ledger entries",
			"registrator_ref", registratorRef,
			"error", err)
		return nil, fmt.Errorf("failed to decode ledger entries: %w", err)
	}

	return entries, nil
}

// CountByRegistrator counts the entries of one registrator
func (r *LedgerRepository) CountByRegistrator(ctx context.Context, registratorRef, registratorType string) (int64, error) {
	collection := r.db.Collection(LedgerCollectionName)

	filter := bson.M{
		"registrator_ref":  registratorRef,
		"registrator_type": registratorType,
	}

	count, err := collection.CountDocuments(ctx, filter)
	if err != nil {
		r.logger.Error("Failed to count ledger entries",
			"registrator_ref", registratorRef,
			"registrator_type", registratorType,
			"error", err)
		return 0, fmt.Errorf("failed to count ledger entries: %w", err)
	}

	return count, nil
}

// ListByDateRange retrieves paginated entries whose sale date falls in the
// window, newest first. An empty marketplace matches all marketplaces.
func (r *LedgerRepository) ListByDateRange(ctx context.Context, from, to time.Time, marketplace string, limit, offset int) ([]*ledger.Entry, error) {
	collection := r.db.Collection(LedgerCollectionName)

	filter := bson.M{
		"sale_date": bson.M{
			"$gte": from,
			"$lte": to,
		},
	}
	if marketplace != "" {
		filter["marketplace"] = marketplace
	}
	opts := options.Find().
		SetSort(bson.M{"sale_date": -1}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		r.logger.Error("Failed to list ledger entries by date range",
			"from", from,
			"to", to,
			"error", err)
		return nil, fmt.Errorf("failed to list ledger entries by date range: %w", err)
	}
	defer cursor.Close(ctx)

	var entries []*ledger.Entry
	if err := cursor.All(ctx, &entries); err != nil {
		r.logger.Error("Failed to decode ledger entries",
			"from", from,
			"to", to,
			"error", err)
		return nil, fmt.Errorf("failed to decode ledger entries: %w", err)
	}

	return entries, nil
}
