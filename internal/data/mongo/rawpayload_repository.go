package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/marketsync-ledger/internal/domain/rawpayload"
)

const (
	// RawPayloadCollectionName is the name of the raw payload archive collection
	RawPayloadCollectionName = "raw_payloads"
)

// RawPayloadRepository implements the rawpayload.Repository interface for MongoDB
type RawPayloadRepository struct {
	db     *mongo.Database
	logger *slog.Logger
}

// NewRawPayloadRepository creates a new MongoDB raw payload repository
func NewRawPayloadRepository(logger *slog.Logger, db *mongo.Database) rawpayload.Repository {
	return &RawPayloadRepository{
		db:     db,
		logger: logger,
	}
}

// Save stores one verbatim payload, replacing any previous entry with the same
// ref. Refs are freshly generated per fetch, so replacement only happens on a
// retried write.
func (r *RawPayloadRepository) Save(ctx context.Context, entry *rawpayload.Entry) error {
	collection := r.db.Collection(RawPayloadCollectionName)

	filter := bson.M{"ref": entry.Ref}
	opts := options.Replace().SetUpsert(true)

	if _, err := collection.ReplaceOne(ctx, filter, entry, opts); err != nil {
		r.logger.Error("Failed to save raw payload",
			"ref", entry.Ref,
			"entity_type", entry.EntityType,
			"error", err)
		return fmt.Errorf("failed to save raw payload: %w", err)
	}

	return nil
}

// GetByRef retrieves one archived payload by its opaque ref
func (r *RawPayloadRepository) GetByRef(ctx context.Context, ref string) (*rawpayload.Entry, error) {
	collection := r.db.Collection(RawPayloadCollectionName)

	filter := bson.M{"ref": ref}
	var entry rawpayload.Entry
	err := collection.FindOne(ctx, filter).Decode(&entry)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, rawpayload.ErrPayloadNotFound{Ref: ref}
		}
		r.logger.Error("Failed to get raw payload", "ref", ref, "error", err)
		return nil, fmt.Errorf("failed to get raw payload: %w", err)
	}

	return &entry, nil
}

// CleanupOlderThan prunes archive entries fetched before the cutoff and
// returns how many were removed.
func (r *RawPayloadRepository) CleanupOlderThan(ctx context.Context, maxAge time.Duration) (int64, error) {
	collection := r.db.Collection(RawPayloadCollectionName)

	cutoff := time.Now().UTC().Add(-maxAge)
	filter := bson.M{"fetched_at": bson.M{"$lt": cutoff}}

	result, err := collection.DeleteMany(ctx, filter)
	if err != nil {
		r.logger.Error("Failed to prune raw payloads", "cutoff", cutoff, "error", err)
		return 0, fmt.Errorf("failed to prune raw payloads: %w", err)
	}

	if result.DeletedCount > 0 {
		r.logger.Info("Pruned raw payloads", "removed", result.DeletedCount, "cutoff", cutoff)
	}

	return result.DeletedCount, nil
}
