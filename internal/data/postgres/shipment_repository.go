package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/marketsync-ledger/internal/domain/document"
	"github.com/marketsync-ledger/internal/platform/persistence"
)

// ShipmentRepository implements the document.ShipmentRepository interface for PostgreSQL
type ShipmentRepository struct {
	db     persistence.TxBeginner
	logger *slog.Logger
}

// NewShipmentRepository creates a new PostgreSQL shipment repository
func NewShipmentRepository(logger *slog.Logger, db *persistence.PostgresDB) document.ShipmentRepository {
	return &ShipmentRepository{
		db:     db.Pool(),
		logger: logger,
	}
}

const shipmentColumns = `
	id, document_no, connection_id, marketplace, scheme, status_raw, status_norm, delivered_at,
	lines, total_qty, total_amount,
	fetched_at, raw_payload_ref, payload_version,
	created_at, updated_at, is_deleted, is_posted, version
`

// Upsert inserts the shipment or updates the existing row with the same
// document number, reporting which of the two happened. Lines are stored as a
// JSONB array and compared as part of the document content.
func (r *ShipmentRepository) Upsert(ctx context.Context, shipment *document.Shipment) (document.UpsertOutcome, error) {
	outcome := document.UpsertUnchanged

	err := persistence.RunTx(ctx, r.db, func(tx pgx.Tx) error {
		existing, err := r.getByDocumentNo(ctx, tx, shipment.DocumentNo, true)
		if err != nil && !errors.Is(err, document.ErrNotFound{Kind: "shipment"}) {
			return err
		}

		if existing == nil {
			if err := r.insert(ctx, tx, shipment); err != nil {
				return err
			}
			outcome = document.UpsertInserted
			return nil
		}

		shipment.ID = existing.ID
		shipment.Lifecycle = existing.Lifecycle

		if existing.ContentEquals(shipment) && !existing.Lifecycle.IsDeleted {
			outcome = document.UpsertUnchanged
			return nil
		}

		if err := r.update(ctx, tx, shipment, existing.Lifecycle.Version); err != nil {
			return err
		}
		outcome = document.UpsertUpdated
		return nil
	})
	if err != nil {
		return document.UpsertUnchanged, err
	}

	return outcome, nil
}

func (r *ShipmentRepository) insert(ctx context.Context, q persistence.Querier, shipment *document.Shipment) error {
	query := `
		INSERT INTO shipment_documents (` + shipmentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`

	_, err := q.Exec(ctx, query,
		shipment.ID,
		shipment.DocumentNo,
		shipment.ConnectionID,
		shipment.Marketplace,
		shipment.Scheme,
		shipment.StatusRaw,
		shipment.StatusNorm,
		shipment.DeliveredAt,
		shipment.Lines,
		shipment.TotalQty,
		shipment.TotalAmount,
		shipment.SourceMeta.FetchedAt,
		shipment.SourceMeta.RawPayloadRef,
		shipment.SourceMeta.PayloadVersion,
		shipment.Lifecycle.CreatedAt,
		shipment.Lifecycle.UpdatedAt,
		shipment.Lifecycle.IsDeleted,
		shipment.Lifecycle.IsPosted,
		shipment.Lifecycle.Version,
	)
	if err != nil {
		r.logger.Error("Failed to insert shipment", "document_no", shipment.DocumentNo, "error", err)
		return fmt.Errorf("failed to insert shipment: %w", err)
	}

	return nil
}

func (r *ShipmentRepository) update(ctx context.Context, q persistence.Querier, shipment *document.Shipment, expectedVersion int) error {
	shipment.Lifecycle.Version = expectedVersion + 1
	shipment.Lifecycle.UpdatedAt = time.Now().UTC()
	shipment.Lifecycle.IsDeleted = false

	query := `
		UPDATE shipment_documents
		SET connection_id = $1, marketplace = $2, scheme = $3, status_raw = $4, status_norm = $5,
		    delivered_at = $6, lines = $7, total_qty = $8, total_amount = $9,
		    fetched_at = $10, raw_payload_ref = $11, payload_version = $12,
		    updated_at = $13, is_deleted = $14, version = $15
		WHERE id = $16 AND version = $17
	`

	result, err := q.Exec(ctx, query,
		shipment.ConnectionID,
		shipment.Marketplace,
		shipment.Scheme,
		shipment.StatusRaw,
		shipment.StatusNorm,
		shipment.DeliveredAt,
		shipment.Lines,
		shipment.TotalQty,
		shipment.TotalAmount,
		shipment.SourceMeta.FetchedAt,
		shipment.SourceMeta.RawPayloadRef,
		shipment.SourceMeta.PayloadVersion,
		shipment.Lifecycle.UpdatedAt,
		shipment.Lifecycle.IsDeleted,
		shipment.Lifecycle.Version,
		shipment.ID,
		expectedVersion,
	)
	if err != nil {
		r.logger.Error("Failed to update shipment", "document_no", shipment.DocumentNo, "error", err)
		return fmt.Errorf("failed to update shipment: %w", err)
	}

	if result.RowsAffected() == 0 {
		return document.ErrConcurrentModification{Kind: "shipment", ID: shipment.ID}
	}

	return nil
}

// GetByID retrieves a shipment by its ID
func (r *ShipmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*document.Shipment, error) {
	query := `SELECT ` + shipmentColumns + ` FROM shipment_documents WHERE id = $1`

	shipment, err := r.scanShipment(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, document.ErrNotFound{Kind: "shipment", Key: id.String()}
		}
		r.logger.Error("Failed to get shipment", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get shipment: %w", err)
	}

	return shipment, nil
}

// GetByDocumentNo retrieves a shipment by its natural key
func (r *ShipmentRepository) GetByDocumentNo(ctx context.Context, documentNo string) (*document.Shipment, error) {
	return r.getByDocumentNo(ctx, r.db, documentNo, false)
}

func (r *ShipmentRepository) getByDocumentNo(ctx context.Context, q persistence.Querier, documentNo string, forUpdate bool) (*document.Shipment, error) {
	query := `SELECT ` + shipmentColumns + ` FROM shipment_documents WHERE document_no = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	shipment, err := r.scanShipment(q.QueryRow(ctx, query, documentNo))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, document.ErrNotFound{Kind: "shipment", Key: documentNo}
		}
		r.logger.Error("Failed to get shipment by document no", "document_no", documentNo, "error", err)
		return nil, fmt.Errorf("failed to get shipment by document no: %w", err)
	}

	return shipment, nil
}

// SetPosted flips the posted flag. Reserved for the posting engine.
func (r *ShipmentRepository) SetPosted(ctx context.Context, id uuid.UUID, posted bool) error {
	query := `
		UPDATE shipment_documents
		SET is_posted = $1, updated_at = NOW()
		WHERE id = $2
	`

	result, err := r.db.Exec(ctx, query, posted, id)
	if err != nil {
		r.logger.Error("Failed to set shipment posted flag", "id", id.String(), "error", err)
		return fmt.Errorf("failed to set shipment posted flag: %w", err)
	}

	if result.RowsAffected() == 0 {
		return document.ErrNotFound{Kind: "shipment", Key: id.String()}
	}

	return nil
}

// SoftDelete marks the shipment deleted without removing the row
func (r *ShipmentRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE shipment_documents
		SET is_deleted = TRUE, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.Exec(ctx, query, id)
	if err != nil {
		r.logger.Error("Failed to soft delete shipment", "id", id.String(), "error", err)
		return fmt.Errorf("failed to soft delete shipment: %w", err)
	}

	if result.RowsAffected() == 0 {
		return document.ErrNotFound{Kind: "shipment", Key: id.String()}
	}

	return nil
}

func (r *ShipmentRepository) scanShipment(row pgx.Row) (*document.Shipment, error) {
	var shipment document.Shipment
	err := row.Scan(
		&shipment.ID,
		&shipment.DocumentNo,
		&shipment.ConnectionID,
		&shipment.Marketplace,
		&shipment.Scheme,
		&shipment.StatusRaw,
		&shipment.StatusNorm,
		&shipment.DeliveredAt,
		&shipment.Lines,
		&shipment.TotalQty,
		&shipment.TotalAmount,
		&shipment.SourceMeta.FetchedAt,
		&shipment.SourceMeta.RawPayloadRef,
		&shipment.SourceMeta.PayloadVersion,
		&shipment.Lifecycle.CreatedAt,
		&shipment.Lifecycle.UpdatedAt,
		&shipment.Lifecycle.IsDeleted,
		&shipment.Lifecycle.IsPosted,
		&shipment.Lifecycle.Version,
	)
	if err != nil {
		return nil, err
	}
	return &shipment, nil
}
