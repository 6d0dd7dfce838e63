// Package postgres provides PostgreSQL implementations of the domain
// repositories. The document stores implement idempotent upserts keyed on
// natural keys so repeated imports of the same source data converge instead of
// duplicating.
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

// SaleRepository implements the document.SaleRepository interface for PostgreSQL
type SaleRepository struct {
	db     persistence.TxBeginner
	logger *slog.Logger
}

// NewSaleRepository creates a new PostgreSQL sale repository
func NewSaleRepository(logger *slog.Logger, db *persistence.PostgresDB) document.SaleRepository {
	return &SaleRepository{
		db:     db.Pool(),
		logger: logger,
	}
}

const saleColumns = `
	id, document_no, connection_id, marketplace, event_time, status_raw, status_norm,
	line, total_qty, total_amount,
	fetched_at, raw_payload_ref, payload_version,
	created_at, updated_at, is_deleted, is_posted, version
`

// Upsert inserts the sale or updates the existing row with the same document
// number. The read-compare-write sequence runs in one transaction with the
// existing row locked, so concurrent imports of the same document serialize.
func (r *SaleRepository) Upsert(ctx context.Context, sale *document.Sale) (document.UpsertOutcome, error) {
	outcome := document.UpsertUnchanged

	err := persistence.RunTx(ctx, r.db, func(tx pgx.Tx) error {
		existing, err := r.getByDocumentNo(ctx, tx, sale.DocumentNo, true)
		if err != nil && !errors.Is(err, document.ErrNotFound{Kind: "sale"}) {
			return err
		}

		if existing == nil {
			if err := r.insert(ctx, tx, sale); err != nil {
				return err
			}
			outcome = document.UpsertInserted
			return nil
		}

		// Identity and posting state always come from the stored row.
		sale.ID = existing.ID
		sale.Lifecycle = existing.Lifecycle

		if existing.ContentEquals(sale) && !existing.Lifecycle.IsDeleted {
			outcome = document.UpsertUnchanged
			return nil
		}

		if err := r.update(ctx, tx, sale, existing.Lifecycle.Version); err != nil {
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

func (r *SaleRepository) insert(ctx context.Context, q persistence.Querier, sale *document.Sale) error {
	query := `
		INSERT INTO sale_documents (` + saleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`

	_, err := q.Exec(ctx, query,
		sale.ID,
		sale.DocumentNo,
		sale.ConnectionID,
		sale.Marketplace,
		sale.EventTime,
		sale.StatusRaw,
		sale.StatusNorm,
		sale.Line,
		sale.TotalQty,
		sale.TotalAmount,
		sale.SourceMeta.FetchedAt,
		sale.SourceMeta.RawPayloadRef,
		sale.SourceMeta.PayloadVersion,
		sale.Lifecycle.CreatedAt,
		sale.Lifecycle.UpdatedAt,
		sale.Lifecycle.IsDeleted,
		sale.Lifecycle.IsPosted,
		sale.Lifecycle.Version,
	)
	if err != nil {
		r.logger.Error("Failed to insert sale", "document_no", sale.DocumentNo, "error", err)
		return fmt.Errorf("failed to insert sale: %w", err)
	}

	return nil
}

func (r *SaleRepository) update(ctx context.Context, q persistence.Querier, sale *document.Sale, expectedVersion int) error {
	sale.Lifecycle.Version = expectedVersion + 1
	sale.Lifecycle.UpdatedAt = time.Now().UTC()
	sale.Lifecycle.IsDeleted = false // A re-imported document is live again

	query := `
		UPDATE sale_documents
		SET connection_id = $1, marketplace = $2, event_time = $3, status_raw = $4, status_norm = $5,
		    line = $6, total_qty = $7, total_amount = $8,
		    fetched_at = $9, raw_payload_ref = $10, payload_version = $11,
		    updated_at = $12, is_deleted = $13, version = $14
		WHERE id = $15 AND version = $16
	`

	result, err := q.Exec(ctx, query,
		sale.ConnectionID,
		sale.Marketplace,
		sale.EventTime,
		sale.StatusRaw,
		sale.StatusNorm,
		sale.Line,
		sale.TotalQty,
		sale.TotalAmount,
		sale.SourceMeta.FetchedAt,
		sale.SourceMeta.RawPayloadRef,
		sale.SourceMeta.PayloadVersion,
		sale.Lifecycle.UpdatedAt,
		sale.Lifecycle.IsDeleted,
		sale.Lifecycle.Version,
		sale.ID,
		expectedVersion,
	)
	if err != nil {
		r.logger.Error("Failed to update sale", "document_no", sale.DocumentNo, "error", err)
		return fmt.Errorf("failed to update sale: %w", err)
	}

	if result.RowsAffected() == 0 {
		return document.ErrConcurrentModification{Kind: "sale", ID: sale.ID}
	}

	return nil
}

// GetByID retrieves a sale by its ID
func (r *SaleRepository) GetByID(ctx context.Context, id uuid.UUID) (*document.Sale, error) {
	query := `SELECT ` + saleColumns + ` FROM sale_documents WHERE id = $1`

	sale, err := r.scanSale(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, document.ErrNotFound{Kind: "sale", Key: id.String()}
		}
		r.logger.Error("Failed to get sale", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get sale: %w", err)
	}

	return sale, nil
}

// GetByDocumentNo retrieves a sale by its natural key
func (r *SaleRepository) GetByDocumentNo(ctx context.Context, documentNo string) (*document.Sale, error) {
	return r.getByDocumentNo(ctx, r.db, documentNo, false)
}

func (r *SaleRepository) getByDocumentNo(ctx context.Context, q persistence.Querier, documentNo string, forUpdate bool) (*document.Sale, error) {
	query := `SELECT ` + saleColumns + ` FROM sale_documents WHERE document_no = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	sale, err := r.scanSale(q.QueryRow(ctx, query, documentNo))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, document.ErrNotFound{Kind: "sale", Key: documentNo}
		}
		r.logger.Error("Failed to get sale by document no", "document_no", documentNo, "error", err)
		return nil, fmt.Errorf("failed to get sale by document no: %w", err)
	}

	return sale, nil
}

// SetPosted flips the posted flag. Reserved for the posting engine.
func (r *SaleRepository) SetPosted(ctx context.Context, id uuid.UUID, posted bool) error {
	query := `
		UPDATE sale_documents
		SET is_posted = $1, updated_at = NOW()
		WHERE id = $2
	`

	result, err := r.db.Exec(ctx, query, posted, id)
	if err != nil {
		r.logger.Error("Failed to set sale posted flag", "id", id.String(), "error", err)
		return fmt.Errorf("failed to set sale posted flag: %w", err)
	}

	if result.RowsAffected() == 0 {
		return document.ErrNotFound{Kind: "sale", Key: id.String()}
	}

	return nil
}

// SoftDelete marks the sale deleted without removing the row
func (r *SaleRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE sale_documents
		SET is_deleted = TRUE, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.Exec(ctx, query, id)
	if err != nil {
		r.logger.Error("Failed to soft delete sale", "id", id.String(), "error", err)
		return fmt.Errorf("failed to soft delete sale: %w", err)
	}

	if result.RowsAffected() == 0 {
		return document.ErrNotFound{Kind: "sale", Key: id.String()}
	}

	return nil
}

func (r *SaleRepository) scanSale(row pgx.Row) (*document.Sale, error) {
	var sale document.Sale
	err := row.Scan(
		&sale.ID,
		&sale.DocumentNo,
		&sale.ConnectionID,
		&sale.Marketplace,
		&sale.EventTime,
		&sale.StatusRaw,
		&sale.StatusNorm,
		&sale.Line,
		&sale.TotalQty,
		&sale.TotalAmount,
		&sale.SourceMeta.FetchedAt,
		&sale.SourceMeta.RawPayloadRef,
		&sale.SourceMeta.PayloadVersion,
		&sale.Lifecycle.CreatedAt,
		&sale.Lifecycle.UpdatedAt,
		&sale.Lifecycle.IsDeleted,
		&sale.Lifecycle.IsPosted,
		&sale.Lifecycle.Version,
	)
	if err != nil {
		return nil, err
	}
	return &sale, nil
}
