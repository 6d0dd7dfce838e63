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

// ProductRepository implements the document.ProductRepository interface for PostgreSQL
type ProductRepository struct {
	db     persistence.TxBeginner
	logger *slog.Logger
}

// NewProductRepository creates a new PostgreSQL product repository
func NewProductRepository(logger *slog.Logger, db *persistence.PostgresDB) document.ProductRepository {
	return &ProductRepository{
		db:     db.Pool(),
		logger: logger,
	}
}

const productColumns = `
	id, sku, connection_id, marketplace, mp_item_id, name, barcode,
	fetched_at, raw_payload_ref, payload_version,
	created_at, updated_at, is_deleted, version
`

// Upsert inserts the product or updates the existing row with the same SKU,
// reporting which of the two happened.
func (r *ProductRepository) Upsert(ctx context.Context, product *document.Product) (document.UpsertOutcome, error) {
	outcome := document.UpsertUnchanged

	err := persistence.RunTx(ctx, r.db, func(tx pgx.Tx) error {
		existing, err := r.getBySKU(ctx, tx, product.SKU, true)
		if err != nil && !errors.Is(err, document.ErrNotFound{Kind: "product"}) {
			return err
		}

		if existing == nil {
			if err := r.insert(ctx, tx, product); err != nil {
				return err
			}
			outcome = document.UpsertInserted
			return nil
		}

		product.ID = existing.ID
		product.Lifecycle = existing.Lifecycle

		if existing.ContentEquals(product) && !existing.Lifecycle.IsDeleted {
			outcome = document.UpsertUnchanged
			return nil
		}

		if err := r.update(ctx, tx, product, existing.Lifecycle.Version); err != nil {
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

func (r *ProductRepository) insert(ctx context.Context, q persistence.Querier, product *document.Product) error {
	query := `
		INSERT INTO products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := q.Exec(ctx, query,
		product.ID,
		product.SKU,
		product.ConnectionID,
		product.Marketplace,
		product.MPItemID,
		product.Name,
		product.Barcode,
		product.SourceMeta.FetchedAt,
		product.SourceMeta.RawPayloadRef,
		product.SourceMeta.PayloadVersion,
		product.Lifecycle.CreatedAt,
		product.Lifecycle.UpdatedAt,
		product.Lifecycle.IsDeleted,
		product.Lifecycle.Version,
	)
	if err != nil {
		r.logger.Error("Failed to insert product", "sku", product.SKU, "error", err)
		return fmt.Errorf("failed to insert product: %w", err)
	}

	return nil
}

func (r *ProductRepository) update(ctx context.Context, q persistence.Querier, product *document.Product, expectedVersion int) error {
	product.Lifecycle.Version = expectedVersion + 1
	product.Lifecycle.UpdatedAt = time.Now().UTC()
	product.Lifecycle.IsDeleted = false

	query := `
		UPDATE products
		SET connection_id = $1, marketplace = $2, mp_item_id = $3, name = $4, barcode = $5,
		    fetched_at = $6, raw_payload_ref = $7, payload_version = $8,
		    updated_at = $9, is_deleted = $10, version = $11
		WHERE id = $12 AND version = $13
	`

	result, err := q.Exec(ctx, query,
		product.ConnectionID,
		product.Marketplace,
		product.MPItemID,
		product.Name,
		product.Barcode,
		product.SourceMeta.FetchedAt,
		product.SourceMeta.RawPayloadRef,
		product.SourceMeta.PayloadVersion,
		product.Lifecycle.UpdatedAt,
		product.Lifecycle.IsDeleted,
		product.Lifecycle.Version,
		product.ID,
		expectedVersion,
	)
	if err != nil {
		r.logger.Error("Failed to update product", "sku", product.SKU, "error", err)
		return fmt.Errorf("failed to update product: %w", err)
	}

	if result.RowsAffected() == 0 {
		return document.ErrConcurrentModification{Kind: "product", ID: product.ID}
	}

	return nil
}

// GetByID retrieves a product by its ID
func (r *ProductRepository) GetByID(ctx context.Context, id uuid.UUID) (*document.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	product, err := r.scanProduct(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, document.ErrNotFound{Kind: "product", Key: id.String()}
		}
		r.logger.Error("Failed to get product", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	return product, nil
}

// GetBySKU retrieves a product by its natural key
func (r *ProductRepository) GetBySKU(ctx context.Context, sku string) (*document.Product, error) {
	return r.getBySKU(ctx, r.db, sku, false)
}

func (r *ProductRepository) getBySKU(ctx context.Context, q persistence.Querier, sku string, forUpdate bool) (*document.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE sku = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	product, err := r.scanProduct(q.QueryRow(ctx, query, sku))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, document.ErrNotFound{Kind: "product", Key: sku}
		}
		r.logger.Error("Failed to get product by sku", "sku", sku, "error", err)
		return nil, fmt.Errorf("failed to get product by sku: %w", err)
	}

	return product, nil
}

// SoftDelete marks the product deleted without removing the row
func (r *ProductRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE products
		SET is_deleted = TRUE, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.Exec(ctx, query, id)
	if err != nil {
		r.logger.Error("Failed to soft delete product", "id", id.String(), "error", err)
		return fmt.Errorf("failed to soft delete product: %w", err)
	}

	if result.RowsAffected() == 0 {
		return document.ErrNotFound{Kind: "product", Key: id.String()}
	}

	return nil
}

func (r *ProductRepository) scanProduct(row pgx.Row) (*document.Product, error) {
	var product document.Product
	err := row.Scan(
		&product.ID,
		&product.SKU,
		&product.ConnectionID,
		&product.Marketplace,
		&product.MPItemID,
		&product.Name,
		&product.Barcode,
		&product.SourceMeta.FetchedAt,
		&product.SourceMeta.RawPayloadRef,
		&product.SourceMeta.PayloadVersion,
		&product.Lifecycle.CreatedAt,
		&product.Lifecycle.UpdatedAt,
		&product.Lifecycle.IsDeleted,
		&product.Lifecycle.Version,
	)
	if err != nil {
		return nil, err
	}
	return &product, nil
}
