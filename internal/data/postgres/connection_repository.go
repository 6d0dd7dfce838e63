package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/marketsync-ledger/internal/domain/connection"
	"github.com/marketsync-ledger/internal/platform/persistence"
)

// ConnectionRepository implements the connection.Repository interface for PostgreSQL
type ConnectionRepository struct {
	db     persistence.Querier
	logger *slog.Logger
}

// NewConnectionRepository creates a new PostgreSQL connection repository
func NewConnectionRepository(logger *slog.Logger, db *persistence.PostgresDB) connection.Repository {
	return &ConnectionRepository{
		db:     db.Pool(),
		logger: logger,
	}
}

const connectionColumns = `
	id, code, name, marketplace, base_url, client_id, api_key, is_enabled, created_at, updated_at
`

// GetByID retrieves a connection by its ID
func (r *ConnectionRepository) GetByID(ctx context.Context, id uuid.UUID) (*connection.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections WHERE id = $1`

	var conn connection.Connection
	err := r.db.QueryRow(ctx, query, id).Scan(
		&conn.ID,
		&conn.Code,
		&conn.Name,
		&conn.Marketplace,
		&conn.BaseURL,
		&conn.ClientID,
		&conn.APIKey,
		&conn.IsEnabled,
		&conn.CreatedAt,
		&conn.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, connection.ErrConnectionNotFound{ConnectionID: id}
		}
		r.logger.Error("Failed to get connection", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}

	return &conn, nil
}

// List retrieves all connections ordered by code
func (r *ConnectionRepository) List(ctx context.Context) ([]*connection.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections ORDER BY code`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		r.logger.Error("Failed to list connections", "error", err)
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	defer rows.Close()

	var conns []*connection.Connection
	for rows.Next() {
		var conn connection.Connection
		if err := rows.Scan(
			&conn.ID,
			&conn.Code,
			&conn.Name,
			&conn.Marketplace,
			&conn.BaseURL,
			&conn.ClientID,
			&conn.APIKey,
			&conn.IsEnabled,
			&conn.CreatedAt,
			&conn.UpdatedAt,
		); err != nil {
			r.logger.Error("Failed to scan connection", "error", err)
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}
		conns = append(conns, &conn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read connections: %w", err)
	}

	return conns, nil
}
