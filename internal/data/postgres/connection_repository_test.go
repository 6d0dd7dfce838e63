package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/marketsync-ledger/internal/domain/connection"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var connectionRowColumns = []string{
	"id", "code", "name", "marketplace", "base_url", "client_id", "api_key", "is_enabled", "created_at", "updated_at",
}

func testConnection() *connection.Connection {
	now := time.Now().UTC()
	return &connection.Connection{
		ID:          uuid.New(),
		Code:        "ozon-main",
		Name:        "Main Ozon account",
		Marketplace: "ozon",
		BaseURL:     "https://api-seller.ozon.ru",
		ClientID:    "12345",
		APIKey:      "secret",
		IsEnabled:   true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestConnectionRepository_GetByID(t *testing.T) {
	ctx := context.Background()
	logger := newTestLogger()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &ConnectionRepository{db: mock, logger: logger}
	conn := testConnection()

	query := `SELECT (.+) FROM connections WHERE id = \$1`

	t.Run("success", func(t *testing.T) {
		rows := pgxmock.NewRows(connectionRowColumns).AddRow(
			conn.ID, conn.Code, conn.Name, conn.Marketplace, conn.BaseURL,
			conn.ClientID, conn.APIKey, conn.IsEnabled, conn.CreatedAt, conn.UpdatedAt,
		)
		mock.ExpectQuery(query).WithArgs(conn.ID).WillReturnRows(rows)

		got, err := repo.GetByID(ctx, conn.ID)
		assert.NoError(t, err)
		assert.Equal(t, conn, got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		missing := uuid.New()
		mock.ExpectQuery(query).WithArgs(missing).WillReturnError(pgx.ErrNoRows)

		got, err := repo.GetByID(ctx, missing)
		assert.Error(t, err)
		assert.Nil(t, got)
		assert.ErrorIs(t, err, connection.ErrConnectionNotFound{ConnectionID: missing})
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestConnectionRepository_List(t *testing.T) {
	ctx := context.Background()
	logger := newTestLogger()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &ConnectionRepository{db: mock, logger: logger}
	first := testConnection()
	second := testConnection()
	second.Code = "wb-main"
	second.Marketplace = "wildberries"

	rows := pgxmock.NewRows(connectionRowColumns).
		AddRow(
			first.ID, first.Code, first.Name, first.Marketplace, first.BaseURL,
			first.ClientID, first.APIKey, first.IsEnabled, first.CreatedAt, first.UpdatedAt,
		).
		AddRow(
			second.ID, second.Code, second.Name, second.Marketplace, second.BaseURL,
			second.ClientID, second.APIKey, second.IsEnabled, second.CreatedAt, second.UpdatedAt,
		)

	mock.ExpectQuery(`SELECT (.+) FROM connections ORDER BY code`).WillReturnRows(rows)

	conns, err := repo.List(ctx)
	assert.NoError(t, err)
	require.Len(t, conns, 2)
	assert.Equal(t, "ozon-main", conns[0].Code)
	assert.Equal(t, "wildberries", conns[1].Marketplace)
	assert.NoError(t, mock.ExpectationsWereMet())
}
