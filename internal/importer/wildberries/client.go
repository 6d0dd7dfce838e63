// Package wildberries imports sales and the goods price feed from the
// Wildberries supplier API.
package wildberries

import (
	"context"
	"time"

	"github.com/marketsync-ledger/internal/domain/connection"
	"github.com/marketsync-ledger/internal/importer"
)

// Client fetches pages of normalized rows from one Wildberries supplier
// account. The boolean result reports whether more pages remain.
type Client interface {
	FetchSales(ctx context.Context, from, to time.Time, page int) ([]importer.SaleRow, bool, error)
	FetchPrices(ctx context.Context, page int) ([]importer.PriceRow, bool, error)
}

// ClientFactory builds a client for one connection's credentials.
type ClientFactory func(conn *connection.Connection) Client
