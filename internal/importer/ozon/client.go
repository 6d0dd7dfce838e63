// Package ozon imports products, shipments and sales from the Ozon seller
// API into the document store.
package ozon

import (
	"context"
	"time"

	"github.com/marketsync-ledger/internal/domain/connection"
	"github.com/marketsync-ledger/internal/importer"
)

// Client fetches pages of normalized rows from one Ozon seller account. The
// wire format stays behind this interface; the executor only sees rows.
// The boolean result reports whether more pages remain.
type Client interface {
	FetchProducts(ctx context.Context, page int) ([]importer.ProductRow, bool, error)
	FetchShipments(ctx context.Context, from, to time.Time, page int) ([]importer.ShipmentRow, bool, error)
	FetchSales(ctx context.Context, from, to time.Time, page int) ([]importer.SaleRow, bool, error)
}

// ClientFactory builds a client for one connection's credentials.
type ClientFactory func(conn *connection.Connection) Client
