// Package ledger holds the derived sales register. Entries are rebuildable
// projections of posted documents and are only ever written as a complete set
// per registrator, via delete-then-insert.
package ledger

import (
	"time"

	"github.com/google/uuid"
)

// Entry summarizes one document line's economic effect on the sales ledger.
// RegistratorRef plus RegistratorType form a weak back-reference to the
// originating document: lookup keys, never ownership.
type Entry struct {
	ID              uuid.UUID `json:"id" bson:"id"`
	RegistratorRef  string    `json:"registrator_ref" bson:"registrator_ref"`
	RegistratorType string    `json:"registrator_type" bson:"registrator_type"`
	SaleDate        time.Time `json:"sale_date" bson:"sale_date"`
	Marketplace     string    `json:"marketplace" bson:"marketplace"`
	ConnectionRef   string    `json:"connection_ref" bson:"connection_ref"`
	DocumentNo      string    `json:"document_no" bson:"document_no"`
	LineID          string    `json:"line_id" bson:"line_id"`
	SKU             string    `json:"sku" bson:"sku"`
	Title           string    `json:"title,omitempty" bson:"title,omitempty"`
	Qty             float64   `json:"qty" bson:"qty"`       // Signed; returns are negative
	Amount          int64     `json:"amount" bson:"amount"` // Signed, minor currency units
	Currency        string    `json:"currency" bson:"currency"`
	CreatedAt       time.Time `json:"created_at" bson:"created_at"`
}
