// Package document holds the write-model records for imported marketplace
// documents. Each document type is keyed by an internal UUID plus the source
// system's own document number (the natural key), and carries lifecycle and
// source metadata blocks by composition.
package document

import (
	"time"
)

// Lifecycle is embedded in every document type. IsPosted changes only through
// the posting engine; Version backs the optimistic check on every update.
type Lifecycle struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	IsDeleted bool      `json:"is_deleted"`
	IsPosted  bool      `json:"is_posted"`
	Version   int       `json:"version"`
}

// SourceMeta records where a document's data came from. RawPayloadRef points
// into the raw payload archive; it is a lookup key, not ownership.
type SourceMeta struct {
	FetchedAt      time.Time `json:"fetched_at"`
	RawPayloadRef  string    `json:"raw_payload_ref"`
	PayloadVersion int       `json:"payload_version"`
}

// Line is a single item row within a document. Amounts are stored in minor
// currency units.
type Line struct {
	LineID   string  `json:"line_id"`
	SKU      string  `json:"sku"`
	MPItemID string  `json:"mp_item_id"`
	Name     string  `json:"name"`
	Qty      float64 `json:"qty"`
	Price    int64   `json:"price"`
	Amount   int64   `json:"amount"`
	Currency string  `json:"currency"`
}

// UpsertOutcome reports what an idempotent upsert actually did, so import
// counters can distinguish new documents from refreshed and untouched ones.
type UpsertOutcome int

const (
	UpsertInserted UpsertOutcome = iota
	UpsertUpdated
	UpsertUnchanged
)

func (o UpsertOutcome) String() string {
	switch o {
	case UpsertInserted:
		return "inserted"
	case UpsertUpdated:
		return "updated"
	case UpsertUnchanged:
		return "unchanged"
	default:
		return "unknown"
	}
}

// Registrator types used as the weak back-reference discriminator on ledger
// entries.
const (
	RegistratorTypeSale        = "sale"
	RegistratorTypeShipment    = "shipment"
	RegistratorTypeWBPriceFeed = "wb_price_feed"
)
