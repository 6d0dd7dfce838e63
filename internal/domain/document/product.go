package document

import (
	"time"

	"github.com/google/uuid"
)

// Product is a marketplace catalog record. It participates in the idempotent
// upsert pipeline like any other document but never posts to the ledger.
type Product struct {
	ID           uuid.UUID  `json:"id"`
	SKU          string     `json:"sku"` // Natural key, the seller's offer id
	ConnectionID uuid.UUID  `json:"connection_id"`
	Marketplace  string     `json:"marketplace"`
	MPItemID     string     `json:"mp_item_id"`
	Name         string     `json:"name"`
	Barcode      string     `json:"barcode"`
	SourceMeta   SourceMeta `json:"source_meta"`
	Lifecycle    Lifecycle  `json:"lifecycle"`
}

// NewProduct builds a product record ready for insertion.
func NewProduct(sku string, connectionID uuid.UUID, marketplace, mpItemID, name, barcode string, meta SourceMeta) *Product {
	now := time.Now().UTC()
	return &Product{
		ID:           uuid.New(),
		SKU:          sku,
		ConnectionID: connectionID,
		Marketplace:  marketplace,
		MPItemID:     mpItemID,
		Name:         name,
		Barcode:      barcode,
		SourceMeta:   meta,
		Lifecycle: Lifecycle{
			CreatedAt: now,
			UpdatedAt: now,
			Version:   1,
		},
	}
}

// ContentEquals compares the business fields an import can change.
func (p *Product) ContentEquals(other *Product) bool {
	if other == nil {
		return false
	}
	return p.Marketplace == other.Marketplace &&
		p.ConnectionID == other.ConnectionID &&
		p.MPItemID == other.MPItemID &&
		p.Name == other.Name &&
		p.Barcode == other.Barcode
}
