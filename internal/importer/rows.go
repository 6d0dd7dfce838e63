package importer

import "time"

// The row types below are what source clients hand back after parsing a page
// of an external API. Raw carries the verbatim source payload of the row for
// the archive; executors never re-serialize mapped data as a substitute.

// ProductRow is one catalog record from a source page.
type ProductRow struct {
	SKU      string
	MPItemID string
	Name     string
	Barcode  string
	Raw      string
}

// SaleRow is one sale event from a source page. Sources report sales one line
// per row.
type SaleRow struct {
	DocumentNo string
	EventTime  time.Time
	Status     string
	LineID     string
	SKU        string
	MPItemID   string
	Name       string
	Qty        float64
	Price      int64
	Amount     int64
	Currency   string
	Raw        string
}

// ShipmentLine is one item of a shipment row.
type ShipmentLine struct {
	LineID   string
	SKU      string
	MPItemID string
	Name     string
	Qty      float64
	Price    int64
	Amount   int64
	Currency string
}

// ShipmentRow is one fulfillment record from a source page.
type ShipmentRow struct {
	DocumentNo  string
	Scheme      string
	Status      string
	DeliveredAt *time.Time
	Lines       []ShipmentLine
	Raw         string
}

// PriceRow is one entry of a read-only price feed.
type PriceRow struct {
	SKU      string
	Title    string
	Price    int64
	Currency string
	Raw      string
}

// ToMinorUnits converts a major-unit decimal amount into minor currency units,
// rounding half away from zero so negative amounts (returns) keep their sign.
func ToMinorUnits(f float64) int64 {
	if f < 0 {
		return int64(f*100 - 0.5)
	}
	return int64(f*100 + 0.5)
}
