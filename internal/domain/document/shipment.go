package document

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Shipment statuses after normalization. Only delivered shipments project into
// the ledger.
const (
	ShipmentStatusDelivered = "DELIVERED"
	ShipmentStatusCancelled = "CANCELLED"
	ShipmentStatusUnknown   = "UNKNOWN"
)

// Shipment is a fulfillment document (an order shipped under an FBS or FBO
// scheme). Unlike a plain sale, it only affects the ledger once the source
// reports it delivered.
type Shipment struct {
	ID           uuid.UUID  `json:"id"`
	DocumentNo   string     `json:"document_no"` // Natural key, immutable after creation
	ConnectionID uuid.UUID  `json:"connection_id"`
	Marketplace  string     `json:"marketplace"`
	Scheme       string     `json:"scheme"` // FBS / FBO
	StatusRaw    string     `json:"status_raw"`
	StatusNorm   string     `json:"status_norm"`
	DeliveredAt  *time.Time `json:"delivered_at,omitempty"`
	Lines        []Line     `json:"lines"`
	TotalQty     float64    `json:"total_qty"`
	TotalAmount  int64      `json:"total_amount"`
	SourceMeta   SourceMeta `json:"source_meta"`
	Lifecycle    Lifecycle  `json:"lifecycle"`
}

// NewShipment builds a shipment document ready for insertion, computing the
// totals from its lines.
func NewShipment(documentNo string, connectionID uuid.UUID, marketplace, scheme, statusRaw string, deliveredAt *time.Time, lines []Line, meta SourceMeta) *Shipment {
	now := time.Now().UTC()
	sh := &Shipment{
		ID:           uuid.New(),
		DocumentNo:   documentNo,
		ConnectionID: connectionID,
		Marketplace:  marketplace,
		Scheme:       scheme,
		StatusRaw:    statusRaw,
		StatusNorm:   NormalizeShipmentStatus(statusRaw),
		DeliveredAt:  deliveredAt,
		Lines:        lines,
		SourceMeta:   meta,
		Lifecycle: Lifecycle{
			CreatedAt: now,
			UpdatedAt: now,
			Version:   1,
		},
	}
	for _, l := range lines {
		sh.TotalQty += l.Qty
		sh.TotalAmount += l.Amount
	}
	return sh
}

// NormalizeShipmentStatus maps raw source statuses onto the small set the
// posting predicate understands.
func NormalizeShipmentStatus(status string) string {
	switch strings.ToUpper(status) {
	case "DELIVERED":
		return ShipmentStatusDelivered
	case "CANCELLED", "CANCELED":
		return ShipmentStatusCancelled
	case "":
		return ShipmentStatusUnknown
	default:
		return strings.ToUpper(status)
	}
}

// PostingEligible reports whether posting this shipment should materialize
// ledger entries. Shipments project only once delivered.
func (s *Shipment) PostingEligible() bool {
	return s.StatusNorm == ShipmentStatusDelivered
}

// ContentEquals compares the business fields an import can change.
func (s *Shipment) ContentEquals(other *Shipment) bool {
	if other == nil {
		return false
	}
	if s.Marketplace != other.Marketplace ||
		s.ConnectionID != other.ConnectionID ||
		s.Scheme != other.Scheme ||
		s.StatusRaw != other.StatusRaw ||
		s.StatusNorm != other.StatusNorm ||
		s.TotalQty != other.TotalQty ||
		s.TotalAmount != other.TotalAmount ||
		len(s.Lines) != len(other.Lines) {
		return false
	}
	if (s.DeliveredAt == nil) != (other.DeliveredAt == nil) {
		return false
	}
	if s.DeliveredAt != nil && !s.DeliveredAt.Equal(*other.DeliveredAt) {
		return false
	}
	for i := range s.Lines {
		if s.Lines[i] != other.Lines[i] {
			return false
		}
	}
	return true
}
