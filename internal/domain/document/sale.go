package document

import (
	"time"

	"github.com/google/uuid"
)

// Sale is a single marketplace sale event (one row per sale in the source
// feeds, so the document carries exactly one line). A sale is always eligible
// for the ledger once posted.
type Sale struct {
	ID           uuid.UUID  `json:"id"`
	DocumentNo   string     `json:"document_no"` // Natural key, immutable after creation
	ConnectionID uuid.UUID  `json:"connection_id"`
	Marketplace  string     `json:"marketplace"`
	EventTime    time.Time  `json:"event_time"`
	StatusRaw    string     `json:"status_raw"`
	StatusNorm   string     `json:"status_norm"`
	Line         Line       `json:"line"`
	TotalQty     float64    `json:"total_qty"`
	TotalAmount  int64      `json:"total_amount"`
	SourceMeta   SourceMeta `json:"source_meta"`
	Lifecycle    Lifecycle  `json:"lifecycle"`
}

// NewSale builds a sale document ready for insertion.
func NewSale(documentNo string, connectionID uuid.UUID, marketplace string, eventTime time.Time, statusRaw, statusNorm string, line Line, meta SourceMeta) *Sale {
	now := time.Now().UTC()
	return &Sale{
		ID:           uuid.New(),
		DocumentNo:   documentNo,
		ConnectionID: connectionID,
		Marketplace:  marketplace,
		EventTime:    eventTime,
		StatusRaw:    statusRaw,
		StatusNorm:   statusNorm,
		Line:         line,
		TotalQty:     line.Qty,
		TotalAmount:  line.Amount,
		SourceMeta:   meta,
		Lifecycle: Lifecycle{
			CreatedAt: now,
			UpdatedAt: now,
			Version:   1,
		},
	}
}

// PostingEligible reports whether posting this sale should materialize ledger
// entries. Plain sales always project.
func (s *Sale) PostingEligible() bool {
	return true
}

// ContentEquals compares the business fields an import can change. Identity,
// lifecycle and source metadata are excluded so a re-fetch of identical data
// counts as unchanged.
func (s *Sale) ContentEquals(other *Sale) bool {
	if other == nil {
		return false
	}
	return s.Marketplace == other.Marketplace &&
		s.ConnectionID == other.ConnectionID &&
		s.EventTime.Equal(other.EventTime) &&
		s.StatusRaw == other.StatusRaw &&
		s.StatusNorm == other.StatusNorm &&
		s.Line == other.Line &&
		s.TotalQty == other.TotalQty &&
		s.TotalAmount == other.TotalAmount
}
