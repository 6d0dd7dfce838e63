package handler

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/marketsync-ledger/internal/domain/ledger"
)

const (
	defaultLedgerPageSize = 100
	maxLedgerPageSize     = 1000
)

// LedgerHandler exposes read access to the derived sales register.
type LedgerHandler struct {
	logger  *slog.Logger
	entries ledger.Repository
}

// NewLedgerHandler creates a sales register reporting handler
func NewLedgerHandler(logger *slog.Logger, entries ledger.Repository) *LedgerHandler {
	return &LedgerHandler{
		logger:  logger,
		entries: entries,
	}
}

// List handles GET /api/v1/ledger. The date window is required; marketplace
// narrows the result when set. Dates accept YYYY-MM-DD or RFC 3339.
func (h *LedgerHandler) List(c *gin.Context) {
	from, err := parseDateParam(c.Query("from"))
	if err != nil {
		RespondBadRequest(c, "Invalid or missing 'from' date")
		return
	}
	to, err := parseDateParam(c.Query("to"))
	if err != nil {
		RespondBadRequest(c, "Invalid or missing 'to' date")
		return
	}
	if to.Before(from) {
		RespondBadRequest(c, "'to' must not precede 'from'")
		return
	}

	limit := defaultLedgerPageSize
	if raw := c.Query("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > maxLedgerPageSize {
			RespondBadRequest(c, "Invalid 'limit'")
			return
		}
	}

	offset := 0
	if raw := c.Query("offset"); raw != "" {
		offset, err = strconv.Atoi(raw)
		if err != nil || offset < 0 {
			RespondBadRequest(c, "Invalid 'offset'")
			return
		}
	}

	entries, err := h.entries.ListByDateRange(c.Request.Context(), from, to, c.Query("marketplace"), limit, offset)
	if err != nil {
		h.logger.Error("Failed to list ledger entries", "error", err)
		RespondInternalError(c)
		return
	}
	if entries == nil {
		entries = []*ledger.Entry{}
	}

	RespondOK(c, entries)
}

func parseDateParam(raw string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
