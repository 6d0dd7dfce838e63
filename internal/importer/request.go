// Package importer holds what every marketplace import executor shares: the
// task config request shape and the normalized row types the source clients
// return.
package importer

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Default fetch window when the task config gives no date range.
const defaultFetchWindow = 30 * 24 * time.Hour

// ImportRequest is the source-specific deserialization of a scheduled task's
// free-form config.
type ImportRequest struct {
	ConnectionID uuid.UUID  `json:"connection_id"`
	Targets      []string   `json:"targets"`
	DateFrom     *time.Time `json:"date_from,omitempty"`
	DateTo       *time.Time `json:"date_to,omitempty"`
	Interactive  bool       `json:"interactive,omitempty"`
}

// ParseRequest deserializes and validates a task config. It fails before any
// I/O happens: a malformed config must never produce a partial import.
func ParseRequest(raw json.RawMessage) (*ImportRequest, error) {
	if len(raw) == 0 {
		return nil, errors.New("task config is empty")
	}

	var req ImportRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("malformed task config: %w", err)
	}

	if req.ConnectionID == uuid.Nil {
		return nil, errors.New("task config is missing connection_id")
	}
	if len(req.Targets) == 0 {
		return nil, errors.New("task config has no targets")
	}

	return &req, nil
}

// Window returns the fetch date range, applying the default window when the
// config leaves it open.
func (r *ImportRequest) Window(now time.Time) (time.Time, time.Time) {
	to := now
	if r.DateTo != nil {
		to = *r.DateTo
	}
	from := to.Add(-defaultFetchWindow)
	if r.DateFrom != nil {
		from = *r.DateFrom
	}
	return from, to
}
