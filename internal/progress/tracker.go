// Package progress tracks the in-memory state of running import sessions.
// Snapshots are ephemeral: the durable outcome record is the task definition's
// run bookkeeping, not this map.
package progress

import (
	"sync"
	"time"
)

// Status of an import session.
type Status string

const (
	StatusRunning             Status = "Running"
	StatusCompleted           Status = "Completed"
	StatusCompletedWithErrors Status = "CompletedWithErrors"
	StatusFailed              Status = "Failed"
	StatusCancelled           Status = "Cancelled"
)

// Terminal reports whether a session in this status has finished.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCompletedWithErrors, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// ImportError records one row-level failure inside a session.
type ImportError struct {
	Item    string    `json:"item,omitempty"`
	Message string    `json:"message"`
	Detail  string    `json:"detail,omitempty"`
	At      time.Time `json:"at"`
}

// Snapshot is the point-in-time state of one import session.
type Snapshot struct {
	SessionID   string        `json:"session_id"`
	Status      Status        `json:"status"`
	Processed   int           `json:"processed"`
	Inserted    int           `json:"inserted"`
	Updated     int           `json:"updated"`
	ErrorCount  int           `json:"error_count"`
	Total       *int          `json:"total,omitempty"`
	CurrentItem string        `json:"current_item,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Errors      []ImportError `json:"errors,omitempty"`
}

// Tracker is a concurrency-guarded map of session id to snapshot. A single
// whole-map RWMutex keeps cleanup scans consistent with concurrent writers;
// per-entry locks would not.
type Tracker struct {
	mu       sync.RWMutex
	sessions map[string]*Snapshot
}

// NewTracker creates an empty tracker. One instance is built in the
// composition root and shared between the scheduler and the status handlers.
func NewTracker() *Tracker {
	return &Tracker{
		sessions: make(map[string]*Snapshot),
	}
}

// CreateSession registers a new running session.
func (t *Tracker) CreateSession(sessionID string) {
	now := time.Now().UTC()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions[sessionID] = &Snapshot{
		SessionID: sessionID,
		Status:    StatusRunning,
		StartedAt: now,
		UpdatedAt: now,
	}
}

// UpdateProgress replaces the counters and current-item label of a session.
// Unknown sessions are ignored.
func (t *Tracker) UpdateProgress(sessionID string, processed, inserted, updated int, total *int, currentItem string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[sessionID]
	if !ok {
		return
	}
	s.Processed = processed
	s.Inserted = inserted
	s.Updated = updated
	s.Total = total
	s.CurrentItem = currentItem
	s.UpdatedAt = time.Now().UTC()
}

// AddError appends a row-level error and bumps the error counter.
func (t *Tracker) AddError(sessionID, item, message, detail string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[sessionID]
	if !ok {
		return
	}
	now := time.Now().UTC()
	s.Errors = append(s.Errors, ImportError{
		Item:    item,
		Message: message,
		Detail:  detail,
		At:      now,
	})
	s.ErrorCount++
	s.UpdatedAt = now
}

// CompleteSession moves a session into a terminal status.
func (t *Tracker) CompleteSession(sessionID string, status Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[sessionID]
	if !ok {
		return
	}
	now := time.Now().UTC()
	s.Status = status
	s.CompletedAt = &now
	s.UpdatedAt = now
}

// GetProgress returns a copy of the session's snapshot, or nil when the
// session is unknown. Callers never see the live map entry.
func (t *Tracker) GetProgress(sessionID string) *Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.sessions[sessionID]
	if !ok {
		return nil
	}
	cp := *s
	if s.Total != nil {
		total := *s.Total
		cp.Total = &total
	}
	if s.CompletedAt != nil {
		completed := *s.CompletedAt
		cp.CompletedAt = &completed
	}
	if len(s.Errors) > 0 {
		cp.Errors = make([]ImportError, len(s.Errors))
		copy(cp.Errors, s.Errors)
	}
	return &cp
}

// CleanupOldSessions evicts terminal sessions whose completion is older than
// maxAge. Running sessions are never evicted. Returns the number removed.
func (t *Tracker) CleanupOldSessions(maxAge time.Duration) int {
	cutoff := time.Now().UTC().Add(-maxAge)
	t.mu.Lock()
	defer t.mu.Unlock()
	removed := 0
	for id, s := range t.sessions {
		if s.CompletedAt != nil && s.CompletedAt.Before(cutoff) {
			delete(t.sessions, id)
			removed++
		}
	}
	return removed
}

// Len reports how many sessions are currently tracked.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}
