package handler

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/marketsync-ledger/internal/progress"
	"github.com/marketsync-ledger/internal/sessionlog"
)

// SessionHandler exposes import session introspection: live progress snapshots
// and the downloadable session log.
type SessionHandler struct {
	logger     *slog.Logger
	tracker    *progress.Tracker
	sessionLog *sessionlog.Logger
}

// NewSessionHandler creates a session introspection handler
func NewSessionHandler(logger *slog.Logger, tracker *progress.Tracker, sessionLog *sessionlog.Logger) *SessionHandler {
	return &SessionHandler{
		logger:     logger,
		tracker:    tracker,
		sessionLog: sessionLog,
	}
}

// GetProgress handles GET /api/v1/sessions/:id/progress. Snapshots are
// in-memory only, so a restart or retention cleanup makes them 404.
func (h *SessionHandler) GetProgress(c *gin.Context) {
	sessionID := c.Param("id")

	snapshot := h.tracker.GetProgress(sessionID)
	if snapshot == nil {
		RespondNotFound(c, "No progress found for session "+sessionID)
		return
	}

	RespondOK(c, snapshot)
}

// GetLog handles GET /api/v1/sessions/:id/log. A missing log file is not an
// error; the body carries a placeholder instead.
func (h *SessionHandler) GetLog(c *gin.Context) {
	sessionID := c.Param("id")

	text, err := h.sessionLog.ReadLog(sessionID)
	if err != nil {
		h.logger.Error("Failed to read session log", "session_id", sessionID, "error", err)
		RespondInternalError(c)
		return
	}

	RespondOK(c, &SessionLogResponse{SessionID: sessionID, Log: text})
}
