// Package sessionlog writes the per-session text logs operators download to
// diagnose an import run. Files are append-only; pruning is an operator
// responsibility.
package sessionlog

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Logger appends timestamped lines to one file per session under
// {dir}/task_logs/{session_id}.log.
type Logger struct {
	dir string
}

// NewLogger creates a session logger rooted at dir. The task_logs directory is
// created lazily on first write.
func NewLogger(dir string) *Logger {
	return &Logger{dir: dir}
}

// LogFilePath returns the path a session's log is (or will be) written to.
func (l *Logger) LogFilePath(sessionID string) string {
	return filepath.Join(l.dir, "task_logs", sessionID+".log")
}

// WriteLog appends one timestamped line to the session's log file, creating
// directory and file on first use.
func (l *Logger) WriteLog(sessionID, message string) error {
	path := l.LogFilePath(sessionID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open session log: %w", err)
	}
	defer f.Close()

	line := fmt.Sprintf("[%s] %s\n", time.Now().UTC().Format(timestampLayout), message)
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("failed to append to session log: %w", err)
	}
	return nil
}

// ReadLog returns the full contents of a session's log, or a placeholder when
// no log exists for the session.
func (l *Logger) ReadLog(sessionID string) (string, error) {
	data, err := os.ReadFile(l.LogFilePath(sessionID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "No log found for session " + sessionID, nil
		}
		return "", fmt.Errorf("failed to read session log: %w", err)
	}
	return string(data), nil
}

// DeleteLog removes a session's log file if present.
func (l *Logger) DeleteLog(sessionID string) error {
	err := os.Remove(l.LogFilePath(sessionID))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete session log: %w", err)
	}
	return nil
}
