package sessionlog

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_WriteAndRead(t *testing.T) {
	dir := t.TempDir()
	logger := NewLogger(dir)

	require.NoError(t, logger.WriteLog("s1", "Task started"))
	require.NoError(t, logger.WriteLog("s1", "Page 0: 2 rows"))

	text, err := logger.ReadLog("s1")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "Task started")
	assert.Contains(t, lines[1], "Page 0: 2 rows")

	// Every line starts with a bracketed millisecond timestamp.
	linePattern := regexp.MustCompile(`^\[\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{3}(Z|[+-]\d{2}:\d{2})\] `)
	for _, line := range lines {
		assert.Regexp(t, linePattern, line)
	}
}

func TestLogger_LogFilePath(t *testing.T) {
	logger := NewLogger("/var/data")
	assert.Equal(t, filepath.Join("/var/data", "task_logs", "abc.log"), logger.LogFilePath("abc"))
}

func TestLogger_ReadMissingLogReturnsPlaceholder(t *testing.T) {
	logger := NewLogger(t.TempDir())

	text, err := logger.ReadLog("nope")
	require.NoError(t, err)
	assert.Equal(t, "No log found for session nope", text)
}

func TestLogger_DeleteLog(t *testing.T) {
	dir := t.TempDir()
	logger := NewLogger(dir)

	require.NoError(t, logger.WriteLog("s1", "hello"))
	require.NoError(t, logger.DeleteLog("s1"))

	_, err := os.Stat(logger.LogFilePath("s1"))
	assert.True(t, os.IsNotExist(err))

	// Deleting a log that never existed is fine.
	assert.NoError(t, logger.DeleteLog("s2"))
}
