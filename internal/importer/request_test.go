package importer

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequest(t *testing.T) {
	connID := uuid.New()

	t.Run("valid config", func(t *testing.T) {
		raw := json.RawMessage(`{"connection_id":"` + connID.String() + `","targets":["products","sales"]}`)

		req, err := ParseRequest(raw)
		require.NoError(t, err)
		assert.Equal(t, connID, req.ConnectionID)
		assert.Equal(t, []string{"products", "sales"}, req.Targets)
		assert.Nil(t, req.DateFrom)
	})

	t.Run("empty config", func(t *testing.T) {
		_, err := ParseRequest(nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "empty")
	})

	t.Run("malformed json", func(t *testing.T) {
		_, err := ParseRequest(json.RawMessage(`{"connection_id":`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "malformed task config")
	})

	t.Run("missing connection id", func(t *testing.T) {
		_, err := ParseRequest(json.RawMessage(`{"targets":["products"]}`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection_id")
	})

	t.Run("no targets", func(t *testing.T) {
		raw := json.RawMessage(`{"connection_id":"` + connID.String() + `"}`)
		_, err := ParseRequest(raw)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no targets")
	})
}

func TestImportRequest_Window(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

	t.Run("default window", func(t *testing.T) {
		req := &ImportRequest{}
		from, to := req.Window(now)
		assert.Equal(t, now, to)
		assert.Equal(t, now.Add(-30*24*time.Hour), from)
	})

	t.Run("explicit range", func(t *testing.T) {
		dateFrom := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
		dateTo := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
		req := &ImportRequest{DateFrom: &dateFrom, DateTo: &dateTo}

		from, to := req.Window(now)
		assert.Equal(t, dateFrom, from)
		assert.Equal(t, dateTo, to)
	})

	t.Run("open start derives from end", func(t *testing.T) {
		dateTo := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
		req := &ImportRequest{DateTo: &dateTo}

		from, to := req.Window(now)
		assert.Equal(t, dateTo, to)
		assert.Equal(t, dateTo.Add(-30*24*time.Hour), from)
	})
}
