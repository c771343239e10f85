package util

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerTo(t *testing.T) {
	t.Run("development_is_text_at_debug", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLoggerTo(&buf, "development")
		logger.Debug("poll tick", "scan_id", "abc")

		assert.Contains(t, buf.String(), "level=DEBUG")
		assert.Contains(t, buf.String(), "scan_id=abc")
	})

	t.Run("production_is_json_at_info", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLoggerTo(&buf, "production")
		logger.Debug("hidden")
		logger.Info("scan started", "scan_id", "abc")

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "scan started", entry["msg"])
		assert.Equal(t, "abc", entry["scan_id"])
		assert.NotContains(t, buf.String(), "hidden")
	})
}

func TestValidateCronExpr(t *testing.T) {
	tests := []struct {
		expr    string
		wantErr bool
	}{
		{"0 3 * * *", false},
		{"*/15 * * * *", false},
		{"@daily", false},
		{"0 3 * *", true},
		{"0 0 3 * * *", true},
		{"not cron", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			err := ValidateCronExpr(tt.expr)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNextCronTime(t *testing.T) {
	from := time.Date(2026, 1, 10, 2, 30, 0, 0, time.UTC)

	next, err := NextCronTime("0 3 * * *", from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 10, 3, 0, 0, 0, time.UTC), next)

	_, err = NextCronTime("bogus", from)
	assert.Error(t, err)
}

func TestNewCron(t *testing.T) {
	c := NewCron(cron.DiscardLogger)
	id, err := c.AddFunc("@hourly", func() {})
	require.NoError(t, err)
	assert.NotZero(t, id)
	assert.Equal(t, time.UTC, c.Location())
}
