package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// NewTestLogger returns a logger that only surfaces errors.
func NewTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// JSONRequest builds a request whose body is v encoded as JSON. A nil v
// sends an empty body.
func JSONRequest(t *testing.T, method, path string, v interface{}) *http.Request {
	t.Helper()

	var body bytes.Buffer
	if v != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(v), "encode request body")
	}

	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req
}

// AssertStatus reports a mismatched status along with the body.
func AssertStatus(t *testing.T, rr *httptest.ResponseRecorder, expected int) bool {
	t.Helper()
	return assert.Equal(t, expected, rr.Code, "body: %s", rr.Body.String())
}

func ParseJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), v), "body: %s", rr.Body.String())
}

// TestContext is cancelled when the test ends, or after 30s.
func TestContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// Eventually fails the test unless cond holds within the given time.
func Eventually(t *testing.T, cond func() bool, within time.Duration, msg string) {
	t.Helper()
	require.Eventually(t, cond, within, 5*time.Millisecond, msg)
}
