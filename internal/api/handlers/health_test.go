package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hugh/reconsole/internal/api/client"
	"github.com/hugh/reconsole/internal/api/dto"
	"github.com/hugh/reconsole/internal/api/handlers"
	"github.com/hugh/reconsole/internal/testutil"
)

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name        string
		setup       func(fb *testutil.FakeBackend)
		wantStatus  int
		wantBackend string
	}{
		{"healthy", func(fb *testutil.FakeBackend) {}, http.StatusOK, "healthy"},
		{"backend degraded", func(fb *testutil.FakeBackend) {
			fb.SetHealth(dto.HealthResponse{Status: "degraded"})
		}, http.StatusServiceUnavailable, "unhealthy"},
		{"backend unreachable", func(fb *testutil.FakeBackend) {
			fb.Close()
		}, http.StatusServiceUnavailable, "unhealthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := testutil.NewFakeBackend(t)
			tt.setup(fb)

			h := handlers.NewHealthHandler(client.New(fb.URL(), client.WithLogger(testutil.NewTestLogger())), "1.2.3")
			rr := httptest.NewRecorder()
			h.Health(rr, httptest.NewRequest("GET", "/health", nil))

			testutil.AssertStatus(t, rr, tt.wantStatus)
			var resp handlers.HealthResponse
			testutil.ParseJSONResponse(t, rr, &resp)
			assert.Equal(t, tt.wantBackend, resp.Services["backend"])
			assert.Equal(t, "1.2.3", resp.Version)
		})
	}
}

func TestHealthHandler_Ready(t *testing.T) {
	h := handlers.NewHealthHandler(nil, "")
	rr := httptest.NewRecorder()
	h.Ready(rr, httptest.NewRequest("GET", "/ready", nil))

	testutil.AssertStatus(t, rr, http.StatusOK)
	assert.Equal(t, "ok", rr.Body.String())
}
