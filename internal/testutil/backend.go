package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hugh/reconsole/internal/api/dto"
	"github.com/hugh/reconsole/internal/models"
)

// RecordedRequest is one call received by a FakeBackend.
type RecordedRequest struct {
	Method  string
	Route   string
	Path    string
	Headers http.Header
	Body    []byte
}

type failure struct {
	status  int
	message string
	times   int // negative means every call
}

// FakeBackend is an in-process scan service speaking the backend's REST
// contract. Each scan replays a script of snapshots, one per GET, and
// sticks on the last one.
type FakeBackend struct {
	Server *httptest.Server

	mu       sync.Mutex
	scripts  map[string][]models.ScanRecord
	served   map[string]int
	order    []string
	files    map[string][]models.FileArtifact
	contents map[string]map[string]string
	tools    models.ToolStatus
	health   dto.HealthResponse
	failures map[string]*failure
	holds    map[string]*hold
	requests []RecordedRequest
	created  []models.ScanRequest
	pending  [][]models.ScanRecord
	nextID   int
}

func NewFakeBackend(t *testing.T) *FakeBackend {
	t.Helper()

	fb := &FakeBackend{
		scripts:  make(map[string][]models.ScanRecord),
		served:   make(map[string]int),
		files:    make(map[string][]models.FileArtifact),
		contents: make(map[string]map[string]string),
		failures: make(map[string]*failure),
		holds:    make(map[string]*hold),
		health:   dto.HealthResponse{Status: "healthy", Message: "fake backend", Version: "test"},
		tools: models.ToolStatus{AvailableTools: map[string][]string{
			"light": {"subfinder", "httpx", "dig", "nmap", "waybackurls"},
		}},
	}

	r := chi.NewRouter()
	r.Use(fb.record)
	r.Post("/api/scan", fb.createScan)
	r.Get("/api/scan/{id}", fb.getScan)
	r.Get("/api/scan/{id}/files", fb.listFiles)
	r.Get("/api/scan/{id}/file/{name}", fb.getFile)
	r.Get("/api/scans", fb.listScans)
	r.Get("/api/tools", fb.getTools)
	r.Get("/api/health", fb.getHealth)

	fb.Server = httptest.NewServer(r)
	t.Cleanup(fb.Close)
	return fb
}

func (fb *FakeBackend) URL() string {
	return fb.Server.URL
}

// Close releases held requests and stops the server.
func (fb *FakeBackend) Close() {
	fb.mu.Lock()
	for key, h := range fb.holds {
		close(h.release)
		delete(fb.holds, key)
	}
	fb.mu.Unlock()
	fb.Server.Close()
}

// AddScan registers a scan whose successive GETs return the given snapshots.
func (fb *FakeBackend) AddScan(snapshots ...models.ScanRecord) {
	if len(snapshots) == 0 {
		return
	}
	fb.mu.Lock()
	defer fb.mu.Unlock()

	id := snapshots[0].ScanID
	if _, ok := fb.scripts[id]; !ok {
		fb.order = append(fb.order, id)
	}
	fb.scripts[id] = snapshots
	fb.served[id] = 0
}

// ScriptNext sets the snapshots served for the next created scan. Empty
// ScanID, Domain and ScanType fields are filled from the create call.
func (fb *FakeBackend) ScriptNext(snapshots ...models.ScanRecord) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.pending = append(fb.pending, snapshots)
}

func (fb *FakeBackend) SetFiles(scanID string, files ...models.FileArtifact) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.files[scanID] = files
}

func (fb *FakeBackend) SetFileContent(scanID, name, content string) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if fb.contents[scanID] == nil {
		fb.contents[scanID] = make(map[string]string)
	}
	fb.contents[scanID][name] = content
}

func (fb *FakeBackend) SetTools(ts models.ToolStatus) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.tools = ts
}

func (fb *FakeBackend) SetHealth(h dto.HealthResponse) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.health = h
}

// Fail makes the next n calls to route (e.g. "GET /api/scan/{id}") answer
// with status and message. A negative n fails every call until Recover.
func (fb *FakeBackend) Fail(route string, status int, message string, n int) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.failures[route] = &failure{status: status, message: message, times: n}
}

func (fb *FakeBackend) Recover(route string) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	delete(fb.failures, route)
}

type hold struct {
	release chan struct{}
	started chan struct{}
	once    sync.Once
}

// Hold blocks GETs of scanID until the returned release func is called.
func (fb *FakeBackend) Hold(scanID string) (release func()) {
	_, release = fb.holdKey("scan:" + scanID)
	return release
}

// HoldFiles blocks file listings of scanID until released. started is
// closed once a listing is waiting on the hold.
func (fb *FakeBackend) HoldFiles(scanID string) (started <-chan struct{}, release func()) {
	return fb.holdKey("files:" + scanID)
}

func (fb *FakeBackend) holdKey(key string) (<-chan struct{}, func()) {
	h := &hold{release: make(chan struct{}), started: make(chan struct{})}
	fb.mu.Lock()
	fb.holds[key] = h
	fb.mu.Unlock()

	var once sync.Once
	return h.started, func() {
		once.Do(func() {
			fb.mu.Lock()
			defer fb.mu.Unlock()
			// Close may already have released it.
			if fb.holds[key] == h {
				delete(fb.holds, key)
				close(h.release)
			}
		})
	}
}

// wait blocks while key is held. It reports false if the request went away.
func (fb *FakeBackend) wait(r *http.Request, key string) bool {
	fb.mu.Lock()
	h := fb.holds[key]
	fb.mu.Unlock()
	if h == nil {
		return true
	}

	h.once.Do(func() { close(h.started) })
	select {
	case <-h.release:
		return true
	case <-r.Context().Done():
		return false
	}
}

// Requests returns a copy of every request received so far.
func (fb *FakeBackend) Requests() []RecordedRequest {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	out := make([]RecordedRequest, len(fb.requests))
	copy(out, fb.requests)
	return out
}

// CountRoute counts received requests whose chi route pattern matches.
func (fb *FakeBackend) CountRoute(route string) int {
	n := 0
	for _, r := range fb.Requests() {
		if r.Route == route {
			n++
		}
	}
	return n
}

// Created returns the bodies of accepted create-scan calls.
func (fb *FakeBackend) Created() []models.ScanRequest {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	out := make([]models.ScanRequest, len(fb.created))
	copy(out, fb.created)
	return out
}

func (fb *FakeBackend) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(body))

		next.ServeHTTP(w, r)

		route := r.Method + " " + chi.RouteContext(r.Context()).RoutePattern()
		fb.mu.Lock()
		fb.requests = append(fb.requests, RecordedRequest{
			Method:  r.Method,
			Route:   route,
			Path:    r.URL.Path,
			Headers: r.Header.Clone(),
			Body:    body,
		})
		fb.mu.Unlock()
	})
}

// injectFailure answers with a configured failure and reports whether it did.
func (fb *FakeBackend) injectFailure(w http.ResponseWriter, r *http.Request) bool {
	route := r.Method + " " + chi.RouteContext(r.Context()).RoutePattern()

	fb.mu.Lock()
	f, ok := fb.failures[route]
	if ok {
		if f.times > 0 {
			f.times--
			if f.times == 0 {
				delete(fb.failures, route)
			}
		}
	}
	fb.mu.Unlock()

	if !ok {
		return false
	}
	if f.message == "" {
		w.WriteHeader(f.status)
		return true
	}
	writeJSON(w, f.status, dto.ErrorResponse{Error: f.message})
	return true
}

func (fb *FakeBackend) createScan(w http.ResponseWriter, r *http.Request) {
	if fb.injectFailure(w, r) {
		return
	}

	var req models.ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid JSON"})
		return
	}
	if req.Domain == "" {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Domain is required"})
		return
	}

	fb.mu.Lock()
	fb.nextID++
	id := fmt.Sprintf("scan-%d", fb.nextID)
	rec := models.ScanRecord{
		ScanID:   id,
		Domain:   req.Domain,
		ScanType: req.ScanType,
		Status:   models.ScanStatusQueued,
	}
	fb.created = append(fb.created, req)
	script := []models.ScanRecord{rec}
	if len(fb.pending) > 0 {
		script = fb.pending[0]
		fb.pending = fb.pending[1:]
		for i := range script {
			if script[i].ScanID == "" {
				script[i].ScanID = id
			}
			if script[i].Domain == "" {
				script[i].Domain = req.Domain
			}
			if script[i].ScanType == "" {
				script[i].ScanType = req.ScanType
			}
		}
	}
	fb.scripts[id] = script
	fb.order = append(fb.order, id)
	fb.mu.Unlock()

	writeJSON(w, http.StatusOK, dto.CreateScanResponse{
		ScanID:   id,
		Domain:   req.Domain,
		ScanType: req.ScanType,
		Status:   models.ScanStatusQueued,
	})
}

func (fb *FakeBackend) getScan(w http.ResponseWriter, r *http.Request) {
	id := param(r, "id")

	if !fb.wait(r, "scan:"+id) {
		return
	}

	if fb.injectFailure(w, r) {
		return
	}

	fb.mu.Lock()
	script, ok := fb.scripts[id]
	var rec models.ScanRecord
	if ok {
		i := fb.served[id]
		if i >= len(script) {
			i = len(script) - 1
		}
		rec = script[i]
		fb.served[id] = i + 1
	}
	fb.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Scan not found"})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (fb *FakeBackend) listFiles(w http.ResponseWriter, r *http.Request) {
	id := param(r, "id")
	if !fb.wait(r, "files:"+id) {
		return
	}
	if fb.injectFailure(w, r) {
		return
	}

	fb.mu.Lock()
	files, ok := fb.files[id]
	_, known := fb.scripts[id]
	fb.mu.Unlock()

	if !ok && !known {
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Scan not found"})
		return
	}
	if files == nil {
		files = []models.FileArtifact{}
	}
	writeJSON(w, http.StatusOK, dto.FilesResponse{Files: files})
}

func (fb *FakeBackend) getFile(w http.ResponseWriter, r *http.Request) {
	if fb.injectFailure(w, r) {
		return
	}
	id, name := param(r, "id"), param(r, "name")

	fb.mu.Lock()
	content, ok := fb.contents[id][name]
	fb.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "File not found"})
		return
	}
	writeJSON(w, http.StatusOK, dto.FileContentResponse{Content: content})
}

func (fb *FakeBackend) listScans(w http.ResponseWriter, r *http.Request) {
	if fb.injectFailure(w, r) {
		return
	}

	fb.mu.Lock()
	scans := make([]models.ScanSummary, 0, len(fb.order))
	for _, id := range fb.order {
		script := fb.scripts[id]
		i := fb.served[id] - 1
		if i < 0 {
			i = 0
		}
		if i >= len(script) {
			i = len(script) - 1
		}
		scans = append(scans, script[i].Summary())
	}
	fb.mu.Unlock()

	writeJSON(w, http.StatusOK, dto.ScansResponse{Scans: scans})
}

func (fb *FakeBackend) getTools(w http.ResponseWriter, r *http.Request) {
	if fb.injectFailure(w, r) {
		return
	}
	fb.mu.Lock()
	tools := fb.tools
	fb.mu.Unlock()
	writeJSON(w, http.StatusOK, tools)
}

func (fb *FakeBackend) getHealth(w http.ResponseWriter, r *http.Request) {
	if fb.injectFailure(w, r) {
		return
	}
	fb.mu.Lock()
	h := fb.health
	fb.mu.Unlock()

	status := http.StatusOK
	if h.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, h)
}

func param(r *http.Request, key string) string {
	v := chi.URLParam(r, key)
	if unescaped, err := url.PathUnescape(v); err == nil {
		return unescaped
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
