package console

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/hugh/reconsole/internal/api/client"
	"github.com/hugh/reconsole/internal/models"
	"github.com/hugh/reconsole/internal/testutil"
)

// recordingSink is a Board that also keeps every UpdateScan it received.
type recordingSink struct {
	*Board

	mu      sync.Mutex
	updates []ScanView
}

func (s *recordingSink) UpdateScan(v ScanView) {
	s.mu.Lock()
	s.updates = append(s.updates, v)
	s.mu.Unlock()
	s.Board.UpdateScan(v)
}

func (s *recordingSink) Updates() []ScanView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ScanView(nil), s.updates...)
}

type controllerFixture struct {
	backend   *testutil.FakeBackend
	ctrl      *Controller
	sink      *recordingSink
	finalized chan *models.ScanRecord
}

func newControllerFixture(t *testing.T, mutate ...func(*Options)) *controllerFixture {
	t.Helper()

	fb := testutil.NewFakeBackend(t)
	renderer := NewLogRenderer(DefaultRenderConfig(), HTMLMarkup{})
	sink := &recordingSink{Board: NewBoard(renderer)}
	finalized := make(chan *models.ScanRecord, 8)

	opts := Options{
		Interval:    20 * time.Millisecond,
		Renderer:    renderer,
		Logger:      testutil.NewTestLogger(),
		OnFinalized: func(rec *models.ScanRecord) { finalized <- rec },
	}
	for _, m := range mutate {
		m(&opts)
	}

	api := client.New(fb.URL(), client.WithTimeout(5*time.Second))
	ctrl := NewController(api, sink, opts)
	t.Cleanup(ctrl.Close)

	return &controllerFixture{backend: fb, ctrl: ctrl, sink: sink, finalized: finalized}
}

func (f *controllerFixture) waitFinalized(t *testing.T) *models.ScanRecord {
	t.Helper()
	select {
	case rec := <-f.finalized:
		return rec
	case <-time.After(3 * time.Second):
		t.Fatal("scan was never finalized")
		return nil
	}
}

func (f *controllerFixture) countPath(path string) int {
	n := 0
	for _, r := range f.backend.Requests() {
		if r.Method == http.MethodGet && r.Path == path {
			n++
		}
	}
	return n
}

func completedScript() []models.ScanRecord {
	return []models.ScanRecord{
		{Status: models.ScanStatusQueued},
		{Status: models.ScanStatusRunning, Log: []string{"[1/2] Running subfinder"}},
		{
			Status: models.ScanStatusCompleted,
			Log:    []string{"[1/2] Running subfinder", "✓ Scan complete"},
			Results: &models.Results{Findings: &models.Findings{
				DNSRecords: 3, OpenPorts: 2, URLsFound: 40,
			}},
		},
	}
}

func TestController_SubmitToCompletion(t *testing.T) {
	f := newControllerFixture(t)
	f.backend.ScriptNext(completedScript()...)
	f.backend.SetFiles("scan-1",
		models.FileArtifact{Name: "subdomains.txt", Lines: 12},
		models.FileArtifact{Name: "empty.txt", Lines: 0},
	)

	rec, err := f.ctrl.Submit(testutil.TestContext(t), "test.com", "quick")
	require.NoError(t, err)
	assert.Equal(t, "scan-1", rec.ScanID)
	assert.Equal(t, models.ScanType("quick"), rec.ScanType)

	final := f.waitFinalized(t)
	assert.Equal(t, models.ScanStatusCompleted, final.Status)

	var createBody []byte
	for _, r := range f.backend.Requests() {
		if r.Route == "POST /api/scan" {
			createBody = r.Body
		}
	}
	assert.JSONEq(t, `{"domain":"test.com","scan_type":"quick"}`, string(createBody))

	updates := f.sink.Updates()
	require.GreaterOrEqual(t, len(updates), 3)
	assert.Equal(t, 10, updates[0].Status.Percent)
	assert.Equal(t, 100, updates[len(updates)-1].Status.Percent)

	s := f.sink.Snapshot()
	assert.False(t, s.Submitting)
	assert.Equal(t, "QUICK", s.Scan.ScanType)
	assert.Equal(t, "COMPLETED", s.Scan.Status.Badge)
	assert.Equal(t, ColorDefault, s.Scan.Status.Color)
	require.Len(t, s.Scan.Lines, 2)
	assert.Equal(t, ClassStep, s.Scan.Lines[0].Class)
	assert.Equal(t, ClassSuccess, s.Scan.Lines[1].Class)
	assert.Equal(t, "✓ ", s.Scan.Lines[1].Icon)

	assert.True(t, s.Results.Visible)
	require.Len(t, s.Results.Cards, 5)
	assert.Equal(t, 3, s.Results.Cards[0].Value)

	assert.True(t, s.Artifacts.Visible)
	assert.False(t, s.Artifacts.Loading)
	require.Len(t, s.Artifacts.Files, 2)
	assert.True(t, s.Artifacts.Files[0].Viewable())
	assert.False(t, s.Artifacts.Files[1].Viewable())

	_, active := f.ctrl.Current()
	assert.False(t, active)

	testutil.Eventually(t, func() bool { return f.backend.CountRoute("GET /api/scans") == 1 }, time.Second, "recent scans not refreshed")
	s = f.sink.Snapshot()
	assert.True(t, s.Recent.Loaded)
	require.Len(t, s.Recent.Scans, 1)
	assert.Equal(t, "scan-1", s.Recent.Scans[0].ScanID)

	// polling stopped at the terminal record
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 3, f.countPath("/api/scan/scan-1"))

	for _, r := range f.backend.Requests() {
		if r.Path == "/api/scan/scan-1" {
			assert.Equal(t, "scan-1", r.Headers.Get(client.HeaderScanID))
			assert.NotEmpty(t, r.Headers.Get(client.HeaderGeneration))
			assert.NotEmpty(t, r.Headers.Get(client.HeaderRequestID))
		}
	}
}

func TestController_SubmitFailedScan(t *testing.T) {
	f := newControllerFixture(t)
	f.backend.ScriptNext(
		models.ScanRecord{Status: models.ScanStatusRunning, Log: []string{"[1/2] Running nmap"}},
		models.ScanRecord{Status: models.ScanStatusFailed, Log: []string{"[1/2] Running nmap"}, Error: "timeout"},
	)

	_, err := f.ctrl.Submit(testutil.TestContext(t), "test.com", "light")
	require.NoError(t, err)
	f.waitFinalized(t)

	s := f.sink.Snapshot()
	assert.Equal(t, "FAILED", s.Scan.Status.Badge)
	assert.Equal(t, 100, s.Scan.Status.Percent)
	assert.Equal(t, ColorDanger, s.Scan.Status.Color)

	require.Len(t, s.Scan.Lines, 2)
	last := s.Scan.Lines[1]
	assert.Equal(t, ClassError, last.Class)
	assert.Contains(t, last.Text, "timeout")

	assert.False(t, s.Results.Visible)
	assert.False(t, s.Artifacts.Visible)
	assert.Zero(t, f.backend.CountRoute("GET /api/scan/{id}/files"))

	testutil.Eventually(t, func() bool { return f.backend.CountRoute("GET /api/scans") == 1 }, time.Second, "recent scans not refreshed")
}

func TestController_SubmitValidation(t *testing.T) {
	f := newControllerFixture(t)

	for _, input := range []string{"", "   ", "https://", "http://www./"} {
		_, err := f.ctrl.Submit(testutil.TestContext(t), input, "light")

		var verr *ValidationError
		require.ErrorAs(t, err, &verr, "input %q", input)
		assert.Equal(t, "Please enter a domain", verr.Message)
	}

	assert.Empty(t, f.backend.Requests())

	s := f.sink.Snapshot()
	assert.False(t, s.Submitting)
	assert.False(t, s.Scan.Visible)
	require.NotEmpty(t, s.Notices)
	assert.Equal(t, RegionForm, s.Notices[0].Region)
	assert.Equal(t, NoticeError, s.Notices[0].Level)
}

func TestController_SubmitBackendError(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		message string
		want    string
	}{
		{"server_message", http.StatusBadRequest, "Domain is required", "Domain is required"},
		{"no_message", http.StatusInternalServerError, "", "Failed to start scan"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newControllerFixture(t)
			f.backend.Fail("POST /api/scan", tt.status, tt.message, 1)

			_, err := f.ctrl.Submit(testutil.TestContext(t), "test.com", "light")

			var serr *SubmissionError
			require.ErrorAs(t, err, &serr)
			assert.Equal(t, tt.want, serr.Message)

			var apiErr *client.APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)

			s := f.sink.Snapshot()
			assert.False(t, s.Submitting)
			assert.False(t, s.Scan.Visible)
			require.Len(t, s.Notices, 1)
			assert.Equal(t, tt.want, s.Notices[0].Message)

			_, _, active := f.ctrl.poller.Current()
			assert.False(t, active)
		})
	}
}

type stubResolver struct {
	addrs []string
	err   error
}

func (r stubResolver) Resolve(context.Context, string) ([]string, error) {
	return r.addrs, r.err
}

func TestController_PreflightWarningDoesNotBlock(t *testing.T) {
	f := newControllerFixture(t, func(o *Options) {
		o.Resolver = stubResolver{err: errors.New("domain not found (NXDOMAIN)")}
	})

	rec, err := f.ctrl.Submit(testutil.TestContext(t), "nope.example", "light")
	require.NoError(t, err)
	assert.Equal(t, "scan-1", rec.ScanID)

	s := f.sink.Snapshot()
	require.Len(t, s.Notices, 1)
	assert.Equal(t, NoticeWarning, s.Notices[0].Level)
	assert.Contains(t, s.Notices[0].Message, "NXDOMAIN")
}

func TestController_NewSubmitSupersedes(t *testing.T) {
	f := newControllerFixture(t)
	// first scan never finishes
	f.backend.ScriptNext(models.ScanRecord{Status: models.ScanStatusRunning, Log: []string{"still going"}})
	f.backend.ScriptNext(completedScript()...)

	ctx := testutil.TestContext(t)
	_, err := f.ctrl.Submit(ctx, "one.com", "light")
	require.NoError(t, err)
	testutil.Eventually(t, func() bool { return f.countPath("/api/scan/scan-1") >= 2 }, time.Second, "first scan not polled")

	_, err = f.ctrl.Submit(ctx, "two.com", "light")
	require.NoError(t, err)
	f.waitFinalized(t)

	seen := f.countPath("/api/scan/scan-1")
	time.Sleep(100 * time.Millisecond)
	assert.LessOrEqual(t, f.countPath("/api/scan/scan-1"), seen+1, "first scan still polled")

	s := f.sink.Snapshot()
	assert.Equal(t, "scan-2", s.Scan.ScanID)
	assert.Equal(t, "two.com", s.Scan.Domain)
	for _, l := range s.Scan.Lines {
		assert.NotEqual(t, "still going", l.Raw)
	}
}

func TestController_ViewTerminal(t *testing.T) {
	f := newControllerFixture(t)
	f.backend.AddScan(models.ScanRecord{
		ScanID: "old", Domain: "old.com", ScanType: "ultra", Status: models.ScanStatusCompleted,
		Log:     []string{"✓ done"},
		Results: &models.Results{Message: "Scan completed but no results file found"},
	})

	rec, err := f.ctrl.View(testutil.TestContext(t), "old")
	require.NoError(t, err)
	assert.Equal(t, "old.com", rec.Domain)

	s := f.sink.Snapshot()
	assert.Equal(t, "old", s.Scan.ScanID)
	assert.Equal(t, "ULTRA", s.Scan.ScanType)
	require.Len(t, s.Scan.Lines, 1)
	assert.Equal(t, "✓ done", s.Scan.Lines[0].Raw)
	assert.True(t, s.Results.Visible)
	assert.Equal(t, "Scan completed but no results file found", s.Results.Message)
	assert.True(t, s.Artifacts.Visible)

	id, active := f.ctrl.Current()
	assert.Equal(t, "old", id)
	assert.False(t, active)

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, f.countPath("/api/scan/old"))
	assert.Zero(t, f.backend.CountRoute("GET /api/scans"))
}

func TestController_ViewRunningResumesPolling(t *testing.T) {
	f := newControllerFixture(t)
	f.backend.AddScan(
		models.ScanRecord{ScanID: "live", Status: models.ScanStatusRunning, Log: []string{"[1/2] dig"}},
		models.ScanRecord{ScanID: "live", Status: models.ScanStatusRunning, Log: []string{"[1/2] dig"}},
		models.ScanRecord{ScanID: "live", Status: models.ScanStatusRunning, Log: []string{"[1/2] dig"}},
		models.ScanRecord{ScanID: "live", Status: models.ScanStatusFailed, Log: []string{"[1/2] dig"}},
	)

	_, err := f.ctrl.View(testutil.TestContext(t), "live")
	require.NoError(t, err)

	_, active := f.ctrl.Current()
	assert.True(t, active)

	rec := f.waitFinalized(t)
	assert.Equal(t, models.ScanStatusFailed, rec.Status)

	s := f.sink.Snapshot()
	require.Len(t, s.Scan.Lines, 2)
	assert.Equal(t, "ERROR: Scan failed", s.Scan.Lines[1].Raw)
}

func TestController_ViewNotFound(t *testing.T) {
	f := newControllerFixture(t)

	_, err := f.ctrl.View(testutil.TestContext(t), "missing")
	require.Error(t, err)
	assert.True(t, client.IsNotFound(err))

	s := f.sink.Snapshot()
	require.Len(t, s.Notices, 1)
	assert.Equal(t, RegionScan, s.Notices[0].Region)
}

func TestController_TransportErrorsKeepPolling(t *testing.T) {
	f := newControllerFixture(t)
	f.backend.ScriptNext(completedScript()...)
	f.backend.Fail("GET /api/scan/{id}", http.StatusBadGateway, "", 2)

	_, err := f.ctrl.Submit(testutil.TestContext(t), "test.com", "light")
	require.NoError(t, err)

	rec := f.waitFinalized(t)
	assert.Equal(t, models.ScanStatusCompleted, rec.Status)
	testutil.Eventually(t, func() bool { return f.countPath("/api/scan/scan-1") == 5 }, time.Second, "expected two failed and three good polls")
}

func TestController_ArtifactFailureIsolated(t *testing.T) {
	f := newControllerFixture(t)
	f.backend.ScriptNext(completedScript()...)
	f.backend.Fail("GET /api/scan/{id}/files", http.StatusInternalServerError, "disk error", -1)

	_, err := f.ctrl.Submit(testutil.TestContext(t), "test.com", "light")
	require.NoError(t, err)
	f.waitFinalized(t)

	s := f.sink.Snapshot()
	assert.Equal(t, "COMPLETED", s.Scan.Status.Badge)
	assert.True(t, s.Results.Visible)
	assert.True(t, s.Artifacts.Visible)
	assert.False(t, s.Artifacts.Loading)
	assert.Contains(t, s.Artifacts.Error, "disk error")
	assert.Empty(t, s.Artifacts.Files)
	assert.Empty(t, s.Notices)
}

func TestController_ArtifactContentIsLazy(t *testing.T) {
	f := newControllerFixture(t)
	f.backend.ScriptNext(completedScript()...)
	f.backend.SetFiles("scan-1", models.FileArtifact{Name: "ports.txt", Lines: 2})
	f.backend.SetFileContent("scan-1", "ports.txt", "80/tcp\n443/tcp\n")

	ctx := testutil.TestContext(t)
	_, err := f.ctrl.Submit(ctx, "test.com", "light")
	require.NoError(t, err)
	f.waitFinalized(t)

	assert.Zero(t, f.backend.CountRoute("GET /api/scan/{id}/file/{name}"))

	content, err := f.ctrl.ViewFile(ctx, "", "ports.txt")
	require.NoError(t, err)
	assert.Equal(t, "80/tcp\n443/tcp\n", content)

	s := f.sink.Snapshot()
	require.NotNil(t, s.File)
	assert.Equal(t, "ports.txt", s.File.Name)
	assert.Equal(t, "scan-1", s.File.ScanID)

	_, err = f.ctrl.ViewFile(ctx, "scan-1", "missing.txt")
	var fetchErr *ArtifactFetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, "missing.txt", fetchErr.Name)
	assert.Equal(t, RegionArtifacts, f.sink.Snapshot().Notices[0].Region)
}

func TestController_DownloadFile(t *testing.T) {
	f := newControllerFixture(t)
	f.backend.AddScan(models.ScanRecord{ScanID: "s1", Status: models.ScanStatusCompleted})
	f.backend.SetFileContent("s1", "urls.txt", "https://test.com/\n")
	dir := t.TempDir()
	ctx := testutil.TestContext(t)

	path, err := f.ctrl.DownloadFile(ctx, "s1", "urls.txt", dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "urls.txt"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "https://test.com/\n", string(data))

	_, err = f.ctrl.DownloadFile(ctx, "s1", "../escape.txt", dir)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestController_DownloadResults(t *testing.T) {
	f := newControllerFixture(t)
	f.backend.AddScan(models.ScanRecord{
		ScanID: "s1", Domain: "test.com", ScanType: "light", Status: models.ScanStatusCompleted,
		Log:     []string{"✓ complete"},
		Results: &models.Results{Findings: &models.Findings{OpenPorts: 4}},
	})
	dir := t.TempDir()
	ctx := testutil.TestContext(t)

	t.Run("json", func(t *testing.T) {
		path, err := f.ctrl.DownloadResults(ctx, "s1", dir, FormatJSON)
		require.NoError(t, err)
		assert.Equal(t, "ctxrec-test.com-s1.json", filepath.Base(path))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		var rec models.ScanRecord
		require.NoError(t, json.Unmarshal(data, &rec))
		assert.Equal(t, "s1", rec.ScanID)
		assert.Equal(t, 4, rec.Results.Findings.OpenPorts)
	})

	t.Run("yaml", func(t *testing.T) {
		path, err := f.ctrl.DownloadResults(ctx, "s1", dir, FormatYAML)
		require.NoError(t, err)
		assert.True(t, strings.HasSuffix(path, ".yaml"))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		var rec models.ScanRecord
		require.NoError(t, yaml.Unmarshal(data, &rec))
		assert.Equal(t, models.ScanStatusCompleted, rec.Status)
		assert.Equal(t, []string{"✓ complete"}, rec.Log)
	})

	t.Run("unknown_format", func(t *testing.T) {
		_, _, err := f.ctrl.ExportResults(ctx, "s1", "xml")
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
	})
}

func TestController_DownloadAll(t *testing.T) {
	f := newControllerFixture(t)

	err := f.ctrl.DownloadAll("any")
	assert.ErrorIs(t, err, ErrNotImplemented)

	s := f.sink.Snapshot()
	require.Len(t, s.Notices, 1)
	assert.Equal(t, NoticeInfo, s.Notices[0].Level)
	assert.Contains(t, s.Notices[0].Message, "coming soon")
	assert.Empty(t, f.backend.Requests())
}

func TestController_NoScanSelected(t *testing.T) {
	f := newControllerFixture(t)
	ctx := testutil.TestContext(t)

	_, err := f.ctrl.ViewFile(ctx, "", "x.txt")
	assert.ErrorIs(t, err, ErrNoScanSelected)
	_, err = f.ctrl.DownloadResults(ctx, "", t.TempDir(), FormatJSON)
	assert.ErrorIs(t, err, ErrNoScanSelected)
	assert.ErrorIs(t, f.ctrl.DownloadAll(""), ErrNoScanSelected)

	assert.Empty(t, f.backend.Requests())
}

func TestController_CheckTools(t *testing.T) {
	t.Run("enough_tools", func(t *testing.T) {
		f := newControllerFixture(t)
		ts, err := f.ctrl.CheckTools(testutil.TestContext(t))
		require.NoError(t, err)
		assert.Equal(t, 5, ts.AvailableCount())
		assert.Empty(t, f.sink.Snapshot().Notices)
	})

	t.Run("below_threshold", func(t *testing.T) {
		f := newControllerFixture(t)
		f.backend.SetTools(models.ToolStatus{AvailableTools: map[string][]string{
			"light": {"dig"},
			"cool":  {"nmap"},
		}})

		_, err := f.ctrl.CheckTools(testutil.TestContext(t))
		require.NoError(t, err)

		s := f.sink.Snapshot()
		require.Len(t, s.Notices, 1)
		assert.Equal(t, RegionTools, s.Notices[0].Region)
		assert.Equal(t, NoticeWarning, s.Notices[0].Level)
	})

	t.Run("custom_threshold", func(t *testing.T) {
		f := newControllerFixture(t, func(o *Options) { o.ToolWarningThreshold = 10 })
		_, err := f.ctrl.CheckTools(testutil.TestContext(t))
		require.NoError(t, err)
		assert.Len(t, f.sink.Snapshot().Notices, 1)
	})

	t.Run("failure_is_silent", func(t *testing.T) {
		f := newControllerFixture(t)
		f.backend.Fail("GET /api/tools", http.StatusInternalServerError, "boom", 1)

		_, err := f.ctrl.CheckTools(testutil.TestContext(t))
		require.Error(t, err)
		assert.Empty(t, f.sink.Snapshot().Notices)
	})
}

func TestController_RefreshRecent(t *testing.T) {
	f := newControllerFixture(t)
	f.backend.AddScan(models.ScanRecord{ScanID: "a", Domain: "a.com", Status: models.ScanStatusCompleted})
	f.backend.AddScan(models.ScanRecord{ScanID: "b", Domain: "b.com", Status: models.ScanStatusFailed})
	ctx := testutil.TestContext(t)

	scans, err := f.ctrl.RefreshRecent(ctx)
	require.NoError(t, err)
	require.Len(t, scans, 2)

	s := f.sink.Snapshot()
	assert.Equal(t, scans, s.Recent.Scans)
	assert.Empty(t, s.Recent.Error)

	f.backend.Fail("GET /api/scans", http.StatusInternalServerError, "", 1)
	_, err = f.ctrl.RefreshRecent(ctx)
	require.Error(t, err)
	assert.Equal(t, "Failed to load recent scans", f.sink.Snapshot().Recent.Error)
}

func TestController_StopKeepsCard(t *testing.T) {
	f := newControllerFixture(t)
	f.backend.ScriptNext(models.ScanRecord{Status: models.ScanStatusRunning, Log: []string{"working"}})

	_, err := f.ctrl.Submit(testutil.TestContext(t), "test.com", "light")
	require.NoError(t, err)
	testutil.Eventually(t, func() bool { return f.countPath("/api/scan/scan-1") >= 1 }, time.Second, "scan not polled")

	f.ctrl.Stop()
	f.ctrl.Stop()

	id, active := f.ctrl.Current()
	assert.Equal(t, "scan-1", id)
	assert.False(t, active)

	seen := f.countPath("/api/scan/scan-1")
	time.Sleep(80 * time.Millisecond)
	assert.LessOrEqual(t, f.countPath("/api/scan/scan-1"), seen+1)
	assert.True(t, f.sink.Snapshot().Scan.Visible)
}

func TestController_StopDuringFinalizeKeepsResults(t *testing.T) {
	f := newControllerFixture(t)
	f.backend.ScriptNext(completedScript()[2])
	f.backend.SetFiles("scan-1", models.FileArtifact{Name: "ports.txt", Lines: 2})
	listing, release := f.backend.HoldFiles("scan-1")
	defer release()

	_, err := f.ctrl.Submit(testutil.TestContext(t), "test.com", "light")
	require.NoError(t, err)

	select {
	case <-listing:
	case <-time.After(3 * time.Second):
		t.Fatal("file listing never requested")
	}

	// the loop already stopped itself on the completed record
	f.ctrl.Stop()
	f.ctrl.Stop()
	refreshes := f.countPath("/api/scans")
	release()

	rec := f.waitFinalized(t)
	assert.Equal(t, models.ScanStatusCompleted, rec.Status)

	s := f.sink.Snapshot()
	assert.True(t, s.Artifacts.Visible)
	assert.False(t, s.Artifacts.Loading)
	assert.Empty(t, s.Artifacts.Error)
	require.Len(t, s.Artifacts.Files, 1)
	assert.Equal(t, "ports.txt", s.Artifacts.Files[0].Name)
	assert.True(t, s.Results.Visible)

	assert.True(t, s.Recent.Loaded)
	testutil.Eventually(t, func() bool { return f.countPath("/api/scans") > refreshes }, time.Second, "recent scans not refreshed")
}
