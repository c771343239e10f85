package console

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugh/reconsole/internal/models"
	"github.com/hugh/reconsole/internal/testutil"
)

const testInterval = 15 * time.Millisecond

// fakeFetcher serves scripted snapshots per scan. Calls made after the
// caller's context was cancelled are not counted.
type fakeFetcher struct {
	mu      sync.Mutex
	scripts map[string][]*models.ScanRecord
	calls   map[string]int
	errs    map[string]int
	hold    map[string]chan struct{}
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		scripts: make(map[string][]*models.ScanRecord),
		calls:   make(map[string]int),
		errs:    make(map[string]int),
		hold:    make(map[string]chan struct{}),
	}
}

func (f *fakeFetcher) script(id string, statuses ...models.ScanStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, s := range statuses {
		f.scripts[id] = append(f.scripts[id], &models.ScanRecord{
			ScanID: id,
			Status: s,
			Log:    make([]string, i+1),
		})
	}
}

func (f *fakeFetcher) failNext(id string, n int) {
	f.mu.Lock()
	f.errs[id] = n
	f.mu.Unlock()
}

func (f *fakeFetcher) holdScan(id string) func() {
	ch := make(chan struct{})
	f.mu.Lock()
	f.hold[id] = ch
	f.mu.Unlock()
	return func() { close(ch) }
}

func (f *fakeFetcher) count(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

func (f *fakeFetcher) GetScan(ctx context.Context, id string) (*models.ScanRecord, error) {
	f.mu.Lock()
	hold := f.hold[id]
	f.mu.Unlock()
	if hold != nil {
		<-hold
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if ctx.Err() == nil {
		f.calls[id]++
	}
	if f.errs[id] > 0 {
		f.errs[id]--
		return nil, errors.New("connection refused")
	}
	script := f.scripts[id]
	if len(script) == 0 {
		return &models.ScanRecord{ScanID: id, Status: models.ScanStatusRunning}, nil
	}
	rec := script[0]
	if len(script) > 1 {
		f.scripts[id] = script[1:]
	}
	cp := *rec
	return &cp, nil
}

type pollRecorder struct {
	mu        sync.Mutex
	updates   []*models.ScanRecord
	finalized []*models.ScanRecord
	gens      []uint64
	done      chan struct{}
}

func newPollRecorder() *pollRecorder {
	return &pollRecorder{done: make(chan struct{}, 8)}
}

func (r *pollRecorder) update(rec *models.ScanRecord) {
	r.mu.Lock()
	r.updates = append(r.updates, rec)
	r.mu.Unlock()
}

func (r *pollRecorder) finalize(_ context.Context, gen uint64, rec *models.ScanRecord) {
	r.mu.Lock()
	r.finalized = append(r.finalized, rec)
	r.gens = append(r.gens, gen)
	r.mu.Unlock()
	r.done <- struct{}{}
}

func (r *pollRecorder) updateIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, len(r.updates))
	for i, u := range r.updates {
		ids[i] = u.ScanID
	}
	return ids
}

func newTestPoller(t *testing.T, f *fakeFetcher, rec *pollRecorder) *Poller {
	t.Helper()
	p := NewPoller(f, testInterval, testutil.NewTestLogger(), rec.update, rec.finalize)
	t.Cleanup(p.Close)
	return p
}

func TestPoller_TerminalFinalizesOnce(t *testing.T) {
	f := newFakeFetcher()
	f.script("a", models.ScanStatusQueued, models.ScanStatusRunning, models.ScanStatusCompleted)
	rec := newPollRecorder()
	p := newTestPoller(t, f, rec)

	gen := p.Start("a", nil)

	select {
	case <-rec.done:
	case <-time.After(2 * time.Second):
		t.Fatal("scan never finalized")
	}

	time.Sleep(5 * testInterval)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.updates, 3)
	assert.Equal(t, models.ScanStatusCompleted, rec.updates[2].Status)
	require.Len(t, rec.finalized, 1)
	assert.Equal(t, gen, rec.gens[0])
	assert.Equal(t, 3, f.count("a"), "no fetches after the terminal record")

	_, _, active := p.Current()
	assert.False(t, active)
}

func TestPoller_SingleFlight(t *testing.T) {
	f := newFakeFetcher()
	rec := newPollRecorder()
	p := newTestPoller(t, f, rec)

	p.Start("a", nil)
	testutil.Eventually(t, func() bool { return f.count("a") >= 2 }, time.Second, "scan a never polled")

	p.Start("b", nil)
	seenA := f.count("a")

	time.Sleep(6 * testInterval)

	assert.Equal(t, seenA, f.count("a"), "old loop kept fetching after being superseded")
	assert.GreaterOrEqual(t, f.count("b"), 3)

	id, _, active := p.Current()
	assert.Equal(t, "b", id)
	assert.True(t, active)
}

func TestPoller_TransportFailureKeepsPolling(t *testing.T) {
	f := newFakeFetcher()
	f.script("a", models.ScanStatusRunning, models.ScanStatusFailed)
	f.failNext("a", 3)
	rec := newPollRecorder()
	p := newTestPoller(t, f, rec)

	p.Start("a", nil)

	select {
	case <-rec.done:
	case <-time.After(2 * time.Second):
		t.Fatal("polling stopped after transport failures")
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Len(t, rec.updates, 2)
	assert.Equal(t, models.ScanStatusFailed, rec.finalized[0].Status)
	assert.Equal(t, 5, f.count("a"))
}

func TestPoller_StaleResponseDropped(t *testing.T) {
	f := newFakeFetcher()
	f.script("a", models.ScanStatusCompleted)
	release := f.holdScan("a")
	rec := newPollRecorder()
	p := newTestPoller(t, f, rec)

	p.Start("a", nil)
	time.Sleep(testInterval)
	p.Start("b", nil)

	// a's in-flight fetch completes after b took over
	release()
	testutil.Eventually(t, func() bool { return f.count("b") >= 2 }, time.Second, "scan b never polled")
	time.Sleep(2 * testInterval)

	for _, id := range rec.updateIDs() {
		assert.Equal(t, "b", id)
	}
	rec.mu.Lock()
	assert.Empty(t, rec.finalized)
	rec.mu.Unlock()
}

func TestPoller_StopIdempotent(t *testing.T) {
	f := newFakeFetcher()
	rec := newPollRecorder()
	p := newTestPoller(t, f, rec)

	p.Stop()

	p.Start("a", nil)
	testutil.Eventually(t, func() bool { return f.count("a") >= 1 }, time.Second, "scan a never polled")
	p.Stop()
	p.Stop()

	seen := f.count("a")
	time.Sleep(4 * testInterval)
	assert.Equal(t, seen, f.count("a"))

	id, _, active := p.Current()
	assert.Equal(t, "a", id)
	assert.False(t, active)
}

func TestPoller_StartRunsOnStartFirst(t *testing.T) {
	f := newFakeFetcher()
	rec := newPollRecorder()
	p := newTestPoller(t, f, rec)

	var fetchesAtStart int
	p.Start("a", func() { fetchesAtStart = f.count("a") })
	assert.Zero(t, fetchesAtStart)
}

func TestPoller_SupersedeResume(t *testing.T) {
	f := newFakeFetcher()
	rec := newPollRecorder()
	p := newTestPoller(t, f, rec)

	p.Start("a", nil)
	gen := p.Supersede("b")

	_, _, active := p.Current()
	assert.False(t, active)
	assert.True(t, p.Guard(gen, func() {}))

	next, ok := p.Resume(gen)
	require.True(t, ok)
	assert.Greater(t, next, gen)
	assert.False(t, p.Guard(gen, func() {}), "old generation no longer current")

	testutil.Eventually(t, func() bool { return f.count("b") >= 1 }, time.Second, "resumed loop never polled")

	_, ok = p.Resume(gen)
	assert.False(t, ok, "stale generation cannot resume")

	assert.False(t, p.StopGen(gen))
	assert.True(t, p.StopGen(next))
	assert.False(t, p.StopGen(next), "already stopped")
}

func TestPoller_CloseStopsEverything(t *testing.T) {
	f := newFakeFetcher()
	rec := newPollRecorder()
	p := NewPoller(f, testInterval, testutil.NewTestLogger(), rec.update, rec.finalize)

	gen := p.Start("a", nil)
	p.Close()

	seen := f.count("a")
	_, ok := p.Resume(gen)
	assert.False(t, ok)
	p.Start("b", nil)

	time.Sleep(3 * testInterval)
	assert.Equal(t, seen, f.count("a"))
	assert.Zero(t, f.count("b"))
}
