package console

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hugh/reconsole/internal/api/client"
	"github.com/hugh/reconsole/internal/models"
)

const DefaultPollInterval = 2 * time.Second

// ScanFetcher is the slice of the API the poller needs.
type ScanFetcher interface {
	GetScan(ctx context.Context, scanID string) (*models.ScanRecord, error)
}

// Poller owns the single polling loop. Every Start bumps a generation and
// cancels the previous loop; results from older generations are dropped.
type Poller struct {
	fetch    ScanFetcher
	interval time.Duration
	logger   *slog.Logger

	// update runs with mu held, only for the current generation.
	update func(rec *models.ScanRecord)
	// finalize runs without mu, at most once per generation, after the loop
	// has stopped itself on a terminal record.
	finalize func(ctx context.Context, gen uint64, rec *models.ScanRecord)

	mu     sync.Mutex
	gen    uint64
	scanID string
	active bool
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool
}

func NewPoller(
	fetch ScanFetcher,
	interval time.Duration,
	logger *slog.Logger,
	update func(rec *models.ScanRecord),
	finalize func(ctx context.Context, gen uint64, rec *models.ScanRecord),
) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		fetch:    fetch,
		interval: interval,
		logger:   logger,
		update:   update,
		finalize: finalize,
	}
}

// Start replaces whatever loop is running with one for scanID. onStart, if
// set, runs under the lock after the old loop is cancelled and before the
// first fetch. It returns the new generation.
func (p *Poller) Start(scanID string, onStart func()) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	gen := p.supersedeLocked(scanID)
	if onStart != nil {
		onStart()
	}
	p.launchLocked(gen, scanID)
	return gen
}

// Supersede cancels any loop and makes scanID the tracked target without
// starting a new loop. Used for one-shot fetches that may Resume later.
func (p *Poller) Supersede(scanID string) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.supersedeLocked(scanID)
}

// Resume starts a loop for gen's target if gen is still current. The loop
// runs under a new generation, which is returned.
func (p *Poller) Resume(gen uint64) (uint64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if gen != p.gen || p.closed {
		return 0, false
	}
	scanID := p.scanID
	next := p.supersedeLocked(scanID)
	p.launchLocked(next, scanID)
	return next, true
}

// Stop cancels the active loop. Safe to call any number of times. Once a
// loop has seen a terminal record there is nothing to stop, and its
// finalization runs to completion; only Close or a new Start cancels it.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked(p.gen)
}

// StopGen stops the loop only if gen still owns it. It reports whether it did.
func (p *Poller) StopGen(gen uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopLocked(gen)
}

func (p *Poller) stopLocked(gen uint64) bool {
	if gen != p.gen || !p.active {
		return false
	}
	p.cancelLocked()
	return true
}

// Guard runs fn under the lock if gen is still current.
func (p *Poller) Guard(gen uint64, fn func()) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.gen {
		return false
	}
	fn()
	return true
}

// Current returns the tracked scan, its generation, and whether a loop is running.
func (p *Poller) Current() (scanID string, gen uint64, active bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scanID, p.gen, p.active
}

// Close stops polling for good and waits for the loop goroutines to exit.
func (p *Poller) Close() {
	p.mu.Lock()
	p.closed = true
	p.gen++
	p.cancelLocked()
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Poller) supersedeLocked(scanID string) uint64 {
	p.cancelLocked()
	p.gen++
	p.scanID = scanID
	return p.gen
}

func (p *Poller) cancelLocked() {
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.active = false
}

func (p *Poller) launchLocked(gen uint64, scanID string) {
	if p.closed {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.active = true

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(ctx, gen, scanID)
	}()
}

func (p *Poller) run(ctx context.Context, gen uint64, scanID string) {
	ctx = client.WithTag(ctx, client.Tag{ScanID: scanID, Generation: gen})

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		rec, done := p.tick(ctx, gen, scanID)
		if done {
			if rec != nil && p.finalize != nil {
				p.finalize(ctx, gen, rec)
			}
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// tick fetches once. done means the loop must exit; rec is set when it
// exits because this generation saw a terminal record and stopped itself.
func (p *Poller) tick(ctx context.Context, gen uint64, scanID string) (*models.ScanRecord, bool) {
	rec, err := p.fetch.GetScan(ctx, scanID)
	if ctx.Err() != nil {
		// superseded or stopped while in flight
		return nil, true
	}
	if err != nil {
		pollErr := &PollTransportError{ScanID: scanID, Generation: gen, Err: err}
		p.logger.Warn("poll failed", "scan_id", scanID, "generation", gen, "error", pollErr)
		return nil, false
	}

	p.mu.Lock()
	if gen != p.gen {
		p.mu.Unlock()
		p.logger.Debug("dropping stale poll response", "scan_id", scanID, "generation", gen)
		return nil, true
	}
	if p.update != nil {
		p.update(rec)
	}
	terminal := rec.Status.IsTerminal()
	if terminal {
		// Keep the context alive for finalization; the next Start cancels it.
		p.active = false
	}
	p.mu.Unlock()

	if terminal {
		p.logger.Info("scan reached terminal status", "scan_id", scanID, "status", rec.Status)
		return rec, true
	}
	return nil, false
}
