// Package console is the scan lifecycle engine: it submits scans, polls the
// tracked one, and renders everything into a Sink.
package console

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hugh/reconsole/internal/api/client"
	"github.com/hugh/reconsole/internal/models"
)

const (
	DefaultToolWarningThreshold = 5

	toolWarningMessage = "Some reconnaissance tools are not installed. Results may be limited."
)

// API is everything the controller needs from the backend.
type API interface {
	ScanCreator
	ArtifactAPI
	ScanLister
	Tools(ctx context.Context) (*models.ToolStatus, error)
}

type Options struct {
	Interval             time.Duration
	Renderer             *LogRenderer
	Logger               *slog.Logger
	ToolWarningThreshold int

	// Resolver enables the DNS preflight on Submit when set.
	Resolver Resolver

	// OnFinalized is called after a terminal scan has been rendered.
	OnFinalized func(rec *models.ScanRecord)
}

// Controller holds the process-wide tracking state. Build one at startup
// and Close it on shutdown.
type Controller struct {
	api           API
	sink          Sink
	renderer      *LogRenderer
	logger        *slog.Logger
	toolThreshold int
	onFinalized   func(rec *models.ScanRecord)

	poller    *Poller
	submitter *Submitter
	results   *ResultsAggregator
	recent    *RecentScans
}

func NewController(api API, sink Sink, opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Renderer == nil {
		opts.Renderer = NewLogRenderer(DefaultRenderConfig(), HTMLMarkup{})
	}
	if opts.ToolWarningThreshold <= 0 {
		opts.ToolWarningThreshold = DefaultToolWarningThreshold
	}

	c := &Controller{
		api:           api,
		sink:          sink,
		renderer:      opts.Renderer,
		logger:        opts.Logger,
		toolThreshold: opts.ToolWarningThreshold,
		onFinalized:   opts.OnFinalized,
		submitter:     NewSubmitter(api, opts.Resolver, opts.Logger),
		results:       NewResultsAggregator(api, sink, opts.Logger),
		recent:        NewRecentScans(api, sink, opts.Logger),
	}
	c.poller = NewPoller(api, opts.Interval, opts.Logger, c.applyRecord, func(ctx context.Context, gen uint64, rec *models.ScanRecord) {
		c.finalize(ctx, gen, rec, true)
	})
	return c
}

func (c *Controller) Renderer() *LogRenderer {
	return c.renderer
}

func (c *Controller) Submitter() *Submitter {
	return c.submitter
}

// Submit validates and creates a scan, then tracks it.
func (c *Controller) Submit(ctx context.Context, rawDomain, scanType string) (*models.ScanRecord, error) {
	c.sink.SetSubmitting(true)
	defer c.sink.SetSubmitting(false)

	if req, err := c.submitter.Prepare(rawDomain, scanType); err == nil {
		if warn := c.submitter.Preflight(ctx, req.Domain); warn != nil {
			c.logger.Warn("preflight failed", "domain", req.Domain, "error", warn)
			c.sink.Notify(Notice{Level: NoticeWarning, Region: RegionForm, Message: warn.Error()})
		}
	}

	rec, err := c.submitter.Submit(ctx, rawDomain, scanType)
	if err != nil {
		c.sink.Notify(Notice{Level: NoticeError, Region: RegionForm, Message: err.Error()})
		return nil, err
	}

	c.poller.Start(rec.ScanID, func() {
		c.sink.ShowScan(ProjectScan(rec, c.renderer))
	})
	return rec, nil
}

// View switches tracking to scanID, renders it once, and keeps polling only
// if it is not terminal yet.
func (c *Controller) View(ctx context.Context, scanID string) (*models.ScanRecord, error) {
	gen := c.poller.Supersede(scanID)

	rec, err := c.api.GetScan(client.WithTag(ctx, client.Tag{ScanID: scanID, Generation: gen}), scanID)
	if err != nil {
		c.logger.Error("loading scan failed", "scan_id", scanID, "error", err)
		c.sink.Notify(Notice{Level: NoticeError, Region: RegionScan, Message: "Failed to load scan"})
		return nil, fmt.Errorf("loading scan %s: %w", scanID, err)
	}

	shown := c.poller.Guard(gen, func() {
		v := ProjectScan(rec, c.renderer)
		c.sink.ShowScan(v)
		c.sink.UpdateScan(v)
	})
	if !shown {
		return rec, nil
	}

	if rec.Status.IsTerminal() {
		c.finalize(ctx, gen, rec, false)
	} else {
		c.poller.Resume(gen)
	}
	return rec, nil
}

// Stop halts polling of the tracked scan; its card stays on the board.
func (c *Controller) Stop() {
	c.poller.Stop()
}

// Current returns the tracked scan id and whether it is still being polled.
func (c *Controller) Current() (string, bool) {
	scanID, _, active := c.poller.Current()
	return scanID, active
}

func (c *Controller) RefreshRecent(ctx context.Context) ([]models.ScanSummary, error) {
	return c.recent.Refresh(ctx)
}

// CheckTools shows a notice when fewer tools than the threshold are installed.
// Failures are only logged.
func (c *Controller) CheckTools(ctx context.Context) (*models.ToolStatus, error) {
	ts, err := c.api.Tools(ctx)
	if err != nil {
		c.logger.Error("checking tools failed", "error", err)
		return nil, err
	}
	if n := ts.AvailableCount(); n < c.toolThreshold {
		c.logger.Warn("few tools available", "available", n, "threshold", c.toolThreshold)
		c.sink.Notify(Notice{Level: NoticeWarning, Region: RegionTools, Message: toolWarningMessage})
	}
	return ts, nil
}

// ViewFile opens an artifact of scanID, or of the tracked scan when scanID is empty.
func (c *Controller) ViewFile(ctx context.Context, scanID, name string) (string, error) {
	scanID, err := c.resolve(scanID)
	if err != nil {
		return "", err
	}
	return c.results.ViewFile(ctx, scanID, name)
}

// FetchFile returns an artifact's content without opening it on the board.
func (c *Controller) FetchFile(ctx context.Context, scanID, name string) (string, error) {
	scanID, err := c.resolve(scanID)
	if err != nil {
		return "", err
	}
	return c.results.FetchFile(ctx, scanID, name)
}

func (c *Controller) DownloadFile(ctx context.Context, scanID, name, dir string) (string, error) {
	scanID, err := c.resolve(scanID)
	if err != nil {
		return "", err
	}
	return c.results.DownloadFile(ctx, scanID, name, dir)
}

func (c *Controller) ExportResults(ctx context.Context, scanID string, format ExportFormat) (string, []byte, error) {
	scanID, err := c.resolve(scanID)
	if err != nil {
		return "", nil, err
	}
	return c.results.ExportResults(ctx, scanID, format)
}

func (c *Controller) DownloadResults(ctx context.Context, scanID, dir string, format ExportFormat) (string, error) {
	scanID, err := c.resolve(scanID)
	if err != nil {
		return "", err
	}
	return c.results.DownloadResults(ctx, scanID, dir, format)
}

func (c *Controller) DownloadAll(scanID string) error {
	scanID, err := c.resolve(scanID)
	if err != nil {
		return err
	}
	return c.results.DownloadAll(scanID)
}

// Close stops polling and waits for background work to finish.
func (c *Controller) Close() {
	c.poller.Close()
}

func (c *Controller) resolve(scanID string) (string, error) {
	if scanID != "" {
		return scanID, nil
	}
	current, _, _ := c.poller.Current()
	if current == "" {
		c.sink.Notify(Notice{Level: NoticeError, Region: RegionResults, Message: "No scan selected"})
		return "", ErrNoScanSelected
	}
	return current, nil
}

// applyRecord runs under the poller lock for the current generation.
func (c *Controller) applyRecord(rec *models.ScanRecord) {
	c.sink.UpdateScan(ProjectScan(rec, c.renderer))
}

func (c *Controller) finalize(ctx context.Context, gen uint64, rec *models.ScanRecord, refreshRecent bool) {
	apply := func(fn func()) bool { return c.poller.Guard(gen, fn) }

	switch rec.Status {
	case models.ScanStatusCompleted:
		c.results.Finalize(ctx, rec, apply)
	case models.ScanStatusFailed:
		apply(func() {
			c.sink.AppendLine(rec.ScanID, c.renderer.FailureLine(rec.Error))
		})
	}

	if refreshRecent && ctx.Err() == nil {
		c.recent.Refresh(ctx)
	}

	if c.onFinalized != nil {
		c.onFinalized(rec)
	}
}
