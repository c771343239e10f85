package console

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hugh/reconsole/internal/models"
	"github.com/hugh/reconsole/pkg/util"
)

// Scheduler resubmits fixed scan requests on cron schedules.
type Scheduler struct {
	cron      *cron.Cron
	submitter *Submitter
	logger    *slog.Logger
	timeout   time.Duration

	// OnSubmit, if set, sees the outcome of every firing.
	OnSubmit func(req models.ScanRequest, rec *models.ScanRecord, err error)

	mu      sync.Mutex
	entries map[cron.EntryID]models.ScanRequest
}

func NewScheduler(submitter *Submitter, logger *slog.Logger, timeout time.Duration) *Scheduler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Scheduler{
		cron:      util.NewCron(cronLogger{logger}),
		submitter: submitter,
		logger:    logger,
		timeout:   timeout,
		entries:   make(map[cron.EntryID]models.ScanRequest),
	}
}

// Add validates the expression and the domain, then registers the job.
func (s *Scheduler) Add(expr, rawDomain, scanType string) (cron.EntryID, error) {
	if err := util.ValidateCronExpr(expr); err != nil {
		return 0, &ValidationError{Field: "cron", Message: err.Error()}
	}
	req, err := s.submitter.Prepare(rawDomain, scanType)
	if err != nil {
		return 0, err
	}

	id, err := s.cron.AddFunc(expr, func() { s.fire(req) })
	if err != nil {
		return 0, &ValidationError{Field: "cron", Message: err.Error()}
	}

	s.mu.Lock()
	s.entries[id] = req
	s.mu.Unlock()

	s.logger.Info("scan scheduled", "cron", expr, "domain", req.Domain, "scan_type", req.ScanType, "entry_id", id)
	return id, nil
}

// Next returns the next firing time of an entry, zero if unknown or not started.
func (s *Scheduler) Next(id cron.EntryID) time.Time {
	return s.cron.Entry(id).Next
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop prevents new firings and returns a context done when running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) fire(req models.ScanRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	rec, err := s.submitter.Submit(ctx, req.Domain, string(req.ScanType))
	if err != nil {
		s.logger.Error("scheduled scan failed", "domain", req.Domain, "error", err)
	} else {
		s.logger.Info("scheduled scan started", "scan_id", rec.ScanID, "domain", rec.Domain)
	}
	if s.OnSubmit != nil {
		s.OnSubmit(req, rec, err)
	}
}

// cronLogger routes cron's own logging through slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
