package console

import (
	"context"
	"log/slog"

	"github.com/hugh/reconsole/internal/models"
)

type ScanLister interface {
	ListScans(ctx context.Context) ([]models.ScanSummary, error)
}

// RecentScans renders past scans in the order the backend returns them.
type RecentScans struct {
	api    ScanLister
	sink   Sink
	logger *slog.Logger
}

func NewRecentScans(api ScanLister, sink Sink, logger *slog.Logger) *RecentScans {
	return &RecentScans{api: api, sink: sink, logger: logger}
}

func (r *RecentScans) Refresh(ctx context.Context) ([]models.ScanSummary, error) {
	scans, err := r.api.ListScans(ctx)
	if err != nil {
		r.logger.Warn("loading recent scans failed", "error", err)
		r.sink.ShowRecent(RecentPanel{Loaded: true, Error: "Failed to load recent scans"})
		return nil, err
	}
	r.sink.ShowRecent(RecentPanel{Loaded: true, Scans: scans})
	return scans, nil
}
