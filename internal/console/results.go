package console

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hugh/reconsole/internal/api/validation"
	"github.com/hugh/reconsole/internal/models"
)

// ArtifactAPI is the slice of the API the aggregator needs.
type ArtifactAPI interface {
	GetScan(ctx context.Context, scanID string) (*models.ScanRecord, error)
	ListFiles(ctx context.Context, scanID string) ([]models.FileArtifact, error)
	GetFile(ctx context.Context, scanID, name string) (string, error)
}

// ExportFormat selects how DownloadResults serializes a scan record.
type ExportFormat string

const (
	FormatJSON ExportFormat = "json"
	FormatYAML ExportFormat = "yaml"
)

// ResultsAggregator renders completed scans and serves their artifacts.
type ResultsAggregator struct {
	api    ArtifactAPI
	sink   Sink
	logger *slog.Logger
}

func NewResultsAggregator(api ArtifactAPI, sink Sink, logger *slog.Logger) *ResultsAggregator {
	return &ResultsAggregator{api: api, sink: sink, logger: logger}
}

// Finalize renders the summary, then fetches the file list. apply runs a
// render step and returns false once the scan is no longer tracked.
func (a *ResultsAggregator) Finalize(ctx context.Context, rec *models.ScanRecord, apply func(func()) bool) {
	cards, msg := SummarizeResults(rec)
	if !apply(func() {
		a.sink.ShowResults(rec.ScanID, cards, msg)
		a.sink.ShowArtifacts(rec.ScanID, ArtifactsPanel{Visible: true, Loading: true})
	}) {
		return
	}

	files, err := a.api.ListFiles(ctx, rec.ScanID)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		fetchErr := &ArtifactFetchError{ScanID: rec.ScanID, Err: err}
		a.logger.Warn("artifact list failed", "scan_id", rec.ScanID, "error", fetchErr)
		apply(func() {
			a.sink.ShowArtifacts(rec.ScanID, ArtifactsPanel{Visible: true, Error: fetchErr.Error()})
		})
		return
	}

	apply(func() {
		a.sink.ShowArtifacts(rec.ScanID, ArtifactsPanel{Visible: true, Files: files})
	})
}

// ViewFile fetches one artifact's content and opens it on the sink.
func (a *ResultsAggregator) ViewFile(ctx context.Context, scanID, name string) (string, error) {
	content, err := a.FetchFile(ctx, scanID, name)
	if err != nil {
		a.sink.Notify(Notice{Level: NoticeError, Region: RegionArtifacts, Message: "Error viewing file: " + err.Error()})
		return "", err
	}
	a.sink.ShowFile(OpenFile{ScanID: scanID, Name: name, Content: content})
	return content, nil
}

// DownloadFile writes one artifact into dir and returns its path.
func (a *ResultsAggregator) DownloadFile(ctx context.Context, scanID, name, dir string) (string, error) {
	if !validation.IsSafeFileName(name) {
		return "", &ValidationError{Field: "name", Message: fmt.Sprintf("refusing to write file named %q", name)}
	}

	content, err := a.FetchFile(ctx, scanID, name)
	if err != nil {
		a.sink.Notify(Notice{Level: NoticeError, Region: RegionArtifacts, Message: "Error downloading file: " + err.Error()})
		return "", err
	}

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	a.logger.Info("artifact downloaded", "scan_id", scanID, "file", name, "path", path)
	return path, nil
}

// ExportResults fetches the full record and serializes it.
func (a *ResultsAggregator) ExportResults(ctx context.Context, scanID string, format ExportFormat) (string, []byte, error) {
	rec, err := a.api.GetScan(ctx, scanID)
	if err != nil {
		return "", nil, fmt.Errorf("loading results: %w", err)
	}

	var data []byte
	switch format {
	case FormatYAML:
		data, err = yaml.Marshal(rec)
	case FormatJSON, "":
		format = FormatJSON
		data, err = json.MarshalIndent(rec, "", "  ")
	default:
		return "", nil, &ValidationError{Field: "format", Message: fmt.Sprintf("unknown export format %q", format)}
	}
	if err != nil {
		return "", nil, fmt.Errorf("encoding results: %w", err)
	}

	return ResultsFileName(rec.Domain, scanID, format), data, nil
}

// DownloadResults writes the full record into dir and returns its path.
func (a *ResultsAggregator) DownloadResults(ctx context.Context, scanID, dir string, format ExportFormat) (string, error) {
	name, data, err := a.ExportResults(ctx, scanID, format)
	if err != nil {
		a.sink.Notify(Notice{Level: NoticeError, Region: RegionResults, Message: "Error downloading results: " + err.Error()})
		return "", err
	}

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}

// DownloadAll is not implemented.
func (a *ResultsAggregator) DownloadAll(scanID string) error {
	a.sink.Notify(Notice{Level: NoticeInfo, Region: RegionResults, Message: bulkDownloadNotice})
	return ErrNotImplemented
}

// FetchFile returns one artifact's content without touching the sink.
func (a *ResultsAggregator) FetchFile(ctx context.Context, scanID, name string) (string, error) {
	content, err := a.api.GetFile(ctx, scanID, name)
	if err != nil {
		fetchErr := &ArtifactFetchError{ScanID: scanID, Name: name, Err: err}
		a.logger.Warn("artifact fetch failed", "scan_id", scanID, "file", name, "error", err)
		return "", fetchErr
	}
	return content, nil
}

var fileNameReplacer = strings.NewReplacer("/", "_", `\`, "_", "\x00", "")

// ResultsFileName is ctxrec-<domain>-<scan id>.<ext> with path separators
// replaced.
func ResultsFileName(domain, scanID string, format ExportFormat) string {
	return fileNameReplacer.Replace(fmt.Sprintf("ctxrec-%s-%s.%s", domain, scanID, format))
}
