package console

import (
	"errors"
	"fmt"
)

var (
	// ErrNotImplemented is returned by DownloadAll.
	ErrNotImplemented = errors.New("bulk download not implemented")

	ErrNoScanSelected = errors.New("no scan selected")
)

const (
	defaultSubmissionMessage = "Failed to start scan"
	bulkDownloadNotice       = "Bulk download feature coming soon! For now, download individual files from the results section."
)

// ValidationError means the input was rejected locally and nothing was sent.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// SubmissionError is a failed create-scan call. Message is what the user
// sees: the backend's error text when it sent one.
type SubmissionError struct {
	Message string
	Err     error
}

func (e *SubmissionError) Error() string {
	return e.Message
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// PollTransportError is a failed fetch during a poll tick. Polling goes on.
type PollTransportError struct {
	ScanID     string
	Generation uint64
	Err        error
}

func (e *PollTransportError) Error() string {
	return fmt.Sprintf("polling scan %s: %v", e.ScanID, e.Err)
}

func (e *PollTransportError) Unwrap() error {
	return e.Err
}

// ArtifactFetchError is a failed file list or file content fetch. It only
// ever affects the artifact region.
type ArtifactFetchError struct {
	ScanID string
	Name   string // empty for the file list
	Err    error
}

func (e *ArtifactFetchError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("loading files for scan %s: %v", e.ScanID, e.Err)
	}
	return fmt.Sprintf("loading file %s: %v", e.Name, e.Err)
}

func (e *ArtifactFetchError) Unwrap() error {
	return e.Err
}
