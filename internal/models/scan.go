package models

import "strings"

type ScanStatus string

const (
	ScanStatusQueued    ScanStatus = "queued"
	ScanStatusRunning   ScanStatus = "running"
	ScanStatusCompleted ScanStatus = "completed"
	ScanStatusFailed    ScanStatus = "failed"
)

// IsTerminal reports whether no further transitions can happen.
func (s ScanStatus) IsTerminal() bool {
	return s == ScanStatusCompleted || s == ScanStatusFailed
}

func (s ScanStatus) String() string {
	return string(s)
}

type ScanType string

const (
	ScanTypeLight ScanType = "light" // Simple recon and vulnerability scan
	ScanTypeCool  ScanType = "cool"  // Medium-level comprehensive scan
	ScanTypeUltra ScanType = "ultra" // Full-scale deep reconnaissance
)

// ParseScanType lower-cases the input and falls back to light when empty.
// Unknown values are passed through; the backend is the authority on them.
func ParseScanType(s string) ScanType {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ScanTypeLight
	}
	return ScanType(s)
}

// ScanRequest is the body of a create-scan call.
type ScanRequest struct {
	Domain   string   `json:"domain"`
	ScanType ScanType `json:"scan_type"`
}

// ScanRecord is the backend's view of one scan. The client never writes it,
// it only keeps the latest snapshot for rendering.
type ScanRecord struct {
	ScanID    string     `json:"scan_id" yaml:"scan_id"`
	Domain    string     `json:"domain" yaml:"domain"`
	ScanType  ScanType   `json:"scan_type" yaml:"scan_type"`
	Status    ScanStatus `json:"status" yaml:"status"`
	Log       []string   `json:"log,omitempty" yaml:"log,omitempty"`
	Results   *Results   `json:"results,omitempty" yaml:"results,omitempty"`
	Error     string     `json:"error,omitempty" yaml:"error,omitempty"`
	CreatedAt string     `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	StartTime string     `json:"start_time,omitempty" yaml:"start_time,omitempty"`
	EndTime   string     `json:"end_time,omitempty" yaml:"end_time,omitempty"`
}

// Summary drops the log and results.
func (r *ScanRecord) Summary() ScanSummary {
	return ScanSummary{
		ScanID:    r.ScanID,
		Domain:    r.Domain,
		ScanType:  r.ScanType,
		Status:    r.Status,
		CreatedAt: r.CreatedAt,
	}
}

// Results holds whatever the backend loaded from the scan's results file.
// Message and Error are set when that file was missing or invalid.
type Results struct {
	Findings *Findings `json:"findings,omitempty" yaml:"findings,omitempty"`
	Message  string    `json:"message,omitempty" yaml:"message,omitempty"`
	Error    string    `json:"error,omitempty" yaml:"error,omitempty"`
}

// Findings are summary counts. Absent fields decode to zero.
type Findings struct {
	DNSRecords     int `json:"dns_records" yaml:"dns_records"`
	OpenPorts      int `json:"open_ports" yaml:"open_ports"`
	URLsFound      int `json:"urls_found" yaml:"urls_found"`
	XSSFindings    int `json:"xss_findings" yaml:"xss_findings"`
	SQLiFindings   int `json:"sqli_findings" yaml:"sqli_findings"`
	Subdomains     int `json:"subdomains,omitempty" yaml:"subdomains,omitempty"`
	NucleiFindings int `json:"nuclei_findings,omitempty" yaml:"nuclei_findings,omitempty"`
}

// ScanSummary is the abbreviated record used by the recent scans list.
type ScanSummary struct {
	ScanID    string     `json:"scan_id"`
	Domain    string     `json:"domain"`
	ScanType  ScanType   `json:"scan_type"`
	Status    ScanStatus `json:"status"`
	CreatedAt string     `json:"created_at,omitempty"`
}

// FileArtifact is a generated output file. Content is only present once it
// has been fetched.
type FileArtifact struct {
	Name    string `json:"name"`
	Lines   int    `json:"lines"`
	Content string `json:"content,omitempty"`
}

// Viewable reports whether the artifact has anything to show.
func (f FileArtifact) Viewable() bool {
	return f.Lines > 0
}

// ToolStatus lists installed tools per scan category.
type ToolStatus struct {
	AvailableTools  map[string][]string `json:"available_tools"`
	Recommendations map[string]string   `json:"recommendations,omitempty"`
}

// AvailableCount sums tools across categories. Tools listed under several
// categories are counted once per category.
func (t ToolStatus) AvailableCount() int {
	n := 0
	for _, tools := range t.AvailableTools {
		n += len(tools)
	}
	return n
}
