package console

import (
	"strings"

	"github.com/hugh/reconsole/internal/models"
)

// ScanView is the display description of one scan snapshot.
type ScanView struct {
	ScanID   string        `json:"scan_id"`
	Domain   string        `json:"domain"`
	ScanType string        `json:"scan_type"`
	Status   StatusDisplay `json:"status"`

	// Lines is nil when the snapshot had no log lines, in which case the
	// previous rendering stays on screen.
	Lines []RenderedLine `json:"lines,omitempty"`

	Terminal bool `json:"terminal"`
}

// ProjectScan renders a snapshot. It has no side effects.
func ProjectScan(rec *models.ScanRecord, r *LogRenderer) ScanView {
	v := ScanView{
		ScanID:   rec.ScanID,
		Domain:   rec.Domain,
		ScanType: strings.ToUpper(string(rec.ScanType)),
		Status:   ProjectStatus(rec.Status),
		Terminal: rec.Status.IsTerminal(),
	}
	if len(rec.Log) > 0 {
		v.Lines = r.Render(rec.Log)
	}
	return v
}

// SummaryCard is one findings count on the results card.
type SummaryCard struct {
	Icon  string `json:"icon"`
	Label string `json:"label"`
	Value int    `json:"value"`
}

const noResultsMessage = "No results available."

// SummarizeResults builds the findings cards of a completed scan. The second
// return is a message to show instead when there is nothing to count.
func SummarizeResults(rec *models.ScanRecord) ([]SummaryCard, string) {
	if rec.Results == nil {
		return nil, noResultsMessage
	}

	var f models.Findings
	if rec.Results.Findings != nil {
		f = *rec.Results.Findings
	}

	cards := []SummaryCard{
		{Icon: "🌐", Label: "DNS Records", Value: f.DNSRecords},
		{Icon: "🔌", Label: "Open Ports", Value: f.OpenPorts},
		{Icon: "🔗", Label: "URLs Found", Value: f.URLsFound},
		{Icon: "⚠️", Label: "XSS Issues", Value: f.XSSFindings},
		{Icon: "💉", Label: "SQLi Issues", Value: f.SQLiFindings},
	}
	if f.Subdomains > 0 {
		cards = append(cards, SummaryCard{Icon: "🔎", Label: "Subdomains", Value: f.Subdomains})
	}
	if f.NucleiFindings > 0 {
		cards = append(cards, SummaryCard{Icon: "🔥", Label: "Nuclei Findings", Value: f.NucleiFindings})
	}

	msg := rec.Results.Message
	if rec.Results.Error != "" {
		msg = rec.Results.Error
	}
	return cards, msg
}
