package dto

import "github.com/hugh/reconsole/internal/models"

// ErrorResponse is the failure body used by the scan backend and by the
// console's own JSON endpoints.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details,omitempty"`
}

type SuccessResponse struct {
	Message string `json:"message"`
}

// CreateScanResponse is returned by POST /api/scan.
type CreateScanResponse struct {
	ScanID   string            `json:"scan_id"`
	Domain   string            `json:"domain"`
	ScanType models.ScanType   `json:"scan_type"`
	Status   models.ScanStatus `json:"status"`
}

func (r CreateScanResponse) Record() *models.ScanRecord {
	return &models.ScanRecord{
		ScanID:   r.ScanID,
		Domain:   r.Domain,
		ScanType: r.ScanType,
		Status:   r.Status,
	}
}

type FilesResponse struct {
	Files []models.FileArtifact `json:"files"`
}

type FileContentResponse struct {
	Content string `json:"content"`
}

type ScansResponse struct {
	Scans []models.ScanSummary `json:"scans"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Version string `json:"version,omitempty"`
	Error   string `json:"error,omitempty"`
}
