package dto

import "github.com/vinolens/vinolens-analyzer/entity"

// SubmitScanRequest carries the image as a base64 string or data-URL.
type SubmitScanRequest struct {
	Image     string `json:"image" binding:"required"`
	RequestID string `json:"request_id"`
}

type SubmitScanResponse struct {
	JobID     string `json:"job_id"`
	Status    string `json:"status"`
	RequestID string `json:"request_id"`
	Message   string `json:"message,omitempty"`
}

// ScanStatusResponse is the normalized polling envelope.
type ScanStatusResponse struct {
	Status string    `json:"status"`
	Data   *ScanData `json:"data,omitempty"`
	Error  string    `json:"error,omitempty"`
}

type ScanData struct {
	Items    []entity.Item `json:"items"`
	ImageURL string        `json:"image_url,omitempty"`
	Error    string        `json:"error,omitempty"`
}
