package entity

import "time"

// ScanStatus is the lifecycle state of a scan job. The wire value is the
// lowercase string stored in Redis and returned to polling clients.
type ScanStatus string

const (
	StatusUploading     ScanStatus = "uploading"
	StatusProcessing    ScanStatus = "processing"
	StatusCompleted     ScanStatus = "completed"
	StatusFailed        ScanStatus = "failed"
	StatusTriggerFailed ScanStatus = "trigger_failed"
)

// IsTerminal reports whether the status has no outgoing transitions.
func (s ScanStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusTriggerFailed:
		return true
	}
	return false
}

// CanTransitionTo reports whether next is a legal successor of s.
// uploading -> processing | trigger_failed; processing -> completed | failed.
func (s ScanStatus) CanTransitionTo(next ScanStatus) bool {
	switch s {
	case StatusUploading:
		return next == StatusProcessing || next == StatusTriggerFailed
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed
	}
	return false
}

// ResultSummary is the abbreviated payload kept on the primary record so the
// record stays under the store's per-entry size ceiling.
type ResultSummary struct {
	ItemCount int      `json:"item_count"`
	ItemNames []string `json:"item_names"`
	ImageURL  string   `json:"image_url"`
	Truncated bool     `json:"truncated,omitempty"`
	Notice    string   `json:"notice,omitempty"`
}

// ScanJob is the primary job record. JobID is assigned once at submission and
// never reused; the raw image bytes are never stored here, only ImageURL.
type ScanJob struct {
	JobID         string         `json:"job_id"`
	Status        ScanStatus     `json:"status"`
	RequestID     string         `json:"request_id"`
	ImageURL      string         `json:"image_url"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
	Error         string         `json:"error,omitempty"`
	ResultSummary *ResultSummary `json:"result_summary,omitempty"`
}

// ScanJobPatch carries a partial update. Nil fields are left untouched so
// concurrent partial writers cannot clobber unrelated fields.
type ScanJobPatch struct {
	Status        *ScanStatus
	Error         *string
	CompletedAt   *time.Time
	ResultSummary *ResultSummary
}

// ScanDetail is the secondary record holding the full item array. It is
// written only when a job reaches completed and shares the primary key's TTL.
type ScanDetail struct {
	JobID string `json:"job_id"`
	Items []Item `json:"items"`
}
