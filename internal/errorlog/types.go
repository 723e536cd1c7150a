package errorlog

import (
	"time"
)

// JobFailure represents a download job that ended in the failed state
type JobFailure struct {
	ID          string    `json:"id"`
	ConfigID    string    `json:"config_id"`
	RunID       string    `json:"run_id"`
	JobID       string    `json:"job_id"`
	Provider    string    `json:"provider"`
	Username    string    `json:"username"`
	Folder      string    `json:"folder"`
	MessageID   string    `json:"message_id"`
	Sender      string    `json:"sender"`
	Subject     string    `json:"subject"`
	Filename    string    `json:"filename"`
	Destination string    `json:"destination"`
	Attempts    int       `json:"attempts"`
	SentAt      time.Time `json:"sent_at"`
	ErrorTime   time.Time `json:"error_time"`
	ErrorType   string    `json:"error_type"`
	ErrorMsg    string    `json:"error_message"`
}

// Logger defines the interface for failed job journaling
type Logger interface {
	// LogFailure records a failed job
	LogFailure(f JobFailure) error

	// GetFailures retrieves failures based on filters
	GetFailures(filters map[string]string) ([]JobFailure, error)

	// CleanupOldFailures removes failures older than the retention period
	CleanupOldFailures() error

	// Close releases any resources used by the logger
	Close() error
}
