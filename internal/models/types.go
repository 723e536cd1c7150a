package models

import "time"

// Message is a snapshot of a remote message taken from one listing page.
type Message struct {
	ID          string
	Folder      string
	Sender      string
	Subject     string
	Date        time.Time
	Attachments []Attachment
}

// Attachment is attachment metadata. Content is only fetched when a job runs.
type Attachment struct {
	MessageID string
	Filename  string
	MimeType  string
	// Size in bytes, -1 when the provider does not report it.
	Size int64
	// Handle is the provider specific fetch handle.
	Handle string

	Folder  string
	Sender  string
	Subject string
	Date    time.Time
}

// AttachmentsOf copies the parent metadata onto every attachment of msg.
func AttachmentsOf(msg Message) []Attachment {
	out := make([]Attachment, 0, len(msg.Attachments))
	for _, a := range msg.Attachments {
		a.MessageID = msg.ID
		a.Folder = msg.Folder
		a.Sender = msg.Sender
		a.Subject = msg.Subject
		a.Date = msg.Date
		out = append(out, a)
	}
	return out
}

type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusInProgress JobStatus = "in-progress"
	StatusDone       JobStatus = "done"
	StatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s JobStatus) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// Event is a progress notification for one job.
type Event struct {
	JobID    string
	Status   JobStatus
	Time     time.Time
	Attempt  int
	Filename string
	// Bytes written, set on done events.
	Bytes int64
	Err   error
}

// Summary is the result of a run.
type Summary struct {
	RunID    string
	Messages int
	Matched  int
	Done     int
	Failed   int
	Skipped  int
	Bytes    int64
	Canceled bool
	Started  time.Time
	Duration time.Duration
	Jobs     []JobResult
}

// JobResult is the final, read-only view of a job.
type JobResult struct {
	ID          string
	MessageID   string
	Filename    string
	Destination string
	Location    string
	Status      JobStatus
	Attempts    int
	Retries     int
	Size        int64
	Bytes       int64
	Error       string
}

// Query is a server-side narrowing hint derived from the filter. Providers
// may ignore it; the filter is always re-applied to what they return.
type Query struct {
	Since   time.Time
	Before  time.Time
	From    string
	Subject string
}

// IsZero reports whether the query narrows nothing.
func (q Query) IsZero() bool {
	return q.Since.IsZero() && q.Before.IsZero() && q.From == "" && q.Subject == ""
}
