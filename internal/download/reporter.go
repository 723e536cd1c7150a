package download

import (
	"log/slog"

	"github.com/altafino/attachment-fetcher/internal/models"
)

// Reporter receives progress events. Report is called from the producer
// and from every worker, so implementations must be safe for concurrent use.
type Reporter interface {
	Report(e models.Event)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(e models.Event)

func (f ReporterFunc) Report(e models.Event) { f(e) }

// ChannelReporter forwards events to a channel. Sends block, so the
// receiver must keep draining until Run returns.
type ChannelReporter struct {
	ch chan<- models.Event
}

func NewChannelReporter(ch chan<- models.Event) *ChannelReporter {
	return &ChannelReporter{ch: ch}
}

func (r *ChannelReporter) Report(e models.Event) {
	r.ch <- e
}

// LogReporter writes events to a structured logger.
type LogReporter struct {
	logger *slog.Logger
}

func NewLogReporter(logger *slog.Logger) *LogReporter {
	return &LogReporter{logger: logger}
}

func (r *LogReporter) Report(e models.Event) {
	attrs := []any{
		"job_id", e.JobID,
		"status", e.Status,
		"filename", e.Filename,
	}
	switch e.Status {
	case models.StatusFailed:
		r.logger.Warn("download failed", append(attrs, "attempt", e.Attempt, "error", e.Err)...)
	case models.StatusDone:
		r.logger.Info("download complete", append(attrs, "attempt", e.Attempt, "bytes", e.Bytes)...)
	default:
		r.logger.Debug("download job update", attrs...)
	}
}

// MultiReporter fans an event out to several reporters in order.
type MultiReporter []Reporter

func (m MultiReporter) Report(e models.Event) {
	for _, r := range m {
		if r != nil {
			r.Report(e)
		}
	}
}

type nopReporter struct{}

func (nopReporter) Report(models.Event) {}
