package download

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/altafino/attachment-fetcher/internal/email"
	"github.com/altafino/attachment-fetcher/internal/email/attachment"
	"github.com/altafino/attachment-fetcher/internal/filter"
	"github.com/altafino/attachment-fetcher/internal/models"
	"github.com/altafino/attachment-fetcher/internal/rename"
	"github.com/altafino/attachment-fetcher/internal/types"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	defaultConcurrency   = 4
	defaultShutdownGrace = 10 * time.Second
	// maxResolveTries bounds how many names are tried past files that
	// already exist in the destination.
	maxResolveTries = 1000
)

// Limiter gates provider calls.
type Limiter interface {
	Wait(ctx context.Context) error
}

// Tracker remembers attachments downloaded by earlier runs.
type Tracker interface {
	IsDownloaded(ctx context.Context, a models.Attachment) (bool, error)
	MarkDownloaded(ctx context.Context, a models.Attachment, location string) error
}

// Journal records failed jobs.
type Journal interface {
	LogJobFailure(runID string, job models.JobResult, a models.Attachment, err error) error
}

// Settings tune the worker pool.
type Settings struct {
	Concurrency int
	// RateLimit is provider requests per second, 0 for unlimited.
	RateLimit float64
	Retry     RetryPolicy
	// JobTimeout bounds a single fetch attempt, 0 for none.
	JobTimeout time.Duration
	// ShutdownGrace is how long in-flight jobs may run after cancellation.
	ShutdownGrace time.Duration
}

// SettingsFromConfig converts the download section of a profile.
func SettingsFromConfig(cfg types.DownloadConfig) Settings {
	return Settings{
		Concurrency: cfg.Concurrency,
		RateLimit:   cfg.RateLimit,
		Retry: RetryPolicy{
			MaxAttempts:  cfg.Retry.MaxAttempts,
			InitialDelay: time.Duration(cfg.Retry.InitialDelayMs) * time.Millisecond,
			MaxDelay:     time.Duration(cfg.Retry.MaxDelayMs) * time.Millisecond,
		},
		JobTimeout:    time.Duration(cfg.JobTimeout) * time.Second,
		ShutdownGrace: time.Duration(cfg.ShutdownGrace) * time.Second,
	}
}

// Request describes one run.
type Request struct {
	// Folders are scanned in order; empty means INBOX.
	Folders  []string
	Criteria filter.Criteria
	Rule     rename.Rule
	// Destination is a directory relative to the storage root that every
	// resolved name is placed under.
	Destination string
	// DryRun resolves jobs without fetching or writing anything.
	DryRun bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithTracker(t Tracker) Option {
	return func(o *Orchestrator) { o.tracker = t }
}

func WithJournal(j Journal) Option {
	return func(o *Orchestrator) { o.journal = j }
}

func WithReporter(r Reporter) Option {
	return func(o *Orchestrator) { o.reporter = r }
}

func WithLimiter(l Limiter) Option {
	return func(o *Orchestrator) { o.limiter = l }
}

// Orchestrator turns a mailbox listing into download jobs and runs them on a
// bounded worker pool.
type Orchestrator struct {
	client   email.Client
	storage  attachment.AttachmentStorage
	settings Settings
	logger   *slog.Logger

	tracker  Tracker
	journal  Journal
	reporter Reporter
	limiter  Limiter
}

func New(client email.Client, storage attachment.AttachmentStorage, settings Settings, logger *slog.Logger, opts ...Option) *Orchestrator {
	if settings.Concurrency <= 0 {
		settings.Concurrency = defaultConcurrency
	}
	if settings.ShutdownGrace <= 0 {
		settings.ShutdownGrace = defaultShutdownGrace
	}
	settings.Retry = settings.Retry.withDefaults()

	o := &Orchestrator{
		client:   client,
		storage:  storage,
		settings: settings,
		logger:   logger,
		reporter: nopReporter{},
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.limiter == nil {
		o.limiter = newRateLimiter(settings.RateLimit)
	}
	return o
}

func newRateLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(perSecond), max(1, int(perSecond)))
}

// run is the state of one Run call. Only the producer goroutine touches
// names, jobs and the counters.
type run struct {
	id      string
	req     Request
	names   *rename.NameSet
	jobs    []*Job
	summary *models.Summary
	logger  *slog.Logger
}

// Run lists every folder, queues a job for each matching attachment and
// waits for the jobs to finish. Job failures are reported in the summary and
// never fail the run; an error is returned only when listing fails for
// good, for example on an AuthError. The summary is returned in every case.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*models.Summary, error) {
	if err := req.Rule.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rename rule: %w", err)
	}
	folders := req.Folders
	if len(folders) == 0 {
		folders = []string{"INBOX"}
	}

	r := &run{
		id:    uuid.New().String(),
		req:   req,
		names: rename.NewNameSet(),
		summary: &models.Summary{
			Started: time.Now(),
		},
	}
	r.summary.RunID = r.id
	r.logger = o.logger.With("run_id", r.id)
	r.logger.Info("starting download run",
		"folders", folders,
		"concurrency", o.settings.Concurrency,
		"dry_run", req.DryRun)

	var listErr error
	if req.DryRun {
		listErr = o.produce(ctx, r, folders, nil)
	} else {
		listErr = o.runPool(ctx, r, folders)
	}

	o.finish(ctx, r)

	if listErr != nil {
		r.logger.Error("download run aborted", "error", listErr)
		return r.summary, listErr
	}
	return r.summary, nil
}

// runPool starts the workers, feeds them from the producer and waits for
// every handed over job to finish. Workers run on a context detached from
// ctx that is canceled ShutdownGrace after ctx is.
func (o *Orchestrator) runPool(ctx context.Context, r *run, folders []string) error {
	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWork()

	stopGrace := context.AfterFunc(ctx, func() {
		time.AfterFunc(o.settings.ShutdownGrace, cancelWork)
	})
	defer stopGrace()

	queue := make(chan *Job)
	var g errgroup.Group
	for range o.settings.Concurrency {
		g.Go(func() error {
			for job := range queue {
				o.process(workCtx, r, job)
			}
			return nil
		})
	}

	err := o.produce(ctx, r, folders, queue)
	close(queue)
	_ = g.Wait()
	return err
}

// produce walks the folders page by page. With a nil queue jobs stay
// pending.
func (o *Orchestrator) produce(ctx context.Context, r *run, folders []string, queue chan<- *Job) error {
	for _, folder := range folders {
		token := ""
		for {
			if ctx.Err() != nil {
				return nil
			}

			page, err := o.listPage(ctx, r, folder, token)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("failed to list folder %s: %w", folder, err)
			}

			r.summary.Messages += len(page.Messages)
			for _, msg := range page.Messages {
				for _, a := range models.AttachmentsOf(msg) {
					if !o.enqueue(ctx, r, a, queue) {
						return nil
					}
				}
			}

			if page.NextPageToken == "" {
				break
			}
			token = page.NextPageToken
		}
	}
	return nil
}

func (o *Orchestrator) listPage(ctx context.Context, r *run, folder, token string) (email.Page, error) {
	attempt := 0
	return withRetry(ctx, o.settings.Retry, func(err error, wait time.Duration) {
		r.logger.Warn("listing failed, retrying",
			"folder", folder,
			"attempt", attempt,
			"wait", wait,
			"error", err)
	}, func() (email.Page, error) {
		attempt++
		if err := o.limiter.Wait(ctx); err != nil {
			return email.Page{}, err
		}
		return o.client.ListMessages(ctx, folder, token)
	})
}

// enqueue filters, names and hands over one attachment. It returns false
// once ctx is canceled.
func (o *Orchestrator) enqueue(ctx context.Context, r *run, a models.Attachment, queue chan<- *Job) bool {
	if !filter.Matches(a, r.req.Criteria) {
		r.logger.Debug("attachment filtered out",
			"message_id", a.MessageID,
			"filename", a.Filename,
			"predicate", filter.Explain(a, r.req.Criteria))
		return true
	}
	r.summary.Matched++

	if o.tracker != nil {
		downloaded, err := o.tracker.IsDownloaded(ctx, a)
		if err != nil {
			r.logger.Warn("failed to check download history", "message_id", a.MessageID, "error", err)
		} else if downloaded {
			r.summary.Skipped++
			r.logger.Debug("attachment already downloaded", "message_id", a.MessageID, "filename", a.Filename)
			return true
		}
	}

	job := newJob(a, o.resolve(ctx, r, a))
	r.jobs = append(r.jobs, job)
	o.reporter.Report(job.event(0))

	if queue == nil {
		return true
	}

	select {
	case queue <- job:
		return true
	case <-ctx.Done():
		o.failJob(r, job, ctx.Err())
		return false
	}
}

// resolve picks a destination that is unique within the run and, when the
// storage can tell, not already present.
func (o *Orchestrator) resolve(ctx context.Context, r *run, a models.Attachment) string {
	exister, _ := o.storage.(attachment.Exister)

	var target string
	for range maxResolveTries {
		target = path.Join(r.req.Destination, rename.ResolveName(a, r.req.Rule, r.names))
		if exister == nil {
			return target
		}
		exists, err := exister.Exists(ctx, target)
		if err != nil {
			r.logger.Warn("failed to check destination", "path", target, "error", err)
			return target
		}
		if !exists {
			return target
		}
	}
	return target
}

func (o *Orchestrator) process(ctx context.Context, r *run, job *Job) {
	if err := job.start(); err != nil {
		r.logger.Error("failed to start job", "job_id", job.ID, "error", err)
		return
	}
	o.reporter.Report(job.event(1))

	content, err := o.fetch(ctx, r, job)
	if err != nil {
		o.failJob(r, job, err)
		return
	}

	location, err := o.storage.Save(ctx, job.Destination, content)
	if err != nil {
		o.failJob(r, job, err)
		return
	}

	if err := job.complete(location, int64(len(content))); err != nil {
		r.logger.Error("failed to complete job", "job_id", job.ID, "error", err)
		return
	}
	o.reporter.Report(job.event(job.Result().Attempts))

	if o.tracker != nil {
		if err := o.tracker.MarkDownloaded(ctx, job.Attachment, location); err != nil {
			r.logger.Warn("failed to record download", "job_id", job.ID, "error", err)
		}
	}
}

// fetch downloads the content with retries. JobTimeout bounds each attempt;
// an attempt that times out while the run is still live counts as a
// transient failure.
func (o *Orchestrator) fetch(ctx context.Context, r *run, job *Job) ([]byte, error) {
	return withRetry(ctx, o.settings.Retry, func(err error, wait time.Duration) {
		r.logger.Debug("fetch failed, retrying",
			"job_id", job.ID,
			"wait", wait,
			"error", err)
		e := job.event(job.Result().Attempts)
		e.Err = err
		o.reporter.Report(e)
	}, func() ([]byte, error) {
		job.addAttempt()
		if err := o.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		attemptCtx := ctx
		if o.settings.JobTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, o.settings.JobTimeout)
			defer cancel()
		}

		content, err := o.client.FetchAttachmentContent(attemptCtx, job.Attachment)
		if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			err = &email.TransientNetworkError{Provider: "attempt timeout", Err: err}
		}
		return content, err
	})
}

func (o *Orchestrator) failJob(r *run, job *Job, err error) {
	if e := job.fail(err); e != nil {
		r.logger.Error("failed to fail job", "job_id", job.ID, "error", e)
		return
	}
	result := job.Result()
	r.logger.Warn("download job failed",
		"job_id", job.ID,
		"message_id", job.Attachment.MessageID,
		"filename", job.Attachment.Filename,
		"attempts", result.Attempts,
		"error", err)
	o.reporter.Report(job.event(result.Attempts))

	if o.journal != nil {
		if e := o.journal.LogJobFailure(r.id, result, job.Attachment, err); e != nil {
			r.logger.Warn("failed to journal job failure", "job_id", job.ID, "error", e)
		}
	}
}

func (o *Orchestrator) finish(ctx context.Context, r *run) {
	s := r.summary
	s.Canceled = ctx.Err() != nil
	s.Duration = time.Since(s.Started)
	for _, job := range r.jobs {
		res := job.Result()
		s.Jobs = append(s.Jobs, res)
		switch res.Status {
		case models.StatusDone:
			s.Done++
			s.Bytes += res.Bytes
		case models.StatusFailed:
			s.Failed++
		case models.StatusPending:
			if r.req.DryRun && res.Size > 0 {
				s.Bytes += res.Size
			}
		}
	}

	r.logger.Info("download run finished",
		"messages", s.Messages,
		"matched", s.Matched,
		"done", s.Done,
		"failed", s.Failed,
		"skipped", s.Skipped,
		"bytes", s.Bytes,
		"canceled", s.Canceled,
		"duration", s.Duration)
}
