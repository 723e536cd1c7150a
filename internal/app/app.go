// Package app wires profiles to mailbox clients, storages and the download
// orchestrator, and runs them once or on a schedule.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/altafino/attachment-fetcher/internal/config"
	"github.com/altafino/attachment-fetcher/internal/credential"
	"github.com/altafino/attachment-fetcher/internal/download"
	"github.com/altafino/attachment-fetcher/internal/email"
	"github.com/altafino/attachment-fetcher/internal/email/attachment"
	"github.com/altafino/attachment-fetcher/internal/errorlog"
	"github.com/altafino/attachment-fetcher/internal/filter"
	"github.com/altafino/attachment-fetcher/internal/metrics"
	"github.com/altafino/attachment-fetcher/internal/models"
	"github.com/altafino/attachment-fetcher/internal/oauth2"
	"github.com/altafino/attachment-fetcher/internal/rename"
	"github.com/altafino/attachment-fetcher/internal/scheduler"
	"github.com/altafino/attachment-fetcher/internal/tracking"
	"github.com/altafino/attachment-fetcher/internal/types"
	goauth2 "golang.org/x/oauth2"
	"google.golang.org/api/option"
)

// ClientFactory builds the mailbox client of a profile.
type ClientFactory func(ctx context.Context, cfg *types.Config, opts email.Options, logger *slog.Logger) (email.Client, error)

// App represents the main application
type App struct {
	logger    *slog.Logger
	store     *config.Store
	creds     *credential.Store
	metrics   *metrics.Metrics
	newClient ClientFactory

	scheduler *scheduler.Scheduler
	watcher   *config.Watcher
	server    *metrics.Server
	wg        sync.WaitGroup
}

type Option func(*App)

// WithCredentials sets the keyring used for passwords and keyring token
// stores.
func WithCredentials(creds *credential.Store) Option {
	return func(a *App) { a.creds = creds }
}

// WithMetrics records every run in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithClientFactory replaces email.NewClient.
func WithClientFactory(f ClientFactory) Option {
	return func(a *App) { a.newClient = f }
}

// New creates a new application instance
func New(store *config.Store, logger *slog.Logger, opts ...Option) *App {
	a := &App{
		logger:    logger,
		store:     store,
		newClient: email.NewClient,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Store returns the loaded profiles.
func (a *App) Store() *config.Store { return a.store }

// RunOptions adjust a single run.
type RunOptions struct {
	DryRun bool
	// Reporter receives job events in addition to the log and metrics.
	Reporter download.Reporter
	// Concurrency and Destination override the profile when set.
	Concurrency int
	Destination string
}

// RunOnce runs the profile named id.
func (a *App) RunOnce(ctx context.Context, id string, opts RunOptions) (*models.Summary, error) {
	cfg, err := a.store.Get(id)
	if err != nil {
		return nil, err
	}
	return a.Run(ctx, cfg, opts)
}

// Preview lists what a run of the profile would download.
func (a *App) Preview(ctx context.Context, id string, opts RunOptions) (*models.Summary, error) {
	opts.DryRun = true
	return a.RunOnce(ctx, id, opts)
}

// Run executes one fetch run for cfg.
func (a *App) Run(ctx context.Context, cfg *types.Config, opts RunOptions) (*models.Summary, error) {
	if opts.Concurrency > 0 {
		cfg.Download.Concurrency = opts.Concurrency
	}
	if opts.Destination != "" {
		cfg.Download.Destination = opts.Destination
	}
	logger := a.logger.With("config_id", cfg.Meta.ID)

	criteria, err := filter.FromConfig(cfg.Filter)
	if err != nil {
		return nil, fmt.Errorf("invalid filter: %w", err)
	}
	rule, err := rename.RuleFromConfig(cfg.Rename)
	if err != nil {
		return nil, fmt.Errorf("invalid rename rule: %w", err)
	}

	tokens, err := a.tokenSource(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	password, err := a.creds.Password(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}

	client, err := a.newClient(ctx, cfg, email.Options{
		Password: password,
		Tokens:   tokens,
		Query:    criteria.Query(),
		PoolSize: cfg.Download.Concurrency,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create mailbox client: %w", err)
	}
	defer client.Close()

	storage, err := newStorage(ctx, cfg, tokens, logger)
	if err != nil {
		return nil, err
	}

	tracker, err := tracking.NewManager(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open tracking: %w", err)
	}
	defer tracker.Close()

	journal, err := errorlog.NewManager(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open error log: %w", err)
	}
	defer journal.Close()

	reporters := download.MultiReporter{download.NewLogReporter(logger), opts.Reporter}
	if a.metrics != nil {
		reporters = append(reporters, a.metrics)
	}

	orch := download.New(client, storage, download.SettingsFromConfig(cfg.Download), logger,
		download.WithTracker(tracker),
		download.WithJournal(journal),
		download.WithReporter(reporters),
	)

	summary, runErr := orch.Run(ctx, download.Request{
		Folders:  cfg.Folders,
		Criteria: criteria,
		Rule:     rule,
		DryRun:   opts.DryRun,
	})
	if a.metrics != nil && !opts.DryRun {
		a.metrics.ObserveRun(cfg.Meta.ID, summary, runErr)
	}
	if !opts.DryRun {
		if err := tracker.CleanupOldRecords(); err != nil {
			logger.Warn("failed to clean up tracking records", "error", err)
		}
		if err := journal.CleanupOldFailures(); err != nil {
			logger.Warn("failed to clean up error log", "error", err)
		}
	}
	return summary, runErr
}

// ListFolders returns the folders of the profile's mailbox.
func (a *App) ListFolders(ctx context.Context, id string) ([]string, error) {
	cfg, err := a.store.Get(id)
	if err != nil {
		return nil, err
	}
	logger := a.logger.With("config_id", cfg.Meta.ID)

	tokens, err := a.tokenSource(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	password, err := a.creds.Password(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}
	client, err := a.newClient(ctx, cfg, email.Options{Password: password, Tokens: tokens, PoolSize: 1}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create mailbox client: %w", err)
	}
	defer client.Close()

	lister, ok := client.(email.FolderLister)
	if !ok {
		return nil, fmt.Errorf("provider %s cannot list folders", cfg.Account.Provider)
	}
	return lister.ListFolders(ctx)
}

// TokenManager returns the OAuth2 token manager of a profile.
func (a *App) TokenManager(cfg *types.Config) (*oauth2.TokenManager, error) {
	if !cfg.Account.OAuth2.Enabled {
		return nil, fmt.Errorf("oauth2 is not enabled for config %s", cfg.Meta.ID)
	}
	conf, err := oauth2.ConfigFor(cfg.Account.OAuth2)
	if err != nil {
		return nil, err
	}
	store, err := a.TokenStore(cfg)
	if err != nil {
		return nil, err
	}
	return oauth2.NewTokenManager(conf, store, oauth2.AccountID(cfg), a.logger.With("config_id", cfg.Meta.ID))
}

// TokenStore returns where the profile's OAuth2 token is kept.
func (a *App) TokenStore(cfg *types.Config) (oauth2.TokenStore, error) {
	return oauth2.NewTokenStore(cfg.Account.OAuth2.TokenStore, cfg.Account.OAuth2.TokenStoragePath, a.creds)
}

func (a *App) tokenSource(ctx context.Context, cfg *types.Config, logger *slog.Logger) (goauth2.TokenSource, error) {
	if !cfg.Account.OAuth2.Enabled {
		return nil, nil
	}
	tm, err := a.TokenManager(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to set up oauth2: %w", err)
	}
	logger.Debug("using oauth2 token", "account", oauth2.AccountID(cfg))
	return tm.TokenSource(ctx), nil
}

func newStorage(ctx context.Context, cfg *types.Config, tokens goauth2.TokenSource, logger *slog.Logger) (attachment.AttachmentStorage, error) {
	if cfg.Storage.Type == string(attachment.StorageTypeGDrive) && cfg.Storage.CredentialsFile == "" && tokens != nil {
		storage, err := attachment.NewGDriveStorage(ctx, logger, cfg.Storage.ParentFolderID, "", option.WithTokenSource(tokens))
		if err != nil {
			return nil, fmt.Errorf("failed to create storage: %w", err)
		}
		return storage, nil
	}

	storage, err := attachment.NewStorage(ctx, attachment.StorageConfig{
		Type:            attachment.StorageType(cfg.Storage.Type),
		Root:            cfg.Download.Destination,
		CredentialsFile: cfg.Storage.CredentialsFile,
		ParentFolderID:  cfg.Storage.ParentFolderID,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage: %w", err)
	}
	return storage, nil
}

// ServeOptions configure Start.
type ServeOptions struct {
	// MetricsAddr enables the metrics endpoint when set.
	MetricsAddr string
	MetricsPath string
	// Watch reloads profiles when the config directory changes.
	Watch bool
}

// Start schedules every enabled profile and starts the optional metrics
// server and config watcher.
func (a *App) Start(ctx context.Context, opts ServeOptions) error {
	a.scheduler = scheduler.NewScheduler(func(ctx context.Context, cfg *types.Config) error {
		_, err := a.Run(ctx, cfg, RunOptions{})
		return err
	}, a.logger)

	if err := a.scheduler.Sync(a.store.Enabled()); err != nil {
		return fmt.Errorf("failed to schedule profiles: %w", err)
	}

	if opts.MetricsAddr != "" {
		if a.metrics == nil {
			a.metrics = metrics.New()
		}
		a.server = metrics.NewServer(a.metrics, opts.MetricsAddr, opts.MetricsPath, a.logger)
		if err := a.server.Start(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	if opts.Watch {
		watcher, err := config.Watch(a.store, a.logger)
		if err != nil {
			return fmt.Errorf("failed to start config watcher: %w", err)
		}
		a.watcher = watcher

		a.wg.Add(1)
		go a.watchConfigs()
	}

	a.scheduler.Start(ctx)
	a.logger.Info("scheduler started", "profiles", a.scheduler.JobIDs())
	return nil
}

// Stop gracefully stops all application services
func (a *App) Stop(ctx context.Context) error {
	var errs []error
	if a.watcher != nil {
		errs = append(errs, a.watcher.Stop())
	}
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if a.server != nil {
		errs = append(errs, a.server.Shutdown(ctx))
	}
	a.wg.Wait()
	return errors.Join(errs...)
}

func (a *App) watchConfigs() {
	defer a.wg.Done()

	for range a.watcher.ReloadChan() {
		a.logger.Info("rescheduling profiles due to configuration change")
		if err := a.scheduler.Sync(a.store.Enabled()); err != nil {
			a.logger.Error("failed to reschedule profiles", "error", err)
		}
	}
}
