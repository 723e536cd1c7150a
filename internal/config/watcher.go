package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a Store when files under its directory change.
type Watcher struct {
	watcher    *fsnotify.Watcher
	store      *Store
	logger     *slog.Logger
	reloadChan chan struct{}

	mu   sync.Mutex
	done chan struct{}
}

// Watch starts watching the store's directory and its subdirectories
func Watch(store *Store, logger *slog.Logger) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	cw := &Watcher{
		watcher:    watcher,
		store:      store,
		logger:     logger,
		reloadChan: make(chan struct{}, 1),
		done:       make(chan struct{}),
	}

	if err := filepath.Walk(store.Dir(), func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return watcher.Add(path)
		}
		return nil
	}); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch config directory: %w", err)
	}

	go cw.watch()
	return cw, nil
}

// ReloadChan receives a value after each successful reload. It is closed
// by Stop.
func (cw *Watcher) ReloadChan() <-chan struct{} {
	return cw.reloadChan
}

func (cw *Watcher) watch() {
	defer close(cw.done)
	defer close(cw.reloadChan)
	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}

			// Skip temporary files and non-yaml files
			if strings.HasPrefix(filepath.Base(event.Name), ".") ||
				!strings.HasSuffix(event.Name, ".yaml") {
				continue
			}

			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) {
				cw.handleConfigChange(event.Name)
			}

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.logger.Error("watcher error", "error", err)
		}
	}
}

func (cw *Watcher) handleConfigChange(path string) {
	cw.logger.Info("detected configuration change", "path", path)

	if err := cw.store.Reload(); err != nil {
		cw.logger.Error("failed to reload configurations",
			"error", err,
			"path", path,
		)
		return
	}

	cw.logger.Info("configurations reloaded successfully", "profiles", len(cw.store.List()))

	select {
	case cw.reloadChan <- struct{}{}:
	default:
		// a reload is already pending
	}
}

// Stop closes the underlying watcher and waits for the event loop to exit
func (cw *Watcher) Stop() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if cw.watcher == nil {
		return nil
	}
	err := cw.watcher.Close()
	<-cw.done
	cw.watcher = nil
	if err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}
