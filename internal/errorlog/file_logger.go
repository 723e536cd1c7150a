package errorlog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const dateLayout = "2006-01-02"

// FileLogger implements the Logger interface using the filesystem. Each
// profile gets one JSON array per UTC day.
type FileLogger struct {
	logger        *slog.Logger
	storagePath   string
	retentionDays int
	now           func() time.Time
	mu            sync.Mutex
}

// NewFileLogger creates a new file-based failure journal
func NewFileLogger(storagePath string, retentionDays int, logger *slog.Logger) (*FileLogger, error) {
	if err := os.MkdirAll(storagePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create error log directory: %w", err)
	}

	return &FileLogger{
		logger:        logger,
		storagePath:   storagePath,
		retentionDays: retentionDays,
		now:           func() time.Time { return time.Now().UTC() },
	}, nil
}

// LogFailure appends a failure to the file of the current day
func (f *FileLogger) LogFailure(failure JobFailure) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if failure.ID == "" {
		failure.ID = uuid.New().String()
	}
	if failure.ErrorTime.IsZero() {
		failure.ErrorTime = f.now()
	}

	configID := failure.ConfigID
	if configID == "" {
		configID = "default"
	}
	filename := fmt.Sprintf("failures_%s_%s.json", configID, f.now().Format(dateLayout))
	filePath := filepath.Join(f.storagePath, filename)

	var failures []JobFailure
	data, err := os.ReadFile(filePath)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &failures); err != nil {
			f.logger.Warn("error log file exists but couldn't be parsed, creating new file",
				"file", filePath,
				"error", err)
			failures = nil
		}
	case !os.IsNotExist(err):
		return fmt.Errorf("failed to read error log file: %w", err)
	}

	failures = append(failures, failure)

	data, err = json.MarshalIndent(failures, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal error log: %w", err)
	}
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write error log file: %w", err)
	}

	f.logger.Debug("logged job failure",
		"failure_id", failure.ID,
		"job_id", failure.JobID,
		"filename", failure.Filename,
		"error_type", failure.ErrorType,
		"file", filePath)

	return nil
}

// GetFailures retrieves failures based on filters
func (f *FileLogger) GetFailures(filters map[string]string) ([]JobFailure, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	files, err := os.ReadDir(f.storagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read error log directory: %w", err)
	}

	var result []JobFailure
	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".json" {
			continue
		}

		filePath := filepath.Join(f.storagePath, file.Name())
		data, err := os.ReadFile(filePath)
		if err != nil {
			f.logger.Warn("failed to read error log file", "file", filePath, "error", err)
			continue
		}

		var failures []JobFailure
		if err := json.Unmarshal(data, &failures); err != nil {
			f.logger.Warn("failed to parse error log file", "file", filePath, "error", err)
			continue
		}

		for _, failure := range failures {
			if matchesFilters(failure, filters) {
				result = append(result, failure)
			}
		}
	}

	return result, nil
}

func matchesFilters(f JobFailure, filters map[string]string) bool {
	for key, value := range filters {
		var field string
		switch key {
		case "config_id":
			field = f.ConfigID
		case "run_id":
			field = f.RunID
		case "provider":
			field = f.Provider
		case "folder":
			field = f.Folder
		case "message_id":
			field = f.MessageID
		case "error_type":
			field = f.ErrorType
		default:
			continue
		}
		if field != value {
			return false
		}
	}
	return true
}

// CleanupOldFailures removes day files older than the retention period
func (f *FileLogger) CleanupOldFailures() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	retentionDays := f.retentionDays
	if retentionDays <= 0 {
		retentionDays = 30
	}
	cutoff := f.now().AddDate(0, 0, -retentionDays)

	files, err := os.ReadDir(f.storagePath)
	if err != nil {
		return fmt.Errorf("failed to read error log directory: %w", err)
	}

	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".json" {
			continue
		}

		fileDate, ok := dateFromFilename(file.Name())
		if !ok {
			info, err := file.Info()
			if err != nil {
				f.logger.Warn("failed to get file info", "file", file.Name(), "error", err)
				continue
			}
			fileDate = info.ModTime()
		}

		if fileDate.Before(cutoff) {
			filePath := filepath.Join(f.storagePath, file.Name())
			if err := os.Remove(filePath); err != nil {
				f.logger.Warn("failed to delete old error log file", "file", filePath, "error", err)
				continue
			}
			f.logger.Debug("deleted old error log file", "file", filePath, "date", fileDate.Format(dateLayout))
		}
	}

	return nil
}

// dateFromFilename reads the trailing date of failures_<config>_<date>.json.
func dateFromFilename(name string) (time.Time, bool) {
	base := strings.TrimSuffix(name, ".json")
	if len(base) < len(dateLayout) {
		return time.Time{}, false
	}
	t, err := time.Parse(dateLayout, base[len(base)-len(dateLayout):])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Close implements the Logger interface
func (f *FileLogger) Close() error {
	return nil
}
