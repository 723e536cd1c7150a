package tracking

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileStorage implements the Storage interface using the filesystem
type FileStorage struct {
	basePath    string
	recordsPath string
	mu          sync.RWMutex
	initialized bool
}

// NewFileStorage creates a new file-based storage
func NewFileStorage(basePath string) (*FileStorage, error) {
	if basePath == "" {
		return nil, fmt.Errorf("base path cannot be empty")
	}

	return &FileStorage{
		basePath:    basePath,
		recordsPath: filepath.Join(basePath, "attachment_records.json"),
	}, nil
}

// Initialize prepares the storage for use
func (fs *FileStorage) Initialize() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	// Create the base directory if it doesn't exist
	if err := os.MkdirAll(fs.basePath, 0755); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}

	// Create the records file if it doesn't exist
	if _, err := os.Stat(fs.recordsPath); os.IsNotExist(err) {
		// Create an empty records file
		if err := fs.saveRecords([]AttachmentRecord{}); err != nil {
			return fmt.Errorf("failed to create records file: %w", err)
		}
	}

	fs.initialized = true
	return nil
}

// Close cleans up any resources
func (fs *FileStorage) Close() error {
	// No resources to clean up for file storage
	return nil
}

// AddRecord adds a new attachment record, replacing one with the same key
func (fs *FileStorage) AddRecord(record AttachmentRecord) error {
	if !fs.initialized {
		return ErrStorageNotInitialized
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	// Load existing records
	records, err := fs.loadRecordsLocked()
	if err != nil {
		return err
	}

	replaced := false
	for i := range records {
		if records[i].Account == record.Account && records[i].Key == record.Key {
			records[i] = record
			replaced = true
		}
	}
	if !replaced {
		records = append(records, record)
	}

	// Save the updated records
	return fs.saveRecords(records)
}

// HasRecord checks if an attachment has already been downloaded
func (fs *FileStorage) HasRecord(account, key string) (bool, error) {
	if !fs.initialized {
		return false, ErrStorageNotInitialized
	}

	fs.mu.RLock()
	defer fs.mu.RUnlock()

	records, err := fs.loadRecordsLocked()
	if err != nil {
		return false, err
	}

	for _, record := range records {
		if record.Account == account && record.Key == key {
			return true, nil
		}
	}

	return false, nil
}

// GetRecords retrieves all attachment records, optionally filtered
func (fs *FileStorage) GetRecords(filter map[string]string) ([]AttachmentRecord, error) {
	if !fs.initialized {
		return nil, ErrStorageNotInitialized
	}

	fs.mu.RLock()
	defer fs.mu.RUnlock()

	records, err := fs.loadRecordsLocked()
	if err != nil {
		return nil, err
	}

	if len(filter) == 0 {
		return records, nil
	}

	var filteredRecords []AttachmentRecord
	for _, record := range records {
		if matchesFilter(record, filter) {
			filteredRecords = append(filteredRecords, record)
		}
	}

	return filteredRecords, nil
}

// CleanupOldRecords removes records older than the specified retention period
func (fs *FileStorage) CleanupOldRecords(retentionDays int) error {
	if !fs.initialized {
		return ErrStorageNotInitialized
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	records, err := fs.loadRecordsLocked()
	if err != nil {
		return err
	}

	cutoffTime := time.Now().AddDate(0, 0, -retentionDays)
	newRecords := []AttachmentRecord{}

	for _, record := range records {
		if record.DownloadedAt.After(cutoffTime) {
			newRecords = append(newRecords, record)
		}
	}

	return fs.saveRecords(newRecords)
}

// loadRecordsLocked loads all records from the file (assumes lock is held)
func (fs *FileStorage) loadRecordsLocked() ([]AttachmentRecord, error) {
	data, err := os.ReadFile(fs.recordsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read records file: %w", err)
	}

	// Handle empty file case
	if len(data) == 0 {
		return []AttachmentRecord{}, nil
	}

	var records []AttachmentRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse records file: %w", err)
	}

	return records, nil
}

// saveRecords saves all records to the file
func (fs *FileStorage) saveRecords(records []AttachmentRecord) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize records: %w", err)
	}

	tmp := fs.recordsPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write records file: %w", err)
	}
	if err := os.Rename(tmp, fs.recordsPath); err != nil {
		return fmt.Errorf("failed to replace records file: %w", err)
	}

	return nil
} 