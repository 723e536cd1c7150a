package tracking

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"github.com/altafino/attachment-fetcher/internal/models"
)

// AttachmentRecord represents a record of a downloaded attachment
type AttachmentRecord struct {
	Key          string    `json:"key" db:"key"`
	Account      string    `json:"account" db:"account"`
	Folder       string    `json:"folder" db:"folder"`
	MessageID    string    `json:"message_id" db:"message_id"`
	Filename     string    `json:"filename" db:"filename"`
	Subject      string    `json:"subject,omitempty" db:"subject"`
	Location     string    `json:"location" db:"location"`
	Size         int64     `json:"size" db:"size"`
	DownloadedAt time.Time `json:"downloaded_at" db:"downloaded_at"`
}

// Storage defines the interface for tracking downloaded attachments
type Storage interface {
	// Initialize prepares the storage for use
	Initialize() error

	// Close cleans up any resources used by the storage
	Close() error

	// AddRecord adds a new attachment record to the storage
	AddRecord(record AttachmentRecord) error

	// HasRecord checks if the attachment with key was already downloaded
	HasRecord(account, key string) (bool, error)

	// GetRecords retrieves all records, optionally filtered by account,
	// folder or message_id
	GetRecords(filter map[string]string) ([]AttachmentRecord, error)

	// CleanupOldRecords removes records older than the specified retention period
	CleanupOldRecords(retentionDays int) error
}

// NewStorage creates a new storage implementation based on the specified type
func NewStorage(storageType, storagePath string) (Storage, error) {
	switch storageType {
	case "file", "":
		return NewFileStorage(storagePath)
	case "sqlite":
		return NewSQLiteStorage(storagePath)
	default:
		return nil, ErrUnsupportedStorageType
	}
}

// Common errors
var (
	ErrUnsupportedStorageType = errors.New("unsupported storage type")
	ErrStorageNotInitialized  = errors.New("storage not initialized")
)

// AttachmentKey identifies an attachment across runs. Provider handles are
// not stable for every protocol, so the key uses message level identity.
func AttachmentKey(a models.Attachment) string {
	h := sha256.New()
	for _, part := range []string{a.Folder, a.MessageID, a.Filename, strconv.FormatInt(a.Size, 10)} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)[:16])
}

func matchesFilter(r AttachmentRecord, filter map[string]string) bool {
	for key, value := range filter {
		switch key {
		case "account":
			if r.Account != value {
				return false
			}
		case "folder":
			if r.Folder != value {
				return false
			}
		case "message_id":
			if r.MessageID != value {
				return false
			}
		}
	}
	return true
}
