package tracking

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

type migration struct {
	version int
	sql     string
}

var migrations = []migration{
	{
		version: 1,
		sql: `
			CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL);
			CREATE TABLE IF NOT EXISTS downloaded_attachments (
				account       TEXT NOT NULL,
				key           TEXT NOT NULL,
				folder        TEXT NOT NULL DEFAULT '',
				message_id    TEXT NOT NULL DEFAULT '',
				filename      TEXT NOT NULL DEFAULT '',
				subject       TEXT NOT NULL DEFAULT '',
				location      TEXT NOT NULL DEFAULT '',
				size          INTEGER NOT NULL DEFAULT 0,
				downloaded_at TIMESTAMP NOT NULL,
				PRIMARY KEY (account, key)
			);
			CREATE INDEX IF NOT EXISTS idx_downloaded_at ON downloaded_attachments (downloaded_at);
			INSERT INTO schema_version (version) VALUES (1);`,
	},
}

// SQLiteStorage implements the Storage interface on a SQLite database.
type SQLiteStorage struct {
	dbPath string
	db     *sqlx.DB
}

// NewSQLiteStorage creates a storage backed by dbPath. A directory path gets
// a tracking.db file inside it.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if !strings.HasSuffix(dbPath, ".db") && !strings.HasSuffix(dbPath, ".sqlite") {
		dbPath = filepath.Join(dbPath, "tracking.db")
	}
	return &SQLiteStorage{dbPath: dbPath}, nil
}

// Initialize opens the database and applies pending migrations.
func (s *SQLiteStorage) Initialize() error {
	if err := os.MkdirAll(filepath.Dir(s.dbPath), 0755); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}

	db, err := sqlx.Open("sqlite", s.dbPath)
	if err != nil {
		return fmt.Errorf("opening sqlite db: %w", err)
	}
	// Workers record downloads concurrently; one connection serializes writes.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return fmt.Errorf("enabling WAL mode: %w", err)
	}

	s.db = db
	if err := s.runMigrations(); err != nil {
		db.Close()
		s.db = nil
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'")
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}
	if tableCount > 0 {
		if err := s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version"); err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}
	return nil
}

func (s *SQLiteStorage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStorage) AddRecord(record AttachmentRecord) error {
	if s.db == nil {
		return ErrStorageNotInitialized
	}
	_, err := s.db.NamedExec(`
		INSERT OR REPLACE INTO downloaded_attachments
			(account, key, folder, message_id, filename, subject, location, size, downloaded_at)
		VALUES
			(:account, :key, :folder, :message_id, :filename, :subject, :location, :size, :downloaded_at)`,
		record)
	if err != nil {
		return fmt.Errorf("inserting record: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) HasRecord(account, key string) (bool, error) {
	if s.db == nil {
		return false, ErrStorageNotInitialized
	}
	var exists bool
	err := s.db.Get(&exists,
		"SELECT EXISTS(SELECT 1 FROM downloaded_attachments WHERE account = ? AND key = ?)",
		account, key)
	if err != nil {
		return false, fmt.Errorf("querying record: %w", err)
	}
	return exists, nil
}

func (s *SQLiteStorage) GetRecords(filter map[string]string) ([]AttachmentRecord, error) {
	if s.db == nil {
		return nil, ErrStorageNotInitialized
	}

	query := "SELECT account, key, folder, message_id, filename, subject, location, size, downloaded_at FROM downloaded_attachments"
	var (
		where []string
		args  []any
	)
	for _, col := range []string{"account", "folder", "message_id"} {
		if v, ok := filter[col]; ok {
			where = append(where, col+" = ?")
			args = append(args, v)
		}
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY downloaded_at"

	records := []AttachmentRecord{}
	if err := s.db.Select(&records, query, args...); err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	return records, nil
}

func (s *SQLiteStorage) CleanupOldRecords(retentionDays int) error {
	if s.db == nil {
		return ErrStorageNotInitialized
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	if _, err := s.db.Exec("DELETE FROM downloaded_attachments WHERE downloaded_at < ?", cutoff); err != nil {
		return fmt.Errorf("deleting old records: %w", err)
	}
	return nil
}
