package tracker

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	scouterrors "github.com/docscout/docscout/internal/errors"
)

// SQLiteStore is the durable RevisionStore. WAL mode and a single-writer
// connection pool follow the same pattern as the bleve index wrapper: the
// orchestrator is the only writer, queries never touch this database.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

// Verify interface implementation at compile time.
var _ RevisionStore = (*SQLiteStore)(nil)

const cursorStateKey = "listing_cursor"

// validateIntegrity checks an existing database before opening it for real.
func validateIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil // will be created
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}
	return nil
}

// NewSQLiteStore opens (or creates) the revision table database.
// If path is empty, an in-memory database is used.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", filepath.Dir(path), err)
		}

		if validErr := validateIntegrity(path); validErr != nil {
			slog.Warn("revision table corrupted, clearing",
				slog.String("path", path),
				slog.String("error", validErr.Error()))
			if removeErr := os.Remove(path); removeErr != nil && !os.IsNotExist(removeErr) {
				return nil, fmt.Errorf("revision table corrupted at %s and cannot remove: %w (original error: %v)", path, removeErr, validErr)
			}
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")
		}

		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open revision table: %w", err)
	}

	// Single writer prevents lock contention with modernc.org/sqlite.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS revision_records (
		path               TEXT PRIMARY KEY,
		last_seen_revision TEXT NOT NULL,
		last_indexed_at    TEXT NOT NULL,
		last_status        TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS ingest_state (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Get returns the record for a path, or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, path string) (*RevisionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("revision store is closed")
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT path, last_seen_revision, last_indexed_at, last_status
		 FROM revision_records WHERE path = ?`, path)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, scouterrors.Wrap(scouterrors.ErrCodeStateStore, err)
	}
	return rec, nil
}

// All returns every record keyed by path.
func (s *SQLiteStore) All(ctx context.Context) (map[string]*RevisionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("revision store is closed")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT path, last_seen_revision, last_indexed_at, last_status FROM revision_records`)
	if err != nil {
		return nil, scouterrors.Wrap(scouterrors.ErrCodeStateStore, err)
	}
	defer rows.Close()

	records := make(map[string]*RevisionRecord)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, scouterrors.Wrap(scouterrors.ErrCodeStateStore, err)
		}
		records[rec.Path] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, scouterrors.Wrap(scouterrors.ErrCodeStateStore, err)
	}
	return records, nil
}

// Cursor returns the last committed listing cursor.
func (s *SQLiteStore) Cursor(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return "", fmt.Errorf("revision store is closed")
	}

	var cursor string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM ingest_state WHERE key = ?`, cursorStateKey).Scan(&cursor)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", scouterrors.Wrap(scouterrors.ErrCodeStateStore, err)
	}
	return cursor, nil
}

// CommitRun applies a run's outcomes in one transaction.
func (s *SQLiteStore) CommitRun(ctx context.Context, upserts []*RevisionRecord, removals []string, cursor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("revision store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return scouterrors.Wrap(scouterrors.ErrCodeStateStore, err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, rec := range upserts {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO revision_records (path, last_seen_revision, last_indexed_at, last_status)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT(path) DO UPDATE SET
			   last_seen_revision = excluded.last_seen_revision,
			   last_indexed_at    = excluded.last_indexed_at,
			   last_status        = excluded.last_status`,
			rec.Path, rec.LastSeenRevision, rec.LastIndexedAt.UTC().Format(time.RFC3339Nano), string(rec.LastStatus))
		if err != nil {
			return scouterrors.Wrap(scouterrors.ErrCodeStateStore, err)
		}
	}

	for _, path := range removals {
		if _, err := tx.ExecContext(ctx, `DELETE FROM revision_records WHERE path = ?`, path); err != nil {
			return scouterrors.Wrap(scouterrors.ErrCodeStateStore, err)
		}
	}

	if cursor != "" {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO ingest_state (key, value) VALUES (?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			cursorStateKey, cursor)
		if err != nil {
			return scouterrors.Wrap(scouterrors.ErrCodeStateStore, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return scouterrors.Wrap(scouterrors.ErrCodeStateStore, err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*RevisionRecord, error) {
	var rec RevisionRecord
	var indexedAt, status string
	if err := row.Scan(&rec.Path, &rec.LastSeenRevision, &indexedAt, &status); err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339Nano, indexedAt)
	if err != nil {
		return nil, fmt.Errorf("parse last_indexed_at for %s: %w", rec.Path, err)
	}
	rec.LastIndexedAt = t
	rec.LastStatus = Status(status)
	return &rec, nil
}
