package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const (
	defaultBusyTimeoutMs = 5000
	defaultRetryAttempts = 3
	defaultRetryBackoff  = 50 * time.Millisecond
)

// Record is one stored snapshot.
type Record struct {
	ID      string    `json:"id"`
	SavedAt time.Time `json:"saved_at"`
	Size    int       `json:"size"`
	Payload []byte    `json:"-"`
}

// SQLiteStore keeps a history of snapshot payloads.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLiteStore opens (creating if needed) the history database at path.
// A busyTimeoutMs of zero uses the default.
func OpenSQLiteStore(ctx context.Context, path string, busyTimeoutMs int) (*SQLiteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("history path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	if busyTimeoutMs <= 0 {
		busyTimeoutMs = defaultBusyTimeoutMs
	}
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", path, busyTimeoutMs)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to history database: %w", err)
	}

	store := &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := store.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS snapshots (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			saved_at TEXT NOT NULL,
			payload BLOB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS snapshots_saved_at_idx ON snapshots(saved_at)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure history schema: %w", err)
		}
	}
	return nil
}

// Save stores payload and returns its id.
func (s *SQLiteStore) Save(ctx context.Context, payload []byte) (string, error) {
	if len(payload) == 0 {
		return "", errors.New("snapshot payload is empty")
	}
	id := uuid.NewString()
	savedAt := s.now().Format(time.RFC3339Nano)

	err := withRetry(ctx, defaultRetryAttempts, defaultRetryBackoff, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO snapshots (id, saved_at, payload) VALUES (?, ?, ?)`,
			id, savedAt, payload,
		)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to save snapshot: %w", err)
	}
	return id, nil
}

// Latest returns the most recent snapshot.
func (s *SQLiteStore) Latest(ctx context.Context) (Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, saved_at, payload FROM snapshots ORDER BY seq DESC LIMIT 1`)
	return scanRecord(row)
}

// Get returns the snapshot with the given id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, saved_at, payload FROM snapshots WHERE id = ?`, id)
	return scanRecord(row)
}

// List returns up to limit snapshots, newest first, without payloads.
// A limit of zero or less lists everything.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]Record, error) {
	query := `SELECT id, saved_at, length(payload) FROM snapshots ORDER BY seq DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var (
			rec     Record
			savedAt string
		)
		if err := rows.Scan(&rec.ID, &savedAt, &rec.Size); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		rec.SavedAt = parseTime(savedAt)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	return records, nil
}

// Prune deletes all but the newest keep snapshots and returns how many
// were removed.
func (s *SQLiteStore) Prune(ctx context.Context, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}

	var removed int64
	err := withRetry(ctx, defaultRetryAttempts, defaultRetryBackoff, func() error {
		res, err := s.db.ExecContext(ctx,
			`DELETE FROM snapshots WHERE seq NOT IN (
				SELECT seq FROM snapshots ORDER BY seq DESC LIMIT ?
			)`, keep)
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", err)
	}
	return int(removed), nil
}

func scanRecord(row *sql.Row) (Record, error) {
	var (
		rec     Record
		savedAt string
	)
	if err := row.Scan(&rec.ID, &savedAt, &rec.Payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrSnapshotNotFound
		}
		return Record{}, fmt.Errorf("failed to read snapshot: %w", err)
	}
	rec.SavedAt = parseTime(savedAt)
	rec.Size = len(rec.Payload)
	return rec, nil
}

func parseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func withRetry(ctx context.Context, maxAttempts int, baseBackoff time.Duration, fn func() error) error {
	attempt := 0
	backoff := baseBackoff

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := fn()
		if err == nil {
			return nil
		}

		attempt++
		if !isBusyError(err) || attempt >= maxAttempts {
			return err
		}

		if err := sleepWithContext(ctx, backoff); err != nil {
			return err
		}
		backoff *= 2
	}
}

func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	message := strings.ToLower(err.Error())
	return strings.Contains(message, "database is locked") ||
		strings.Contains(message, "database is busy") ||
		strings.Contains(message, "sqlite_busy")
}

func sleepWithContext(ctx context.Context, duration time.Duration) error {
	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
