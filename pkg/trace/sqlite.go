package trace

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	lserrors "github.com/odvcencio/lockstep/pkg/errors"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteStore keeps flows in a SQLite table, one row per flow.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and creates when needed) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, lserrors.New(lserrors.ErrCodeConfigInvalid, "sqlite path is empty")
	}
	inMemory := path == ":memory:"
	if !inMemory {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if inMemory {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(4)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Save upserts the flow document.
func (s *SQLiteStore) Save(ctx context.Context, flow *Flow) error {
	if flow == nil {
		return lserrors.New(lserrors.ErrCodeInvalidInput, "flow is nil")
	}
	data, err := flow.MarshalJSON()
	if err != nil {
		return lserrors.Wrap(err, lserrors.ErrCodeStorageWrite, "failed to marshal flow")
	}
	var name sql.NullString
	if n, ok := flow.Name(); ok {
		name = sql.NullString{String: n, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO flows (id, name, document, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			document = excluded.document,
			updated_at = excluded.updated_at`,
		flow.ID(), name, string(data), time.Now().UnixNano())
	if err != nil {
		return lserrors.Wrap(err, lserrors.ErrCodeStorageWrite, "failed to save flow").
			WithContext("flow_id", flow.ID()).
			WithRetryable(isBusyError(err))
	}
	return nil
}

// Load reads a flow by id.
func (s *SQLiteStore) Load(ctx context.Context, id string) (*Flow, error) {
	var document string
	err := s.db.QueryRowContext(ctx, `SELECT document FROM flows WHERE id = ?`, id).Scan(&document)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, lserrors.New(lserrors.ErrCodeStorageNotFound, "flow not found").
			WithContext("flow_id", id)
	}
	if err != nil {
		return nil, lserrors.Wrap(err, lserrors.ErrCodeStorageRead, "failed to read flow").
			WithContext("flow_id", id).
			WithRetryable(isBusyError(err))
	}
	flow, err := FlowFromJSON([]byte(document))
	if err != nil {
		return nil, lserrors.Wrap(err, lserrors.ErrCodeStorageCorrupt, "failed to parse flow").
			WithContext("flow_id", id)
	}
	return flow, nil
}

// List returns the stored flow ids in id order.
func (s *SQLiteStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM flows ORDER BY id`)
	if err != nil {
		return nil, lserrors.Wrap(err, lserrors.ErrCodeStorageRead, "failed to list flows")
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, lserrors.Wrap(err, lserrors.ErrCodeStorageRead, "failed to scan flow id")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, lserrors.Wrap(err, lserrors.ErrCodeStorageRead, "failed to list flows")
	}
	return ids, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
	}
	return false
}
