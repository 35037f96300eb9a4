package trace

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/odvcencio/lockstep/pkg/config"
	lserrors "github.com/odvcencio/lockstep/pkg/errors"
)

// FlowStore persists flows for the report viewer and the CLI.
type FlowStore interface {
	Save(ctx context.Context, flow *Flow) error
	Load(ctx context.Context, id string) (*Flow, error)
	List(ctx context.Context) ([]string, error)
	Close() error
}

// OpenStore opens the backend selected by cfg.Backend.
func OpenStore(cfg config.TraceConfig) (FlowStore, error) {
	switch cfg.Backend {
	case config.TraceBackendFile, "":
		return NewFileStore(afero.NewOsFs(), cfg.Dir), nil
	case config.TraceBackendSQLite:
		return NewSQLiteStore(cfg.SQLitePath)
	default:
		return nil, lserrors.New(lserrors.ErrCodeConfigInvalid, fmt.Sprintf("unknown trace backend %q", cfg.Backend))
	}
}

// FileStore keeps one indented JSON document per flow in dir.
type FileStore struct {
	fs  afero.Fs
	dir string
}

// NewFileStore creates a store rooted at dir on fs.
func NewFileStore(fs afero.Fs, dir string) *FileStore {
	return &FileStore{fs: fs, dir: dir}
}

func (s *FileStore) path(id string) (string, error) {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return "", lserrors.New(lserrors.ErrCodeInvalidInput, fmt.Sprintf("invalid flow id %q", id)).
			WithContext("flow_id", id)
	}
	return filepath.Join(s.dir, id+".json"), nil
}

// Save writes the flow, replacing any previous document atomically.
func (s *FileStore) Save(ctx context.Context, flow *Flow) error {
	if flow == nil {
		return lserrors.New(lserrors.ErrCodeInvalidInput, "flow is nil")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.path(flow.ID())
	if err != nil {
		return err
	}
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return lserrors.Wrap(err, lserrors.ErrCodeStorageWrite, "failed to create flow directory").
			WithContext("dir", s.dir)
	}

	data, err := json.MarshalIndent(flow, "", "  ")
	if err != nil {
		return lserrors.Wrap(err, lserrors.ErrCodeStorageWrite, "failed to marshal flow")
	}

	tmp := path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return lserrors.Wrap(err, lserrors.ErrCodeStorageWrite, "failed to write flow").
			WithContext("path", tmp)
	}
	if err := s.fs.Rename(tmp, path); err != nil {
		_ = s.fs.Remove(tmp)
		return lserrors.Wrap(err, lserrors.ErrCodeStorageWrite, "failed to move flow into place").
			WithContext("path", path)
	}
	return nil
}

// Load reads a flow by id.
func (s *FileStore) Load(ctx context.Context, id string) (*Flow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.path(id)
	if err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(s.fs, path)
	if os.IsNotExist(err) {
		return nil, lserrors.New(lserrors.ErrCodeStorageNotFound, "flow not found").
			WithContext("flow_id", id)
	}
	if err != nil {
		return nil, lserrors.Wrap(err, lserrors.ErrCodeStorageRead, "failed to read flow").
			WithContext("flow_id", id)
	}
	flow, err := FlowFromJSON(data)
	if err != nil {
		return nil, lserrors.Wrap(err, lserrors.ErrCodeStorageCorrupt, "failed to parse flow").
			WithContext("flow_id", id)
	}
	return flow, nil
}

// List returns the stored flow ids, oldest first for ULID ids.
func (s *FileStore) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := afero.ReadDir(s.fs, s.dir)
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, lserrors.Wrap(err, lserrors.ErrCodeStorageRead, "failed to read flow directory").
			WithContext("dir", s.dir)
	}
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(entry.Name(), ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}

// Close is a no-op.
func (s *FileStore) Close() error {
	return nil
}
