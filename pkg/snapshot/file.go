package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dd0wney/cluso-bench/pkg/logging"
)

// FileStore keeps documents as files in one directory
type FileStore struct {
	dir         string
	compression Compression
	logger      logging.Logger
}

// NewFileStore creates dir if needed
func NewFileStore(dir string, c Compression, logger logging.Logger) (*FileStore, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	return &FileStore{dir: dir, compression: c, logger: logger}, nil
}

// Dir returns the directory documents are written to
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) path(stored string) (string, error) {
	if stored == "" || strings.ContainsAny(stored, `/\`) || stored == "." || stored == ".." {
		return "", fmt.Errorf("invalid snapshot name %q", stored)
	}
	return filepath.Join(s.dir, stored), nil
}

// Put writes v through a temp file and rename so readers never see a
// partial document
func (s *FileStore) Put(ctx context.Context, name string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, stored, err := encode(name, v, s.compression)
	if err != nil {
		return err
	}
	path, err := s.path(stored)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, ".tmp-"+stored+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", stored, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", stored, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to rename %s: %w", stored, err)
	}

	// drop a stale copy in the other encoding
	for _, other := range candidates(name, s.compression)[1:] {
		if p, err := s.path(other); err == nil {
			_ = os.Remove(p)
		}
	}

	s.logger.Debug("snapshot written", logging.Path(path), logging.Int("bytes", len(data)))
	return nil
}

// Get reads name into v
func (s *FileStore) Get(ctx context.Context, name string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, stored := range candidates(name, s.compression) {
		path, err := s.path(stored)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", stored, err)
		}
		return decode(stored, data, v)
	}
	return fmt.Errorf("%w: %s", ErrNotFound, name)
}

// List returns the logical names starting with prefix, sorted
func (s *FileStore) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	stored := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".tmp-") {
			continue
		}
		stored = append(stored, e.Name())
	}
	return logicalNames(stored, prefix), nil
}
