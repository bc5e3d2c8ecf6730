// Package snapshot persists generation metrics and benchmark results so
// they survive a restart. Documents are JSON, optionally snappy compressed,
// kept in a local directory or an S3 bucket.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/golang/snappy"

	"github.com/dd0wney/cluso-bench/pkg/logging"
)

// ErrNotFound is returned when no document exists under a name
var ErrNotFound = errors.New("snapshot not found")

// Compression selects how documents are encoded at rest
type Compression string

const (
	CompressionNone   Compression = "none"
	CompressionSnappy Compression = "snappy"
)

// snappySuffix is appended to the name of compressed documents
const snappySuffix = ".sz"

// Store keeps named JSON documents
type Store interface {
	Put(ctx context.Context, name string, v any) error
	Get(ctx context.Context, name string, v any) error
	List(ctx context.Context, prefix string) ([]string, error)
}

// Config selects and configures a Store. An S3 bucket takes precedence over
// the local directory.
type Config struct {
	Dir         string      `yaml:"dir" env:"DIR"`
	Compression Compression `yaml:"compression" env:"COMPRESSION"`
	S3          S3Config    `yaml:"s3" envPrefix:"S3_"`
}

// DefaultConfig writes uncompressed files under ./metrics
func DefaultConfig() Config {
	return Config{Dir: "metrics", Compression: CompressionNone}
}

// Open builds the store described by cfg
func Open(ctx context.Context, cfg Config, logger logging.Logger) (Store, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if cfg.S3.Bucket != "" {
		return NewS3Store(ctx, cfg.S3, cfg.Compression, logger)
	}
	if cfg.Dir == "" {
		cfg.Dir = DefaultConfig().Dir
	}
	return NewFileStore(cfg.Dir, cfg.Compression, logger)
}

// encode marshals v and returns the bytes with the stored name
func encode(name string, v any, c Compression) ([]byte, string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal %s: %w", name, err)
	}
	switch c {
	case CompressionSnappy:
		return snappy.Encode(nil, data), name + snappySuffix, nil
	case CompressionNone, "":
		return data, name, nil
	default:
		return nil, "", fmt.Errorf("unknown compression %q", c)
	}
}

// decode reverses encode based on the stored name
func decode(stored string, data []byte, v any) error {
	if strings.HasSuffix(stored, snappySuffix) {
		raw, err := snappy.Decode(nil, data)
		if err != nil {
			return fmt.Errorf("failed to decompress %s: %w", stored, err)
		}
		data = raw
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", stored, err)
	}
	return nil
}

// candidates are the stored names a logical name may live under, preferred
// encoding first
func candidates(name string, c Compression) []string {
	if c == CompressionSnappy {
		return []string{name + snappySuffix, name}
	}
	return []string{name, name + snappySuffix}
}

// logicalNames strips encoding suffixes, filters by prefix, dedupes and sorts
func logicalNames(stored []string, prefix string) []string {
	seen := make(map[string]bool, len(stored))
	names := make([]string, 0, len(stored))
	for _, s := range stored {
		name := strings.TrimSuffix(s, snappySuffix)
		if !strings.HasPrefix(name, prefix) || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
