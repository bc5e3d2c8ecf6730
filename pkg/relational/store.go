// Package relational is the PostgreSQL backend. Identifiers are BIGSERIAL
// keys rendered as decimal strings; they are allocated here and mirrored
// into the graph store.
package relational

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dd0wney/cluso-bench/pkg/logging"
)

// Options tunes the connection pool
type Options struct {
	MaxConns        int32         `yaml:"max_conns" env:"POSTGRES_MAX_CONNS"`
	MinConns        int32         `yaml:"min_conns" env:"POSTGRES_MIN_CONNS"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime" env:"POSTGRES_MAX_CONN_LIFETIME"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time" env:"POSTGRES_MAX_CONN_IDLE_TIME"`
}

// DefaultOptions sizes the pool so a full sub-batch of concurrent edge
// writes can hold a connection each
func DefaultOptions() Options {
	return Options{
		MaxConns:        100,
		MinConns:        5,
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: 1 * time.Minute,
	}
}

// Store is the PostgreSQL backend
type Store struct {
	pool   *pgxpool.Pool
	logger logging.Logger
}

// Open connects, verifies connectivity and creates the schema
func Open(ctx context.Context, databaseURL string, opts Options, logger logging.Logger) (*Store, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	if opts.MaxConns > 0 {
		config.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		config.MinConns = opts.MinConns
	}
	if opts.MaxConnLifetime > 0 {
		config.MaxConnLifetime = opts.MaxConnLifetime
	}
	if opts.MaxConnIdleTime > 0 {
		config.MaxConnIdleTime = opts.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database unreachable: %w", err)
	}

	if logger == nil {
		logger = logging.NewNopLogger()
	}
	s := &Store{pool: pool, logger: logger.With(logging.Backend("postgresql"))}

	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return s, nil
}

// Ping checks database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// PoolStats reports pool usage for health details
func (s *Store) PoolStats() map[string]any {
	st := s.pool.Stat()
	return map[string]any{
		"acquired_conns": st.AcquiredConns(),
		"idle_conns":     st.IdleConns(),
		"total_conns":    st.TotalConns(),
		"max_conns":      st.MaxConns(),
	}
}
