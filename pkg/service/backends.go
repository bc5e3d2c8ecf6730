package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/dd0wney/cluso-bench/pkg/bench"
	"github.com/dd0wney/cluso-bench/pkg/config"
	"github.com/dd0wney/cluso-bench/pkg/graphstore"
	"github.com/dd0wney/cluso-bench/pkg/logging"
	"github.com/dd0wney/cluso-bench/pkg/model"
	"github.com/dd0wney/cluso-bench/pkg/relational"
	"github.com/dd0wney/cluso-bench/pkg/snapshot"
)

// Backends holds the live stores behind a Service
type Backends struct {
	Postgres  *relational.Store
	Neo4j     *graphstore.Store
	Snapshots snapshot.Store
}

// OpenBackends connects to both databases and opens the snapshot store.
// Everything opened so far is closed again when a later step fails.
func OpenBackends(ctx context.Context, cfg *config.Config, logger logging.Logger) (*Backends, error) {
	pg, err := relational.Open(ctx, cfg.Postgres.URL, cfg.Postgres.Options, logger.With(logging.Component("postgresql")))
	if err != nil {
		return nil, fmt.Errorf("postgresql: %w", err)
	}

	neo, err := graphstore.Open(ctx, cfg.Neo4j, logger.With(logging.Component("neo4j")))
	if err != nil {
		pg.Close()
		return nil, fmt.Errorf("neo4j: %w", err)
	}

	store, err := snapshot.Open(ctx, cfg.Snapshot, logger.With(logging.Component("snapshot")))
	if err != nil {
		pg.Close()
		neo.Close(ctx)
		return nil, fmt.Errorf("snapshot store: %w", err)
	}

	return &Backends{Postgres: pg, Neo4j: neo, Snapshots: store}, nil
}

// Deps wires the backends into service dependencies. Lookups sample ids
// from PostgreSQL since both stores hold the same entities.
func (b *Backends) Deps() Deps {
	return Deps{
		Relational: b.Postgres,
		Graph:      b.Neo4j,
		Targets: []bench.Target{
			{Backend: model.PostgreSQL, Impl: b.Postgres},
			{Backend: model.Neo4j, Impl: b.Neo4j},
		},
		Sampler:   b.Postgres,
		Snapshots: b.Snapshots,
	}
}

// Ping checks both databases
func (b *Backends) Ping(ctx context.Context) error {
	return errors.Join(b.Postgres.Ping(ctx), b.Neo4j.Ping(ctx))
}

// Reset empties both databases
func (b *Backends) Reset(ctx context.Context) error {
	if err := b.Postgres.Reset(ctx); err != nil {
		return fmt.Errorf("postgresql: %w", err)
	}
	if err := b.Neo4j.Reset(ctx); err != nil {
		return fmt.Errorf("neo4j: %w", err)
	}
	return nil
}

// Close releases both connection pools
func (b *Backends) Close(ctx context.Context) error {
	return errors.Join(b.Postgres.Close(), b.Neo4j.Close(ctx))
}
