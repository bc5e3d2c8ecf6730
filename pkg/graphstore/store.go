// Package graphstore is the Neo4j backend. Nodes carry the relational
// identifier as the string property id, guarded by uniqueness constraints.
package graphstore

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/dd0wney/cluso-bench/pkg/logging"
)

// Options configures the driver
type Options struct {
	URI         string `yaml:"uri" env:"URI"`
	Username    string `yaml:"user" env:"USER"`
	Password    string `yaml:"password" env:"PASSWORD"`
	Database    string `yaml:"database" env:"DATABASE"`
	MaxPoolSize int    `yaml:"max_pool_size" env:"MAX_POOL_SIZE"`
}

// DefaultOptions targets a local development server
func DefaultOptions() Options {
	return Options{
		URI:         "bolt://localhost:7687",
		Username:    "neo4j",
		Password:    "password",
		MaxPoolSize: 100,
	}
}

// Store is the Neo4j backend. Every call opens its own session so
// concurrent callers never share one.
type Store struct {
	driver   neo4j.DriverWithContext
	database string
	logger   logging.Logger
}

var constraints = []string{
	`CREATE CONSTRAINT user_id IF NOT EXISTS FOR (u:User) REQUIRE u.id IS UNIQUE`,
	`CREATE CONSTRAINT product_id IF NOT EXISTS FOR (p:Product) REQUIRE p.id IS UNIQUE`,
	`CREATE INDEX product_category IF NOT EXISTS FOR (p:Product) ON (p.category)`,
}

// Open creates the driver, verifies connectivity and ensures constraints
func Open(ctx context.Context, opts Options, logger logging.Logger) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(opts.URI,
		neo4j.BasicAuth(opts.Username, opts.Password, ""),
		func(c *neo4j.Config) {
			if opts.MaxPoolSize > 0 {
				c.MaxConnectionPoolSize = opts.MaxPoolSize
			}
		})
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("neo4j unreachable: %w", err)
	}

	if logger == nil {
		logger = logging.NewNopLogger()
	}
	s := &Store{driver: driver, database: opts.Database, logger: logger.With(logging.Backend("neo4j"))}

	if err := s.migrate(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("constraint setup failed: %w", err)
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range constraints {
		if err := s.run(ctx, stmt, nil); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   mode,
		DatabaseName: s.database,
	})
}

// run executes an auto-commit statement and discards its result
func (s *Store) run(ctx context.Context, cypher string, params map[string]any) error {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	result, err := session.Run(ctx, cypher, params)
	if err != nil {
		return err
	}
	_, err = result.Consume(ctx)
	return err
}

func (s *Store) write(ctx context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	out, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		return result.Collect(ctx)
	})
	if err != nil {
		return nil, err
	}
	return out.([]*neo4j.Record), nil
}

func (s *Store) read(ctx context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		return result.Collect(ctx)
	})
	if err != nil {
		return nil, err
	}
	return out.([]*neo4j.Record), nil
}

// Ping checks connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.driver.VerifyConnectivity(ctx)
}

// Close releases the driver
func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// Reset deletes every node and relationship in bounded transactions
func (s *Store) Reset(ctx context.Context) error {
	err := s.run(ctx, `MATCH (n) CALL { WITH n DETACH DELETE n } IN TRANSACTIONS OF 10000 ROWS`, nil)
	if err != nil {
		return fmt.Errorf("failed to clear graph: %w", err)
	}
	s.logger.Info("graph store reset")
	return nil
}

// Counts returns node and relationship totals
func (s *Store) Counts(ctx context.Context) (map[string]int64, error) {
	records, err := s.read(ctx, `
		CALL { MATCH (u:User) RETURN count(u) AS users }
		CALL { MATCH (p:Product) RETURN count(p) AS products }
		CALL { MATCH ()-[f:FOLLOWS]->() RETURN count(f) AS follows }
		CALL { MATCH ()-[b:BOUGHT]->() RETURN count(b) AS purchases }
		RETURN users, products, follows, purchases`, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to count graph: %w", err)
	}
	counts := map[string]int64{}
	if len(records) == 1 {
		for _, key := range []string{"users", "products", "follows", "purchases"} {
			counts[key] = getInt64(records[0], key)
		}
	}
	return counts, nil
}
