package relational

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id              BIGSERIAL PRIMARY KEY,
		name            TEXT NOT NULL,
		email           TEXT NOT NULL UNIQUE,
		hashed_password TEXT NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		id         BIGSERIAL PRIMARY KEY,
		name       TEXT NOT NULL,
		category   TEXT NOT NULL,
		price      DOUBLE PRECISION NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS follows (
		id          BIGSERIAL PRIMARY KEY,
		follower_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		followed_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT follows_no_self CHECK (follower_id <> followed_id),
		CONSTRAINT follows_unique UNIQUE (follower_id, followed_id)
	)`,
	`CREATE TABLE IF NOT EXISTS purchases (
		id         BIGSERIAL PRIMARY KEY,
		user_id    BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		product_id BIGINT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_follows_followed ON follows(followed_id)`,
	`CREATE INDEX IF NOT EXISTS idx_purchases_user ON purchases(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_purchases_product ON purchases(product_id)`,
	`CREATE INDEX IF NOT EXISTS idx_purchases_user_product ON purchases(user_id, product_id)`,
	`CREATE INDEX IF NOT EXISTS idx_products_category ON products(category)`,
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// Reset removes all rows and restarts identifier sequences
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE purchases, follows, products, users RESTART IDENTITY CASCADE`)
	if err != nil {
		return fmt.Errorf("failed to truncate tables: %w", err)
	}
	s.logger.Info("relational store reset")
	return nil
}

// Counts returns the number of rows per table
func (s *Store) Counts(ctx context.Context) (map[string]int64, error) {
	var users, products, follows, purchases int64
	err := s.pool.QueryRow(ctx, `
		SELECT (SELECT COUNT(*) FROM users),
		       (SELECT COUNT(*) FROM products),
		       (SELECT COUNT(*) FROM follows),
		       (SELECT COUNT(*) FROM purchases)`).Scan(&users, &products, &follows, &purchases)
	if err != nil {
		return nil, fmt.Errorf("failed to count rows: %w", err)
	}
	return map[string]int64{
		"users":     users,
		"products":  products,
		"follows":   follows,
		"purchases": purchases,
	}, nil
}
