package relational

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dd0wney/cluso-bench/pkg/catalog"
	"github.com/dd0wney/cluso-bench/pkg/model"
)

const (
	insertUsersSQL = `
		INSERT INTO users (name, email, hashed_password)
		SELECT * FROM unnest($1::text[], $2::text[], $3::text[])
		RETURNING id, name, email, hashed_password, created_at`

	insertProductsSQL = `
		INSERT INTO products (name, category, price)
		SELECT * FROM unnest($1::text[], $2::text[], $3::float8[])
		RETURNING id, name, category, price, created_at`

	insertFollowSQL = `
		INSERT INTO follows (follower_id, followed_id)
		VALUES ($1, $2)
		ON CONFLICT (follower_id, followed_id) DO NOTHING`

	insertPurchaseSQL = `
		INSERT INTO purchases (user_id, product_id)
		VALUES ($1, $2)
		RETURNING id, created_at`
)

// foreign_key_violation
const fkViolation = "23503"

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func scanUser(row pgx.Row) (model.User, error) {
	var (
		id int64
		u  model.User
	)
	if err := row.Scan(&id, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt); err != nil {
		return model.User{}, err
	}
	u.ID = formatID(id)
	return u, nil
}

func scanProduct(row pgx.Row) (model.Product, error) {
	var (
		id int64
		p  model.Product
	)
	if err := row.Scan(&id, &p.Name, &p.Category, &p.Price, &p.CreatedAt); err != nil {
		return model.Product{}, err
	}
	p.ID = formatID(id)
	return p, nil
}

// InsertUsers writes a batch with a single multi-row insert
func (s *Store) InsertUsers(ctx context.Context, batch []model.NewUser) ([]model.User, error) {
	if len(batch) == 0 {
		return nil, nil
	}
	names := make([]string, len(batch))
	emails := make([]string, len(batch))
	hashes := make([]string, len(batch))
	for i, u := range batch {
		names[i], emails[i], hashes[i] = u.Name, u.Email, u.PasswordHash
	}

	rows, err := s.pool.Query(ctx, insertUsersSQL, names, emails, hashes)
	if err != nil {
		return nil, fmt.Errorf("failed to insert users: %w", err)
	}
	users, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.User, error) {
		return scanUser(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to insert users: %w", err)
	}
	return users, nil
}

// InsertUser writes one user
func (s *Store) InsertUser(ctx context.Context, nu model.NewUser) (model.User, error) {
	users, err := s.InsertUsers(ctx, []model.NewUser{nu})
	if err != nil {
		return model.User{}, err
	}
	return users[0], nil
}

// InsertProducts writes a batch with a single multi-row insert
func (s *Store) InsertProducts(ctx context.Context, batch []model.NewProduct) ([]model.Product, error) {
	if len(batch) == 0 {
		return nil, nil
	}
	names := make([]string, len(batch))
	categories := make([]string, len(batch))
	prices := make([]float64, len(batch))
	for i, p := range batch {
		names[i], categories[i], prices[i] = p.Name, p.Category, p.Price
	}

	rows, err := s.pool.Query(ctx, insertProductsSQL, names, categories, prices)
	if err != nil {
		return nil, fmt.Errorf("failed to insert products: %w", err)
	}
	products, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Product, error) {
		return scanProduct(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to insert products: %w", err)
	}
	return products, nil
}

// InsertProduct writes one product
func (s *Store) InsertProduct(ctx context.Context, np model.NewProduct) (model.Product, error) {
	products, err := s.InsertProducts(ctx, []model.NewProduct{np})
	if err != nil {
		return model.Product{}, err
	}
	return products[0], nil
}

func endpoints(a, b string) (int64, int64, error) {
	x, ok := catalog.ParseID(a)
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", model.ErrEntityNotFound, a)
	}
	y, ok := catalog.ParseID(b)
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", model.ErrEntityNotFound, b)
	}
	return x, y, nil
}

// inTx runs fn in its own transaction on its own pooled connection so
// concurrent callers never share a session
func (s *Store) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func translateWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == fkViolation {
		return fmt.Errorf("%w: %s", model.ErrEntityNotFound, pgErr.ConstraintName)
	}
	return err
}

// CreateFollow inserts an edge. An edge that already exists is not an error.
func (s *Store) CreateFollow(ctx context.Context, f model.Follow) error {
	if err := model.ValidateFollow(f); err != nil {
		return err
	}
	follower, followed, err := endpoints(f.FollowerID, f.FollowedID)
	if err != nil {
		return err
	}

	return s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, insertFollowSQL, follower, followed); err != nil {
			return fmt.Errorf("failed to insert follow: %w", translateWriteError(err))
		}
		return nil
	})
}

// CreatePurchase inserts a purchase and returns it with its identifier
func (s *Store) CreatePurchase(ctx context.Context, userID, productID string) (model.Purchase, error) {
	user, product, err := endpoints(userID, productID)
	if err != nil {
		return model.Purchase{}, err
	}

	var (
		id        int64
		createdAt time.Time
	)
	err = s.inTx(ctx, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, insertPurchaseSQL, user, product).Scan(&id, &createdAt); err != nil {
			return fmt.Errorf("failed to insert purchase: %w", translateWriteError(err))
		}
		return nil
	})
	if err != nil {
		return model.Purchase{}, err
	}

	return model.Purchase{
		ID:        formatID(id),
		UserID:    userID,
		ProductID: productID,
		CreatedAt: createdAt,
	}, nil
}

// SampleUserIDs returns up to limit random user ids
func (s *Store) SampleUserIDs(ctx context.Context, limit int) ([]string, error) {
	return s.sampleIDs(ctx, `SELECT id FROM users ORDER BY random() LIMIT $1`, limit)
}

// SampleProductIDs returns up to limit random product ids
func (s *Store) SampleProductIDs(ctx context.Context, limit int) ([]string, error) {
	return s.sampleIDs(ctx, `SELECT id FROM products ORDER BY random() LIMIT $1`, limit)
}

func (s *Store) sampleIDs(ctx context.Context, query string, limit int) ([]string, error) {
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to sample ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (string, error) {
		var id int64
		err := row.Scan(&id)
		return formatID(id), err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sample ids: %w", err)
	}
	return ids, nil
}
