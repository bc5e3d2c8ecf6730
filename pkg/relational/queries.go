package relational

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/dd0wney/cluso-bench/pkg/catalog"
)

// Every recursive arm stops at depth < $level so a walk never exceeds level
// hops; the anchor row is hop 1.
const (
	getUserSQL = `SELECT id, name, email FROM users WHERE id = $1`

	getProductSQL = `SELECT id, name, category, price FROM products WHERE id = $1`

	followedUsersSQL = `
		SELECT u.id, u.name, u.email
		FROM follows f
		JOIN users u ON u.id = f.followed_id
		WHERE f.follower_id = $1
		ORDER BY u.id`

	productBuyersSQL = `
		SELECT DISTINCT u.id, u.name, u.email
		FROM purchases p
		JOIN users u ON u.id = p.user_id
		WHERE p.product_id = $1
		ORDER BY u.id`

	productViralitySQL = `
		WITH RECURSIVE buyers AS (
			SELECT DISTINCT user_id FROM purchases WHERE product_id = $1
		),
		reach (origin, user_id, depth) AS (
			SELECT f.follower_id, f.followed_id, 1
			FROM follows f
			JOIN buyers b ON b.user_id = f.follower_id
			UNION
			SELECT r.origin, f.followed_id, r.depth + 1
			FROM reach r
			JOIN follows f ON f.follower_id = r.user_id
			WHERE r.depth < $2
		)
		SELECT p.id, p.name, p.category, p.price,
			(SELECT COUNT(DISTINCT r.origin)
			 FROM reach r
			 JOIN buyers b ON b.user_id = r.user_id
			 WHERE r.origin <> r.user_id) AS purchase_count
		FROM products p
		WHERE p.id = $1`

	userInfluenceSQL = `
		WITH RECURSIVE network (user_id, depth) AS (
			SELECT f.follower_id, 1
			FROM follows f
			WHERE f.followed_id = $1
			UNION
			SELECT f.follower_id, n.depth + 1
			FROM network n
			JOIN follows f ON f.followed_id = n.user_id
			WHERE n.depth < $2
		),
		own AS (
			SELECT DISTINCT product_id FROM purchases WHERE user_id = $1
		)
		SELECT u.id, u.name,
			(SELECT COUNT(DISTINCT n.user_id)
			 FROM network n
			 WHERE n.user_id <> $1
			   AND EXISTS (
				SELECT 1 FROM purchases pu
				JOIN own o ON o.product_id = pu.product_id
				WHERE pu.user_id = n.user_id)) AS followers,
			(SELECT COUNT(*) FROM own) AS products
		FROM users u
		WHERE u.id = $1`

	viralProductsSQL = `
		WITH RECURSIVE reach (origin, user_id, depth) AS (
			SELECT f.follower_id, f.followed_id, 1
			FROM follows f
			WHERE EXISTS (SELECT 1 FROM purchases p WHERE p.user_id = f.follower_id)
			UNION
			SELECT r.origin, f.followed_id, r.depth + 1
			FROM reach r
			JOIN follows f ON f.follower_id = r.user_id
			WHERE r.depth < $1
		),
		spread AS (
			SELECT pa.product_id, COUNT(DISTINCT pa.user_id) AS purchase_count
			FROM reach r
			JOIN purchases pa ON pa.user_id = r.origin
			JOIN purchases pb ON pb.user_id = r.user_id AND pb.product_id = pa.product_id
			WHERE r.origin <> r.user_id
			GROUP BY pa.product_id
		)
		SELECT p.id, p.name, p.category, p.price, s.purchase_count
		FROM spread s
		JOIN products p ON p.id = s.product_id
		ORDER BY CASE WHEN p.price > 0 THEN s.purchase_count::float8 / p.price ELSE 0 END DESC, p.id
		LIMIT $2`

	recommendationsSQL = `
		SELECT pr.id, pr.name, COUNT(DISTINCT f.followed_id) AS score
		FROM follows f
		JOIN purchases pu ON pu.user_id = f.followed_id
		JOIN products pr ON pr.id = pu.product_id
		WHERE f.follower_id = $1
		  AND NOT EXISTS (
			SELECT 1 FROM purchases own
			WHERE own.user_id = $1 AND own.product_id = pr.id)
		GROUP BY pr.id, pr.name
		ORDER BY score DESC, pr.id
		LIMIT $2`
)

// GetUser implements catalog.Backend
func (s *Store) GetUser(ctx context.Context, id string) (catalog.UserRecord, error) {
	key, ok := catalog.ParseID(id)
	if !ok {
		return catalog.UserRecord{ID: id}, nil
	}
	var (
		rid int64
		rec catalog.UserRecord
	)
	err := s.pool.QueryRow(ctx, getUserSQL, key).Scan(&rid, &rec.Name, &rec.Email)
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.UserRecord{ID: id}, nil
	}
	if err != nil {
		return catalog.UserRecord{}, fmt.Errorf("failed to get user: %w", err)
	}
	rec.ID = formatID(rid)
	return rec, nil
}

// GetProduct implements catalog.Backend
func (s *Store) GetProduct(ctx context.Context, id string) (catalog.ProductRecord, error) {
	key, ok := catalog.ParseID(id)
	if !ok {
		return catalog.ProductRecord{ID: id}, nil
	}
	var (
		rid int64
		rec catalog.ProductRecord
	)
	err := s.pool.QueryRow(ctx, getProductSQL, key).Scan(&rid, &rec.Name, &rec.Category, &rec.Price)
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.ProductRecord{ID: id}, nil
	}
	if err != nil {
		return catalog.ProductRecord{}, fmt.Errorf("failed to get product: %w", err)
	}
	rec.ID = formatID(rid)
	return rec, nil
}

func (s *Store) userList(ctx context.Context, query, id, what string) ([]catalog.UserRecord, error) {
	key, ok := catalog.ParseID(id)
	if !ok {
		return []catalog.UserRecord{}, nil
	}
	rows, err := s.pool.Query(ctx, query, key)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", what, err)
	}
	users, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (catalog.UserRecord, error) {
		var (
			rid int64
			rec catalog.UserRecord
		)
		err := row.Scan(&rid, &rec.Name, &rec.Email)
		rec.ID = formatID(rid)
		return rec, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", what, err)
	}
	return users, nil
}

// FollowedUsers implements catalog.Backend
func (s *Store) FollowedUsers(ctx context.Context, userID string) ([]catalog.UserRecord, error) {
	return s.userList(ctx, followedUsersSQL, userID, "followed users")
}

// ProductBuyers implements catalog.Backend
func (s *Store) ProductBuyers(ctx context.Context, productID string) ([]catalog.UserRecord, error) {
	return s.userList(ctx, productBuyersSQL, productID, "product buyers")
}

// ProductVirality implements catalog.Backend
func (s *Store) ProductVirality(ctx context.Context, productID string, level int) (catalog.ViralityRecord, error) {
	if err := catalog.ValidateLevel(level); err != nil {
		return catalog.ViralityRecord{}, err
	}
	key, ok := catalog.ParseID(productID)
	if !ok {
		return catalog.ViralityRecord{ID: productID}, nil
	}

	var (
		rid int64
		rec catalog.ViralityRecord
	)
	err := s.pool.QueryRow(ctx, productViralitySQL, key, level).
		Scan(&rid, &rec.Name, &rec.Category, &rec.Price, &rec.PurchaseCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.ViralityRecord{ID: productID}, nil
	}
	if err != nil {
		return catalog.ViralityRecord{}, fmt.Errorf("failed to query product virality: %w", err)
	}
	rec.ID = formatID(rid)
	return rec.Score(), nil
}

// UserInfluence implements catalog.Backend
func (s *Store) UserInfluence(ctx context.Context, userID string, level int) (catalog.InfluenceRecord, error) {
	if err := catalog.ValidateLevel(level); err != nil {
		return catalog.InfluenceRecord{}, err
	}
	key, ok := catalog.ParseID(userID)
	if !ok {
		return catalog.InfluenceRecord{UserID: userID, Level: level}, nil
	}

	var (
		rid int64
		rec = catalog.InfluenceRecord{Level: level}
	)
	err := s.pool.QueryRow(ctx, userInfluenceSQL, key, level).
		Scan(&rid, &rec.Name, &rec.Followers, &rec.Products)
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.InfluenceRecord{UserID: userID, Level: level}, nil
	}
	if err != nil {
		return catalog.InfluenceRecord{}, fmt.Errorf("failed to query user influence: %w", err)
	}
	rec.UserID = formatID(rid)
	return rec.Score(), nil
}

// ViralProducts implements catalog.Backend
func (s *Store) ViralProducts(ctx context.Context, level int) ([]catalog.ViralityRecord, error) {
	if err := catalog.ValidateLevel(level); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, viralProductsSQL, level, catalog.TopN)
	if err != nil {
		return nil, fmt.Errorf("failed to query viral products: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (catalog.ViralityRecord, error) {
		var (
			rid int64
			rec catalog.ViralityRecord
		)
		err := row.Scan(&rid, &rec.Name, &rec.Category, &rec.Price, &rec.PurchaseCount)
		rec.ID = formatID(rid)
		return rec.Score(), err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read viral products: %w", err)
	}
	return out, nil
}

// Recommendations implements catalog.Backend
func (s *Store) Recommendations(ctx context.Context, userID string) ([]catalog.Recommendation, error) {
	key, ok := catalog.ParseID(userID)
	if !ok {
		return []catalog.Recommendation{}, nil
	}
	rows, err := s.pool.Query(ctx, recommendationsSQL, key, catalog.TopN)
	if err != nil {
		return nil, fmt.Errorf("failed to query recommendations: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (catalog.Recommendation, error) {
		var (
			rid int64
			rec catalog.Recommendation
		)
		err := row.Scan(&rid, &rec.Name, &rec.Score)
		rec.ProductID = formatID(rid)
		return rec, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read recommendations: %w", err)
	}
	return out, nil
}
