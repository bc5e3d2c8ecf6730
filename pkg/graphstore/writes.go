package graphstore

import (
	"context"
	"fmt"

	"github.com/dd0wney/cluso-bench/pkg/model"
)

const (
	upsertUsersCypher = `
		UNWIND $rows AS row
		MERGE (u:User {id: row.id})
		SET u.name = row.name, u.email = row.email, u.created_at = row.created_at`

	upsertProductsCypher = `
		UNWIND $rows AS row
		MERGE (p:Product {id: row.id})
		SET p.name = row.name, p.category = row.category, p.price = row.price, p.created_at = row.created_at`

	createFollowCypher = `
		MATCH (a:User {id: $follower_id}), (b:User {id: $followed_id})
		MERGE (a)-[r:FOLLOWS]->(b)
		ON CREATE SET r.created_at = $created_at
		RETURN count(r) AS linked`

	createPurchaseCypher = `
		MATCH (u:User {id: $user_id}), (p:Product {id: $product_id})
		MERGE (u)-[r:BOUGHT {purchase_id: $purchase_id}]->(p)
		ON CREATE SET r.timestamp = $timestamp
		RETURN count(r) AS linked`
)

func userRow(u model.User) map[string]any {
	return map[string]any{
		"id":         u.ID,
		"name":       u.Name,
		"email":      u.Email,
		"created_at": u.CreatedAt,
	}
}

func productRow(p model.Product) map[string]any {
	return map[string]any{
		"id":         p.ID,
		"name":       p.Name,
		"category":   p.Category,
		"price":      p.Price,
		"created_at": p.CreatedAt,
	}
}

// UpsertUsers mirrors a batch with one UNWIND MERGE
func (s *Store) UpsertUsers(ctx context.Context, users []model.User) error {
	if len(users) == 0 {
		return nil
	}
	rows := make([]map[string]any, len(users))
	for i, u := range users {
		rows[i] = userRow(u)
	}
	if _, err := s.write(ctx, upsertUsersCypher, map[string]any{"rows": rows}); err != nil {
		return fmt.Errorf("failed to upsert users: %w", err)
	}
	return nil
}

// UpsertUser mirrors one user
func (s *Store) UpsertUser(ctx context.Context, u model.User) error {
	return s.UpsertUsers(ctx, []model.User{u})
}

// UpsertProducts mirrors a batch with one UNWIND MERGE
func (s *Store) UpsertProducts(ctx context.Context, products []model.Product) error {
	if len(products) == 0 {
		return nil
	}
	rows := make([]map[string]any, len(products))
	for i, p := range products {
		rows[i] = productRow(p)
	}
	if _, err := s.write(ctx, upsertProductsCypher, map[string]any{"rows": rows}); err != nil {
		return fmt.Errorf("failed to upsert products: %w", err)
	}
	return nil
}

// UpsertProduct mirrors one product
func (s *Store) UpsertProduct(ctx context.Context, p model.Product) error {
	return s.UpsertProducts(ctx, []model.Product{p})
}

// CreateFollow merges a FOLLOWS relationship between existing users
func (s *Store) CreateFollow(ctx context.Context, f model.Follow) error {
	if err := model.ValidateFollow(f); err != nil {
		return err
	}
	records, err := s.write(ctx, createFollowCypher, map[string]any{
		"follower_id": f.FollowerID,
		"followed_id": f.FollowedID,
		"created_at":  f.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to create follow: %w", err)
	}
	if len(records) == 0 || getInt64(records[0], "linked") == 0 {
		return fmt.Errorf("%w: follow %s -> %s", model.ErrEntityNotFound, f.FollowerID, f.FollowedID)
	}
	return nil
}

// CreatePurchase merges a BOUGHT relationship keyed by purchase id
func (s *Store) CreatePurchase(ctx context.Context, p model.Purchase) error {
	records, err := s.write(ctx, createPurchaseCypher, map[string]any{
		"user_id":     p.UserID,
		"product_id":  p.ProductID,
		"purchase_id": p.ID,
		"timestamp":   p.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to create purchase: %w", err)
	}
	if len(records) == 0 || getInt64(records[0], "linked") == 0 {
		return fmt.Errorf("%w: purchase %s -> %s", model.ErrEntityNotFound, p.UserID, p.ProductID)
	}
	return nil
}
