package graphstore

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/dd0wney/cluso-bench/pkg/catalog"
)

// Variable-length bounds cannot be parameters, so the leveled templates take
// the validated hop bound through hops().
const (
	getUserCypher = `MATCH (u:User {id: $id}) RETURN u.id AS id, u.name AS name, u.email AS email`

	getProductCypher = `
		MATCH (p:Product {id: $id})
		RETURN p.id AS id, p.name AS name, p.category AS category, p.price AS price`

	followedUsersCypher = `
		MATCH (:User {id: $id})-[:FOLLOWS]->(f:User)
		RETURN f.id AS id, f.name AS name, f.email AS email
		ORDER BY toInteger(f.id)`

	productBuyersCypher = `
		MATCH (u:User)-[:BOUGHT]->(:Product {id: $id})
		WITH DISTINCT u
		RETURN u.id AS id, u.name AS name, u.email AS email
		ORDER BY toInteger(u.id)`

	productViralityCypher = `
		MATCH (p:Product {id: $id})
		OPTIONAL MATCH (b:User)-[:BOUGHT]->(p)
		WHERE EXISTS {
			MATCH (b)-[:FOLLOWS%s]->(other:User)-[:BOUGHT]->(p)
			WHERE other <> b
		}
		RETURN p.id AS id, p.name AS name, p.category AS category, p.price AS price,
			count(DISTINCT b) AS purchase_count`

	userInfluenceCypher = `
		MATCH (u:User {id: $id})
		CALL {
			WITH u
			OPTIONAL MATCH (u)-[:BOUGHT]->(p:Product)
			RETURN count(DISTINCT p) AS products
		}
		CALL {
			WITH u
			OPTIONAL MATCH (f:User)-[:FOLLOWS%s]->(u)
			WHERE f <> u AND EXISTS { MATCH (f)-[:BOUGHT]->(:Product)<-[:BOUGHT]-(u) }
			RETURN count(DISTINCT f) AS followers
		}
		RETURN u.id AS id, u.name AS name, followers, products`

	viralProductsCypher = `
		MATCH (b:User)-[:BOUGHT]->(p:Product)
		WHERE EXISTS {
			MATCH (b)-[:FOLLOWS%s]->(other:User)-[:BOUGHT]->(p)
			WHERE other <> b
		}
		WITH p, count(DISTINCT b) AS purchase_count
		RETURN p.id AS id, p.name AS name, p.category AS category, p.price AS price, purchase_count
		ORDER BY CASE WHEN p.price > 0 THEN toFloat(purchase_count) / p.price ELSE 0.0 END DESC,
			toInteger(p.id)
		LIMIT $limit`

	recommendationsCypher = `
		MATCH (u:User {id: $id})-[:FOLLOWS]->(f:User)-[:BOUGHT]->(p:Product)
		WHERE NOT EXISTS { MATCH (u)-[:BOUGHT]->(p) }
		RETURN p.id AS id, p.name AS name, count(DISTINCT f) AS score
		ORDER BY score DESC, toInteger(p.id)
		LIMIT $limit`
)

// hops renders the variable-length bound for a validated level
func hops(level int) string {
	return fmt.Sprintf("*1..%d", level)
}

func leveled(template string, level int) string {
	return fmt.Sprintf(template, hops(level))
}

func toUser(r *neo4j.Record) catalog.UserRecord {
	return catalog.UserRecord{
		ID:    getString(r, "id"),
		Name:  getString(r, "name"),
		Email: getString(r, "email"),
	}
}

func toVirality(r *neo4j.Record) catalog.ViralityRecord {
	return catalog.ViralityRecord{
		ID:            getString(r, "id"),
		Name:          getString(r, "name"),
		Category:      getString(r, "category"),
		Price:         getFloat64(r, "price"),
		PurchaseCount: getInt64(r, "purchase_count"),
	}.Score()
}

// GetUser implements catalog.Backend
func (s *Store) GetUser(ctx context.Context, id string) (catalog.UserRecord, error) {
	records, err := s.read(ctx, getUserCypher, map[string]any{"id": id})
	if err != nil {
		return catalog.UserRecord{}, fmt.Errorf("failed to get user: %w", err)
	}
	if len(records) == 0 {
		return catalog.UserRecord{ID: id}, nil
	}
	return toUser(records[0]), nil
}

// GetProduct implements catalog.Backend
func (s *Store) GetProduct(ctx context.Context, id string) (catalog.ProductRecord, error) {
	records, err := s.read(ctx, getProductCypher, map[string]any{"id": id})
	if err != nil {
		return catalog.ProductRecord{}, fmt.Errorf("failed to get product: %w", err)
	}
	if len(records) == 0 {
		return catalog.ProductRecord{ID: id}, nil
	}
	r := records[0]
	return catalog.ProductRecord{
		ID:       getString(r, "id"),
		Name:     getString(r, "name"),
		Category: getString(r, "category"),
		Price:    getFloat64(r, "price"),
	}, nil
}

func (s *Store) userList(ctx context.Context, cypher, id, what string) ([]catalog.UserRecord, error) {
	records, err := s.read(ctx, cypher, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", what, err)
	}
	users := make([]catalog.UserRecord, 0, len(records))
	for _, r := range records {
		users = append(users, toUser(r))
	}
	return users, nil
}

// FollowedUsers implements catalog.Backend
func (s *Store) FollowedUsers(ctx context.Context, userID string) ([]catalog.UserRecord, error) {
	return s.userList(ctx, followedUsersCypher, userID, "followed users")
}

// ProductBuyers implements catalog.Backend
func (s *Store) ProductBuyers(ctx context.Context, productID string) ([]catalog.UserRecord, error) {
	return s.userList(ctx, productBuyersCypher, productID, "product buyers")
}

// ProductVirality implements catalog.Backend
func (s *Store) ProductVirality(ctx context.Context, productID string, level int) (catalog.ViralityRecord, error) {
	if err := catalog.ValidateLevel(level); err != nil {
		return catalog.ViralityRecord{}, err
	}
	records, err := s.read(ctx, leveled(productViralityCypher, level), map[string]any{"id": productID})
	if err != nil {
		return catalog.ViralityRecord{}, fmt.Errorf("failed to query product virality: %w", err)
	}
	if len(records) == 0 {
		return catalog.ViralityRecord{ID: productID}, nil
	}
	return toVirality(records[0]), nil
}

// UserInfluence implements catalog.Backend
func (s *Store) UserInfluence(ctx context.Context, userID string, level int) (catalog.InfluenceRecord, error) {
	if err := catalog.ValidateLevel(level); err != nil {
		return catalog.InfluenceRecord{}, err
	}
	records, err := s.read(ctx, leveled(userInfluenceCypher, level), map[string]any{"id": userID})
	if err != nil {
		return catalog.InfluenceRecord{}, fmt.Errorf("failed to query user influence: %w", err)
	}
	if len(records) == 0 {
		return catalog.InfluenceRecord{UserID: userID, Level: level}, nil
	}
	r := records[0]
	return catalog.InfluenceRecord{
		UserID:    getString(r, "id"),
		Name:      getString(r, "name"),
		Level:     level,
		Followers: getInt64(r, "followers"),
		Products:  getInt64(r, "products"),
	}.Score(), nil
}

// ViralProducts implements catalog.Backend
func (s *Store) ViralProducts(ctx context.Context, level int) ([]catalog.ViralityRecord, error) {
	if err := catalog.ValidateLevel(level); err != nil {
		return nil, err
	}
	records, err := s.read(ctx, leveled(viralProductsCypher, level), map[string]any{"limit": catalog.TopN})
	if err != nil {
		return nil, fmt.Errorf("failed to query viral products: %w", err)
	}
	out := make([]catalog.ViralityRecord, 0, len(records))
	for _, r := range records {
		out = append(out, toVirality(r))
	}
	return out, nil
}

// Recommendations implements catalog.Backend
func (s *Store) Recommendations(ctx context.Context, userID string) ([]catalog.Recommendation, error) {
	records, err := s.read(ctx, recommendationsCypher, map[string]any{"id": userID, "limit": catalog.TopN})
	if err != nil {
		return nil, fmt.Errorf("failed to query recommendations: %w", err)
	}
	out := make([]catalog.Recommendation, 0, len(records))
	for _, r := range records {
		out = append(out, catalog.Recommendation{
			ProductID: getString(r, "id"),
			Name:      getString(r, "name"),
			Score:     getInt64(r, "score"),
		})
	}
	return out, nil
}

// SampleUserIDs returns up to limit random user ids
func (s *Store) SampleUserIDs(ctx context.Context, limit int) ([]string, error) {
	return s.sample(ctx, "User", limit)
}

// SampleProductIDs returns up to limit random product ids
func (s *Store) SampleProductIDs(ctx context.Context, limit int) ([]string, error) {
	return s.sample(ctx, "Product", limit)
}

func (s *Store) sample(ctx context.Context, label string, limit int) ([]string, error) {
	cypher := fmt.Sprintf(`MATCH (n:%s) WITH n, rand() AS r ORDER BY r LIMIT $limit RETURN n.id AS id`, label)
	records, err := s.read(ctx, cypher, map[string]any{"limit": limit})
	if err != nil {
		return nil, fmt.Errorf("failed to sample %s ids: %w", label, err)
	}
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, getString(r, "id"))
	}
	return ids, nil
}
