package memstore

import (
	"context"
	"sort"

	"github.com/dd0wney/cluso-bench/pkg/catalog"
)

// reach returns every node at the end of a walk of length 1..level starting
// at from, following edges in adj. from itself is included only when a cycle
// leads back to it.
func reach(adj map[string]map[string]struct{}, from string, level int) map[string]struct{} {
	seen := make(map[string]struct{})
	frontier := []string{from}
	for depth := 1; depth <= level && len(frontier) > 0; depth++ {
		var next []string
		for _, u := range frontier {
			for v := range adj[u] {
				if _, ok := seen[v]; ok {
					continue
				}
				seen[v] = struct{}{}
				next = append(next, v)
			}
		}
		frontier = next
	}
	return seen
}

// GetUser implements catalog.Backend
func (s *Store) GetUser(ctx context.Context, id string) (catalog.UserRecord, error) {
	if err := s.enter(ctx, "get_user"); err != nil {
		return catalog.UserRecord{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return catalog.UserRecord{ID: id}, nil
	}
	return catalog.UserRecord{ID: u.ID, Name: u.Name, Email: u.Email}, nil
}

// GetProduct implements catalog.Backend
func (s *Store) GetProduct(ctx context.Context, id string) (catalog.ProductRecord, error) {
	if err := s.enter(ctx, "get_product"); err != nil {
		return catalog.ProductRecord{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return catalog.ProductRecord{ID: id}, nil
	}
	return catalog.ProductRecord{ID: p.ID, Name: p.Name, Category: p.Category, Price: p.Price}, nil
}

func (s *Store) userRecords(ids []string) []catalog.UserRecord {
	out := make([]catalog.UserRecord, 0, len(ids))
	for _, id := range ids {
		u := s.users[id]
		out = append(out, catalog.UserRecord{ID: u.ID, Name: u.Name, Email: u.Email})
	}
	return out
}

// FollowedUsers implements catalog.Backend
func (s *Store) FollowedUsers(ctx context.Context, userID string) ([]catalog.UserRecord, error) {
	if err := s.enter(ctx, "followed_users"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userRecords(sortedIDs(s.following[userID])), nil
}

// ProductBuyers implements catalog.Backend
func (s *Store) ProductBuyers(ctx context.Context, productID string) ([]catalog.UserRecord, error) {
	if err := s.enter(ctx, "product_buyers"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userRecords(sortedIDs(s.buyers[productID])), nil
}

func (s *Store) spreadingBuyers(productID string, level int) int64 {
	buyers := s.buyers[productID]
	var count int64
	for b1 := range buyers {
		reached := reach(s.following, b1, level)
		for b2 := range buyers {
			if b2 == b1 {
				continue
			}
			if _, ok := reached[b2]; ok {
				count++
				break
			}
		}
	}
	return count
}

// ProductVirality implements catalog.Backend
func (s *Store) ProductVirality(ctx context.Context, productID string, level int) (catalog.ViralityRecord, error) {
	if err := catalog.ValidateLevel(level); err != nil {
		return catalog.ViralityRecord{}, err
	}
	if err := s.enter(ctx, "product_virality"); err != nil {
		return catalog.ViralityRecord{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[productID]
	if !ok {
		return catalog.ViralityRecord{ID: productID}, nil
	}
	return catalog.ViralityRecord{
		ID:            p.ID,
		Name:          p.Name,
		Category:      p.Category,
		Price:         p.Price,
		PurchaseCount: s.spreadingBuyers(productID, level),
	}.Score(), nil
}

// UserInfluence implements catalog.Backend
func (s *Store) UserInfluence(ctx context.Context, userID string, level int) (catalog.InfluenceRecord, error) {
	if err := catalog.ValidateLevel(level); err != nil {
		return catalog.InfluenceRecord{}, err
	}
	if err := s.enter(ctx, "user_influence"); err != nil {
		return catalog.InfluenceRecord{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return catalog.InfluenceRecord{UserID: userID, Level: level}, nil
	}

	own := s.bought[userID]
	var followers int64
	// walking incoming edges from u finds exactly the users that reach u
	for f := range reach(s.followers, userID, level) {
		if f == userID {
			continue
		}
		for p := range s.bought[f] {
			if _, shared := own[p]; shared {
				followers++
				break
			}
		}
	}

	return catalog.InfluenceRecord{
		UserID:    u.ID,
		Name:      u.Name,
		Level:     level,
		Followers: followers,
		Products:  int64(len(own)),
	}.Score(), nil
}

// ViralProducts implements catalog.Backend
func (s *Store) ViralProducts(ctx context.Context, level int) ([]catalog.ViralityRecord, error) {
	if err := catalog.ValidateLevel(level); err != nil {
		return nil, err
	}
	if err := s.enter(ctx, "viral_products"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []catalog.ViralityRecord
	for id := range s.buyers {
		count := s.spreadingBuyers(id, level)
		if count == 0 {
			continue
		}
		p := s.products[id]
		out = append(out, catalog.ViralityRecord{
			ID: p.ID, Name: p.Name, Category: p.Category, Price: p.Price, PurchaseCount: count,
		}.Score())
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].ViralScore != out[j].ViralScore {
			return out[i].ViralScore > out[j].ViralScore
		}
		return catalog.LessID(out[i].ID, out[j].ID)
	})
	if len(out) > catalog.TopN {
		out = out[:catalog.TopN]
	}
	return out, nil
}

// Recommendations implements catalog.Backend
func (s *Store) Recommendations(ctx context.Context, userID string) ([]catalog.Recommendation, error) {
	if err := s.enter(ctx, "recommendations"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	own := s.bought[userID]
	scores := make(map[string]int64)
	for friend := range s.following[userID] {
		for p := range s.bought[friend] {
			if _, mine := own[p]; mine {
				continue
			}
			scores[p]++
		}
	}

	out := make([]catalog.Recommendation, 0, len(scores))
	for id, score := range scores {
		out = append(out, catalog.Recommendation{ProductID: id, Name: s.products[id].Name, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return catalog.LessID(out[i].ProductID, out[j].ProductID)
	})
	if len(out) > catalog.TopN {
		out = out[:catalog.TopN]
	}
	return out, nil
}
