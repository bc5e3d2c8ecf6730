// Package memstore is an in-process store implementing both the write side
// used by the generator and the catalog queries. Its query code is the
// reference for reachability semantics and it stands in for either backend
// in dry runs and tests.
package memstore

import (
	"context"
	"math/rand"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/dd0wney/cluso-bench/pkg/catalog"
	"github.com/dd0wney/cluso-bench/pkg/model"
)

// Hook runs before every call with the call's operation name. A non-nil
// error fails the call. Hooks may block to simulate slow backends.
type Hook func(ctx context.Context, op string) error

// Store holds users, products and the two edge sets
type Store struct {
	mu        sync.RWMutex
	nextID    int64
	users     map[string]model.User
	products  map[string]model.Product
	following map[string]map[string]struct{}
	followers map[string]map[string]struct{}
	bought    map[string]map[string]struct{}
	buyers    map[string]map[string]struct{}
	purchases int64

	hookMu sync.RWMutex
	hook   Hook
}

// New creates an empty store
func New() *Store {
	return &Store{
		users:     make(map[string]model.User),
		products:  make(map[string]model.Product),
		following: make(map[string]map[string]struct{}),
		followers: make(map[string]map[string]struct{}),
		bought:    make(map[string]map[string]struct{}),
		buyers:    make(map[string]map[string]struct{}),
	}
}

// SetHook installs a hook, nil removes it
func (s *Store) SetHook(h Hook) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.hook = h
}

func (s *Store) enter(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.hookMu.RLock()
	h := s.hook
	s.hookMu.RUnlock()
	if h != nil {
		return h(ctx, op)
	}
	return nil
}

func (s *Store) allocID() string {
	s.nextID++
	return strconv.FormatInt(s.nextID, 10)
}

// Counts reports the stored entity and edge totals
func (s *Store) Counts() (users, products, follows, purchases int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, set := range s.following {
		follows += len(set)
	}
	return len(s.users), len(s.products), follows, int(s.purchases)
}

// Follows returns every stored follow edge
func (s *Store) Follows() []model.Follow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Follow
	for from, set := range s.following {
		for to := range set {
			out = append(out, model.Follow{FollowerID: from, FollowedID: to})
		}
	}
	return out
}

func link(m map[string]map[string]struct{}, a, b string) bool {
	set, ok := m[a]
	if !ok {
		set = make(map[string]struct{})
		m[a] = set
	}
	if _, exists := set[b]; exists {
		return false
	}
	set[b] = struct{}{}
	return true
}

func (s *Store) putUser(u model.User) {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	s.users[u.ID] = u
}

func (s *Store) putProduct(p model.Product) {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	s.products[p.ID] = p
}

func (s *Store) addFollow(f model.Follow) error {
	if err := model.ValidateFollow(f); err != nil {
		return err
	}
	if _, ok := s.users[f.FollowerID]; !ok {
		return model.ErrEntityNotFound
	}
	if _, ok := s.users[f.FollowedID]; !ok {
		return model.ErrEntityNotFound
	}
	link(s.following, f.FollowerID, f.FollowedID)
	link(s.followers, f.FollowedID, f.FollowerID)
	return nil
}

func (s *Store) addPurchase(userID, productID string) error {
	if _, ok := s.users[userID]; !ok {
		return model.ErrEntityNotFound
	}
	if _, ok := s.products[productID]; !ok {
		return model.ErrEntityNotFound
	}
	link(s.bought, userID, productID)
	link(s.buyers, productID, userID)
	s.purchases++
	return nil
}

// SampleUserIDs returns up to limit random user ids
func (s *Store) SampleUserIDs(ctx context.Context, limit int) ([]string, error) {
	if err := s.enter(ctx, "sample_users"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sample(s.users, limit), nil
}

// SampleProductIDs returns up to limit random product ids
func (s *Store) SampleProductIDs(ctx context.Context, limit int) ([]string, error) {
	if err := s.enter(ctx, "sample_products"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sample(s.products, limit), nil
}

func sample[V any](m map[string]V, limit int) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	rand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	if limit >= 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids
}

func sortedIDs(set map[string]struct{}) []string {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return catalog.LessID(ids[i], ids[j]) })
	return ids
}
