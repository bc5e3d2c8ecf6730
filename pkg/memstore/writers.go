package memstore

import (
	"context"
	"strconv"
	"time"

	"github.com/dd0wney/cluso-bench/pkg/model"
)

// Relational is the id-allocating write view of a store
type Relational struct {
	s *Store
}

// AsRelational returns the write view that allocates identifiers
func (s *Store) AsRelational() *Relational {
	return &Relational{s: s}
}

// InsertUsers stores a batch, all or nothing
func (r *Relational) InsertUsers(ctx context.Context, batch []model.NewUser) ([]model.User, error) {
	if err := r.s.enter(ctx, "insert_users"); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]model.User, len(batch))
	for i, nu := range batch {
		out[i] = model.User{ID: r.s.allocID(), Name: nu.Name, Email: nu.Email, PasswordHash: nu.PasswordHash, CreatedAt: time.Now().UTC()}
		r.s.putUser(out[i])
	}
	return out, nil
}

// InsertUser stores one user
func (r *Relational) InsertUser(ctx context.Context, nu model.NewUser) (model.User, error) {
	if err := r.s.enter(ctx, "insert_user"); err != nil {
		return model.User{}, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u := model.User{ID: r.s.allocID(), Name: nu.Name, Email: nu.Email, PasswordHash: nu.PasswordHash, CreatedAt: time.Now().UTC()}
	r.s.putUser(u)
	return u, nil
}

// InsertProducts stores a batch, all or nothing
func (r *Relational) InsertProducts(ctx context.Context, batch []model.NewProduct) ([]model.Product, error) {
	if err := r.s.enter(ctx, "insert_products"); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]model.Product, len(batch))
	for i, np := range batch {
		out[i] = model.Product{ID: r.s.allocID(), Name: np.Name, Category: np.Category, Price: np.Price, CreatedAt: time.Now().UTC()}
		r.s.putProduct(out[i])
	}
	return out, nil
}

// InsertProduct stores one product
func (r *Relational) InsertProduct(ctx context.Context, np model.NewProduct) (model.Product, error) {
	if err := r.s.enter(ctx, "insert_product"); err != nil {
		return model.Product{}, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p := model.Product{ID: r.s.allocID(), Name: np.Name, Category: np.Category, Price: np.Price, CreatedAt: time.Now().UTC()}
	r.s.putProduct(p)
	return p, nil
}

// CreateFollow stores an edge. Existing edges are left alone.
func (r *Relational) CreateFollow(ctx context.Context, f model.Follow) error {
	if err := r.s.enter(ctx, "create_follow"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.addFollow(f)
}

// CreatePurchase records a purchase and allocates its id
func (r *Relational) CreatePurchase(ctx context.Context, userID, productID string) (model.Purchase, error) {
	if err := r.s.enter(ctx, "create_purchase"); err != nil {
		return model.Purchase{}, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.addPurchase(userID, productID); err != nil {
		return model.Purchase{}, err
	}
	return model.Purchase{
		ID:        strconv.FormatInt(r.s.purchases, 10),
		UserID:    userID,
		ProductID: productID,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Graph is the mirror write view, keyed by identifiers allocated elsewhere
type Graph struct {
	s *Store
}

// AsGraph returns the write view that accepts given identifiers
func (s *Store) AsGraph() *Graph {
	return &Graph{s: s}
}

// UpsertUsers merges a batch by id
func (g *Graph) UpsertUsers(ctx context.Context, users []model.User) error {
	if err := g.s.enter(ctx, "upsert_users"); err != nil {
		return err
	}
	g.s.mu.Lock()
	defer g.s.mu.Unlock()
	for _, u := range users {
		g.s.putUser(u)
	}
	return nil
}

// UpsertUser merges one user by id
func (g *Graph) UpsertUser(ctx context.Context, u model.User) error {
	if err := g.s.enter(ctx, "upsert_user"); err != nil {
		return err
	}
	g.s.mu.Lock()
	defer g.s.mu.Unlock()
	g.s.putUser(u)
	return nil
}

// UpsertProducts merges a batch by id
func (g *Graph) UpsertProducts(ctx context.Context, products []model.Product) error {
	if err := g.s.enter(ctx, "upsert_products"); err != nil {
		return err
	}
	g.s.mu.Lock()
	defer g.s.mu.Unlock()
	for _, p := range products {
		g.s.putProduct(p)
	}
	return nil
}

// UpsertProduct merges one product by id
func (g *Graph) UpsertProduct(ctx context.Context, p model.Product) error {
	if err := g.s.enter(ctx, "upsert_product"); err != nil {
		return err
	}
	g.s.mu.Lock()
	defer g.s.mu.Unlock()
	g.s.putProduct(p)
	return nil
}

// CreateFollow merges an edge between existing users
func (g *Graph) CreateFollow(ctx context.Context, f model.Follow) error {
	if err := g.s.enter(ctx, "create_follow"); err != nil {
		return err
	}
	g.s.mu.Lock()
	defer g.s.mu.Unlock()
	return g.s.addFollow(f)
}

// CreatePurchase records a purchase between existing nodes
func (g *Graph) CreatePurchase(ctx context.Context, p model.Purchase) error {
	if err := g.s.enter(ctx, "create_purchase"); err != nil {
		return err
	}
	g.s.mu.Lock()
	defer g.s.mu.Unlock()
	return g.s.addPurchase(p.UserID, p.ProductID)
}
