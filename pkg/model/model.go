// Package model holds the entities shared by both backends.
package model

import (
	"time"
)

// Backend names one of the two stores under comparison.
type Backend string

const (
	PostgreSQL Backend = "postgresql"
	Neo4j      Backend = "neo4j"
)

// Backends lists the stores in the order they are always invoked.
var Backends = []Backend{PostgreSQL, Neo4j}

// String returns the backend name
func (b Backend) String() string {
	return string(b)
}

// Title returns the display name used in summaries
func (b Backend) Title() string {
	switch b {
	case PostgreSQL:
		return "PostgreSQL"
	case Neo4j:
		return "Neo4j"
	default:
		return string(b)
	}
}

// Kind identifies what a generation phase produces.
type Kind string

const (
	KindUser     Kind = "users"
	KindProduct  Kind = "products"
	KindFollow   Kind = "follows"
	KindPurchase Kind = "purchases"
)

// Kinds is the fixed generation order.
var Kinds = []Kind{KindUser, KindProduct, KindFollow, KindPurchase}

// NewUser is a user that has not been assigned an identifier yet.
type NewUser struct {
	Name         string
	Email        string
	PasswordHash string
}

// User is a user committed to the relational store. ID is the relational
// primary key rendered as a string, mirrored verbatim into the graph.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewProduct is a product that has not been assigned an identifier yet.
type NewProduct struct {
	Name     string
	Category string
	Price    float64
}

// Product is a product committed to the relational store.
type Product struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Category  string    `json:"category"`
	Price     float64   `json:"price"`
	CreatedAt time.Time `json:"created_at"`
}

// Follow is a directed edge from follower to followed.
type Follow struct {
	FollowerID string    `json:"follower_id"`
	FollowedID string    `json:"followed_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// Purchase links a user to a product it bought.
type Purchase struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	ProductID string    `json:"product_id"`
	CreatedAt time.Time `json:"created_at"`
}

// ValidateFollow rejects edges that would point a user at itself.
func ValidateFollow(f Follow) error {
	if f.FollowerID == "" || f.FollowedID == "" {
		return ErrInvalidEdge
	}
	if f.FollowerID == f.FollowedID {
		return ErrSelfFollow
	}
	return nil
}

// UserIDs extracts identifiers, preserving order.
func UserIDs(users []User) []string {
	ids := make([]string, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}
	return ids
}

// ProductIDs extracts identifiers, preserving order.
func ProductIDs(products []Product) []string {
	ids := make([]string, len(products))
	for i, p := range products {
		ids[i] = p.ID
	}
	return ids
}
