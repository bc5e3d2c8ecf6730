package catalog

// UserRecord is the shape both backends return for a user lookup
type UserRecord struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// ProductRecord is the shape both backends return for a product lookup
type ProductRecord struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Price    float64 `json:"price"`
}

// ViralityRecord is a product together with how far its buyers spread it
type ViralityRecord struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Category      string  `json:"category"`
	Price         float64 `json:"price"`
	PurchaseCount int64   `json:"purchase_count"`
	ViralScore    float64 `json:"viral_score"`
}

// InfluenceRecord summarizes how many buyers a user reaches
type InfluenceRecord struct {
	UserID         string  `json:"user_id"`
	Name           string  `json:"name"`
	Level          int     `json:"level"`
	Followers      int64   `json:"followers"`
	Products       int64   `json:"products"`
	InfluenceScore float64 `json:"influence_score"`
}

// Recommendation is a product suggested through direct follows
type Recommendation struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Score     int64  `json:"score"`
}

// ViralScore is distinct spreading buyers per unit of price, 0 for free items
func ViralScore(purchaseCount int64, price float64) float64 {
	if price <= 0 {
		return 0
	}
	return float64(purchaseCount) / price
}

// InfluenceScore is reached co-buyers per distinct product bought
func InfluenceScore(followers, products int64) float64 {
	if products < 1 {
		products = 1
	}
	return float64(followers) / float64(products)
}

// Score fills in the derived score of r
func (r ViralityRecord) Score() ViralityRecord {
	r.ViralScore = ViralScore(r.PurchaseCount, r.Price)
	return r
}

// Score fills in the derived score of r
func (r InfluenceRecord) Score() InfluenceRecord {
	r.InfluenceScore = InfluenceScore(r.Followers, r.Products)
	return r
}
