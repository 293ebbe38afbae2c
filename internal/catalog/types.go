package catalog

import "time"

// Product is a catalog entry together with its precomputed embedding.
type Product struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Brand       string    `json:"brand"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       float64   `json:"price"`
	Embedding   []float32 `json:"embedding,omitempty"`
}

// Summary returns the product without its embedding.
func (p Product) Summary() ProductSummary {
	return ProductSummary{
		ID:          p.ID,
		Type:        p.Type,
		Brand:       p.Brand,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
	}
}

// ProductSummary is the product shape returned to tools and API callers.
// Embeddings never leave the store.
type ProductSummary struct {
	ID          string  `json:"id"`
	Type        string  `json:"type"`
	Brand       string  `json:"brand"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
}

// LineItem is a product reference held in a cart or an order.
type LineItem struct {
	ID       string  `json:"id"` // Product id
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// Cart is the shopping cart of one user. There is at most one cart per user.
type Cart struct {
	ID       string     `json:"id"`
	UserName string     `json:"userName"`
	Items    []LineItem `json:"items"`
}

// Order is a completed purchase with a snapshot of its items.
type Order struct {
	ID        string     `json:"id"`
	Email     string     `json:"email,omitempty"`
	Items     []LineItem `json:"items"`
	Total     float64    `json:"total"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
}

// OrderStatusCompleted is assigned to orders created without an explicit status.
const OrderStatusCompleted = "completed"
