package catalog

import (
	"context"
	"errors"
	"sort"
)

// SearchLimit caps the number of products returned by a vector search.
const SearchLimit = 10

// ErrNotFound is returned when a requested document does not exist.
var ErrNotFound = errors.New("not found")

// ProductSearcher orders products by vector distance to an embedding.
type ProductSearcher interface {
	// SearchProducts returns at most limit products, nearest first.
	SearchProducts(ctx context.Context, embedding []float32, limit int) ([]ProductSummary, error)
}

// ProductCatalog lists products.
type ProductCatalog interface {
	// ListProducts returns the products with the given ids, or the whole
	// catalog when ids is empty.
	ListProducts(ctx context.Context, ids []string) ([]ProductSummary, error)
}

// ProductWriter stores products with their embeddings.
type ProductWriter interface {
	UpsertProduct(ctx context.Context, p Product) error
}

// OrderStore persists and queries orders.
type OrderStore interface {
	CreateOrder(ctx context.Context, o Order) (Order, error)
	GetOrder(ctx context.Context, id string) (Order, error)
	// ListOrdersByEmail returns the orders for exactly email, newest first.
	ListOrdersByEmail(ctx context.Context, email string) ([]Order, error)
}

// CartStore persists one cart per user.
type CartStore interface {
	// LoadCart returns ErrNotFound when the user has no cart.
	LoadCart(ctx context.Context, userName string) (Cart, error)
	// StoreCart replaces the items of the user's existing cart, or creates one.
	StoreCart(ctx context.Context, c Cart) (Cart, error)
}

// Store is the full Catalog Store used by the shop binaries.
type Store interface {
	ProductSearcher
	ProductCatalog
	ProductWriter
	OrderStore
	CartStore
	Close() error
}

// sortNewestFirst orders by creation time descending, keeping the input
// order for equal timestamps.
func sortNewestFirst(orders []Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
}
