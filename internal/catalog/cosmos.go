package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/data/azcosmos"
	"github.com/google/uuid"
)

// CosmosConfig locates the account, database and containers. Every container
// is expected to be partitioned on /id.
type CosmosConfig struct {
	Endpoint          string
	Key               string // Account key; Microsoft Entra ID is used when empty
	TenantID          string
	Database          string
	ProductsContainer string
	CartsContainer    string
	OrdersContainer   string
}

// CosmosStore implements Store on Azure Cosmos DB for NoSQL. Vector search is
// delegated to the VectorDistance system function.
type CosmosStore struct {
	client   *azcosmos.Client
	cfg      CosmosConfig
	products *azcosmos.ContainerClient
	carts    *azcosmos.ContainerClient
	orders   *azcosmos.ContainerClient
	logger   *slog.Logger
}

var _ Store = (*CosmosStore)(nil)

// Every query below runs across partitions, where the gateway only accepts
// plain projections and filters. Ranking, ordering and limits happen here.
const (
	searchProductsQuery = `SELECT c.id, c.type, c.brand, c.name, c.description, c.price,
		VectorDistance(c.embedding, @queryEmbedding) AS similarityScore
		FROM c`
	listProductsQuery    = `SELECT c.id, c.type, c.brand, c.name, c.description, c.price FROM c`
	listProductsIDsQuery = listProductsQuery + ` WHERE ARRAY_CONTAINS(@ids, c.id)`
	loadCartQuery        = `SELECT * FROM c WHERE c.userName = @userName`
	ordersByEmailQuery   = `SELECT * FROM c WHERE c.email = @email`
)

// scoredSummary is a search row. With the default cosine function a higher
// VectorDistance score means a closer match.
type scoredSummary struct {
	ProductSummary
	SimilarityScore float64 `json:"similarityScore"`
}

// mostSimilar orders rows by descending score and keeps the first limit.
// Ties keep query order.
func mostSimilar(rows []scoredSummary, limit int) []ProductSummary {
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].SimilarityScore > rows[j].SimilarityScore
	})
	if limit > len(rows) {
		limit = len(rows)
	}
	if limit < 0 {
		limit = 0
	}

	results := make([]ProductSummary, limit)
	for i := range results {
		results[i] = rows[i].ProductSummary
	}
	return results
}

// NewCosmosStore builds the Cosmos client once for the process lifetime.
func NewCosmosStore(cfg CosmosConfig, logger *slog.Logger) (*CosmosStore, error) {
	logger = logger.With("component", "catalog", "backend", "cosmos")

	var client *azcosmos.Client
	if cfg.Key != "" {
		cred, err := azcosmos.NewKeyCredential(cfg.Key)
		if err != nil {
			return nil, fmt.Errorf("creating key credential: %w", err)
		}
		client, err = azcosmos.NewClientWithKey(cfg.Endpoint, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("creating cosmos client: %w", err)
		}
	} else {
		cred, err := azidentity.NewDefaultAzureCredential(&azidentity.DefaultAzureCredentialOptions{
			TenantID: cfg.TenantID,
		})
		if err != nil {
			return nil, fmt.Errorf("creating azure credential: %w", err)
		}
		client, err = azcosmos.NewClient(cfg.Endpoint, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("creating cosmos client: %w", err)
		}
	}

	s := &CosmosStore{client: client, cfg: cfg, logger: logger}

	var err error
	if s.products, err = client.NewContainer(cfg.Database, cfg.ProductsContainer); err != nil {
		return nil, fmt.Errorf("products container: %w", err)
	}
	if s.carts, err = client.NewContainer(cfg.Database, cfg.CartsContainer); err != nil {
		return nil, fmt.Errorf("carts container: %w", err)
	}
	if s.orders, err = client.NewContainer(cfg.Database, cfg.OrdersContainer); err != nil {
		return nil, fmt.Errorf("orders container: %w", err)
	}

	logger.Info("Cosmos DB store initialized",
		"endpoint", cfg.Endpoint,
		"database", cfg.Database,
		"products", cfg.ProductsContainer,
		"carts", cfg.CartsContainer,
		"orders", cfg.OrdersContainer)
	return s, nil
}

// EnsureProductsContainer creates the database and products container when
// they do not exist yet. Used by the catalog loader.
func (s *CosmosStore) EnsureProductsContainer(ctx context.Context) error {
	s.logger.Info("Creating database if it does not exist", "database", s.cfg.Database)
	_, err := s.client.CreateDatabase(ctx, azcosmos.DatabaseProperties{ID: s.cfg.Database}, nil)
	if err != nil && !hasStatus(err, http.StatusConflict) {
		return fmt.Errorf("creating database: %w", err)
	}

	db, err := s.client.NewDatabase(s.cfg.Database)
	if err != nil {
		return fmt.Errorf("database client: %w", err)
	}

	s.logger.Info("Creating container if it does not exist", "container", s.cfg.ProductsContainer)
	_, err = db.CreateContainer(ctx, azcosmos.ContainerProperties{
		ID: s.cfg.ProductsContainer,
		PartitionKeyDefinition: azcosmos.PartitionKeyDefinition{
			Paths: []string{"/id"},
		},
	}, nil)
	if err != nil && !hasStatus(err, http.StatusConflict) {
		return fmt.Errorf("creating products container: %w", err)
	}
	return nil
}

// Close is a no-op; the Cosmos client holds no resources that need releasing.
func (s *CosmosStore) Close() error {
	return nil
}

// UpsertProduct writes the product document including its embedding.
func (s *CosmosStore) UpsertProduct(ctx context.Context, p Product) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding product: %w", err)
	}
	if _, err := s.products.UpsertItem(ctx, azcosmos.NewPartitionKeyString(p.ID), doc, nil); err != nil {
		return fmt.Errorf("upserting product %s: %w", p.ID, err)
	}
	return nil
}

// SearchProducts scores every product with VectorDistance and returns the
// limit closest.
func (s *CosmosStore) SearchProducts(ctx context.Context, embedding []float32, limit int) ([]ProductSummary, error) {
	start := time.Now()
	rows, err := queryAll[scoredSummary](ctx, s.products, searchProductsQuery,
		azcosmos.QueryParameter{Name: "@queryEmbedding", Value: embedding},
	)
	if err != nil {
		return nil, fmt.Errorf("searching products: %w", err)
	}
	products := mostSimilar(rows, limit)
	s.logger.Debug("Vector search completed", "scored", len(rows), "results", len(products), "duration_ms", time.Since(start).Milliseconds())
	return products, nil
}

// ListProducts returns the whole catalog, or only the given ids.
func (s *CosmosStore) ListProducts(ctx context.Context, ids []string) ([]ProductSummary, error) {
	var (
		products []ProductSummary
		err      error
	)
	if len(ids) > 0 {
		products, err = queryAll[ProductSummary](ctx, s.products, listProductsIDsQuery,
			azcosmos.QueryParameter{Name: "@ids", Value: ids})
	} else {
		products, err = queryAll[ProductSummary](ctx, s.products, listProductsQuery)
	}
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return products, nil
}

// LoadCart returns the user's cart or ErrNotFound.
func (s *CosmosStore) LoadCart(ctx context.Context, userName string) (Cart, error) {
	carts, err := queryAll[Cart](ctx, s.carts, loadCartQuery,
		azcosmos.QueryParameter{Name: "@userName", Value: userName})
	if err != nil {
		return Cart{}, fmt.Errorf("loading cart: %w", err)
	}
	if len(carts) == 0 {
		return Cart{}, ErrNotFound
	}
	return carts[0], nil
}

// StoreCart replaces the items on the user's existing cart document, or
// creates a new one.
func (s *CosmosStore) StoreCart(ctx context.Context, c Cart) (Cart, error) {
	existing, err := s.LoadCart(ctx, c.UserName)
	switch {
	case err == nil:
		c.ID = existing.ID
	case errors.Is(err, ErrNotFound):
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
	default:
		return Cart{}, err
	}
	if c.Items == nil {
		c.Items = []LineItem{}
	}

	doc, err := json.Marshal(c)
	if err != nil {
		return Cart{}, fmt.Errorf("encoding cart: %w", err)
	}
	if _, err := s.carts.UpsertItem(ctx, azcosmos.NewPartitionKeyString(c.ID), doc, nil); err != nil {
		return Cart{}, fmt.Errorf("storing cart: %w", err)
	}
	return c, nil
}

// CreateOrder inserts the order document.
func (s *CosmosStore) CreateOrder(ctx context.Context, o Order) (Order, error) {
	doc, err := json.Marshal(o)
	if err != nil {
		return Order{}, fmt.Errorf("encoding order: %w", err)
	}
	if _, err := s.orders.CreateItem(ctx, azcosmos.NewPartitionKeyString(o.ID), doc, nil); err != nil {
		return Order{}, fmt.Errorf("creating order %s: %w", o.ID, err)
	}
	return o, nil
}

// GetOrder point-reads the order with id or returns ErrNotFound.
func (s *CosmosStore) GetOrder(ctx context.Context, id string) (Order, error) {
	resp, err := s.orders.ReadItem(ctx, azcosmos.NewPartitionKeyString(id), id, nil)
	if hasStatus(err, http.StatusNotFound) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, fmt.Errorf("getting order: %w", err)
	}

	var o Order
	if err := json.Unmarshal(resp.Value, &o); err != nil {
		return Order{}, fmt.Errorf("decoding order: %w", err)
	}
	return o, nil
}

// ListOrdersByEmail returns the orders placed with email, newest first.
func (s *CosmosStore) ListOrdersByEmail(ctx context.Context, email string) ([]Order, error) {
	orders, err := queryAll[Order](ctx, s.orders, ordersByEmailQuery,
		azcosmos.QueryParameter{Name: "@email", Value: email})
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	// createdAt strings only sort correctly when every writer used the same
	// precision, so order again on the parsed timestamps.
	sortNewestFirst(orders)
	return orders, nil
}

// queryAll drains a cross-partition query pager and decodes every item.
func queryAll[T any](ctx context.Context, container *azcosmos.ContainerClient, query string, params ...azcosmos.QueryParameter) ([]T, error) {
	pager := container.NewQueryItemsPager(query, azcosmos.NewPartitionKey(), &azcosmos.QueryOptions{
		QueryParameters: params,
	})

	items := []T{}
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		decoded, err := decodeItems[T](page.Items)
		if err != nil {
			return nil, err
		}
		items = append(items, decoded...)
	}
	return items, nil
}

func decodeItems[T any](raw [][]byte) ([]T, error) {
	items := make([]T, 0, len(raw))
	for _, b := range raw {
		var item T
		if err := json.Unmarshal(b, &item); err != nil {
			return nil, fmt.Errorf("decoding item: %w", err)
		}
		items = append(items, item)
	}
	return items, nil
}

// hasStatus reports whether err is an Azure response error with the given
// HTTP status.
func hasStatus(err error, status int) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == status
}
