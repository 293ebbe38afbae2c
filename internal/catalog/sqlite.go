package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on a local SQLite database. Vector search is
// a brute-force cosine ranking over every stored embedding, which is fine for
// catalogs of a few thousand products.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the database at path. Use ":memory:" for
// a throwaway store.
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	logger = logger.With("component", "catalog", "backend", "sqlite")

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if path == ":memory:" {
		// Every pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS products (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			brand TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT NOT NULL,
			price REAL NOT NULL,
			embedding TEXT
		);

		CREATE TABLE IF NOT EXISTS carts (
			user_name TEXT PRIMARY KEY,
			id TEXT NOT NULL,
			items TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL DEFAULT '',
			items TEXT NOT NULL,
			total REAL NOT NULL,
			status TEXT NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_orders_email_created
			ON orders(email, created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// UpsertProduct inserts or replaces a product, keeping its catalog position.
func (s *SQLiteStore) UpsertProduct(ctx context.Context, p Product) error {
	embedding, err := json.Marshal(p.Embedding)
	if err != nil {
		return fmt.Errorf("encoding embedding: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO products (id, type, brand, name, description, price, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type = excluded.type,
			brand = excluded.brand,
			name = excluded.name,
			description = excluded.description,
			price = excluded.price,
			embedding = excluded.embedding`,
		p.ID, p.Type, p.Brand, p.Name, p.Description, p.Price, string(embedding))
	if err != nil {
		return fmt.Errorf("upserting product %s: %w", p.ID, err)
	}
	return nil
}

// SearchProducts ranks every product by cosine distance to embedding.
func (s *SQLiteStore) SearchProducts(ctx context.Context, embedding []float32, limit int) ([]ProductSummary, error) {
	products, err := s.queryProducts(ctx, true, nil)
	if err != nil {
		return nil, err
	}
	return nearest(products, embedding, limit), nil
}

// ListProducts returns products in catalog order.
func (s *SQLiteStore) ListProducts(ctx context.Context, ids []string) ([]ProductSummary, error) {
	products, err := s.queryProducts(ctx, false, ids)
	if err != nil {
		return nil, err
	}

	summaries := make([]ProductSummary, len(products))
	for i, p := range products {
		summaries[i] = p.Summary()
	}
	return summaries, nil
}

func (s *SQLiteStore) queryProducts(ctx context.Context, withEmbedding bool, ids []string) ([]Product, error) {
	query := "SELECT id, type, brand, name, description, price, embedding FROM products"
	var args []any
	if len(ids) > 0 {
		query += " WHERE id IN (?" + strings.Repeat(", ?", len(ids)-1) + ")"
		for _, id := range ids {
			args = append(args, id)
		}
	}
	query += " ORDER BY rowid"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying products: %w", err)
	}
	defer rows.Close()

	products := []Product{}
	for rows.Next() {
		var p Product
		var embedding sql.NullString
		if err := rows.Scan(&p.ID, &p.Type, &p.Brand, &p.Name, &p.Description, &p.Price, &embedding); err != nil {
			return nil, fmt.Errorf("scanning product: %w", err)
		}
		if withEmbedding && embedding.Valid {
			if err := json.Unmarshal([]byte(embedding.String), &p.Embedding); err != nil {
				return nil, fmt.Errorf("decoding embedding for %s: %w", p.ID, err)
			}
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// LoadCart returns the user's cart or ErrNotFound.
func (s *SQLiteStore) LoadCart(ctx context.Context, userName string) (Cart, error) {
	var c Cart
	var items string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, user_name, items FROM carts WHERE user_name = ?", userName,
	).Scan(&c.ID, &c.UserName, &items)
	if errors.Is(err, sql.ErrNoRows) {
		return Cart{}, ErrNotFound
	}
	if err != nil {
		return Cart{}, fmt.Errorf("loading cart: %w", err)
	}

	if err := json.Unmarshal([]byte(items), &c.Items); err != nil {
		return Cart{}, fmt.Errorf("decoding cart items: %w", err)
	}
	return c, nil
}

// StoreCart replaces the items of the user's cart, creating it if needed.
// An existing cart keeps its id.
func (s *SQLiteStore) StoreCart(ctx context.Context, c Cart) (Cart, error) {
	if existing, err := s.LoadCart(ctx, c.UserName); err == nil {
		c.ID = existing.ID
	} else if !errors.Is(err, ErrNotFound) {
		return Cart{}, err
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Items == nil {
		c.Items = []LineItem{}
	}

	items, err := json.Marshal(c.Items)
	if err != nil {
		return Cart{}, fmt.Errorf("encoding cart items: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO carts (user_name, id, items) VALUES (?, ?, ?)
		ON CONFLICT(user_name) DO UPDATE SET items = excluded.items`,
		c.UserName, c.ID, string(items))
	if err != nil {
		return Cart{}, fmt.Errorf("storing cart: %w", err)
	}
	return c, nil
}

// CreateOrder inserts a new order. The caller is responsible for defaults.
func (s *SQLiteStore) CreateOrder(ctx context.Context, o Order) (Order, error) {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return Order{}, fmt.Errorf("encoding order items: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO orders (id, email, items, total, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		o.ID, o.Email, string(items), o.Total, o.Status, o.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return Order{}, fmt.Errorf("creating order %s: %w", o.ID, err)
	}
	return o, nil
}

// GetOrder returns the order with id or ErrNotFound.
func (s *SQLiteStore) GetOrder(ctx context.Context, id string) (Order, error) {
	orders, err := s.queryOrders(ctx, "WHERE id = ?", id)
	if err != nil {
		return Order{}, err
	}
	if len(orders) == 0 {
		return Order{}, ErrNotFound
	}
	return orders[0], nil
}

// ListOrdersByEmail returns the orders placed with email, newest first.
func (s *SQLiteStore) ListOrdersByEmail(ctx context.Context, email string) ([]Order, error) {
	orders, err := s.queryOrders(ctx, "WHERE email = ?", email)
	if err != nil {
		return nil, err
	}
	sortNewestFirst(orders)
	return orders, nil
}

func (s *SQLiteStore) queryOrders(ctx context.Context, where string, args ...any) ([]Order, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, email, items, total, status, created_at FROM orders "+where, args...)
	if err != nil {
		return nil, fmt.Errorf("querying orders: %w", err)
	}
	defer rows.Close()

	orders := []Order{}
	for rows.Next() {
		var o Order
		var items, createdAt string
		if err := rows.Scan(&o.ID, &o.Email, &items, &o.Total, &o.Status, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning order: %w", err)
		}
		if err := json.Unmarshal([]byte(items), &o.Items); err != nil {
			return nil, fmt.Errorf("decoding order items: %w", err)
		}
		if o.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("parsing order timestamp: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}
