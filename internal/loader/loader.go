// Package loader seeds the Catalog Store from a catalog.json file.
package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/radutopala/cosmoshop/internal/catalog"
	"github.com/radutopala/cosmoshop/internal/embeddings"
)

// DefaultCatalogPath is read when no path is given.
const DefaultCatalogPath = "catalog.json"

// Loader embeds catalog products and writes them to a store.
type Loader struct {
	embedder embeddings.Embedder
	store    catalog.ProductWriter
	logger   *slog.Logger
}

// Result summarises one load.
type Result struct {
	Products int
	Duration time.Duration
}

// New creates a loader.
func New(embedder embeddings.Embedder, store catalog.ProductWriter, logger *slog.Logger) *Loader {
	return &Loader{
		embedder: embedder,
		store:    store,
		logger:   logger.With("component", "loader"),
	}
}

// LoadFile reads the catalog at path and loads it.
func (l *Loader) LoadFile(ctx context.Context, path string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("opening catalog: %w", err)
	}
	defer f.Close()

	return l.Load(ctx, f)
}

// Load decodes a JSON array of products from r, embeds each product's JSON
// serialisation and upserts it with its embedding. Products are written in
// file order and the first failure stops the load.
func (l *Loader) Load(ctx context.Context, r io.Reader) (Result, error) {
	products, err := Decode(r)
	if err != nil {
		return Result{}, err
	}

	l.logger.Info("Populating catalog", "products", len(products))
	start := time.Now()

	for i, p := range products {
		if err := ctx.Err(); err != nil {
			return Result{Products: i, Duration: time.Since(start)}, err
		}

		embedding, err := l.embed(ctx, p)
		if err != nil {
			return Result{Products: i, Duration: time.Since(start)}, fmt.Errorf("embedding product %s: %w", p.ID, err)
		}
		p.Embedding = embedding

		if err := l.store.UpsertProduct(ctx, p); err != nil {
			return Result{Products: i, Duration: time.Since(start)}, fmt.Errorf("storing product %s: %w", p.ID, err)
		}
		l.logger.Info("Loaded product", "id", p.ID, "name", p.Name)
	}

	res := Result{Products: len(products), Duration: time.Since(start)}
	l.logger.Info("Catalog populated", "products", res.Products, "duration_ms", res.Duration.Milliseconds())
	return res, nil
}

// embed returns the embedding of the product's JSON document, embedding excluded.
func (l *Loader) embed(ctx context.Context, p catalog.Product) ([]float32, error) {
	doc, err := json.Marshal(p.Summary())
	if err != nil {
		return nil, err
	}
	return l.embedder.Embed(ctx, string(doc))
}

// Decode parses a catalog file. Every product needs an id.
func Decode(r io.Reader) ([]catalog.Product, error) {
	var products []catalog.Product
	if err := json.NewDecoder(r).Decode(&products); err != nil {
		return nil, fmt.Errorf("decoding catalog: %w", err)
	}
	for i, p := range products {
		if p.ID == "" {
			return nil, fmt.Errorf("decoding catalog: product %d has no id", i)
		}
		products[i].Embedding = nil
	}
	return products, nil
}
