package loader

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/radutopala/cosmoshop/internal/catalog"
	"github.com/radutopala/cosmoshop/internal/embeddings"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

const sampleCatalog = `[
	{"id":"1","type":"Tent","brand":"Summit","name":"Summit Tent","description":"Sleeps two","price":199.99},
	{"id":"2","type":"Cooking","brand":"Camp","name":"Camp Stove","description":"Boils fast","price":40}
]`

// recordingWriter keeps upserted products in call order.
type recordingWriter struct {
	mu       sync.Mutex
	products []catalog.Product
	err      error
}

func (w *recordingWriter) UpsertProduct(ctx context.Context, p catalog.Product) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.products = append(w.products, p)
	return nil
}

// LoaderTestSuite tests catalog loading
type LoaderTestSuite struct {
	suite.Suite
	logger *slog.Logger
	ctx    context.Context
	texts  []string
	writer *recordingWriter
	loader *Loader
}

// SetupTest runs before each test
func (s *LoaderTestSuite) SetupTest() {
	s.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError, // Quiet during tests
	}))
	s.ctx = context.Background()
	s.texts = nil
	s.writer = &recordingWriter{}

	embedder := embeddings.Func(func(ctx context.Context, text string) ([]float32, error) {
		s.texts = append(s.texts, text)
		return []float32{float32(len(s.texts)), 0.5}, nil
	})
	s.loader = New(embedder, s.writer, s.logger)
}

// TestLoad tests that every product is embedded and written in order
func (s *LoaderTestSuite) TestLoad() {
	res, err := s.loader.Load(s.ctx, strings.NewReader(sampleCatalog))
	require.NoError(s.T(), err)
	require.Equal(s.T(), 2, res.Products)

	require.Len(s.T(), s.writer.products, 2)
	require.Equal(s.T(), "1", s.writer.products[0].ID)
	require.Equal(s.T(), []float32{1, 0.5}, s.writer.products[0].Embedding)
	require.Equal(s.T(), "2", s.writer.products[1].ID)
	require.Equal(s.T(), []float32{2, 0.5}, s.writer.products[1].Embedding)
}

// TestEmbeddedText tests that the product document is embedded without an embedding field
func (s *LoaderTestSuite) TestEmbeddedText() {
	_, err := s.loader.Load(s.ctx, strings.NewReader(
		`[{"id":"1","name":"Summit Tent","price":199.99,"embedding":[9,9]}]`))
	require.NoError(s.T(), err)

	require.Len(s.T(), s.texts, 1)
	var doc map[string]any
	require.NoError(s.T(), json.Unmarshal([]byte(s.texts[0]), &doc))
	require.Equal(s.T(), "Summit Tent", doc["name"])
	require.Equal(s.T(), 199.99, doc["price"])
	require.NotContains(s.T(), doc, "embedding")

	require.Equal(s.T(), []float32{1, 0.5}, s.writer.products[0].Embedding)
}

// TestEmbedFailureStops tests that a failed embedding aborts the load
func (s *LoaderTestSuite) TestEmbedFailureStops() {
	calls := 0
	embedder := embeddings.Func(func(ctx context.Context, text string) ([]float32, error) {
		calls++
		if calls == 2 {
			return nil, embeddings.ErrUnavailable
		}
		return []float32{1}, nil
	})

	res, err := New(embedder, s.writer, s.logger).Load(s.ctx, strings.NewReader(sampleCatalog))
	require.ErrorIs(s.T(), err, embeddings.ErrUnavailable)
	require.Contains(s.T(), err.Error(), "product 2")
	require.Equal(s.T(), 1, res.Products)
	require.Len(s.T(), s.writer.products, 1)
}

// TestStoreFailure tests that write errors are wrapped
func (s *LoaderTestSuite) TestStoreFailure() {
	s.writer.err = errors.New("throttled")

	_, err := s.loader.Load(s.ctx, strings.NewReader(sampleCatalog))
	require.Error(s.T(), err)
	require.Contains(s.T(), err.Error(), "storing product 1")
}

// TestCancelled tests that a cancelled context stops before any write
func (s *LoaderTestSuite) TestCancelled() {
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()

	_, err := s.loader.Load(ctx, strings.NewReader(sampleCatalog))
	require.ErrorIs(s.T(), err, context.Canceled)
	require.Empty(s.T(), s.writer.products)
}

// TestLoadFileIntoSQLite tests a file load end to end with a searchable result
func (s *LoaderTestSuite) TestLoadFileIntoSQLite() {
	path := filepath.Join(s.T().TempDir(), "catalog.json")
	require.NoError(s.T(), os.WriteFile(path, []byte(sampleCatalog), 0644))

	store, err := catalog.NewSQLiteStore(":memory:", s.logger)
	require.NoError(s.T(), err)
	defer store.Close()

	embedder := embeddings.Func(func(ctx context.Context, text string) ([]float32, error) {
		if strings.Contains(text, "Tent") {
			return []float32{1, 0}, nil
		}
		return []float32{0, 1}, nil
	})

	res, err := New(embedder, store, s.logger).LoadFile(s.ctx, path)
	require.NoError(s.T(), err)
	require.Equal(s.T(), 2, res.Products)

	found, err := store.SearchProducts(s.ctx, []float32{1, 0.1}, catalog.SearchLimit)
	require.NoError(s.T(), err)
	require.Len(s.T(), found, 2)
	require.Equal(s.T(), "Summit Tent", found[0].Name)
}

// TestLoadFileMissing tests the open error
func (s *LoaderTestSuite) TestLoadFileMissing() {
	_, err := s.loader.LoadFile(s.ctx, filepath.Join(s.T().TempDir(), "nope.json"))
	require.ErrorIs(s.T(), err, os.ErrNotExist)
}

func TestLoaderTestSuite(t *testing.T) {
	suite.Run(t, new(LoaderTestSuite))
}

func TestDecode(t *testing.T) {
	products, err := Decode(strings.NewReader(sampleCatalog))
	require.NoError(t, err)
	require.Len(t, products, 2)
	require.Equal(t, catalog.Product{
		ID: "1", Type: "Tent", Brand: "Summit", Name: "Summit Tent", Description: "Sleeps two", Price: 199.99,
	}, products[0])

	_, err = Decode(strings.NewReader(`{"id":"1"}`))
	require.Error(t, err)

	_, err = Decode(strings.NewReader(`[{"name":"no id"}]`))
	require.ErrorContains(t, err, "has no id")
}

func TestRepositoryCatalogDecodes(t *testing.T) {
	f, err := os.Open(filepath.Join("..", "..", DefaultCatalogPath))
	require.NoError(t, err)
	defer f.Close()

	products, err := Decode(f)
	require.NoError(t, err)
	require.NotEmpty(t, products)
}
