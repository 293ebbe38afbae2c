package catalog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float32
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"length mismatch", []float32{1, 0}, []float32{1, 0, 0}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.InDelta(t, tt.want, cosineSimilarity(tt.a, tt.b), 1e-6)
		})
	}
}

func TestNearestStripsEmbeddings(t *testing.T) {
	products := []Product{
		{ID: "far", Embedding: []float32{0, 1}},
		{ID: "near", Embedding: []float32{1, 0.1}},
	}

	results := nearest(products, []float32{1, 0}, 5)
	require.Len(t, results, 2)
	require.Equal(t, "near", results[0].ID)
	require.Equal(t, "far", results[1].ID)
}

func TestNearestTiesKeepCatalogOrder(t *testing.T) {
	products := []Product{
		{ID: "a", Embedding: []float32{0, 1}},
		{ID: "b", Embedding: []float32{0, 2}},
		{ID: "c", Embedding: []float32{0, 3}},
	}

	results := nearest(products, []float32{0, 1}, 2)
	require.Equal(t, []string{"a", "b"}, []string{results[0].ID, results[1].ID})
}
