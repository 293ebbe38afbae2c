package catalog

import (
	"math"
	"sort"
)

// cosineSimilarity calculates the cosine similarity between two vectors
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float32

	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (float32(math.Sqrt(float64(normA))) * float32(math.Sqrt(float64(normB))))
}

// cosineDistance is 1 - cosine similarity. Ranking by ascending distance
// matches the Cosmos store's ranking by descending similarity score.
func cosineDistance(a, b []float32) float32 {
	return 1 - cosineSimilarity(a, b)
}

type scoredProduct struct {
	product  Product
	distance float32
}

// nearest ranks products by ascending cosine distance to query and returns
// the first limit summaries. Ties keep catalog order.
func nearest(products []Product, query []float32, limit int) []ProductSummary {
	scored := make([]scoredProduct, len(products))
	for i, p := range products {
		scored[i] = scoredProduct{product: p, distance: cosineDistance(query, p.Embedding)}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].distance < scored[j].distance
	})

	if limit > len(scored) {
		limit = len(scored)
	}

	results := make([]ProductSummary, limit)
	for i := 0; i < limit; i++ {
		results[i] = scored[i].product.Summary()
	}
	return results
}
