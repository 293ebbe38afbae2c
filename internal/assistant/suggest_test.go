package assistant

import "testing"

func TestLevenshteinDistance(t *testing.T) {
	tests := []struct {
		s1       string
		s2       string
		expected int
	}{
		{"", "", 0},
		{"a", "a", 0},
		{"a", "b", 1},
		{"abc", "", 3},
		{"", "abc", 3},
		{"abc", "def", 3},
		{"kitten", "sitting", 3},
		{"getorders", "getorder", 1},
		{"searchproducts", "serchproduct", 2},
	}

	for _, tt := range tests {
		result := levenshteinDistance(tt.s1, tt.s2)
		if result != tt.expected {
			t.Errorf("levenshteinDistance(%q, %q) = %d, expected %d", tt.s1, tt.s2, result, tt.expected)
		}
	}
}

func TestClosestTool(t *testing.T) {
	known := []string{"searchProducts", "getOrders", "weather"}

	tests := []struct {
		name     string
		expected string
		ok       bool
		reason   string
	}{
		{"getOrder", "getOrders", true, "substring"},
		{"GETORDERS", "getOrders", true, "case insensitive"},
		{"serchProducts", "searchProducts", true, "one char missing"},
		{"wether", "weather", true, "typo"},
		{"searchProductsV2", "searchProducts", true, "known name inside query"},
		{"deleteAllOrders", "", false, "too far from anything"},
		{"", "", false, "empty name"},
	}

	for _, tt := range tests {
		best, ok := closestTool(tt.name, known)
		if ok != tt.ok || (ok && best != tt.expected) {
			t.Errorf("closestTool(%q) = (%q, %v), expected (%q, %v) (%s)", tt.name, best, ok, tt.expected, tt.ok, tt.reason)
		}
	}
}
