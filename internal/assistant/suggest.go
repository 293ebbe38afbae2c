package assistant

import "strings"

// closestTool returns the known tool name nearest to name, for logging a hint
// when the model asks for a tool that does not exist. ok is false when nothing
// is close enough to be a plausible typo.
func closestTool(name string, known []string) (best string, ok bool) {
	if name == "" {
		return "", false
	}
	query := strings.ToLower(name)

	// Allow roughly one edit per three characters, within [1, 3].
	maxDistance := min(max(len(query)/3, 1), 3)

	bestDistance := maxDistance + 1
	for _, candidate := range known {
		target := strings.ToLower(candidate)
		if strings.Contains(target, query) || strings.Contains(query, target) {
			return candidate, true
		}
		if d := levenshteinDistance(query, target); d < bestDistance {
			best, bestDistance = candidate, d
		}
	}
	return best, bestDistance <= maxDistance
}

// levenshteinDistance is the minimum number of single-byte insertions,
// deletions or substitutions turning s1 into s2.
func levenshteinDistance(s1, s2 string) int {
	len1, len2 := len(s1), len(s2)

	prev := make([]int, len2+1)
	curr := make([]int, len2+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len1; i++ {
		curr[0] = i
		for j := 1; j <= len2; j++ {
			cost := 0
			if s1[i-1] != s2[j-1] {
				cost = 1
			}
			curr[j] = min(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}

	return prev[len2]
}
