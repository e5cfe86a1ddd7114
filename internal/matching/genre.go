package matching

import (
	"math"
	"strings"
)

// NormalizeGenres lower-cases and trims tags, dropping empty and repeated
// ones. First-seen order is kept.
func NormalizeGenres(genres []string) []string {
	if len(genres) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(genres))
	out := make([]string, 0, len(genres))
	for _, g := range genres {
		g = strings.ToLower(strings.TrimSpace(g))
		if g == "" {
			continue
		}
		if _, ok := seen[g]; ok {
			continue
		}
		seen[g] = struct{}{}
		out = append(out, g)
	}
	return out
}

// Overlap returns the tags of a that also appear in b, in a's order.
// Both inputs are expected to be normalized.
func Overlap(a, b []string) []string {
	if len(a) == 0 || len(b) == 0 {
		return nil
	}
	inB := make(map[string]struct{}, len(b))
	for _, g := range b {
		inB[g] = struct{}{}
	}
	var out []string
	for _, g := range a {
		if _, ok := inB[g]; ok {
			out = append(out, g)
		}
	}
	return out
}

// Similarity is the Jaccard index of two normalized tag sets as a
// percentage: |a ∩ b| / |a ∪ b| * 100. An empty union scores 0.
func Similarity(a, b []string) float64 {
	union := make(map[string]struct{}, len(a)+len(b))
	for _, g := range a {
		union[g] = struct{}{}
	}
	for _, g := range b {
		union[g] = struct{}{}
	}
	if len(union) == 0 {
		return 0
	}
	shared := len(Overlap(a, b))
	return float64(shared) / float64(len(union)) * 100
}

// RoundSimilarity rounds a similarity percentage to two decimals for display.
func RoundSimilarity(v float64) float64 {
	return math.Round(v*100) / 100
}
