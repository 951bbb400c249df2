// Package normalize maps free-form model output onto the fixed W-9 schema.
package normalize

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Threshold is the minimum similarity for a raw key to be mapped onto a schema key.
const Threshold = 0.7

var keyReplacer = strings.NewReplacer("_", " ", "-", " ")

// CleanKey trims, lower-cases and turns underscores and hyphens into spaces.
func CleanKey(key string) string {
	return keyReplacer.Replace(strings.ToLower(strings.TrimSpace(key)))
}

// Similarity returns the matching-subsequence ratio 2*M/T of two strings,
// compared character by character.
func Similarity(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	m := difflib.NewMatcher(strings.Split(a, ""), strings.Split(b, ""))
	return m.Ratio()
}

// Match is an accepted key reconciliation
type Match struct {
	Target string
	Score  float64
}

// Reconcile finds the schema key that best matches key.
// It returns false when no target reaches Threshold. On equal scores the
// lexicographically greater target wins.
func Reconcile(key string, targets []string) (Match, bool) {
	cleaned := CleanKey(key)

	var best Match
	found := false
	for _, target := range targets {
		score := Similarity(CleanKey(target), cleaned)
		if score < Threshold {
			continue
		}
		if !found || score > best.Score || (score == best.Score && target > best.Target) {
			best = Match{Target: target, Score: score}
			found = true
		}
	}

	return best, found
}
