// Package match implements the fingerprint matcher and string similarity
// primitives (C1): scoring catalog album candidates against uploaded track
// durations, and a general-purpose text similarity used by the ingestion
// manager's weighted candidate scoring.
package match

import (
	"strings"

	"github.com/agnivade/levenshtein"
)

// StringSimilarity scores two strings in [0,1]: exact case-insensitive
// match (including two empty strings) is 1.0; an empty string against a
// non-empty one is 0.0; a substring relationship either way is 0.8; otherwise
// 1 - levenshtein(a,b)/max(len(a),len(b)), clamped to >= 0.
func StringSimilarity(a, b string) float64 {
	lowerA, lowerB := strings.ToLower(a), strings.ToLower(b)

	if lowerA == lowerB {
		return 1.0
	}

	if lowerA == "" || lowerB == "" {
		return 0.0
	}

	if strings.Contains(lowerA, lowerB) || strings.Contains(lowerB, lowerA) {
		return 0.8
	}

	maxLen := len(lowerA)
	if len(lowerB) > maxLen {
		maxLen = len(lowerB)
	}

	dist := levenshtein.ComputeDistance(lowerA, lowerB)

	score := 1.0 - float64(dist)/float64(maxLen)
	if score < 0 {
		score = 0
	}

	return score
}

// BestSimilarity returns the highest StringSimilarity between target and any
// candidate, used by track-title-overlap scoring.
func BestSimilarity(target string, candidates []string) float64 {
	var best float64

	for _, candidate := range candidates {
		if sim := StringSimilarity(target, candidate); sim > best {
			best = sim
		}
	}

	return best
}
