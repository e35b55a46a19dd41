// Package match resolves free-text host names against registered
// approvers using strict word-level fuzzy matching.
package match

import (
	"strings"
	"unicode/utf8"
)

// Threshold is the minimum similarity for an accepted match.
const Threshold = 0.5

// Candidate pairs an approver's display name with their login name.
// A query is scored against both and the higher score wins.
type Candidate struct {
	DisplayName string
	LoginName   string
}

// Best returns the index and score of the best-scoring candidate at or
// above Threshold. Earlier candidates win ties.
func Best(query string, candidates []Candidate) (int, float64, bool) {
	bestIdx := -1
	bestScore := 0.0

	for i, c := range candidates {
		score := Similarity(query, c.DisplayName)
		if s := Similarity(query, c.LoginName); s > score {
			score = s
		}
		if score > bestScore && score >= Threshold {
			bestIdx = i
			bestScore = score
		}
	}

	if bestIdx < 0 {
		return -1, 0, false
	}
	return bestIdx, bestScore, true
}

// Similarity scores two full names in [0,1]. Every word of the query
// must match a distinct word of the candidate; the candidate may carry
// extra words (middle names). A single-word query only matches a
// single-word candidate, since a bare first name could belong to
// several people.
func Similarity(query, name string) float64 {
	query = strings.ToLower(strings.TrimSpace(query))
	name = strings.ToLower(strings.TrimSpace(name))

	if query == "" || name == "" {
		return 0
	}
	if query == name {
		return 1
	}

	queryWords := strings.Fields(query)
	nameWords := strings.Fields(name)
	if len(queryWords) == 0 || len(nameWords) == 0 {
		return 0
	}

	if len(queryWords) == 1 {
		if len(nameWords) == 1 {
			return wordSimilarity(queryWords[0], nameWords[0])
		}
		return 0
	}

	total := 0.0
	matched := make(map[int]bool, len(nameWords))

	for _, qw := range queryWords {
		bestScore := 0.0
		bestIdx := -1
		for i, nw := range nameWords {
			if matched[i] {
				continue
			}
			if s := wordSimilarity(qw, nw); s > bestScore {
				bestScore = s
				bestIdx = i
			}
		}
		if bestIdx < 0 || bestScore == 0 {
			return 0
		}
		matched[bestIdx] = true
		total += bestScore
	}

	return total / float64(len(queryWords))
}

// wordSimilarity scores two single words. Only one edit is tolerated
// for words of up to four characters, two otherwise, and words of very
// different lengths never match.
func wordSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	// Rune counts, so lengths agree with the rune-based edit distance
	// for accented names.
	maxLen := utf8.RuneCountInString(a)
	minLen := utf8.RuneCountInString(b)
	if minLen > maxLen {
		maxLen, minLen = minLen, maxLen
	}
	if float64(minLen) < float64(maxLen)*0.6 {
		return 0
	}

	maxAllowed := 2
	if maxLen <= 4 {
		maxAllowed = 1
	}

	distance := levenshtein(a, b)
	if distance > maxAllowed {
		return 0
	}

	similarity := 1.0 - float64(distance)/float64(maxLen)
	switch distance {
	case 1:
		if similarity < 0.75 {
			similarity = 0.75
		}
	case 2:
		if similarity < 0.6 {
			similarity = 0.6
		}
	}
	return similarity
}

func levenshtein(a, b string) int {
	ra := []rune(a)
	rb := []rune(b)
	if len(ra) < len(rb) {
		ra, rb = rb, ra
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i, ca := range ra {
		curr[0] = i + 1
		for j, cb := range rb {
			cost := 0
			if ca != cb {
				cost = 1
			}
			curr[j+1] = min3(prev[j+1]+1, curr[j]+1, prev[j]+cost)
		}
		prev, curr = curr, prev
	}

	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
