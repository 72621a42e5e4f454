// Package fuzzy implements deterministic approximate string matching.
//
// Scores are normalized similarity ratios in [0, 100] computed from the
// indel edit distance (insertions and deletions only) over runes, so
// multi-byte scripts such as Devanagari or Tamil are never split
// mid-character. Equal strings score 100, fully disjoint strings score 0,
// and the ratio is symmetric. Ranking is stable: ties are always broken by
// the candidate's position in the input, which makes results reproducible
// for a fixed candidate order.
package fuzzy

import (
	"math"
	"sort"
)

// Match pairs a candidate string with its similarity score.
type Match struct {
	Term  string
	Score int
}

// Score returns the similarity of a and b as an integer in [0, 100].
// The ratio is 200*lcs(a,b) / (len(a)+len(b)), rounded to the nearest
// integer, where lcs is the longest common subsequence over runes.
func Score(a, b string) int {
	if a == b {
		return 100
	}
	ra := []rune(a)
	rb := []rune(b)
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}
	l := lcsLength(ra, rb)
	return int(math.Round(200 * float64(l) / float64(len(ra)+len(rb))))
}

// lcsLength computes the longest common subsequence length with a
// single-row dynamic program, O(len(a)*len(b)) time and O(min) space.
func lcsLength(a, b []rune) int {
	if len(b) > len(a) {
		a, b = b, a
	}
	row := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		prev := 0
		for j := 1; j <= len(b); j++ {
			cur := row[j]
			if a[i-1] == b[j-1] {
				row[j] = prev + 1
			} else if row[j-1] > row[j] {
				row[j] = row[j-1]
			}
			prev = cur
		}
	}
	return row[len(b)]
}

// Best returns the highest-scoring candidate for query. When several
// candidates share the top score the one appearing first in the slice
// wins. The second return value is false when candidates is empty.
func Best(query string, candidates []string) (Match, bool) {
	best := Match{Score: -1}
	for _, c := range candidates {
		if s := Score(query, c); s > best.Score {
			best = Match{Term: c, Score: s}
		}
	}
	if best.Score < 0 {
		return Match{}, false
	}
	return best, true
}

// TopK returns up to k candidates scoring at least minScore, ordered by
// descending score with ties broken by candidate position. The result is
// empty, never an error, when nothing clears minScore.
func TopK(query string, candidates []string, k, minScore int) []Match {
	if k <= 0 {
		return nil
	}
	var matches []Match
	for _, c := range candidates {
		if s := Score(query, c); s >= minScore {
			matches = append(matches, Match{Term: c, Score: s})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches
}
