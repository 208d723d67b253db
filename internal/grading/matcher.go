// Package grading holds the pure answer-matching kernel. It has no state and
// no dependencies on storage; everything here is deterministic in its inputs.
package grading

import (
	"math"
	"strings"
	"unicode"
)

// Accepted answers within this edit distance of a key term count as correct.
const fuzzyDistanceMax = 2

// AnswerKey is the rubric for a single structure, consumed by value.
type AnswerKey struct {
	Name               string
	LatinName          string
	Aliases            []string
	Points             float64
	HintPenaltyPercent float64
}

// Terms returns the normalized set of acceptable answers for the key.
func (k AnswerKey) Terms() []string {
	terms := make([]string, 0, 2+len(k.Aliases))
	if t := Normalize(k.Name); t != "" {
		terms = append(terms, t)
	}
	if t := Normalize(k.LatinName); t != "" {
		terms = append(terms, t)
	}
	for _, alias := range k.Aliases {
		if t := Normalize(alias); t != "" {
			terms = append(terms, t)
		}
	}
	return terms
}

// Result is the classification of one graded answer.
type Result struct {
	Match        MatchKind
	IsCorrect    bool
	PointsEarned float64
}

type MatchKind string

const (
	MatchExact     MatchKind = "exact"
	MatchFuzzy     MatchKind = "fuzzy"
	MatchIncorrect MatchKind = "incorrect"
)

// Grade classifies a candidate answer against the key and applies the hint
// penalty. A nil/empty answer is incorrect. The penalty is linear per hint,
// non-compounding, floored at zero.
func Grade(answer *string, hintsUsed int, key AnswerKey) Result {
	if answer == nil {
		return Result{Match: MatchIncorrect}
	}

	candidate := Normalize(*answer)
	if candidate == "" {
		return Result{Match: MatchIncorrect}
	}

	match := classify(candidate, key.Terms())
	if match == MatchIncorrect {
		return Result{Match: MatchIncorrect}
	}

	return Result{
		Match:        match,
		IsCorrect:    true,
		PointsEarned: applyHintPenalty(key.Points, hintsUsed, key.HintPenaltyPercent),
	}
}

func classify(candidate string, terms []string) MatchKind {
	for _, term := range terms {
		if candidate == term {
			return MatchExact
		}
	}

	best := math.MaxInt
	for _, term := range terms {
		if d := levenshtein(candidate, term); d < best {
			best = d
		}
	}
	if best <= fuzzyDistanceMax {
		return MatchFuzzy
	}
	return MatchIncorrect
}

func applyHintPenalty(points float64, hintsUsed int, penaltyPercent float64) float64 {
	if hintsUsed < 0 {
		hintsUsed = 0
	}
	factor := 1 - float64(hintsUsed)*penaltyPercent/100
	if factor < 0 {
		factor = 0
	}
	return points * factor
}

// Normalize trims, casefolds and collapses internal whitespace.
func Normalize(s string) string {
	out := make([]rune, 0, len(s))
	space := false
	for _, r := range strings.TrimSpace(s) {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space && len(out) > 0 {
			out = append(out, ' ')
		}
		space = false
		out = append(out, unicode.ToLower(r))
	}
	return string(out)
}

// levenshtein computes edit distance with unit cost for insertion, deletion
// and substitution, over runes.
func levenshtein(a, b string) int {
	ar := []rune(a)
	br := []rune(b)
	n, m := len(ar), len(br)
	if n == 0 {
		return m
	}
	if m == 0 {
		return n
	}

	dp := make([]int, m+1)
	for j := 0; j <= m; j++ {
		dp[j] = j
	}
	for i := 1; i <= n; i++ {
		prev := dp[0]
		dp[0] = i
		for j := 1; j <= m; j++ {
			tmp := dp[j]
			cost := 0
			if ar[i-1] != br[j-1] {
				cost = 1
			}
			dp[j] = min3(dp[j]+1, dp[j-1]+1, prev+cost)
			prev = tmp
		}
	}
	return dp[m]
}

func min3(a, b, c int) int {
	if a < b {
		if a < c {
			return a
		}
		return c
	}
	if b < c {
		return b
	}
	return c
}
