package taxonomy

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
)

// MatchThreshold is the score above which a product category is considered a
// match for a shopper's chosen category.
const MatchThreshold = 80

// Normalize lowercases s, replaces every non-alphanumeric rune with a space
// and collapses whitespace.
func Normalize(s string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(mapped), " ")
}

// Ratio is the Levenshtein similarity of two strings on a 0..100 scale.
func Ratio(a, b string) float64 {
	la, lb := len([]rune(a)), len([]rune(b))
	longest := max(la, lb)
	if longest == 0 {
		return 100
	}
	d := levenshtein.ComputeDistance(a, b)
	return 100 * (1 - float64(d)/float64(longest))
}

// PartialRatio is the best Ratio of the shorter string against every window
// of the longer one with the same length.
func PartialRatio(a, b string) float64 {
	short, long := []rune(a), []rune(b)
	if len(short) > len(long) {
		short, long = long, short
	}
	if len(short) == 0 {
		return 0
	}
	s := string(short)
	best := 0.0
	for i := 0; i+len(short) <= len(long); i++ {
		r := Ratio(s, string(long[i:i+len(short)]))
		if r > best {
			best = r
			if best == 100 {
				break
			}
		}
	}
	return best
}

func sortedTokens(s string) string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// TokenSortRatio compares strings after sorting their tokens.
func TokenSortRatio(a, b string) float64 {
	return Ratio(sortedTokens(a), sortedTokens(b))
}

// TokenSetRatio compares the shared tokens against each side's remainder.
func TokenSetRatio(a, b string) float64 {
	setA, setB := tokenSet(a), tokenSet(b)
	var common, onlyA, onlyB []string
	for tok := range setA {
		if setB[tok] {
			common = append(common, tok)
		} else {
			onlyA = append(onlyA, tok)
		}
	}
	for tok := range setB {
		if !setA[tok] {
			onlyB = append(onlyB, tok)
		}
	}
	sort.Strings(common)
	sort.Strings(onlyA)
	sort.Strings(onlyB)
	base := strings.Join(common, " ")
	withA := strings.TrimSpace(base + " " + strings.Join(onlyA, " "))
	withB := strings.TrimSpace(base + " " + strings.Join(onlyB, " "))
	best := Ratio(withA, withB)
	if base != "" {
		best = math.Max(best, math.Max(Ratio(base, withA), Ratio(base, withB)))
	}
	return best
}

func tokenSet(s string) map[string]bool {
	out := make(map[string]bool)
	for _, tok := range strings.Fields(s) {
		out[tok] = true
	}
	return out
}

// Score is a weighted similarity in the spirit of WRatio: plain ratio,
// token orderings, and partial matches scaled down as the length imbalance
// grows. Returns 0..100; 0 when either input normalises to empty.
func Score(a, b string) int {
	a, b = Normalize(a), Normalize(b)
	if a == "" || b == "" {
		return 0
	}
	la, lb := float64(len([]rune(a))), float64(len([]rune(b)))
	lenRatio := math.Max(la, lb) / math.Min(la, lb)

	best := Ratio(a, b)
	if lenRatio < 1.5 {
		best = math.Max(best, 0.95*TokenSortRatio(a, b))
		best = math.Max(best, 0.95*TokenSetRatio(a, b))
		return int(math.Round(best))
	}
	scale := 0.9
	if lenRatio >= 8 {
		scale = 0.6
	}
	best = math.Max(best, scale*PartialRatio(a, b))
	best = math.Max(best, 0.95*scale*PartialRatio(sortedTokens(a), sortedTokens(b)))
	return int(math.Round(best))
}

// Match is the result of ExtractOne.
type Match struct {
	Choice string
	Index  int
	Score  int
}

// ExtractOne returns the highest-scoring choice for query, the first one
// seen on ties. ok is false when choices is empty.
func ExtractOne(query string, choices []string) (m Match, ok bool) {
	m.Index = -1
	for i, c := range choices {
		if s := Score(query, c); m.Index < 0 || s > m.Score {
			m = Match{Choice: c, Index: i, Score: s}
		}
	}
	return m, m.Index >= 0
}
