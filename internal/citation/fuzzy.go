package citation

import (
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
)

// bestFuzzyWindow slides anchor-sized windows over the page text and returns
// the original (unnormalized) substring with the highest normalized
// similarity, scored as 1 - distance/len. Comparison is case-folded and
// whitespace-collapsed; the returned match is the literal page substring so
// it can serve as a repair.
func bestFuzzyWindow(anchor, pageText string) (string, float64) {
	anchorNorm := normalize(anchor)
	if anchorNorm == "" {
		return "", 0
	}
	page := []rune(pageText)
	win := len([]rune(anchor))
	if win == 0 || len(page) < win/2 {
		return "", 0
	}
	if win > len(page) {
		win = len(page)
	}

	stride := win / 2
	if stride < 1 {
		stride = 1
	}

	// Coarse scan, then a stride-1 refinement around the best offset.
	bestOff, bestScore := scanWindows(anchorNorm, page, win, 0, len(page)-win, stride)
	lo := bestOff - stride
	if lo < 0 {
		lo = 0
	}
	hi := bestOff + stride
	if hi > len(page)-win {
		hi = len(page) - win
	}
	if off, score := scanWindows(anchorNorm, page, win, lo, hi, 1); score > bestScore {
		bestOff, bestScore = off, score
	}
	if bestScore <= 0 {
		return "", 0
	}
	return strings.TrimSpace(string(page[bestOff : bestOff+win])), bestScore
}

func scanWindows(anchorNorm string, page []rune, win, lo, hi, stride int) (int, float64) {
	bestOff := lo
	bestScore := 0.0
	for off := lo; off <= hi; off += stride {
		score := similarity(anchorNorm, normalize(string(page[off:off+win])))
		if score > bestScore {
			bestOff, bestScore = off, score
		}
	}
	return bestOff, bestScore
}

func similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	dist := levenshtein.ComputeDistance(a, b)
	max := len([]rune(a))
	if l := len([]rune(b)); l > max {
		max = l
	}
	if max == 0 {
		return 0
	}
	s := 1 - float64(dist)/float64(max)
	if s < 0 {
		return 0
	}
	return s
}

// normalize applies the verifier's alignment rules: case folding and
// whitespace collapsing.
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range strings.TrimSpace(s) {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space {
			b.WriteRune(' ')
			space = false
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}
