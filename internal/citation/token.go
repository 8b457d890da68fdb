package citation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Citation token wire format:
//
//	[[<doc-id>:<page> | "<anchor phrase>"]]
//
// doc-id is a lowercase hex fragment, page is a positive decimal integer
// without leading zeros, and the anchor is double-quoted with `\"` escapes.
// The anchor must not contain an unescaped quote or the literal `...` token.
var (
	tokenRe = regexp.MustCompile(`\[\[([0-9a-f]+):([1-9][0-9]*) \| "((?:[^"\\]|\\.)*)"\]\]`)
	// Lazy scan to the first `]]` so candidates whose anchors carry stray
	// brackets still surface as malformed instead of being skipped.
	candidateRe = regexp.MustCompile(`\[\[.*?\]\]`)
)

type Citation struct {
	DocID  string `json:"doc_id"`
	Page   int    `json:"page"`
	Anchor string `json:"anchor"`
	// Raw is the exact token as it appears in the text; repairs substitute it.
	Raw    string `json:"raw"`
	Offset int    `json:"offset"`
}

type Malformed struct {
	Raw    string `json:"raw"`
	Offset int    `json:"offset"`
	Reason string `json:"reason"`
}

// Extract returns every citation token in occurrence order, plus the tokens
// that look like citations but violate the wire format. Malformed tokens are
// reported, never silently skipped.
func Extract(text string) ([]Citation, []Malformed) {
	var cites []Citation
	var bad []Malformed
	for _, loc := range candidateRe.FindAllStringIndex(text, -1) {
		raw := text[loc[0]:loc[1]]
		m := tokenRe.FindStringSubmatch(raw)
		if m == nil || m[0] != raw {
			bad = append(bad, Malformed{Raw: raw, Offset: loc[0], Reason: "token does not match citation wire format"})
			continue
		}
		page, err := strconv.Atoi(m[2])
		if err != nil || page <= 0 {
			bad = append(bad, Malformed{Raw: raw, Offset: loc[0], Reason: "invalid page number"})
			continue
		}
		anchor := unescapeAnchor(m[3])
		if strings.Contains(anchor, "...") {
			bad = append(bad, Malformed{Raw: raw, Offset: loc[0], Reason: "anchor contains the ellipsis token"})
			continue
		}
		if strings.TrimSpace(anchor) == "" {
			bad = append(bad, Malformed{Raw: raw, Offset: loc[0], Reason: "empty anchor"})
			continue
		}
		cites = append(cites, Citation{DocID: m[1], Page: page, Anchor: anchor, Raw: raw, Offset: loc[0]})
	}
	return cites, bad
}

// Format renders a citation token, escaping quotes inside the anchor.
func Format(docID string, page int, anchor string) string {
	return fmt.Sprintf(`[[%s:%d | "%s"]]`, docID, page, escapeAnchor(anchor))
}

func escapeAnchor(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}

func unescapeAnchor(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	escaped := false
	for _, r := range s {
		if escaped {
			b.WriteRune(r)
			escaped = false
			continue
		}
		if r == '\\' {
			escaped = true
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
