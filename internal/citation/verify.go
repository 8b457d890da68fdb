package citation

import (
	"fmt"
	"sort"
	"strings"

	"ruleflow/internal/source"
)

type Verdict string

const (
	VerdictExact     Verdict = "exact"
	VerdictFuzzy     Verdict = "fuzzy"
	VerdictPageError Verdict = "page_error"
	VerdictDocError  Verdict = "doc_error"
	VerdictOverflow  Verdict = "overflow"
	VerdictAmbiguous Verdict = "ambiguous"
	VerdictNotFound  Verdict = "not_found"
)

type Severity int

const (
	SeverityPass Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
)

// Severity ranking: not_found and doc_error signal possible fabrication;
// page_error, overflow, and ambiguous mean provenance exists but the pointer
// is wrong; fuzzy is a cosmetic mismatch.
func (v Verdict) Severity() Severity {
	switch v {
	case VerdictNotFound, VerdictDocError:
		return SeverityHigh
	case VerdictPageError, VerdictOverflow, VerdictAmbiguous:
		return SeverityMedium
	case VerdictFuzzy:
		return SeverityLow
	default:
		return SeverityPass
	}
}

type Finding struct {
	Citation
	Verdict Verdict `json:"verdict"`
	// Repair is the proposed replacement for the raw token, empty when no
	// machine-checkable repair exists. Application is a separate, explicit
	// operation; the verifier never rewrites text itself.
	Repair     string            `json:"repair,omitempty"`
	Score      float64           `json:"score,omitempty"`
	Candidates []source.Location `json:"candidates,omitempty"`
	Note       string            `json:"note,omitempty"`
}

type Report struct {
	Findings  []Finding   `json:"findings"`
	Malformed []Malformed `json:"malformed,omitempty"`
}

type Config struct {
	// FuzzyThreshold is the minimum normalized similarity (1 - dist/len)
	// accepted by the fuzzy pass.
	FuzzyThreshold float64
}

type Verifier struct {
	idx *source.Index
	cfg Config
}

func NewVerifier(idx *source.Index, cfg Config) *Verifier {
	if cfg.FuzzyThreshold <= 0 || cfg.FuzzyThreshold > 1 {
		cfg.FuzzyThreshold = 0.82
	}
	return &Verifier{idx: idx, cfg: cfg}
}

// Verify extracts every citation token from text and classifies each against
// the index, in occurrence order.
func (v *Verifier) Verify(text string) Report {
	cites, malformed := Extract(text)
	findings := make([]Finding, 0, len(cites))
	for _, c := range cites {
		findings = append(findings, v.classify(c))
	}
	return Report{Findings: findings, Malformed: malformed}
}

func (v *Verifier) classify(c Citation) Finding {
	f := Finding{Citation: c}

	pageText, pageKnown := v.idx.Lookup(c.DocID, c.Page)

	// Exact pass.
	if pageKnown && strings.Contains(pageText, c.Anchor) {
		f.Verdict = VerdictExact
		f.Score = 1
		return f
	}

	// Overflow pass: anchor stitched across the page boundary.
	if pageKnown {
		if next, ok := v.idx.NextPage(c.DocID, c.Page); ok {
			if head, tail, ok := splitAcrossBoundary(c.Anchor, pageText, next); ok {
				f.Verdict = VerdictOverflow
				f.Repair = Format(c.DocID, c.Page, head) + " " + Format(c.DocID, c.Page+1, tail)
				f.Note = "anchor spans the boundary to page " + itoa(c.Page+1)
				return f
			}
		}
	}

	// Same-document page scan.
	var samePages []source.Location
	for _, n := range v.idx.PageNumbers(c.DocID) {
		if n == c.Page {
			continue
		}
		if text, _ := v.idx.Lookup(c.DocID, n); strings.Contains(text, c.Anchor) {
			samePages = append(samePages, source.Location{DocID: c.DocID, Page: n})
		}
	}
	if len(samePages) == 1 {
		f.Verdict = VerdictPageError
		f.Repair = Format(c.DocID, samePages[0].Page, c.Anchor)
		f.Candidates = samePages
		return f
	}
	if len(samePages) >= 2 {
		f.Verdict = VerdictAmbiguous
		f.Candidates = samePages
		return f
	}

	// Cross-document scan.
	var other []source.Location
	for _, loc := range v.idx.FindAll(c.Anchor) {
		if loc.DocID != c.DocID {
			other = append(other, loc)
		}
	}
	if len(other) > 0 {
		docs := distinctDocs(other)
		if len(docs) == 1 {
			f.Verdict = VerdictDocError
			f.Repair = Format(other[0].DocID, other[0].Page, c.Anchor)
			f.Candidates = other
			return f
		}
		f.Verdict = VerdictAmbiguous
		f.Candidates = other
		return f
	}

	// Fuzzy pass against the cited page only.
	if pageKnown {
		if match, score := bestFuzzyWindow(c.Anchor, pageText); score >= v.cfg.FuzzyThreshold {
			f.Verdict = VerdictFuzzy
			f.Score = score
			f.Repair = Format(c.DocID, c.Page, match)
			return f
		} else if score > 0 {
			f.Score = score
		}
	}

	f.Verdict = VerdictNotFound
	return f
}

// splitAcrossBoundary finds a split of the anchor whose head ends the cited
// page and whose tail starts the next one. The longest head wins so the
// repair keeps as much text as possible on the cited page.
func splitAcrossBoundary(anchor, pageText, nextText string) (string, string, bool) {
	for k := len(anchor) - 1; k >= 1; k-- {
		head := anchor[:k]
		tail := anchor[k:]
		if strings.HasSuffix(strings.TrimRight(pageText, " \n\t"), strings.TrimRight(head, " \n\t")) &&
			strings.HasPrefix(strings.TrimLeft(nextText, " \n\t"), strings.TrimLeft(tail, " \n\t")) {
			return strings.TrimSpace(head), strings.TrimSpace(tail), true
		}
	}
	return "", "", false
}

func distinctDocs(locs []source.Location) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, 1)
	for _, l := range locs {
		if _, ok := seen[l.DocID]; ok {
			continue
		}
		seen[l.DocID] = struct{}{}
		out = append(out, l.DocID)
	}
	sort.Strings(out)
	return out
}

func itoa(n int) string {
	return fmt.Sprintf("%d", n)
}
