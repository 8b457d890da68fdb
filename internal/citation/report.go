package citation

import (
	"fmt"
	"strings"
)

// Count returns how many findings carry any of the given verdicts.
func (r Report) Count(verdicts ...Verdict) int {
	n := 0
	for _, f := range r.Findings {
		for _, v := range verdicts {
			if f.Verdict == v {
				n++
				break
			}
		}
	}
	return n
}

// Passing reports whether every citation resolved to exact or fuzzy and no
// malformed tokens remain.
func (r Report) Passing() bool {
	if len(r.Malformed) > 0 {
		return false
	}
	for _, f := range r.Findings {
		if f.Verdict != VerdictExact && f.Verdict != VerdictFuzzy {
			return false
		}
	}
	return true
}

// Repairable returns the findings that carry a proposed repair.
func (r Report) Repairable() []Finding {
	out := make([]Finding, 0)
	for _, f := range r.Findings {
		if f.Repair != "" {
			out = append(out, f)
		}
	}
	return out
}

// ErrorSummary renders a machine-readable summary grouped by verdict kind,
// highest severity first, for prompt injection into the next authoring stage.
func (r Report) ErrorSummary() string {
	groups := map[Verdict][]Finding{}
	for _, f := range r.Findings {
		if f.Verdict == VerdictExact {
			continue
		}
		groups[f.Verdict] = append(groups[f.Verdict], f)
	}
	if len(groups) == 0 && len(r.Malformed) == 0 {
		return ""
	}

	var b strings.Builder
	for _, v := range []Verdict{VerdictNotFound, VerdictDocError, VerdictPageError, VerdictOverflow, VerdictAmbiguous, VerdictFuzzy} {
		fs := groups[v]
		if len(fs) == 0 {
			continue
		}
		fmt.Fprintf(&b, "%s (%d):\n", v, len(fs))
		for _, f := range fs {
			fmt.Fprintf(&b, "- %s", f.Raw)
			if f.Repair != "" {
				fmt.Fprintf(&b, " -> proposed repair: %s", f.Repair)
			}
			if len(f.Candidates) > 0 {
				fmt.Fprintf(&b, " (candidates:")
				for _, c := range f.Candidates {
					fmt.Fprintf(&b, " %s:%d", c.DocID, c.Page)
				}
				fmt.Fprintf(&b, ")")
			}
			b.WriteString("\n")
		}
	}
	if len(r.Malformed) > 0 {
		fmt.Fprintf(&b, "malformed (%d):\n", len(r.Malformed))
		for _, m := range r.Malformed {
			fmt.Fprintf(&b, "- %s: %s\n", m.Raw, m.Reason)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// ApplyRepairs substitutes each finding's raw token with its proposed repair,
// exactly once per occurrence, leaving everything else untouched. Re-running
// verification on the result yields no page_error, doc_error, or overflow for
// the repaired citations.
func ApplyRepairs(text string, findings []Finding) string {
	for _, f := range findings {
		if f.Repair == "" || f.Repair == f.Raw {
			continue
		}
		text = strings.Replace(text, f.Raw, f.Repair, 1)
	}
	return text
}
