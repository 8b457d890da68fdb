package review

import (
	"encoding/json"
	"fmt"
	"strings"

	"ruleflow/internal/citation"
)

// Critique sources, in arbitration preference order.
const (
	SourceContent     = "content"
	SourceAdversarial = "adversarial"
)

// CitationFix is a critique's proposal to relocate one citation token.
type CitationFix struct {
	Citation string `json:"citation"`
	DocID    string `json:"doc_id,omitempty"`
	Page     int    `json:"page,omitempty"`
}

type Correction struct {
	TargetStatement string       `json:"target_statement"`
	ProposedText    string       `json:"proposed_text,omitempty"`
	Reason          string       `json:"reason,omitempty"`
	CitationFix     *CitationFix `json:"citation_fix,omitempty"`
	Source          string       `json:"source,omitempty"`
}

type Critique struct {
	Source      string
	Corrections []Correction
}

// ParseCritique decodes a critique stage's JSON output. The payload must be
// an object with a "corrections" array; anything else is a stage failure at
// the caller. Entries missing their required fields are dropped.
func ParseCritique(source, raw string) (Critique, error) {
	raw = stripCodeFence(strings.TrimSpace(raw))
	if raw == "" {
		return Critique{}, fmt.Errorf("empty critique output")
	}
	var payload struct {
		Corrections []Correction `json:"corrections"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return Critique{}, fmt.Errorf("decode critique output: %w", err)
	}
	out := make([]Correction, 0, len(payload.Corrections))
	for _, c := range payload.Corrections {
		c.TargetStatement = strings.TrimSpace(c.TargetStatement)
		c.ProposedText = strings.TrimSpace(c.ProposedText)
		if c.TargetStatement == "" {
			continue
		}
		if c.ProposedText == "" && c.CitationFix == nil {
			continue
		}
		c.Source = source
		out = append(out, c)
	}
	return Critique{Source: source, Corrections: out}, nil
}

// Arbitrate merges the two critique passes: corrections aiming at the same
// target statement are deduplicated with the adversarial review winning any
// conflict, and citation-location fixes are kept only when the verifier
// itself flagged that citation with a repair. The orchestrator never applies
// a relocation the verifier did not corroborate.
func Arbitrate(content, adversarial Critique, findings []citation.Finding) []Correction {
	flagged := map[string]bool{}
	for _, f := range findings {
		if f.Repair != "" {
			flagged[f.Raw] = true
		}
	}

	merged := make([]Correction, 0, len(content.Corrections)+len(adversarial.Corrections))
	byTarget := map[string]int{}

	add := func(c Correction) {
		if c.CitationFix != nil && !flagged[c.CitationFix.Citation] {
			c.CitationFix = nil
			if c.ProposedText == "" {
				return
			}
		}
		key := normalizeTarget(c.TargetStatement)
		if i, ok := byTarget[key]; ok {
			// Adversarial verdict wins on conflict.
			if c.Source == SourceAdversarial {
				merged[i] = c
			}
			return
		}
		byTarget[key] = len(merged)
		merged = append(merged, c)
	}

	for _, c := range content.Corrections {
		add(c)
	}
	for _, c := range adversarial.Corrections {
		add(c)
	}
	return merged
}

func normalizeTarget(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func stripCodeFence(s string) string {
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}
