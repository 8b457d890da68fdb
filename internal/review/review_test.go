package review

import (
	"testing"

	"ruleflow/internal/citation"

	"github.com/stretchr/testify/require"
)

func TestParseCritique(t *testing.T) {
	raw := "```json\n" + `{"corrections":[
		{"target_statement":"Claim X is covered.","proposed_text":"Claim X is covered only under part B.","reason":"scope"},
		{"target_statement":"   ","proposed_text":"dropped, no target"},
		{"target_statement":"No payload either way"},
		{"target_statement":"Fix a pointer","citation_fix":{"citation":"[[abc123:95 | \"anchor\"]]","doc_id":"abc123","page":94}}
	]}` + "\n```"
	crit, err := ParseCritique(SourceContent, raw)
	require.NoError(t, err)
	require.Len(t, crit.Corrections, 2)
	require.Equal(t, SourceContent, crit.Corrections[0].Source)
	require.NotNil(t, crit.Corrections[1].CitationFix)
}

func TestParseCritiqueRejectsGarbage(t *testing.T) {
	_, err := ParseCritique(SourceContent, "")
	require.Error(t, err)
	_, err = ParseCritique(SourceContent, "I think the draft is fine, no JSON here")
	require.Error(t, err)
}

func TestArbitratePrefersAdversarialOnConflict(t *testing.T) {
	content := Critique{Source: SourceContent, Corrections: []Correction{
		{TargetStatement: "Coverage applies broadly.", ProposedText: "content version", Source: SourceContent},
		{TargetStatement: "Unrelated statement.", ProposedText: "kept as is", Source: SourceContent},
	}}
	adversarial := Critique{Source: SourceAdversarial, Corrections: []Correction{
		{TargetStatement: "coverage applies  broadly.", ProposedText: "adversarial version", Source: SourceAdversarial},
	}}

	merged := Arbitrate(content, adversarial, nil)
	require.Len(t, merged, 2)
	require.Equal(t, "adversarial version", merged[0].ProposedText)
	require.Equal(t, SourceAdversarial, merged[0].Source)
	require.Equal(t, "kept as is", merged[1].ProposedText)
}

func TestArbitrateDiscardsUncorroboratedCitationFix(t *testing.T) {
	raw := `[[abc123:95 | "anchor"]]`
	flaggedRaw := `[[def456:3 | "other anchor"]]`

	content := Critique{Source: SourceContent, Corrections: []Correction{
		// Invented fix: the verifier never flagged this citation.
		{TargetStatement: "Statement one.", CitationFix: &CitationFix{Citation: raw, Page: 94}, Source: SourceContent},
		// Corroborated fix.
		{TargetStatement: "Statement two.", CitationFix: &CitationFix{Citation: flaggedRaw, Page: 4}, Source: SourceContent},
		// Invented fix but with text to keep.
		{TargetStatement: "Statement three.", ProposedText: "tighten wording", CitationFix: &CitationFix{Citation: raw, Page: 90}, Source: SourceContent},
	}}
	findings := []citation.Finding{
		{Citation: citation.Citation{Raw: flaggedRaw}, Verdict: citation.VerdictPageError, Repair: `[[def456:4 | "other anchor"]]`},
	}

	merged := Arbitrate(content, Critique{Source: SourceAdversarial}, findings)
	require.Len(t, merged, 2)
	require.Equal(t, "Statement two.", merged[0].TargetStatement)
	require.NotNil(t, merged[0].CitationFix)
	require.Equal(t, "Statement three.", merged[1].TargetStatement)
	require.Nil(t, merged[1].CitationFix)
}
