package citation

import (
	"strings"
	"testing"

	"ruleflow/internal/models"
	"ruleflow/internal/source"

	"github.com/stretchr/testify/require"
)

func indexFrom(t *testing.T, docs ...models.SourceDocument) *source.Index {
	t.Helper()
	idx, err := source.Build(docs)
	require.NoError(t, err)
	return idx
}

func page(doc string, n int, text string) models.Page {
	return models.Page{DocID: doc, Number: n, Text: text}
}

func TestExtractTokens(t *testing.T) {
	text := `Coverage applies [[abc123:95 | "treatment of a condition"]] and also ` +
		`[[def456:7 | "a phrase with \"quoted\" words"]].`
	cites, bad := Extract(text)
	require.Empty(t, bad)
	require.Len(t, cites, 2)
	require.Equal(t, "abc123", cites[0].DocID)
	require.Equal(t, 95, cites[0].Page)
	require.Equal(t, "treatment of a condition", cites[0].Anchor)
	require.Equal(t, `a phrase with "quoted" words`, cites[1].Anchor)
	require.Less(t, cites[0].Offset, cites[1].Offset)
}

func TestExtractRejectsMalformed(t *testing.T) {
	for _, raw := range []string{
		`[[ABC123:95 | "upper hex"]]`,
		`[[abc123:095 | "leading zero"]]`,
		`[[abc123:0 | "zero page"]]`,
		`[[abc123:95 | "elided ... phrase"]]`,
		`[[abc123:95 | ""]]`,
		`[[abc123:95 "missing pipe"]]`,
		`[[abc[12]3:95 | "brackets in doc id"]]`,
		`[[abc123:95 | unquoted [bracketed] anchor]]`,
	} {
		cites, bad := Extract(raw)
		require.Empty(t, cites, raw)
		require.Len(t, bad, 1, raw)
	}
}

func TestFormatRoundTrip(t *testing.T) {
	tok := Format("abc123", 95, `phrase with "quotes"`)
	cites, bad := Extract(tok)
	require.Empty(t, bad)
	require.Len(t, cites, 1)
	require.Equal(t, `phrase with "quotes"`, cites[0].Anchor)
}

func TestVerifyExact(t *testing.T) {
	idx := indexFrom(t, models.SourceDocument{DocID: "abc123", Pages: []models.Page{
		page("abc123", 95, "...for the treatment of a condition or for prophylactic use..."),
	}})
	v := NewVerifier(idx, Config{})
	rep := v.Verify(`[[abc123:95 | "treatment of a condition"]]`)
	require.Len(t, rep.Findings, 1)
	require.Equal(t, VerdictExact, rep.Findings[0].Verdict)
	require.True(t, rep.Passing())
}

func TestVerifyPageError(t *testing.T) {
	idx := indexFrom(t, models.SourceDocument{DocID: "abc123", Pages: []models.Page{
		page("abc123", 94, "for the treatment of a condition or for prophylactic use"),
		page("abc123", 95, "unrelated reimbursement schedule text"),
	}})
	v := NewVerifier(idx, Config{})
	rep := v.Verify(`[[abc123:95 | "treatment of a condition"]]`)
	require.Len(t, rep.Findings, 1)
	f := rep.Findings[0]
	require.Equal(t, VerdictPageError, f.Verdict)
	require.Equal(t, Format("abc123", 94, "treatment of a condition"), f.Repair)
	require.Equal(t, SeverityMedium, f.Verdict.Severity())
}

func TestVerifyDocError(t *testing.T) {
	idx := indexFrom(t,
		models.SourceDocument{DocID: "abc123", Pages: []models.Page{
			page("abc123", 95, "nothing relevant on this page at all"),
		}},
		models.SourceDocument{DocID: "def456", Pages: []models.Page{
			page("def456", 3, "covered only when treatment of a condition is documented"),
		}},
	)
	v := NewVerifier(idx, Config{})
	rep := v.Verify(`[[abc123:95 | "treatment of a condition"]]`)
	require.Len(t, rep.Findings, 1)
	f := rep.Findings[0]
	require.Equal(t, VerdictDocError, f.Verdict)
	require.Contains(t, f.Repair, "def456")
	require.Equal(t, SeverityHigh, f.Verdict.Severity())
}

func TestVerifyOverflow(t *testing.T) {
	idx := indexFrom(t, models.SourceDocument{DocID: "abc123", Pages: []models.Page{
		page("abc123", 12, "the service is covered when medically"),
		page("abc123", 13, "necessary and ordered by a physician"),
	}})
	v := NewVerifier(idx, Config{})
	rep := v.Verify(`[[abc123:12 | "covered when medically necessary and ordered"]]`)
	require.Len(t, rep.Findings, 1)
	f := rep.Findings[0]
	require.Equal(t, VerdictOverflow, f.Verdict)
	require.Contains(t, f.Repair, Format("abc123", 12, "covered when medically"))
	require.Contains(t, f.Repair, Format("abc123", 13, "necessary and ordered"))
}

func TestVerifyAmbiguousSameDocument(t *testing.T) {
	idx := indexFrom(t, models.SourceDocument{DocID: "abc123", Pages: []models.Page{
		page("abc123", 1, "prior authorization is required"),
		page("abc123", 5, "note: prior authorization is required here too"),
		page("abc123", 9, "again, prior authorization is required"),
	}})
	v := NewVerifier(idx, Config{})
	rep := v.Verify(`[[abc123:2 | "prior authorization is required"]]`)
	require.Len(t, rep.Findings, 1)
	f := rep.Findings[0]
	require.Equal(t, VerdictAmbiguous, f.Verdict)
	require.Len(t, f.Candidates, 3)
	require.Empty(t, f.Repair)
}

func TestVerifyFuzzy(t *testing.T) {
	idx := indexFrom(t, models.SourceDocument{DocID: "abc123", Pages: []models.Page{
		page("abc123", 95, "Benefits apply for the Treatment of a  condition under part B."),
	}})
	v := NewVerifier(idx, Config{FuzzyThreshold: 0.8})
	rep := v.Verify(`[[abc123:95 | "for the treatment of a condition"]]`)
	require.Len(t, rep.Findings, 1)
	f := rep.Findings[0]
	require.Equal(t, VerdictFuzzy, f.Verdict)
	require.GreaterOrEqual(t, f.Score, 0.8)
	require.NotEmpty(t, f.Repair)
	require.True(t, rep.Passing())
}

func TestVerifyNotFound(t *testing.T) {
	idx := indexFrom(t, models.SourceDocument{DocID: "abc123", Pages: []models.Page{
		page("abc123", 95, "entirely unrelated schedule of fees"),
	}})
	v := NewVerifier(idx, Config{})
	rep := v.Verify(`[[abc123:95 | "quantum chromodynamics coverage criteria"]]`)
	require.Len(t, rep.Findings, 1)
	require.Equal(t, VerdictNotFound, rep.Findings[0].Verdict)
	require.Equal(t, SeverityHigh, rep.Findings[0].Verdict.Severity())
	require.False(t, rep.Passing())
}

func TestApplyRepairsIsIdempotentUnderReverification(t *testing.T) {
	idx := indexFrom(t,
		models.SourceDocument{DocID: "abc123", Pages: []models.Page{
			page("abc123", 94, "for the treatment of a condition or for prophylactic use"),
			page("abc123", 95, "unrelated text"),
		}},
		models.SourceDocument{DocID: "def456", Pages: []models.Page{
			page("def456", 3, "documentation must support medical necessity"),
		}},
	)
	v := NewVerifier(idx, Config{})
	text := `First [[abc123:95 | "treatment of a condition"]] then ` +
		`[[abc123:94 | "support medical necessity"]].`

	rep := v.Verify(text)
	require.Equal(t, 1, rep.Count(VerdictPageError))
	require.Equal(t, 1, rep.Count(VerdictDocError))

	repaired := ApplyRepairs(text, rep.Repairable())
	rep2 := v.Verify(repaired)
	require.Zero(t, rep2.Count(VerdictPageError, VerdictDocError, VerdictOverflow))
	require.True(t, rep2.Passing())

	// A second application changes nothing.
	require.Equal(t, repaired, ApplyRepairs(repaired, rep2.Repairable()))
}

func TestErrorSummaryGroupsBySeverity(t *testing.T) {
	idx := indexFrom(t, models.SourceDocument{DocID: "abc123", Pages: []models.Page{
		page("abc123", 1, "the only page text"),
		page("abc123", 2, "page text containing the cited phrase"),
	}})
	v := NewVerifier(idx, Config{})
	text := `[[abc123:1 | "containing the cited phrase"]] [[abc123:1 | "absent entirely from sources"]]`
	rep := v.Verify(text)

	summary := rep.ErrorSummary()
	require.NotEmpty(t, summary)
	// not_found is reported before page_error.
	require.Less(t, strings.Index(summary, "not_found"), strings.Index(summary, "page_error"))
}
