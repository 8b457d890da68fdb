package retrieval

import (
	"os"
	"path/filepath"
	"testing"

	"ruleflow/internal/pattern"
)

func TestScopeTag(t *testing.T) {
	cases := []struct {
		pat      string
		codeType string
		want     string
	}{
		{"E11.65", pattern.CodeTypeICD10, "E"},
		{"E11", pattern.CodeTypeICD10, "E"},
		{"E", pattern.CodeTypeICD10, "E"},
		{"99213", pattern.CodeTypeCPT, "9"},
		{"J10:J18", pattern.CodeTypeICD10, "J"},
	}
	for _, tc := range cases {
		got, err := ScopeTag(tc.pat, tc.codeType)
		if err != nil {
			t.Fatalf("ScopeTag(%q): %v", tc.pat, err)
		}
		if got != tc.want {
			t.Fatalf("ScopeTag(%q) = %q, want %q", tc.pat, got, tc.want)
		}
	}
}

func TestScopeTag_InvalidPattern(t *testing.T) {
	if _, err := ScopeTag("not a code", pattern.CodeTypeICD10); err == nil {
		t.Fatalf("expected error for invalid pattern")
	}
}

func TestExtractDocument_LabeledText(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "guidelines.txt")
	content := "--- doc:abc123 file:guidelines.pdf page:1 ---\n" +
		"Diabetes coding guidance.\n" +
		"--- doc:abc123 file:guidelines.pdf page:2 ---\n" +
		"Use the highest level of specificity.\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	doc, err := ExtractDocument(path)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if doc.DocID != "abc123" {
		t.Fatalf("expected declared doc id, got %q", doc.DocID)
	}
	if len(doc.Pages) != 2 || doc.Pages[1].Number != 2 {
		t.Fatalf("unexpected pages: %#v", doc.Pages)
	}
}

func TestExtractDocument_UnsupportedType(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.docx")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if _, err := ExtractDocument(path); err == nil {
		t.Fatalf("expected error for unsupported file type")
	}
}

func TestDocIDForFile_Stable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(path, []byte("--- doc:ff00 file:a.pdf page:1 ---\nbody\n"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	a, err := DocIDForFile(path)
	if err != nil {
		t.Fatalf("doc id: %v", err)
	}
	b, _ := DocIDForFile(path)
	if a != b || len(a) != docIDLen {
		t.Fatalf("doc id not stable: %q vs %q", a, b)
	}
}
