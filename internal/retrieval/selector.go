package retrieval

import (
	"context"
	"fmt"

	"ruleflow/internal/models"
	"ruleflow/internal/pattern"
	"ruleflow/internal/source"
)

// DocumentLister is the slice of the document registry the selector needs.
type DocumentLister interface {
	ListDocumentsForScope(ctx context.Context, codeType, scopeTag string) ([]models.SourceDocument, error)
}

// ScopeTag reduces a pattern to the registry tag its sources are filed under:
// the root of its ancestry chain (the ICD-10 meta-category letter, or the CPT
// pattern itself when it has no ancestors).
func ScopeTag(pat, codeType string) (string, error) {
	anc, err := pattern.Ancestors(pat, codeType)
	if err != nil {
		return "", err
	}
	if len(anc) > 0 {
		return anc[len(anc)-1], nil
	}
	// Ranges and wildcards have no ancestry chain; fall back to the leading
	// meta-category letter for ICD-10.
	if codeType == pattern.CodeTypeICD10 && len(pat) > 0 && pat[0] >= 'A' && pat[0] <= 'Z' {
		return pat[:1], nil
	}
	return pat, nil
}

// SelectSources loads every registered document relevant to the pattern and
// builds the page index the verifier and the prompts share.
func SelectSources(ctx context.Context, lister DocumentLister, pat, codeType string) ([]models.SourceDocument, *source.Index, error) {
	tag, err := ScopeTag(pat, codeType)
	if err != nil {
		return nil, nil, err
	}
	docs, err := lister.ListDocumentsForScope(ctx, codeType, tag)
	if err != nil {
		return nil, nil, fmt.Errorf("list sources for %s: %w", pat, err)
	}
	if len(docs) == 0 {
		return nil, nil, fmt.Errorf("no source documents registered for %s scope %q", codeType, tag)
	}
	idx, err := source.Build(docs)
	if err != nil {
		return nil, nil, fmt.Errorf("index sources: %w", err)
	}
	return docs, idx, nil
}
