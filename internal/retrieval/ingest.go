package retrieval

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"ruleflow/internal/models"
	"ruleflow/internal/source"
	"ruleflow/internal/util"
)

var ErrNoExtractableText = errors.New("no extractable text")

// docIDLen is the number of hex characters kept from the content hash. Long
// enough to avoid collisions across a document registry, short enough to keep
// citation tokens readable.
const docIDLen = 12

// DocIDForFile derives the document id from the file content hash, so a
// re-upload of the same bytes lands on the same id.
func DocIDForFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open file for hash: %w", err)
	}
	defer f.Close()
	sum, err := util.SHA256HexFromReader(f)
	if err != nil {
		return "", fmt.Errorf("hash file: %w", err)
	}
	return sum[:docIDLen], nil
}

// ExtractDocument turns a source file into per-page text. PDFs are split at
// their physical page boundaries; .txt files must carry labeled page headers.
func ExtractDocument(path string) (models.SourceDocument, error) {
	docID, err := DocIDForFile(path)
	if err != nil {
		return models.SourceDocument{}, err
	}
	filename := filepath.Base(path)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		pages, err := extractPDFPages(path, docID)
		if err != nil {
			return models.SourceDocument{}, err
		}
		return models.SourceDocument{DocID: docID, Filename: filename, Pages: pages}, nil
	case ".txt":
		raw, err := os.ReadFile(path)
		if err != nil {
			return models.SourceDocument{}, fmt.Errorf("read text file: %w", err)
		}
		docs, err := source.ParseLabeled(string(raw))
		if err != nil {
			return models.SourceDocument{}, fmt.Errorf("parse labeled text: %w", err)
		}
		// A labeled bundle may name several documents; a single-document
		// bundle keeps the filename, others keep their declared ids.
		pages := make([]models.Page, 0)
		for _, d := range docs {
			pages = append(pages, d.Pages...)
		}
		if len(pages) == 0 {
			return models.SourceDocument{}, ErrNoExtractableText
		}
		if len(docs) == 1 {
			return models.SourceDocument{DocID: docs[0].DocID, Filename: filename, Pages: docs[0].Pages}, nil
		}
		return models.SourceDocument{DocID: docID, Filename: filename, Pages: pages}, nil
	default:
		return models.SourceDocument{}, fmt.Errorf("unsupported source file type: %s", filepath.Ext(path))
	}
}

func extractPDFPages(path, docID string) ([]models.Page, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	fonts := make(map[string]*pdf.Font)
	pages := make([]models.Page, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(fonts)
		if err != nil {
			return nil, fmt.Errorf("extract pdf page %d: %w", i, err)
		}
		// Blank pages keep their number so citations stay aligned with the
		// physical document.
		text = util.SanitizeText(strings.TrimSpace(text))
		pages = append(pages, models.Page{DocID: docID, Number: i, Text: text})
	}
	if len(pages) == 0 {
		return nil, ErrNoExtractableText
	}
	nonEmpty := false
	for _, p := range pages {
		if p.Text != "" {
			nonEmpty = true
			break
		}
	}
	if !nonEmpty {
		return nil, ErrNoExtractableText
	}
	return pages, nil
}
