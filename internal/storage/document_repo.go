package storage

import (
	"context"
	"fmt"

	"ruleflow/internal/models"
)

type DocumentRepo struct {
	db *DB
}

func NewDocumentRepo(db *DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

// UpsertDocument stores the document row and replaces its page set. Page text
// is immutable once extracted, so a re-upload rewrites everything.
func (r *DocumentRepo) UpsertDocument(ctx context.Context, doc models.SourceDocument, codeType string, tags []string) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin document upsert: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
INSERT INTO source_documents (doc_id, filename, code_type, tags, page_count)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (doc_id)
DO UPDATE SET filename=EXCLUDED.filename, code_type=EXCLUDED.code_type, tags=EXCLUDED.tags, page_count=EXCLUDED.page_count, updated_at=NOW()`,
		doc.DocID, doc.Filename, codeType, tags, len(doc.Pages))
	if err != nil {
		return fmt.Errorf("upsert source document: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM source_pages WHERE doc_id=$1`, doc.DocID); err != nil {
		return fmt.Errorf("clear source pages: %w", err)
	}
	for _, p := range doc.Pages {
		_, err := tx.Exec(ctx, `INSERT INTO source_pages (doc_id, page, text) VALUES ($1, $2, $3)`, doc.DocID, p.Number, p.Text)
		if err != nil {
			return fmt.Errorf("insert source page %s:%d: %w", doc.DocID, p.Number, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit document upsert: %w", err)
	}
	return nil
}

func (r *DocumentRepo) GetDocument(ctx context.Context, docID string) (models.SourceDocument, error) {
	var doc models.SourceDocument
	err := r.db.Pool.QueryRow(ctx, `SELECT doc_id, filename FROM source_documents WHERE doc_id=$1`, docID).
		Scan(&doc.DocID, &doc.Filename)
	if err != nil {
		return models.SourceDocument{}, fmt.Errorf("get source document: %w", err)
	}
	rows, err := r.db.Pool.Query(ctx, `SELECT doc_id, page, text FROM source_pages WHERE doc_id=$1 ORDER BY page`, docID)
	if err != nil {
		return models.SourceDocument{}, fmt.Errorf("list source pages: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p models.Page
		if err := rows.Scan(&p.DocID, &p.Number, &p.Text); err != nil {
			return models.SourceDocument{}, fmt.Errorf("scan source page: %w", err)
		}
		doc.Pages = append(doc.Pages, p)
	}
	if err := rows.Err(); err != nil {
		return models.SourceDocument{}, fmt.Errorf("iterate source pages: %w", err)
	}
	return doc, nil
}

// ListDocumentsForScope returns documents whose code_type matches and whose
// tags include the given scope tag (or that carry no tags at all).
func (r *DocumentRepo) ListDocumentsForScope(ctx context.Context, codeType, scopeTag string) ([]models.SourceDocument, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT doc_id, filename FROM source_documents
WHERE code_type=$1 AND (cardinality(tags) = 0 OR $2 = ANY(tags))
ORDER BY filename`, codeType, scopeTag)
	if err != nil {
		return nil, fmt.Errorf("list documents for scope: %w", err)
	}
	defer rows.Close()

	ids := make([]models.SourceDocument, 0)
	for rows.Next() {
		var doc models.SourceDocument
		if err := rows.Scan(&doc.DocID, &doc.Filename); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		ids = append(ids, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	for i := range ids {
		full, err := r.GetDocument(ctx, ids[i].DocID)
		if err != nil {
			return nil, err
		}
		ids[i] = full
	}
	return ids, nil
}

func (r *DocumentRepo) ListDocuments(ctx context.Context) ([]models.SourceDocument, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT doc_id, filename FROM source_documents ORDER BY filename`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	out := make([]models.SourceDocument, 0)
	for rows.Next() {
		var doc models.SourceDocument
		if err := rows.Scan(&doc.DocID, &doc.Filename); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}
