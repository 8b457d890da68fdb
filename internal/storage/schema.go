package storage

import (
	"context"
	"fmt"
)

// EnsureSchema creates the tables on first boot so a fresh Postgres works
// without a separate migration step. Every statement is idempotent.
func (db *DB) EnsureSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS rule_records (
  pattern TEXT NOT NULL,
  code_type TEXT NOT NULL CHECK (code_type IN ('icd10','cpt')),
  rule_kind TEXT NOT NULL CHECK (rule_kind IN ('guideline','billing')),
  status TEXT NOT NULL CHECK (status IN ('pending','generating','ready','error')),
  has_own_rule BOOLEAN NOT NULL DEFAULT FALSE,
  content_path TEXT,
  fail_reason TEXT,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  PRIMARY KEY (pattern, code_type, rule_kind)
);

CREATE INDEX IF NOT EXISTS idx_rule_records_status ON rule_records(status, updated_at DESC);

CREATE TABLE IF NOT EXISTS source_documents (
  doc_id TEXT PRIMARY KEY,
  filename TEXT NOT NULL,
  code_type TEXT NOT NULL,
  tags TEXT[] NOT NULL DEFAULT '{}',
  page_count INT NOT NULL DEFAULT 0,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS source_pages (
  doc_id TEXT NOT NULL REFERENCES source_documents(doc_id) ON DELETE CASCADE,
  page INT NOT NULL,
  text TEXT NOT NULL,
  PRIMARY KEY (doc_id, page)
);

CREATE TABLE IF NOT EXISTS cascade_runs (
  run_id UUID PRIMARY KEY,
  target TEXT NOT NULL,
  code_type TEXT NOT NULL,
  rule_kind TEXT NOT NULL,
  status TEXT NOT NULL,
  report_path TEXT,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_cascade_runs_created ON cascade_runs(created_at DESC);

CREATE TABLE IF NOT EXISTS llm_calls (
  call_id UUID PRIMARY KEY,
  operation TEXT NOT NULL,
  pattern TEXT,
  code_type TEXT,
  rule_kind TEXT,
  provider_name TEXT NOT NULL,
  model TEXT,
  request_id TEXT,
  status TEXT NOT NULL,
  error_type TEXT,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
	if _, err := db.Pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
