package storage

import (
	"context"
	"fmt"

	"ruleflow/internal/models"
)

// RuleRepo persists rule_records. It satisfies planner.RuleStore, with the
// compare-and-set done in SQL so concurrent claimers race on a single UPDATE.
type RuleRepo struct {
	db *DB
}

func NewRuleRepo(db *DB) *RuleRepo {
	return &RuleRepo{db: db}
}

func (r *RuleRepo) Get(ctx context.Context, key models.RuleKey) (*models.RuleRecord, error) {
	var rec models.RuleRecord
	err := r.db.Pool.QueryRow(ctx, `
SELECT pattern, code_type, rule_kind, status, has_own_rule, COALESCE(content_path,''), COALESCE(fail_reason,''), created_at, updated_at
FROM rule_records
WHERE pattern=$1 AND code_type=$2 AND rule_kind=$3`, key.Pattern, key.CodeType, key.RuleKind).
		Scan(&rec.Pattern, &rec.CodeType, &rec.RuleKind, &rec.Status, &rec.HasOwnRule, &rec.ContentPath, &rec.FailReason, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get rule record: %w", err)
	}
	return &rec, nil
}

func (r *RuleRepo) Upsert(ctx context.Context, rec models.RuleRecord) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO rule_records (pattern, code_type, rule_kind, status, has_own_rule, content_path, fail_reason)
VALUES ($1, $2, $3, $4, $5, NULLIF($6,''), NULLIF($7,''))
ON CONFLICT (pattern, code_type, rule_kind)
DO UPDATE SET
  status = EXCLUDED.status,
  has_own_rule = EXCLUDED.has_own_rule,
  content_path = EXCLUDED.content_path,
  fail_reason = EXCLUDED.fail_reason,
  updated_at = NOW()`,
		rec.Pattern, rec.CodeType, rec.RuleKind, rec.Status, rec.HasOwnRule, rec.ContentPath, rec.FailReason,
	)
	if err != nil {
		return fmt.Errorf("upsert rule record: %w", err)
	}
	return nil
}

func (r *RuleRepo) CompareAndSetStatus(ctx context.Context, key models.RuleKey, expected, next string) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx, `
UPDATE rule_records SET status=$4, updated_at=NOW()
WHERE pattern=$1 AND code_type=$2 AND rule_kind=$3 AND status=$5`,
		key.Pattern, key.CodeType, key.RuleKind, next, expected)
	if err != nil {
		return false, fmt.Errorf("cas rule status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *RuleRepo) ResetCascade(ctx context.Context, keys []models.RuleKey) error {
	for _, key := range keys {
		_, err := r.db.Pool.Exec(ctx, `
UPDATE rule_records SET status='pending', fail_reason=NULL, updated_at=NOW()
WHERE pattern=$1 AND code_type=$2 AND rule_kind=$3 AND status <> 'generating'`,
			key.Pattern, key.CodeType, key.RuleKind)
		if err != nil {
			return fmt.Errorf("reset rule %s: %w", key.Pattern, err)
		}
	}
	return nil
}

func (r *RuleRepo) UpdateStatus(ctx context.Context, key models.RuleKey, status, contentPath, failReason string) error {
	_, err := r.db.Pool.Exec(ctx, `
UPDATE rule_records
SET status=$4, content_path=COALESCE(NULLIF($5,''), content_path), fail_reason=NULLIF($6,''),
    has_own_rule = CASE WHEN $4 = 'ready' THEN TRUE ELSE has_own_rule END,
    updated_at=NOW()
WHERE pattern=$1 AND code_type=$2 AND rule_kind=$3`,
		key.Pattern, key.CodeType, key.RuleKind, status, contentPath, failReason)
	if err != nil {
		return fmt.Errorf("update rule status: %w", err)
	}
	return nil
}

func (r *RuleRepo) ListByCodeType(ctx context.Context, codeType string) ([]models.RuleRecord, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT pattern, code_type, rule_kind, status, has_own_rule, COALESCE(content_path,''), COALESCE(fail_reason,''), created_at, updated_at
FROM rule_records
WHERE code_type=$1
ORDER BY pattern, rule_kind`, codeType)
	if err != nil {
		return nil, fmt.Errorf("list rule records: %w", err)
	}
	defer rows.Close()

	out := make([]models.RuleRecord, 0)
	for rows.Next() {
		var rec models.RuleRecord
		if err := rows.Scan(&rec.Pattern, &rec.CodeType, &rec.RuleKind, &rec.Status, &rec.HasOwnRule, &rec.ContentPath, &rec.FailReason, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan rule record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rule records: %w", err)
	}
	return out, nil
}

func (r *RuleRepo) ListByStatus(ctx context.Context, status string) ([]models.RuleRecord, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT pattern, code_type, rule_kind, status, has_own_rule, COALESCE(content_path,''), COALESCE(fail_reason,''), created_at, updated_at
FROM rule_records
WHERE status=$1
ORDER BY updated_at DESC`, status)
	if err != nil {
		return nil, fmt.Errorf("list rule records by status: %w", err)
	}
	defer rows.Close()

	out := make([]models.RuleRecord, 0)
	for rows.Next() {
		var rec models.RuleRecord
		if err := rows.Scan(&rec.Pattern, &rec.CodeType, &rec.RuleKind, &rec.Status, &rec.HasOwnRule, &rec.ContentPath, &rec.FailReason, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan rule record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
