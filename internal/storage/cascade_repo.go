package storage

import (
	"context"
	"fmt"

	"ruleflow/internal/models"
)

type CascadeRepo struct {
	db *DB
}

func NewCascadeRepo(db *DB) *CascadeRepo {
	return &CascadeRepo{db: db}
}

func (r *CascadeRepo) CreateRun(ctx context.Context, run models.CascadeRun) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO cascade_runs (run_id, target, code_type, rule_kind, status)
VALUES ($1, $2, $3, $4, 'pending')`,
		run.RunID, run.Target, run.CodeType, run.RuleKind)
	if err != nil {
		return fmt.Errorf("create cascade run: %w", err)
	}
	return nil
}

func (r *CascadeRepo) UpdateRunStatus(ctx context.Context, runID, status, reportPath string) error {
	_, err := r.db.Pool.Exec(ctx, `
UPDATE cascade_runs SET status=$2, report_path=COALESCE(NULLIF($3,''), report_path), updated_at=NOW()
WHERE run_id=$1`, runID, status, reportPath)
	if err != nil {
		return fmt.Errorf("update cascade run: %w", err)
	}
	return nil
}

func (r *CascadeRepo) GetRun(ctx context.Context, runID string) (models.CascadeRun, error) {
	var run models.CascadeRun
	err := r.db.Pool.QueryRow(ctx, `
SELECT run_id::text, target, code_type, rule_kind, status, COALESCE(report_path,''), created_at, updated_at
FROM cascade_runs WHERE run_id=$1`, runID).
		Scan(&run.RunID, &run.Target, &run.CodeType, &run.RuleKind, &run.Status, &run.ReportPath, &run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		return models.CascadeRun{}, fmt.Errorf("get cascade run: %w", err)
	}
	return run, nil
}

func (r *CascadeRepo) ListRuns(ctx context.Context, limit int) ([]models.CascadeRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Pool.Query(ctx, `
SELECT run_id::text, target, code_type, rule_kind, status, COALESCE(report_path,''), created_at, updated_at
FROM cascade_runs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list cascade runs: %w", err)
	}
	defer rows.Close()

	out := make([]models.CascadeRun, 0)
	for rows.Next() {
		var run models.CascadeRun
		if err := rows.Scan(&run.RunID, &run.Target, &run.CodeType, &run.RuleKind, &run.Status, &run.ReportPath, &run.CreatedAt, &run.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan cascade run: %w", err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}
