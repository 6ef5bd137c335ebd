package ingestion

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/claimsync/claimsync/internal/domain/claims"
)

type runRepoPG struct{ pool *pgxpool.Pool }

// NewRunRepoPG creates the PostgreSQL import run repository.
func NewRunRepoPG(pool *pgxpool.Pool) RunRepository { return &runRepoPG{pool: pool} }

const runCols = `id, source_type, status, inserted, updated, skipped, failed,
	error_text, started_at, finished_at, duration_ms`

func scanRun(row pgx.Row) (*ImportRun, error) {
	var r ImportRun
	err := row.Scan(&r.ID, &r.SourceType, &r.Status, &r.Inserted, &r.Updated, &r.Skipped, &r.Failed,
		&r.ErrorText, &r.StartedAt, &r.FinishedAt, &r.DurationMs)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, claims.ErrNotFound
	}
	return &r, err
}

func (p *runRepoPG) Create(ctx context.Context, run *ImportRun) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO import_runs (id, source_type, status, started_at)
		VALUES ($1,$2,$3,$4)`,
		run.ID, run.SourceType, run.Status, run.StartedAt)
	if err != nil {
		return fmt.Errorf("create import run: %w", err)
	}
	return nil
}

func (p *runRepoPG) Update(ctx context.Context, run *ImportRun) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE import_runs
		SET inserted = $2, updated = $3, skipped = $4, failed = $5
		WHERE id = $1`,
		run.ID, run.Inserted, run.Updated, run.Skipped, run.Failed)
	if err != nil {
		return fmt.Errorf("update import run %s: %w", run.ID, err)
	}
	return nil
}

func (p *runRepoPG) Finalize(ctx context.Context, run *ImportRun) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE import_runs
		SET status = $2, inserted = $3, updated = $4, skipped = $5, failed = $6,
			error_text = $7, finished_at = $8, duration_ms = $9
		WHERE id = $1`,
		run.ID, run.Status, run.Inserted, run.Updated, run.Skipped, run.Failed,
		run.ErrorText, run.FinishedAt, run.DurationMs)
	if err != nil {
		return fmt.Errorf("finalize import run %s: %w", run.ID, err)
	}
	return nil
}

func (p *runRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*ImportRun, error) {
	return scanRun(p.pool.QueryRow(ctx, `SELECT `+runCols+` FROM import_runs WHERE id = $1`, id))
}

func (p *runRepoPG) List(ctx context.Context, f RunFilter, limit, offset int) ([]ImportRun, int, error) {
	where := " WHERE 1=1"
	args := []interface{}{}
	n := 0
	add := func(cond string, val interface{}) {
		n++
		where += fmt.Sprintf(" AND %s $%d", cond, n)
		args = append(args, val)
	}
	if f.SourceType != "" {
		add("source_type =", f.SourceType)
	}
	if f.Status != "" {
		add("status =", f.Status)
	}

	var total int
	if err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM import_runs`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := p.pool.Query(ctx, `SELECT `+runCols+` FROM import_runs`+where+
		fmt.Sprintf(` ORDER BY started_at DESC LIMIT $%d OFFSET $%d`, n+1, n+2), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []ImportRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, *r)
	}
	return items, total, rows.Err()
}
