package claims

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

// NewRepoPG creates the PostgreSQL claim repository.
func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const claimCols = `id, provider_id, patient_key, patient_name, date_of_service,
	billed_amount, paid_amount, status, denial_reason,
	procedure_codes, diagnosis_codes, modifiers,
	source_type, source_ref, submitted_at, processed_at, created_at, updated_at`

func scanClaim(row pgx.Row) (*Claim, error) {
	var c Claim
	err := row.Scan(&c.ID, &c.ProviderID, &c.PatientKey, &c.PatientName, &c.DateOfService,
		&c.BilledAmount, &c.PaidAmount, &c.Status, &c.DenialReason,
		&c.ProcedureCodes, &c.DiagnosisCodes, &c.Modifiers,
		&c.SourceType, &c.SourceRef, &c.SubmittedAt, &c.ProcessedAt, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &c, err
}

// Upsert inserts the claim, updates it in place when any mutable field
// differs, or leaves it untouched when nothing changed. The decision and
// the write happen in one statement, so concurrent runs targeting the same
// claim id cannot interleave a read-then-write race. created_at is never
// overwritten on update; xmax = 0 distinguishes a fresh insert from an
// update of an existing row.
func (r *repoPG) Upsert(ctx context.Context, c *Claim) (UpsertOutcome, error) {
	var inserted bool
	err := r.pool.QueryRow(ctx, `
		INSERT INTO claims (id, provider_id, patient_key, patient_name, date_of_service,
			billed_amount, paid_amount, status, denial_reason,
			procedure_codes, diagnosis_codes, modifiers,
			source_type, source_ref, submitted_at, processed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		ON CONFLICT (id) DO UPDATE SET
			patient_name    = EXCLUDED.patient_name,
			billed_amount   = EXCLUDED.billed_amount,
			paid_amount     = EXCLUDED.paid_amount,
			status          = EXCLUDED.status,
			denial_reason   = EXCLUDED.denial_reason,
			procedure_codes = EXCLUDED.procedure_codes,
			diagnosis_codes = EXCLUDED.diagnosis_codes,
			modifiers       = EXCLUDED.modifiers,
			source_type     = EXCLUDED.source_type,
			source_ref      = EXCLUDED.source_ref,
			processed_at    = EXCLUDED.processed_at,
			updated_at      = NOW()
		WHERE (claims.billed_amount, claims.paid_amount, claims.status, claims.denial_reason,
			claims.procedure_codes, claims.diagnosis_codes, claims.modifiers)
			IS DISTINCT FROM
			(EXCLUDED.billed_amount, EXCLUDED.paid_amount, EXCLUDED.status, EXCLUDED.denial_reason,
			EXCLUDED.procedure_codes, EXCLUDED.diagnosis_codes, EXCLUDED.modifiers)
		RETURNING (xmax = 0)`,
		c.ID, c.ProviderID, c.PatientKey, c.PatientName, c.DateOfService,
		c.BilledAmount, c.PaidAmount, c.Status, c.DenialReason,
		c.ProcedureCodes, c.DiagnosisCodes, c.Modifiers,
		c.SourceType, c.SourceRef, c.SubmittedAt, c.ProcessedAt).Scan(&inserted)
	if errors.Is(err, pgx.ErrNoRows) {
		// Conflict with an identical row: the conditional update matched
		// nothing, so no write happened.
		return OutcomeSkipped, nil
	}
	if err != nil {
		return "", fmt.Errorf("upsert claim %s: %w", c.ID, err)
	}
	if inserted {
		return OutcomeInserted, nil
	}
	return OutcomeUpdated, nil
}

func (r *repoPG) GetByID(ctx context.Context, id string) (*Claim, error) {
	return scanClaim(r.pool.QueryRow(ctx, `SELECT `+claimCols+` FROM claims WHERE id = $1`, id))
}

func (r *repoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Claim, int, error) {
	where := " WHERE 1=1"
	args := []interface{}{}
	n := 0
	add := func(cond string, val interface{}) {
		n++
		where += fmt.Sprintf(" AND %s $%d", cond, n)
		args = append(args, val)
	}
	if f.Status != "" {
		add("status =", f.Status)
	}
	if f.ProviderID != "" {
		add("provider_id =", f.ProviderID)
	}
	if f.PatientKey != "" {
		add("patient_key =", f.PatientKey)
	}
	if f.ServiceFrom != "" {
		add("date_of_service >=", f.ServiceFrom)
	}
	if f.ServiceTo != "" {
		add("date_of_service <=", f.ServiceTo)
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM claims`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := r.pool.Query(ctx, `SELECT `+claimCols+` FROM claims`+where+
		fmt.Sprintf(` ORDER BY date_of_service DESC, id LIMIT $%d OFFSET $%d`, n+1, n+2), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, c)
	}
	return items, total, rows.Err()
}

func (r *repoPG) StatusSummary(ctx context.Context) ([]StatusCount, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT status, COUNT(*), COALESCE(SUM(billed_amount), 0), COALESCE(SUM(paid_amount), 0)
		FROM claims GROUP BY status ORDER BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StatusCount
	for rows.Next() {
		var sc StatusCount
		if err := rows.Scan(&sc.Status, &sc.Count, &sc.TotalBilled, &sc.TotalPaid); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// RecordAppeal closes any open appeal for the claim and inserts the new
// one inside a single transaction, keeping the at-most-one-open-appeal
// invariant under concurrent ingestion.
func (r *repoPG) RecordAppeal(ctx context.Context, a *Appeal) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin appeal tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		UPDATE claim_appeals SET closed_at = NOW(), outcome = COALESCE(outcome, 'superseded'), updated_at = NOW()
		WHERE claim_id = $1 AND closed_at IS NULL`, a.ClaimID); err != nil {
		return fmt.Errorf("supersede open appeal for %s: %w", a.ClaimID, err)
	}

	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO claim_appeals (id, claim_id, status, appeal_date, outcome, closed_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		a.ID, a.ClaimID, a.Status, a.AppealDate, a.Outcome, a.ClosedAt); err != nil {
		return fmt.Errorf("insert appeal for %s: %w", a.ClaimID, err)
	}

	return tx.Commit(ctx)
}

func (r *repoPG) GetOpenAppeal(ctx context.Context, claimID string) (*Appeal, error) {
	return scanAppeal(r.pool.QueryRow(ctx, `
		SELECT id, claim_id, status, appeal_date, outcome, closed_at, created_at, updated_at
		FROM claim_appeals WHERE claim_id = $1 AND closed_at IS NULL`, claimID))
}

func (r *repoPG) ListAppeals(ctx context.Context, claimID string) ([]*Appeal, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, claim_id, status, appeal_date, outcome, closed_at, created_at, updated_at
		FROM claim_appeals WHERE claim_id = $1 ORDER BY created_at DESC`, claimID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Appeal
	for rows.Next() {
		a, err := scanAppeal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAppeal(row pgx.Row) (*Appeal, error) {
	var a Appeal
	err := row.Scan(&a.ID, &a.ClaimID, &a.Status, &a.AppealDate, &a.Outcome, &a.ClosedAt, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &a, err
}
