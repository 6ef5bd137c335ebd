package claims

import (
	"time"

	"github.com/google/uuid"
)

// Status is the canonical claim status vocabulary. Every adapter-specific
// status code is mapped into this set during ingestion.
type Status string

const (
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
	StatusPending  Status = "pending"
	StatusAppealed Status = "appealed"
	StatusPaid     Status = "paid"
)

// ValidStatuses enumerates the accepted canonical statuses.
var ValidStatuses = map[Status]bool{
	StatusApproved: true,
	StatusDenied:   true,
	StatusPending:  true,
	StatusAppealed: true,
	StatusPaid:     true,
}

// Claim maps to the claims table. ID is deterministic: a hash of
// (provider, patient, date of service, primary procedure), so re-importing
// the same logical claim always addresses the same row.
type Claim struct {
	ID             string     `db:"id" json:"id"`
	ProviderID     string     `db:"provider_id" json:"provider_id"`
	PatientKey     string     `db:"patient_key" json:"patient_key"`
	PatientName    *string    `db:"patient_name" json:"patient_name,omitempty"`
	DateOfService  string     `db:"date_of_service" json:"date_of_service"`
	BilledAmount   float64    `db:"billed_amount" json:"billed_amount"`
	PaidAmount     float64    `db:"paid_amount" json:"paid_amount"`
	Status         Status     `db:"status" json:"status"`
	DenialReason   *string    `db:"denial_reason" json:"denial_reason,omitempty"`
	ProcedureCodes []string   `db:"procedure_codes" json:"procedure_codes"`
	DiagnosisCodes []string   `db:"diagnosis_codes" json:"diagnosis_codes"`
	Modifiers      []string   `db:"modifiers" json:"modifiers"`
	SourceType     string     `db:"source_type" json:"source_type"`
	SourceRef      *string    `db:"source_ref" json:"source_ref,omitempty"`
	SubmittedAt    *time.Time `db:"submitted_at" json:"submitted_at,omitempty"`
	ProcessedAt    *time.Time `db:"processed_at" json:"processed_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// PrimaryProcedure returns the first procedure code, or "".
func (c *Claim) PrimaryProcedure() string {
	if len(c.ProcedureCodes) == 0 {
		return ""
	}
	return c.ProcedureCodes[0]
}

// Appeal maps to the claim_appeals table. At most one appeal per claim is
// open at a time; recording a new appeal supersedes any open one.
type Appeal struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	ClaimID    string     `db:"claim_id" json:"claim_id"`
	Status     string     `db:"status" json:"status"`
	AppealDate string     `db:"appeal_date" json:"appeal_date"`
	Outcome    *string    `db:"outcome" json:"outcome,omitempty"`
	ClosedAt   *time.Time `db:"closed_at" json:"closed_at,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}

// Open reports whether the appeal is still undecided.
func (a *Appeal) Open() bool { return a.ClosedAt == nil }

// StatusCount is one row of the status summary aggregate.
type StatusCount struct {
	Status      Status  `json:"status"`
	Count       int     `json:"count"`
	TotalBilled float64 `json:"total_billed"`
	TotalPaid   float64 `json:"total_paid"`
}

// UpsertOutcome is the per-record result of a conditional upsert.
type UpsertOutcome string

const (
	OutcomeInserted UpsertOutcome = "inserted"
	OutcomeUpdated  UpsertOutcome = "updated"
	OutcomeSkipped  UpsertOutcome = "skipped"
)
