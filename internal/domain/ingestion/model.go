package ingestion

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// ExternalClaim is the raw, adapter-specific view of one claim exactly as
// read from the source. Fields are untyped strings because source formats
// disagree on encodings; the mapper and validator normalize them. It is
// never persisted.
type ExternalClaim struct {
	SourceRecordID string // adapter-local identifier: claim reference or row number
	ProviderID     string
	PatientKey     string
	PatientName    string
	DateOfService  string // raw source encoding
	BilledAmount   string
	PaidAmount     string
	StatusCode     string
	DenialReason   string
	ProcedureCodes string // raw delimited list
	DiagnosisCodes string
	Modifiers      string
	Raw            map[string]string // original source fields, for triage
}

// ExternalAppeal is a raw appeal/dispute status update. It carries the
// claim identity fields rather than a claim id, so the deterministic id
// can be recomputed; appeals never create claims.
type ExternalAppeal struct {
	SourceRecordID string
	ProviderID     string
	PatientKey     string
	DateOfService  string
	ProcedureCode  string
	Status         string
	AppealDate     string
	Outcome        string
}

// Record is one element of a fetch sequence. Either Claim or Appeal is
// set; Err carries a record-local decode failure that the pipeline counts
// as failed without aborting the batch.
type Record struct {
	Seq    int // 1-based position within the batch
	Claim  *ExternalClaim
	Appeal *ExternalAppeal
	Err    error
}

// ID returns the best identifier for the record for error reporting.
func (r *Record) ID() string {
	switch {
	case r.Claim != nil && r.Claim.SourceRecordID != "":
		return r.Claim.SourceRecordID
	case r.Appeal != nil && r.Appeal.SourceRecordID != "":
		return r.Appeal.SourceRecordID
	default:
		return strconv.Itoa(r.Seq)
	}
}

// FetchOptions bounds a fetch. Limit <= 0 means no limit; Since, when set
// (YYYY-MM-DD), excludes records with an earlier date of service.
type FetchOptions struct {
	Limit int
	Since string
}

// Metadata is an adapter variant's static descriptor. It involves no I/O
// and never fails.
type Metadata struct {
	Type            string `json:"type"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	SupportsAppeals bool   `json:"supports_appeals"`
	// UpdatesOnly marks variants that reconcile previously ingested
	// claims and must never create new ones (remittance).
	UpdatesOnly bool `json:"updates_only"`
}

// ValidationResult is a per-record validation outcome. It is attached to
// the batch summary and never silently dropped.
type ValidationResult struct {
	Valid  bool    `json:"valid"`
	Issues []Issue `json:"issues,omitempty"`
}

// Issue is one failed check: the implicated field and a reason.
type Issue struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (r *ValidationResult) add(field, reason string) {
	r.Valid = false
	r.Issues = append(r.Issues, Issue{Field: field, Reason: reason})
}

// Reason flattens the issues into a single triage string.
func (r *ValidationResult) Reason() string {
	if len(r.Issues) == 0 {
		return ""
	}
	s := r.Issues[0].Reason
	for _, iss := range r.Issues[1:] {
		s += "; " + iss.Reason
	}
	return s
}

// RunStatus is the lifecycle status of an import run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// ImportRun maps to the import_runs table: one row per ingestion run,
// created at run start, mutated as the run progresses, finalized at run
// end. Owned exclusively by the orchestrator.
type ImportRun struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	SourceType string     `db:"source_type" json:"source_type"`
	Status     RunStatus  `db:"status" json:"status"`
	Inserted   int        `db:"inserted" json:"inserted"`
	Updated    int        `db:"updated" json:"updated"`
	Skipped    int        `db:"skipped" json:"skipped"`
	Failed     int        `db:"failed" json:"failed"`
	ErrorText  *string    `db:"error_text" json:"error_text,omitempty"`
	StartedAt  time.Time  `db:"started_at" json:"started_at"`
	FinishedAt *time.Time `db:"finished_at" json:"finished_at,omitempty"`
	DurationMs *int64     `db:"duration_ms" json:"duration_ms,omitempty"`
}

// ImportResult is the outcome summary returned to callers.
type ImportResult struct {
	RunID      uuid.UUID     `json:"run_id"`
	Inserted   int           `json:"inserted"`
	Updated    int           `json:"updated"`
	Skipped    int           `json:"skipped"`
	Failed     int           `json:"failed"`
	Errors     []RecordError `json:"errors"`
	DurationMs int64         `json:"duration_ms"`
	Status     RunStatus     `json:"status"`
}

// TestResult is returned by connection tests: connect plus a small bounded
// fetch, never a write.
type TestResult struct {
	Success       bool             `json:"success"`
	SampleRecords []*ExternalClaim `json:"sample_records"`
	Message       string           `json:"message"`
}
