package claims

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a claim or appeal does not exist.
var ErrNotFound = errors.New("claims: not found")

// ListFilter narrows List results. Zero values mean "no filter".
type ListFilter struct {
	Status      Status
	ProviderID  string
	PatientKey  string
	ServiceFrom string // inclusive YYYY-MM-DD
	ServiceTo   string // inclusive YYYY-MM-DD
}

// Repository is the canonical claim store. Upsert must be atomic per
// record with respect to concurrent callers targeting the same claim id.
type Repository interface {
	Upsert(ctx context.Context, c *Claim) (UpsertOutcome, error)
	GetByID(ctx context.Context, id string) (*Claim, error)
	List(ctx context.Context, f ListFilter, limit, offset int) ([]*Claim, int, error)
	StatusSummary(ctx context.Context) ([]StatusCount, error)

	// RecordAppeal supersedes any open appeal for the claim before
	// inserting the new one, in a single transaction.
	RecordAppeal(ctx context.Context, a *Appeal) error
	GetOpenAppeal(ctx context.Context, claimID string) (*Appeal, error)
	ListAppeals(ctx context.Context, claimID string) ([]*Appeal, error)
}
