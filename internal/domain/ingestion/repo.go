package ingestion

import (
	"context"

	"github.com/google/uuid"
)

// RunFilter narrows import run history queries.
type RunFilter struct {
	SourceType string
	Status     RunStatus
}

// RunRepository persists import run history. The running orchestrator is
// the only writer for its own row.
type RunRepository interface {
	Create(ctx context.Context, run *ImportRun) error
	Update(ctx context.Context, run *ImportRun) error
	Finalize(ctx context.Context, run *ImportRun) error
	GetByID(ctx context.Context, id uuid.UUID) (*ImportRun, error)
	List(ctx context.Context, filter RunFilter, limit, offset int) ([]ImportRun, int, error)
}
