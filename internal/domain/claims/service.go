package claims

import (
	"context"
	"errors"
	"fmt"
)

// Service exposes the read side of the canonical claim store plus the
// upsert entry point used by the ingestion pipeline.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Upsert validates structural invariants that the store relies on and
// applies the insert-or-update-or-skip decision atomically.
func (s *Service) Upsert(ctx context.Context, c *Claim) (UpsertOutcome, error) {
	if c == nil {
		return "", fmt.Errorf("claim is required")
	}
	if c.ID == "" {
		return "", fmt.Errorf("claim id is required")
	}
	if !ValidStatuses[c.Status] {
		return "", fmt.Errorf("invalid claim status: %s", c.Status)
	}
	if c.Status == StatusDenied && (c.DenialReason == nil || *c.DenialReason == "") {
		return "", fmt.Errorf("denied claim %s requires a denial reason", c.ID)
	}
	return s.repo.Upsert(ctx, c)
}

func (s *Service) Get(ctx context.Context, id string) (*Claim, error) {
	return s.repo.GetByID(ctx, id)
}

// GetDetail returns the claim together with its open appeal, when one
// exists. A claim with no open appeal is not an error.
func (s *Service) GetDetail(ctx context.Context, id string) (*Claim, *Appeal, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	open, err := s.repo.GetOpenAppeal(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return c, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return c, open, nil
}

func (s *Service) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Claim, int, error) {
	if f.Status != "" && !ValidStatuses[f.Status] {
		return nil, 0, fmt.Errorf("invalid claim status: %s", f.Status)
	}
	return s.repo.List(ctx, f, limit, offset)
}

func (s *Service) StatusSummary(ctx context.Context) ([]StatusCount, error) {
	return s.repo.StatusSummary(ctx)
}

// RecordAppeal attaches an appeal to an existing claim. The claim must
// already be in the store; appeals never create claims.
func (s *Service) RecordAppeal(ctx context.Context, a *Appeal) error {
	if a.ClaimID == "" {
		return fmt.Errorf("appeal claim_id is required")
	}
	if _, err := s.repo.GetByID(ctx, a.ClaimID); err != nil {
		return err
	}
	if a.Status == "" {
		a.Status = "submitted"
	}
	return s.repo.RecordAppeal(ctx, a)
}

func (s *Service) ListAppeals(ctx context.Context, claimID string) ([]*Appeal, error) {
	return s.repo.ListAppeals(ctx, claimID)
}
