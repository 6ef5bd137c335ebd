package ingestion

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/claimsync/claimsync/internal/domain/claims"
)

// testSampleLimit bounds how many records a connection test pulls.
const testSampleLimit = 5

// ErrRunNotActive is returned when cancelling a run that is not running.
var ErrRunNotActive = fmt.Errorf("ingestion: run is not active")

// Service coordinates adapters, orchestrator runs, and run history. It is
// safe for concurrent use; each run gets its own orchestrator and adapter
// instance, so runs against different sources proceed independently.
type Service struct {
	registry *Registry
	store    *claims.Service
	runs     RunRepository
	log      zerolog.Logger

	runTimeout time.Duration

	mu     sync.Mutex
	active map[uuid.UUID]*CancelFlag
}

func NewService(registry *Registry, store *claims.Service, runs RunRepository, log zerolog.Logger) *Service {
	return &Service{
		registry:   registry,
		store:      store,
		runs:       runs,
		log:        log,
		runTimeout: defaultRunTimeout,
		active:     map[uuid.UUID]*CancelFlag{},
	}
}

// SetRunTimeout overrides the deadline applied to background bulk runs.
func (s *Service) SetRunTimeout(d time.Duration) {
	if d > 0 {
		s.runTimeout = d
	}
}

// RunImport executes one ingestion run synchronously and returns its
// outcome summary. Record-local failures are reported in the result, not
// as an error; err is reserved for invalid requests.
func (s *Service) RunImport(ctx context.Context, sourceType string, cfg Config, opts FetchOptions) (*ImportResult, error) {
	adapter, err := s.registry.New(sourceType)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s.log.Info().
		Str("source_type", sourceType).
		Interface("config", cfg.Masked()).
		Msg("import requested")

	flag := &CancelFlag{}
	orch := NewOrchestrator(adapter, s.store, s.runs, flag, s.log)
	s.track(orch, flag)
	defer s.untrack(orch)
	return orch.Run(ctx, cfg, opts), nil
}

// ImportRequest is one source in a bulk import.
type ImportRequest struct {
	SourceType string       `json:"source_type"`
	Config     Config       `json:"config"`
	Options    FetchOptions `json:"options"`
}

// StartBulkImport launches one background run per request and returns
// the run ids immediately. Progress is pollable through GetRun. The
// parent context is not used for the runs; a bulk import outlives the
// HTTP request that started it.
func (s *Service) StartBulkImport(requests []ImportRequest) ([]uuid.UUID, error) {
	adapters := make([]Adapter, 0, len(requests))
	for i, req := range requests {
		adapter, err := s.registry.New(req.SourceType)
		if err != nil {
			return nil, fmt.Errorf("request %d: %w", i, err)
		}
		if err := req.Config.Validate(); err != nil {
			return nil, fmt.Errorf("request %d: %w", i, err)
		}
		adapters = append(adapters, adapter)
	}

	ids := make([]uuid.UUID, 0, len(requests))
	for i, req := range requests {
		req := req
		flag := &CancelFlag{}
		orch := NewOrchestrator(adapters[i], s.store, s.runs, flag, s.log)
		s.track(orch, flag)
		ids = append(ids, orch.runID)
		s.log.Info().
			Str("run_id", orch.runID.String()).
			Str("source_type", req.SourceType).
			Interface("config", req.Config.Masked()).
			Msg("bulk import run queued")
		go func() {
			defer s.untrack(orch)
			ctx, cancel := context.WithTimeout(context.Background(), s.runTimeout)
			defer cancel()
			orch.Run(ctx, req.Config, req.Options)
		}()
	}
	return ids, nil
}

// defaultRunTimeout caps a single background run.
const defaultRunTimeout = 30 * time.Minute

// CancelRun requests cooperative cancellation of an active run. The run
// finishes its in-flight record, flushes counts, and lands in the
// cancelled terminal state.
func (s *Service) CancelRun(id uuid.UUID) error {
	s.mu.Lock()
	flag, ok := s.active[id]
	s.mu.Unlock()
	if !ok {
		return ErrRunNotActive
	}
	flag.Cancel()
	return nil
}

// TestConnection verifies a source configuration end to end without
// writing anything: connect, pull a bounded sample, disconnect.
func (s *Service) TestConnection(ctx context.Context, sourceType string, cfg Config) (*TestResult, error) {
	adapter, err := s.registry.New(sourceType)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s.log.Info().
		Str("source_type", sourceType).
		Interface("config", cfg.Masked()).
		Msg("connection test requested")

	if err := adapter.Connect(ctx, cfg); err != nil {
		return &TestResult{Success: false, Message: err.Error()}, nil
	}
	defer func() {
		if err := adapter.Disconnect(ctx); err != nil {
			s.log.Warn().Err(err).Str("source_type", sourceType).Msg("disconnect after test")
		}
	}()

	seq, err := adapter.FetchClaims(ctx, FetchOptions{Limit: testSampleLimit})
	if err != nil {
		return &TestResult{Success: false, Message: err.Error()}, nil
	}
	var sample []*ExternalClaim
	for {
		rec, err := seq.Next()
		if err != nil {
			return &TestResult{Success: false, Message: err.Error()}, nil
		}
		if rec == nil {
			break
		}
		if rec.Err == nil && rec.Claim != nil {
			sample = append(sample, rec.Claim)
		}
	}
	return &TestResult{
		Success:       true,
		SampleRecords: sample,
		Message:       fmt.Sprintf("fetched %d sample records", len(sample)),
	}, nil
}

// AdapterTypes lists the registered source types.
func (s *Service) AdapterTypes() []Metadata { return s.registry.Types() }

func (s *Service) GetRun(ctx context.Context, id uuid.UUID) (*ImportRun, error) {
	return s.runs.GetByID(ctx, id)
}

func (s *Service) ListRuns(ctx context.Context, filter RunFilter, limit, offset int) ([]ImportRun, int, error) {
	return s.runs.List(ctx, filter, limit, offset)
}

// track registers the run's cancellation handle. The run row id is not
// known until Run assigns it, so tracking is keyed off the orchestrator's
// preassigned id.
func (s *Service) track(orch *Orchestrator, flag *CancelFlag) {
	s.mu.Lock()
	defer s.mu.Unlock()
	orch.runID = uuid.New()
	s.active[orch.runID] = flag
}

func (s *Service) untrack(orch *Orchestrator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, orch.runID)
}
