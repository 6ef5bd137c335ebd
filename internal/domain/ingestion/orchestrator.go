package ingestion

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/claimsync/claimsync/internal/domain/claims"
)

// RunState is the orchestrator's internal state machine position.
type RunState string

const (
	StateIdle       RunState = "idle"
	StateConnecting RunState = "connecting"
	StateFetching   RunState = "fetching"
	StateProcessing RunState = "processing"
	StateFinalizing RunState = "finalizing"
	StateCompleted  RunState = "completed"
	StateFailed     RunState = "failed"
	StateCancelled  RunState = "cancelled"
)

// CancelFlag is a poll-checkable cooperative cancellation handle shared
// between a running orchestrator and the status API. The orchestrator
// checks it between records, never preemptively inside one.
type CancelFlag struct {
	flag atomic.Bool
}

func (f *CancelFlag) Cancel() { f.flag.Store(true) }

func (f *CancelFlag) Cancelled() bool {
	return f != nil && f.flag.Load()
}

// progressEvery is how many processed records pass between run-row
// progress writes during a batch.
const progressEvery = 25

// Orchestrator drives one adapter through connect → fetch → validate →
// transform → persist → disconnect for a single run. Instances are
// single-use: a new run always starts a fresh orchestrator, so terminal
// states are final. The orchestrator exclusively owns the run row.
type Orchestrator struct {
	adapter Adapter
	store   *claims.Service
	runs    RunRepository
	cancel  *CancelFlag
	log     zerolog.Logger

	state        RunState
	runID        uuid.UUID
	run          *ImportRun
	result       *ImportResult
	disconnected bool
}

func NewOrchestrator(adapter Adapter, store *claims.Service, runs RunRepository, cancel *CancelFlag, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		adapter: adapter,
		store:   store,
		runs:    runs,
		cancel:  cancel,
		log:     log.With().Str("source_type", adapter.Metadata().Type).Logger(),
		state:   StateIdle,
	}
}

func (o *Orchestrator) setState(s RunState) {
	o.log.Debug().Str("from", string(o.state)).Str("to", string(s)).Msg("run state transition")
	o.state = s
}

// State returns the current state machine position.
func (o *Orchestrator) State() RunState { return o.state }

// Run executes the full pipeline. Record-local failures are counted and
// the batch continues; only connection-level and fetch-level errors abort
// the run, and records committed before an abort stay committed.
func (o *Orchestrator) Run(ctx context.Context, cfg Config, opts FetchOptions) *ImportResult {
	meta := o.adapter.Metadata()
	started := time.Now()

	if o.runID == uuid.Nil {
		o.runID = uuid.New()
	}
	o.run = &ImportRun{
		ID:         o.runID,
		SourceType: meta.Type,
		Status:     RunRunning,
		StartedAt:  started.UTC(),
	}
	o.result = &ImportResult{RunID: o.run.ID, Errors: []RecordError{}}
	if err := o.runs.Create(ctx, o.run); err != nil {
		o.log.Error().Err(err).Msg("create run row")
		return o.finalize(ctx, started, RunFailed, err)
	}
	o.log.Info().Str("run_id", o.run.ID.String()).Msg("ingestion run started")

	// connecting
	o.setState(StateConnecting)
	if err := o.adapter.Connect(ctx, cfg); err != nil {
		o.log.Error().Err(err).Msg("connect failed")
		return o.finalize(ctx, started, RunFailed, err)
	}

	// fetching
	o.setState(StateFetching)
	seq, err := o.adapter.FetchClaims(ctx, opts)
	if err != nil {
		o.log.Error().Err(err).Msg("fetch failed")
		return o.finalize(ctx, started, RunFailed, err)
	}

	// processing
	o.setState(StateProcessing)
	status, err := o.processClaims(ctx, seq, meta)
	if err != nil || status != "" {
		return o.finalize(ctx, started, orDefault(status, RunFailed), err)
	}

	if meta.SupportsAppeals {
		status, err = o.processAppeals(ctx, opts)
		if err != nil || status != "" {
			return o.finalize(ctx, started, orDefault(status, RunFailed), err)
		}
	}

	return o.finalize(ctx, started, RunCompleted, nil)
}

// processClaims consumes the claim sequence. It returns a non-empty
// terminal status for cancellation, or an error for a run-fatal fetch
// failure; ("", nil) means the batch completed.
func (o *Orchestrator) processClaims(ctx context.Context, seq *RecordSeq, meta Metadata) (RunStatus, error) {
	vocab := StatusVocab(meta.Type)
	vopts := ValidateOptions{AllowAdjustments: meta.UpdatesOnly}
	processed := 0

	for {
		if o.cancel.Cancelled() {
			o.log.Warn().Msg("cancellation requested, stopping batch")
			return RunCancelled, nil
		}
		rec, err := seq.Next()
		if err != nil {
			// Source-level fetch error: run-fatal, but earlier commits
			// stay committed.
			return "", err
		}
		if rec == nil {
			return "", nil
		}

		o.processClaimRecord(ctx, rec, meta, vocab, vopts)
		processed++
		if processed%progressEvery == 0 {
			o.flushProgress(ctx)
		}
	}
}

func (o *Orchestrator) processClaimRecord(ctx context.Context, rec *Record, meta Metadata, vocab map[string]claims.Status, vopts ValidateOptions) {
	if rec.Err != nil {
		o.recordFailure(rec.ID(), StageFetch, rec.Err.Error())
		return
	}
	if rec.Claim == nil {
		o.recordFailure(rec.ID(), StageFetch, "record carries no claim")
		return
	}

	res := ValidateClaim(rec.Claim, vocab, vopts)
	if !res.Valid {
		o.recordFailure(rec.ID(), StageValidate, res.Reason())
		return
	}

	mapped, warnings, err := MapClaim(rec.Claim, meta.Type, vocab)
	if err != nil {
		o.recordFailure(rec.ID(), StageMap, err.Error())
		return
	}
	for _, w := range warnings {
		o.log.Warn().Str("record", rec.ID()).Msg(w)
	}

	target := mapped
	if meta.UpdatesOnly {
		// Remittances reconcile existing claims and never create them.
		existing, err := o.store.Get(ctx, mapped.ID)
		if errors.Is(err, claims.ErrNotFound) {
			o.recordFailure(rec.ID(), StagePersist, "unknown claim reference")
			return
		}
		if err != nil {
			o.recordFailure(rec.ID(), StagePersist, err.Error())
			return
		}
		target = mergeUpdate(existing, mapped)
	}

	outcome, err := o.store.Upsert(ctx, target)
	if err != nil {
		if errors.Is(err, ErrDedupConflict) {
			o.log.Error().Err(err).
				Str("record", rec.ID()).
				Str("claim_id", target.ID).
				Interface("raw", rec.Claim.Raw).
				Msg("dedup conflict")
		}
		o.recordFailure(rec.ID(), StagePersist, err.Error())
		return
	}
	switch outcome {
	case claims.OutcomeInserted:
		o.result.Inserted++
		o.run.Inserted++
	case claims.OutcomeUpdated:
		o.result.Updated++
		o.run.Updated++
	case claims.OutcomeSkipped:
		o.result.Skipped++
		o.run.Skipped++
	}
}

// processAppeals fetches and applies appeal updates for adapters that
// support them. Appeals reference claims that must already exist.
func (o *Orchestrator) processAppeals(ctx context.Context, opts FetchOptions) (RunStatus, error) {
	seq, err := o.adapter.FetchAppeals(ctx, opts)
	if err != nil {
		return "", err
	}
	for {
		if o.cancel.Cancelled() {
			o.log.Warn().Msg("cancellation requested, stopping appeals")
			return RunCancelled, nil
		}
		rec, err := seq.Next()
		if err != nil {
			return "", err
		}
		if rec == nil {
			return "", nil
		}
		if rec.Err != nil || rec.Appeal == nil {
			o.recordFailure(rec.ID(), StageFetch, recordReason(rec))
			continue
		}

		appeal, err := MapAppeal(rec.Appeal)
		if err != nil {
			o.recordFailure(rec.ID(), StageMap, err.Error())
			continue
		}
		if err := o.store.RecordAppeal(ctx, appeal); err != nil {
			if errors.Is(err, claims.ErrNotFound) {
				o.recordFailure(rec.ID(), StagePersist, "unknown claim reference")
			} else {
				o.recordFailure(rec.ID(), StagePersist, err.Error())
			}
			continue
		}
		o.result.Updated++
		o.run.Updated++
	}
}

// finalize computes duration and final counts, persists the run row, and
// releases the adapter connection. Disconnect is attempted on every exit
// path; its own failure is logged but never overrides the run outcome.
func (o *Orchestrator) finalize(ctx context.Context, started time.Time, status RunStatus, cause error) *ImportResult {
	o.setState(StateFinalizing)

	if !o.disconnected {
		o.disconnected = true
		if err := o.adapter.Disconnect(ctx); err != nil {
			o.log.Warn().Err(err).Msg("disconnect failed")
		}
	}

	duration := time.Since(started).Milliseconds()
	o.result.DurationMs = duration
	o.result.Status = status
	if cause != nil {
		o.result.Errors = append(o.result.Errors, RecordError{
			Record: "-", Stage: fatalStage(o.state, cause), Reason: cause.Error(),
		})
	}

	o.run.Status = status
	now := time.Now().UTC()
	o.run.FinishedAt = &now
	o.run.DurationMs = &duration
	if cause != nil {
		text := cause.Error()
		o.run.ErrorText = &text
	}
	if err := o.runs.Finalize(ctx, o.run); err != nil {
		o.log.Error().Err(err).Str("run_id", o.run.ID.String()).Msg("finalize run row")
	}

	switch status {
	case RunCompleted:
		o.setState(StateCompleted)
	case RunCancelled:
		o.setState(StateCancelled)
	default:
		o.setState(StateFailed)
	}
	o.log.Info().
		Str("run_id", o.run.ID.String()).
		Str("status", string(status)).
		Int("inserted", o.result.Inserted).
		Int("updated", o.result.Updated).
		Int("skipped", o.result.Skipped).
		Int("failed", o.result.Failed).
		Int64("duration_ms", duration).
		Msg("ingestion run finished")
	return o.result
}

func (o *Orchestrator) recordFailure(record, stage, reason string) {
	o.result.Failed++
	o.run.Failed++
	o.result.Errors = append(o.result.Errors, RecordError{Record: record, Stage: stage, Reason: reason})
	o.log.Warn().Str("record", record).Str("stage", stage).Str("reason", reason).Msg("record failed")
}

func (o *Orchestrator) flushProgress(ctx context.Context) {
	if err := o.runs.Update(ctx, o.run); err != nil {
		o.log.Warn().Err(err).Msg("update run progress")
	}
}

// mergeUpdate applies a remittance update onto the stored claim, keeping
// fields the advice does not carry (code lists, submission data).
func mergeUpdate(existing, update *claims.Claim) *claims.Claim {
	merged := *existing
	merged.PaidAmount = update.PaidAmount
	merged.Status = update.Status
	if update.DenialReason != nil {
		merged.DenialReason = update.DenialReason
	}
	if update.Status == claims.StatusDenied && merged.DenialReason == nil {
		reason := "denied per remittance advice"
		merged.DenialReason = &reason
	}
	merged.ProcessedAt = update.ProcessedAt
	return &merged
}

func recordReason(rec *Record) string {
	if rec.Err != nil {
		return rec.Err.Error()
	}
	return "record carries no appeal"
}

func fatalStage(state RunState, err error) string {
	if errors.Is(err, ErrConnection) {
		return StageConnect
	}
	if state == StateConnecting {
		return StageConnect
	}
	return StageFetch
}

func orDefault(s RunStatus, def RunStatus) RunStatus {
	if s == "" {
		return def
	}
	return s
}
