package ingestion

import (
	"errors"
	"fmt"
)

// Sentinel errors for the ingestion pipeline. Connection and unsupported
// operation errors are run-fatal; format errors are always record-local.
var (
	// ErrConnection marks a source that is unreachable or rejected the
	// credentials. It aborts the whole run.
	ErrConnection = errors.New("ingestion: connection failed")

	// ErrUnsupportedOperation is returned when a capability (for example
	// appeal fetching) is invoked on an adapter variant that does not
	// implement it. This is a configuration error and run-fatal.
	ErrUnsupportedOperation = errors.New("ingestion: operation not supported by adapter")

	// ErrUnknownSourceType is returned by the registry for source types
	// no adapter is registered under.
	ErrUnknownSourceType = errors.New("ingestion: unknown source type")

	// ErrDateFormat marks an unparseable source date. Record-local.
	ErrDateFormat = errors.New("ingestion: unparseable date")

	// ErrSeqExhausted is returned when a record sequence is read past its
	// terminal state. Sequences are single-pass and not restartable.
	ErrSeqExhausted = errors.New("ingestion: record sequence exhausted")

	// ErrDedupConflict should not occur given the atomic upsert; when it
	// surfaces it is treated as a record-local failure and logged with
	// full context.
	ErrDedupConflict = errors.New("ingestion: dedup conflict")
)

// FormatError is a record-local structural failure raised while decoding a
// single source record. It never aborts the batch.
type FormatError struct {
	RecordID string
	Reason   string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("ingestion: malformed record %s: %s", e.RecordID, e.Reason)
}

// ConnectionError wraps a source-level failure with the adapter type for
// triage. It matches ErrConnection under errors.Is.
type ConnectionError struct {
	SourceType string
	Err        error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("ingestion: %s connection failed: %v", e.SourceType, e.Err)
}

func (e *ConnectionError) Unwrap() error { return ErrConnection }

// RecordError is one entry of ImportResult.Errors: enough context (record
// identifier, pipeline stage, reason) to support triage without re-running.
type RecordError struct {
	Record string `json:"record"`
	Stage  string `json:"stage"`
	Reason string `json:"reason"`
}

// Pipeline stages referenced by RecordError.Stage.
const (
	StageConnect  = "connect"
	StageFetch    = "fetch"
	StageMap      = "map"
	StageValidate = "validate"
	StagePersist  = "persist"
)
