package ingestion

import (
	"context"
	"sort"
)

// Adapter is the capability contract shared by all source format variants.
// An instance is single-use: Connect once, fetch until exhaustion, then
// Disconnect. Re-fetching requires a new instance.
type Adapter interface {
	// Connect establishes access to the source. It fails with a
	// ConnectionError when the source is unreachable, unauthorized, or
	// structurally unreadable at the envelope level.
	Connect(ctx context.Context, cfg Config) error

	// FetchClaims returns a lazy, finite, single-pass sequence of claim
	// records. Ordering is source-defined; callers must not rely on it.
	FetchClaims(ctx context.Context, opts FetchOptions) (*RecordSeq, error)

	// FetchAppeals is only implemented by variants whose Metadata reports
	// SupportsAppeals; others return ErrUnsupportedOperation.
	FetchAppeals(ctx context.Context, opts FetchOptions) (*RecordSeq, error)

	// Disconnect releases resources. Idempotent and safe to call even
	// when Connect partially failed.
	Disconnect(ctx context.Context) error

	// Metadata returns the variant's static descriptor. No I/O.
	Metadata() Metadata
}

// RecordSeq is a single-pass sequence of source records with an explicit
// exhausted terminal state. There is no reset: exhausted means done.
type RecordSeq struct {
	next      func() (*Record, error)
	exhausted bool
	limit     int // remaining budget; negative means unlimited
}

// newRecordSeq wraps a pull function into a sequence. The pull function
// returns (nil, nil) when the source has no more records; a non-nil error
// is a source-level fetch failure and terminates the sequence.
func newRecordSeq(next func() (*Record, error), limit int) *RecordSeq {
	if limit <= 0 {
		limit = -1
	}
	return &RecordSeq{next: next, limit: limit}
}

// newSliceSeq builds a sequence over already-materialized records.
func newSliceSeq(records []*Record, limit int) *RecordSeq {
	i := 0
	return newRecordSeq(func() (*Record, error) {
		if i >= len(records) {
			return nil, nil
		}
		rec := records[i]
		i++
		return rec, nil
	}, limit)
}

// Next pulls the next record. It returns (nil, nil) at exhaustion and
// keeps doing so afterwards; a non-nil error is run-fatal. The limit is
// enforced here so no adapter needs a full source scan to stop early.
func (s *RecordSeq) Next() (*Record, error) {
	if s.exhausted {
		return nil, nil
	}
	if s.limit == 0 {
		s.exhausted = true
		return nil, nil
	}
	rec, err := s.next()
	if err != nil {
		s.exhausted = true
		return nil, err
	}
	if rec == nil {
		s.exhausted = true
		return nil, nil
	}
	if s.limit > 0 {
		s.limit--
	}
	return rec, nil
}

// Exhausted reports whether the sequence has reached its terminal state.
func (s *RecordSeq) Exhausted() bool { return s.exhausted }

// AdapterFactory creates a fresh single-use adapter instance.
type AdapterFactory func() Adapter

// Registry maps source types to adapter factories. The variant is selected
// exactly once per run, at run start.
type Registry struct {
	factories map[string]AdapterFactory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]AdapterFactory)}
}

// DefaultRegistry returns a registry with all built-in variants.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(SourceTypeEDI837, func() Adapter { return NewEDI837Adapter() })
	r.Register(SourceTypeERA835, func() Adapter { return NewERA835Adapter() })
	r.Register(SourceTypeDelimited, func() Adapter { return NewDelimitedAdapter() })
	return r
}

func (r *Registry) Register(sourceType string, f AdapterFactory) {
	r.factories[sourceType] = f
}

// New creates a fresh adapter for the source type.
func (r *Registry) New(sourceType string) (Adapter, error) {
	f, ok := r.factories[sourceType]
	if !ok {
		return nil, ErrUnknownSourceType
	}
	return f(), nil
}

// Types lists the metadata of every registered variant, sorted by type.
func (r *Registry) Types() []Metadata {
	out := make([]Metadata, 0, len(r.factories))
	for _, f := range r.factories {
		out = append(out, f().Metadata())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}
