package ingestion

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/claimsync/claimsync/internal/platform/edi"
)

// EDI837Adapter ingests institutional/professional claim submissions from
// X12 837-style interchanges. The envelope is parsed at connect time; a
// structurally malformed claim loop becomes a record-local failure and the
// rest of the batch continues.
type EDI837Adapter struct {
	interchange    *edi.Interchange
	connected      bool
	fetchedClaims  bool
	fetchedAppeals bool
}

func NewEDI837Adapter() *EDI837Adapter { return &EDI837Adapter{} }

func (a *EDI837Adapter) Metadata() Metadata {
	return Metadata{
		Type:            SourceTypeEDI837,
		Name:            "EDI 837 Claims",
		Description:     "Institutional and professional claim submissions (X12 837)",
		SupportsAppeals: true,
	}
}

func (a *EDI837Adapter) Connect(ctx context.Context, cfg Config) error {
	if a.connected {
		return fmt.Errorf("edi 837 adapter already connected")
	}
	raw, err := loadSource(cfg, SourceTypeEDI837)
	if err != nil {
		return err
	}
	ic, err := edi.Parse(raw)
	if err != nil {
		return &ConnectionError{SourceType: SourceTypeEDI837, Err: err}
	}
	if ic.FunctionalGroup != "" && ic.FunctionalGroup != "HC" {
		return &ConnectionError{SourceType: SourceTypeEDI837,
			Err: fmt.Errorf("expected claim functional group HC, got %s", ic.FunctionalGroup)}
	}
	a.interchange = ic
	a.connected = true
	return nil
}

func (a *EDI837Adapter) FetchClaims(ctx context.Context, opts FetchOptions) (*RecordSeq, error) {
	if !a.connected {
		return nil, &ConnectionError{SourceType: SourceTypeEDI837, Err: fmt.Errorf("not connected")}
	}
	if a.fetchedClaims {
		return nil, ErrSeqExhausted
	}
	a.fetchedClaims = true

	var records []*Record
	seq := 0
	for _, loop := range a.claimLoops() {
		seq++
		rec := &Record{Seq: seq}
		ext, err := loop.toExternalClaim()
		if err != nil {
			rec.Err = err
			records = append(records, rec)
			continue
		}
		if opts.Since != "" {
			if dos, derr := FormatDate(ext.DateOfService); derr == nil && dos < opts.Since {
				seq--
				continue
			}
		}
		rec.Claim = ext
		records = append(records, rec)
	}
	return newSliceSeq(records, opts.Limit), nil
}

// FetchAppeals emits one appeal update per claim loop whose CLM05-3
// frequency code marks a replacement or void (7/8). Resubmissions are
// tracked as appeals against the originally ingested claim.
func (a *EDI837Adapter) FetchAppeals(ctx context.Context, opts FetchOptions) (*RecordSeq, error) {
	if !a.connected {
		return nil, &ConnectionError{SourceType: SourceTypeEDI837, Err: fmt.Errorf("not connected")}
	}
	if a.fetchedAppeals {
		return nil, ErrSeqExhausted
	}
	a.fetchedAppeals = true

	var records []*Record
	seq := 0
	for _, loop := range a.claimLoops() {
		freq := loop.clm.Component(5, 3)
		if freq != "7" && freq != "8" {
			continue
		}
		ext, err := loop.toExternalClaim()
		if err != nil {
			continue // already surfaced by the claims fetch
		}
		seq++
		records = append(records, &Record{Seq: seq, Appeal: &ExternalAppeal{
			SourceRecordID: ext.SourceRecordID,
			ProviderID:     ext.ProviderID,
			PatientKey:     ext.PatientKey,
			DateOfService:  ext.DateOfService,
			ProcedureCode:  firstOrEmpty(ParseCodes(ext.ProcedureCodes)),
			Status:         "submitted",
			AppealDate:     ext.DateOfService,
		}})
	}
	return newSliceSeq(records, opts.Limit), nil
}

func (a *EDI837Adapter) Disconnect(ctx context.Context) error {
	a.connected = false
	a.interchange = nil
	return nil
}

// claimLoop is one 2300 claim loop plus the provider/subscriber context
// segments that preceded it.
type claimLoop struct {
	clm         edi.Segment
	segments    []edi.Segment
	providerID  string
	patientKey  string
	patientName string
}

// claimLoops walks the interchange once, tracking the current billing
// provider (NM1*85) and subscriber (NM1*IL) so each CLM loop carries its
// context. Loop boundaries are the next CLM, provider, subscriber, or
// trailer segment.
func (a *EDI837Adapter) claimLoops() []*claimLoop {
	var loops []*claimLoop
	var current *claimLoop
	var providerID, patientKey, patientName string

	flush := func() {
		if current != nil {
			loops = append(loops, current)
			current = nil
		}
	}

	for _, seg := range a.interchange.Segments {
		switch seg.ID {
		case "NM1":
			switch seg.Field(1) {
			case "85": // billing provider
				flush()
				providerID = seg.Field(9)
			case "IL": // subscriber
				flush()
				patientKey = seg.Field(9)
				patientName = joinName(seg.Field(3), seg.Field(4))
			default:
				if current != nil {
					current.segments = append(current.segments, seg)
				}
			}
		case "CLM":
			flush()
			current = &claimLoop{
				clm:         seg,
				providerID:  providerID,
				patientKey:  patientKey,
				patientName: patientName,
			}
		case "SE", "GE", "IEA":
			flush()
		default:
			if current != nil {
				current.segments = append(current.segments, seg)
			}
		}
	}
	flush()
	return loops
}

// toExternalClaim flattens the loop's segments into a raw external record.
// A missing claim id is the one structural defect we reject here; all
// other problems are left to the validator so the reasons stay uniform.
func (l *claimLoop) toExternalClaim() (*ExternalClaim, error) {
	claimRef := l.clm.Field(1)
	if claimRef == "" {
		return nil, &FormatError{RecordID: "?", Reason: "claim loop missing CLM01 claim reference"}
	}

	ext := &ExternalClaim{
		SourceRecordID: claimRef,
		ProviderID:     l.providerID,
		PatientKey:     l.patientKey,
		PatientName:    l.patientName,
		BilledAmount:   l.clm.Field(2),
		Raw:            map[string]string{"CLM": strings.Join(l.clm.Elements, "*")},
	}

	var procs, mods, diags []string
	for _, seg := range l.segments {
		switch seg.ID {
		case "DTP":
			if seg.Field(1) == "472" { // date of service
				ext.DateOfService = seg.Field(3)
			}
		case "HI":
			for i := 1; i <= len(seg.Elements); i++ {
				if code := seg.Component(i, 2); code != "" {
					diags = append(diags, code)
				}
			}
		case "SV1", "SV2":
			if code := seg.Component(1, 2); code != "" {
				procs = append(procs, code)
			}
			for j := 3; j <= 6; j++ {
				if m := seg.Component(1, j); m != "" {
					mods = append(mods, m)
				}
			}
		case "NTE":
			if seg.Field(1) == "ADD" {
				ext.DenialReason = seg.Field(2)
			}
		}
	}
	ext.ProcedureCodes = strings.Join(procs, ",")
	ext.DiagnosisCodes = strings.Join(diags, ",")
	ext.Modifiers = strings.Join(mods, ",")
	return ext, nil
}

// loadSource reads the interchange from a file path or inline content.
func loadSource(cfg Config, sourceType string) ([]byte, error) {
	if err := cfg.Validate(); err != nil {
		return nil, &ConnectionError{SourceType: sourceType, Err: err}
	}
	if cfg.FilePath != "" {
		raw, err := os.ReadFile(cfg.FilePath)
		if err != nil {
			return nil, &ConnectionError{SourceType: sourceType, Err: err}
		}
		return raw, nil
	}
	if cfg.Content != "" {
		return []byte(cfg.Content), nil
	}
	return nil, &ConnectionError{SourceType: sourceType, Err: fmt.Errorf("file_path or content is required")}
}

func joinName(family, given string) string {
	switch {
	case family == "":
		return given
	case given == "":
		return family
	default:
		return given + " " + family
	}
}
