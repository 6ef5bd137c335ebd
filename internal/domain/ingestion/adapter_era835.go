package ingestion

import (
	"context"
	"fmt"
	"strings"

	"github.com/claimsync/claimsync/internal/platform/edi"
)

// ERA835Adapter ingests X12 835 remittance/payment advices. It emits
// status and payment updates for previously ingested claims, never new
// claims: the pipeline fails any record whose claim reference is unknown.
type ERA835Adapter struct {
	interchange    *edi.Interchange
	payeeID        string
	connected      bool
	fetchedClaims  bool
	fetchedAppeals bool
}

func NewERA835Adapter() *ERA835Adapter { return &ERA835Adapter{} }

func (a *ERA835Adapter) Metadata() Metadata {
	return Metadata{
		Type:            SourceTypeERA835,
		Name:            "ERA 835 Remittance",
		Description:     "Remittance and payment advices (X12 835) reconciling prior claims",
		SupportsAppeals: true,
		UpdatesOnly:     true,
	}
}

func (a *ERA835Adapter) Connect(ctx context.Context, cfg Config) error {
	if a.connected {
		return fmt.Errorf("era 835 adapter already connected")
	}
	raw, err := loadSource(cfg, SourceTypeERA835)
	if err != nil {
		return err
	}
	ic, err := edi.Parse(raw)
	if err != nil {
		return &ConnectionError{SourceType: SourceTypeERA835, Err: err}
	}
	if ic.FunctionalGroup != "" && ic.FunctionalGroup != "HP" {
		return &ConnectionError{SourceType: SourceTypeERA835,
			Err: fmt.Errorf("expected payment advice functional group HP, got %s", ic.FunctionalGroup)}
	}
	a.interchange = ic
	// The payee (the provider being paid) is identified in the N1*PE loop
	// and applies to every payment in the advice.
	for _, n1 := range ic.SegmentsByID("N1") {
		if n1.Field(1) == "PE" {
			a.payeeID = n1.Field(4)
		}
	}
	a.connected = true
	return nil
}

func (a *ERA835Adapter) FetchClaims(ctx context.Context, opts FetchOptions) (*RecordSeq, error) {
	if !a.connected {
		return nil, &ConnectionError{SourceType: SourceTypeERA835, Err: fmt.Errorf("not connected")}
	}
	if a.fetchedClaims {
		return nil, ErrSeqExhausted
	}
	a.fetchedClaims = true

	var records []*Record
	seq := 0
	for _, loop := range a.interchange.Loops("CLP") {
		seq++
		rec := &Record{Seq: seq}
		ext, err := a.paymentToExternal(loop)
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

// FetchAppeals emits an appeal update for every payment loop whose CLP02
// status is a payment reversal (22), meaning the payer reopened the claim.
func (a *ERA835Adapter) FetchAppeals(ctx context.Context, opts FetchOptions) (*RecordSeq, error) {
	if !a.connected {
		return nil, &ConnectionError{SourceType: SourceTypeERA835, Err: fmt.Errorf("not connected")}
	}
	if a.fetchedAppeals {
		return nil, ErrSeqExhausted
	}
	a.fetchedAppeals = true

	var records []*Record
	seq := 0
	for _, loop := range a.interchange.Loops("CLP") {
		if loop[0].Field(2) != "22" {
			continue
		}
		ext, err := a.paymentToExternal(loop)
		if err != nil {
			continue
		}
		seq++
		records = append(records, &Record{Seq: seq, Appeal: &ExternalAppeal{
			SourceRecordID: ext.SourceRecordID,
			ProviderID:     ext.ProviderID,
			PatientKey:     ext.PatientKey,
			DateOfService:  ext.DateOfService,
			ProcedureCode:  firstOrEmpty(ParseCodes(ext.ProcedureCodes)),
			Status:         "payer reversal",
			AppealDate:     ext.DateOfService,
		}})
	}
	return newSliceSeq(records, opts.Limit), nil
}

func (a *ERA835Adapter) Disconnect(ctx context.Context) error {
	a.connected = false
	a.interchange = nil
	return nil
}

// paymentToExternal flattens one CLP loop into a raw update record.
func (a *ERA835Adapter) paymentToExternal(loop []edi.Segment) (*ExternalClaim, error) {
	clp := loop[0]
	claimRef := clp.Field(1)
	if claimRef == "" {
		return nil, &FormatError{RecordID: "?", Reason: "payment loop missing CLP01 claim reference"}
	}

	ext := &ExternalClaim{
		SourceRecordID: claimRef,
		ProviderID:     a.payeeID,
		BilledAmount:   clp.Field(3),
		PaidAmount:     clp.Field(4),
		StatusCode:     clp.Field(2),
		Raw:            map[string]string{"CLP": strings.Join(clp.Elements, "*")},
	}

	var procs, adjustments []string
	for _, seg := range loop[1:] {
		switch seg.ID {
		case "NM1":
			if seg.Field(1) == "QC" { // patient
				ext.PatientKey = seg.Field(9)
				ext.PatientName = joinName(seg.Field(3), seg.Field(4))
			}
		case "DTM":
			if seg.Field(1) == "232" { // claim statement period start / service date
				ext.DateOfService = seg.Field(2)
			}
		case "SVC":
			if code := seg.Component(1, 2); code != "" {
				procs = append(procs, code)
			}
		case "CAS":
			// Claim adjustment: group code, reason code, amount.
			if reason := seg.Field(2); reason != "" {
				adjustments = append(adjustments, fmt.Sprintf("%s-%s", seg.Field(1), reason))
			}
		}
	}
	ext.ProcedureCodes = strings.Join(procs, ",")
	if len(adjustments) > 0 {
		ext.DenialReason = "adjustment " + strings.Join(adjustments, ", ")
	}
	return ext, nil
}
