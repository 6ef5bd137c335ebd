package ingestion

import (
	"context"
	"errors"
	"testing"
)

const sample837Claims = "ISA*00*          *00*          *ZZ*SENDER         *ZZ*RECEIVER       *240315*1200*^*00501*000000001*0*P*:~" +
	"GS*HC*SENDER*RECEIVER*20240315*1200*1*X*005010X222A1~" +
	"ST*837*0001~" +
	"NM1*85*2*GOOD HEALTH CLINIC*****XX*PRV001~" +
	"NM1*IL*1*DOE*JANE****MI*PAT42~" +
	"CLM*CLM-001*250***11:B:1~" +
	"DTP*472*D8*20240315~" +
	"HI*ABK:E11.9~" +
	"SV1*HC:99213:25*250*UN*1~" +
	"CLM*CLM-002*300***11:B:7~" +
	"DTP*472*D8*20240316~" +
	"SV1*HC:99214*300*UN*1~" +
	"NTE*ADD*duplicate of prior submission~" +
	"SE*12*0001~" +
	"GE*1*1~" +
	"IEA*1*000000001~"

func connect837(t *testing.T, content string) *EDI837Adapter {
	t.Helper()
	a := NewEDI837Adapter()
	if err := a.Connect(context.Background(), Config{Content: content}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = a.Disconnect(context.Background()) })
	return a
}

func TestEDI837FetchClaims(t *testing.T) {
	a := connect837(t, sample837Claims)
	seq, err := a.FetchClaims(context.Background(), FetchOptions{})
	if err != nil {
		t.Fatalf("FetchClaims: %v", err)
	}
	recs := drain(t, seq)
	if len(recs) != 2 {
		t.Fatalf("records = %d, want 2", len(recs))
	}

	first := recs[0].Claim
	if first.SourceRecordID != "CLM-001" {
		t.Errorf("claim ref = %q", first.SourceRecordID)
	}
	if first.ProviderID != "PRV001" || first.PatientKey != "PAT42" {
		t.Errorf("context = %q / %q, want PRV001 / PAT42", first.ProviderID, first.PatientKey)
	}
	if first.PatientName != "JANE DOE" {
		t.Errorf("patient name = %q", first.PatientName)
	}
	if first.DateOfService != "20240315" {
		t.Errorf("raw date = %q", first.DateOfService)
	}
	if first.BilledAmount != "250" {
		t.Errorf("billed = %q", first.BilledAmount)
	}
	if first.ProcedureCodes != "99213" || first.Modifiers != "25" {
		t.Errorf("procedures = %q modifiers = %q", first.ProcedureCodes, first.Modifiers)
	}
	if first.DiagnosisCodes != "E11.9" {
		t.Errorf("diagnoses = %q", first.DiagnosisCodes)
	}

	second := recs[1].Claim
	if second.SourceRecordID != "CLM-002" || second.DenialReason != "duplicate of prior submission" {
		t.Errorf("second record = %+v", second)
	}
}

func TestEDI837FetchAppeals(t *testing.T) {
	a := connect837(t, sample837Claims)
	seq, err := a.FetchAppeals(context.Background(), FetchOptions{})
	if err != nil {
		t.Fatalf("FetchAppeals: %v", err)
	}
	recs := drain(t, seq)
	if len(recs) != 1 {
		t.Fatalf("appeals = %d, want 1 (only the frequency-7 resubmission)", len(recs))
	}
	ap := recs[0].Appeal
	if ap.SourceRecordID != "CLM-002" || ap.Status != "submitted" {
		t.Errorf("appeal = %+v", ap)
	}
	if ap.ProviderID != "PRV001" || ap.PatientKey != "PAT42" || ap.ProcedureCode != "99214" {
		t.Errorf("appeal identity fields = %+v", ap)
	}
}

func TestEDI837RejectsWrongFunctionalGroup(t *testing.T) {
	content := "ISA*00*          *00*          *ZZ*S              *ZZ*R              *240315*1200*^*00501*000000001*0*P*:~" +
		"GS*HP*S*R*20240315*1200*1*X*005010~" +
		"IEA*1*000000001~"
	a := NewEDI837Adapter()
	err := a.Connect(context.Background(), Config{Content: content})
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("err = %v, want ErrConnection for functional group HP", err)
	}
}

func TestEDI837MissingClaimRefIsRecordLocal(t *testing.T) {
	content := "ISA*00*          *00*          *ZZ*S              *ZZ*R              *240315*1200*^*00501*000000001*0*P*:~" +
		"GS*HC*S*R*20240315*1200*1*X*005010~" +
		"ST*837*0001~" +
		"NM1*85*2*CLINIC*****XX*PRV001~" +
		"NM1*IL*1*DOE*JANE****MI*PAT42~" +
		"CLM**100~" +
		"CLM*CLM-OK*200~" +
		"SE*6*0001~" +
		"GE*1*1~" +
		"IEA*1*000000001~"
	a := connect837(t, content)
	seq, err := a.FetchClaims(context.Background(), FetchOptions{})
	if err != nil {
		t.Fatalf("FetchClaims: %v", err)
	}
	recs := drain(t, seq)
	if len(recs) != 2 {
		t.Fatalf("records = %d, want 2", len(recs))
	}
	var fe *FormatError
	if recs[0].Err == nil || !errors.As(recs[0].Err, &fe) {
		t.Errorf("first record err = %v, want *FormatError", recs[0].Err)
	}
	if recs[1].Err != nil || recs[1].Claim.SourceRecordID != "CLM-OK" {
		t.Errorf("batch must continue past the malformed loop: %+v", recs[1])
	}
}

func TestEDI837SingleUse(t *testing.T) {
	a := connect837(t, sample837Claims)
	if _, err := a.FetchClaims(context.Background(), FetchOptions{}); err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if _, err := a.FetchClaims(context.Background(), FetchOptions{}); !errors.Is(err, ErrSeqExhausted) {
		t.Errorf("second fetch err = %v, want ErrSeqExhausted", err)
	}
}
