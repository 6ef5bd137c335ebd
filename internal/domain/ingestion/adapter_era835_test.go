package ingestion

import (
	"context"
	"errors"
	"testing"
)

const sample835Advice = "ISA*00*          *00*          *ZZ*PAYER          *ZZ*PROVIDER       *240401*0900*^*00501*000000002*0*P*:~" +
	"GS*HP*PAYER*PROVIDER*20240401*0900*1*X*005010X221A1~" +
	"ST*835*0001~" +
	"BPR*I*1100*C*CHK~" +
	"N1*PR*ACME INSURANCE~" +
	"N1*PE*GOOD HEALTH CLINIC*XX*PRV001~" +
	"CLP*CLM-001*1*250*200**MC*ICN001~" +
	"NM1*QC*1*DOE*JANE****MI*PAT42~" +
	"DTM*232*20240315~" +
	"SVC*HC:99213*250*200~" +
	"CAS*CO*45*50~" +
	"CLP*CLM-002*4*300*0**MC*ICN002~" +
	"NM1*QC*1*ROE*JOHN****MI*PAT77~" +
	"DTM*232*20240316~" +
	"SVC*HC:99214*300*0~" +
	"CAS*PR*96*300~" +
	"CLP*CLM-003*22*150*-150**MC*ICN003~" +
	"NM1*QC*1*POE*DANA****MI*PAT99~" +
	"DTM*232*20240317~" +
	"SVC*HC:99215*150*-150~" +
	"SE*20*0001~" +
	"GE*1*1~" +
	"IEA*1*000000002~"

func connect835(t *testing.T, content string) *ERA835Adapter {
	t.Helper()
	a := NewERA835Adapter()
	if err := a.Connect(context.Background(), Config{Content: content}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = a.Disconnect(context.Background()) })
	return a
}

func TestERA835Metadata(t *testing.T) {
	meta := NewERA835Adapter().Metadata()
	if !meta.UpdatesOnly {
		t.Error("remittance adapter must be updates-only")
	}
	if !meta.SupportsAppeals {
		t.Error("remittance adapter must support appeals")
	}
}

func TestERA835FetchClaims(t *testing.T) {
	a := connect835(t, sample835Advice)
	seq, err := a.FetchClaims(context.Background(), FetchOptions{})
	if err != nil {
		t.Fatalf("FetchClaims: %v", err)
	}
	recs := drain(t, seq)
	if len(recs) != 3 {
		t.Fatalf("records = %d, want 3", len(recs))
	}

	paid := recs[0].Claim
	if paid.SourceRecordID != "CLM-001" || paid.StatusCode != "1" {
		t.Errorf("first payment = %+v", paid)
	}
	if paid.ProviderID != "PRV001" {
		t.Errorf("payee = %q, want the N1*PE provider", paid.ProviderID)
	}
	if paid.PatientKey != "PAT42" || paid.DateOfService != "20240315" {
		t.Errorf("identity fields = %q / %q", paid.PatientKey, paid.DateOfService)
	}
	if paid.BilledAmount != "250" || paid.PaidAmount != "200" {
		t.Errorf("amounts = %q / %q", paid.BilledAmount, paid.PaidAmount)
	}
	if paid.ProcedureCodes != "99213" {
		t.Errorf("procedures = %q", paid.ProcedureCodes)
	}
	if paid.DenialReason != "adjustment CO-45" {
		t.Errorf("adjustment reason = %q", paid.DenialReason)
	}

	denied := recs[1].Claim
	if denied.StatusCode != "4" || denied.DenialReason != "adjustment PR-96" {
		t.Errorf("denied payment = %+v", denied)
	}
}

func TestERA835FetchAppeals(t *testing.T) {
	a := connect835(t, sample835Advice)
	seq, err := a.FetchAppeals(context.Background(), FetchOptions{})
	if err != nil {
		t.Fatalf("FetchAppeals: %v", err)
	}
	recs := drain(t, seq)
	if len(recs) != 1 {
		t.Fatalf("appeals = %d, want 1 (the CLP02=22 reversal)", len(recs))
	}
	ap := recs[0].Appeal
	if ap.SourceRecordID != "CLM-003" || ap.Status != "payer reversal" {
		t.Errorf("appeal = %+v", ap)
	}
	if ap.PatientKey != "PAT99" || ap.ProcedureCode != "99215" {
		t.Errorf("appeal identity fields = %+v", ap)
	}
}

func TestERA835RejectsWrongFunctionalGroup(t *testing.T) {
	content := "ISA*00*          *00*          *ZZ*S              *ZZ*R              *240401*0900*^*00501*000000002*0*P*:~" +
		"GS*HC*S*R*20240401*0900*1*X*005010~" +
		"IEA*1*000000002~"
	a := NewERA835Adapter()
	err := a.Connect(context.Background(), Config{Content: content})
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("err = %v, want ErrConnection for functional group HC", err)
	}
}

func TestERA835SingleUse(t *testing.T) {
	a := connect835(t, sample835Advice)
	if _, err := a.FetchClaims(context.Background(), FetchOptions{}); err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if _, err := a.FetchClaims(context.Background(), FetchOptions{}); !errors.Is(err, ErrSeqExhausted) {
		t.Errorf("second fetch err = %v, want ErrSeqExhausted", err)
	}
}
