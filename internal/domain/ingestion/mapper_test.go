package ingestion

import (
	"errors"
	"testing"

	"github.com/claimsync/claimsync/internal/domain/claims"
)

func TestFormatDate(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"iso", "2024-03-15", "2024-03-15", false},
		{"compact edi", "20240315", "2024-03-15", false},
		{"us slashes", "03/15/2024", "2024-03-15", false},
		{"us short", "3/5/2024", "2024-03-05", false},
		{"qualified d8", "D8:20240315", "2024-03-15", false},
		{"rfc3339", "2024-03-15T10:30:00Z", "2024-03-15", false},
		{"whitespace", "  2024-03-15 ", "2024-03-15", false},
		{"garbage", "not-a-date", "", true},
		{"empty", "", "", true},
		{"impossible", "2024-13-45", "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := FormatDate(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("FormatDate(%q) = %q, want error", tc.in, got)
				}
				if !errors.Is(err, ErrDateFormat) {
					t.Fatalf("error %v does not match ErrDateFormat", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("FormatDate(%q): %v", tc.in, err)
			}
			if got != tc.want {
				t.Errorf("FormatDate(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestMapStatus(t *testing.T) {
	vocab := genericStatusVocab
	cases := []struct {
		code  string
		want  claims.Status
		known bool
	}{
		{"approved", claims.StatusApproved, true},
		{"DENIED", claims.StatusDenied, true},
		{" Paid ", claims.StatusPaid, true},
		{"", claims.StatusPending, true},
		{"bogus", claims.StatusPending, false},
	}
	for _, tc := range cases {
		got, known := MapStatus(tc.code, vocab)
		if got != tc.want || known != tc.known {
			t.Errorf("MapStatus(%q) = (%s, %v), want (%s, %v)", tc.code, got, known, tc.want, tc.known)
		}
	}
}

func TestStatusVocabRemittanceCodes(t *testing.T) {
	vocab := StatusVocab(SourceTypeERA835)
	for code, want := range map[string]claims.Status{
		"1": claims.StatusPaid, "4": claims.StatusDenied,
		"22": claims.StatusAppealed, "23": claims.StatusPending,
	} {
		if got, known := MapStatus(code, vocab); got != want || !known {
			t.Errorf("remittance code %q = (%s, %v), want %s", code, got, known, want)
		}
	}
	if v := StatusVocab("something_else"); v == nil {
		t.Error("unknown source type must fall back to the generic vocabulary")
	}
}

func TestParseCodes(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"99213,99214", []string{"99213", "99214"}},
		{"99213; 99214 |99215", []string{"99213", "99214", "99215"}},
		{" e11.9 ", []string{"E11.9"}},
		{",,;", nil},
		{"", nil},
	}
	for _, tc := range cases {
		got := ParseCodes(tc.in)
		if len(got) != len(tc.want) {
			t.Errorf("ParseCodes(%q) = %v, want %v", tc.in, got, tc.want)
			continue
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Errorf("ParseCodes(%q)[%d] = %q, want %q", tc.in, i, got[i], tc.want[i])
			}
		}
	}
}

func TestGenerateClaimID(t *testing.T) {
	a := GenerateClaimID("PRV001", "PAT42", "2024-03-15", "99213")
	b := GenerateClaimID(" prv001 ", "pat42", "2024-03-15", " 99213")
	if a != b {
		t.Errorf("normalized inputs must collide: %s != %s", a, b)
	}
	if len(a) != 32 {
		t.Errorf("id length = %d, want 32 hex chars", len(a))
	}
	c := GenerateClaimID("PRV001", "PAT42", "2024-03-16", "99213")
	if a == c {
		t.Error("different date of service must yield a different id")
	}
}

func TestMapClaim(t *testing.T) {
	ext := &ExternalClaim{
		SourceRecordID: "CLM-7",
		ProviderID:     "PRV001",
		PatientKey:     "PAT42",
		PatientName:    "DOE, JANE",
		DateOfService:  "03/15/2024",
		BilledAmount:   "$1,250.50",
		PaidAmount:     "1000",
		StatusCode:     "paid",
		ProcedureCodes: "99213,99214",
		DiagnosisCodes: "E11.9",
		Modifiers:      "25",
	}
	c, warnings, err := MapClaim(ext, SourceTypeDelimited, genericStatusVocab)
	if err != nil {
		t.Fatalf("MapClaim: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings: %v", warnings)
	}
	if c.DateOfService != "2024-03-15" {
		t.Errorf("date = %s, want 2024-03-15", c.DateOfService)
	}
	if c.BilledAmount != 1250.50 || c.PaidAmount != 1000 {
		t.Errorf("amounts = %v / %v", c.BilledAmount, c.PaidAmount)
	}
	if c.Status != claims.StatusPaid {
		t.Errorf("status = %s, want paid", c.Status)
	}
	if c.ID != GenerateClaimID("PRV001", "PAT42", "2024-03-15", "99213") {
		t.Error("claim id must derive from provider, patient, date and primary procedure")
	}
	if c.SourceRef == nil || *c.SourceRef != "CLM-7" {
		t.Error("source ref not carried over")
	}
	if c.ProcessedAt == nil {
		t.Error("processed_at must be set")
	}
}

func TestMapClaimUnknownStatusWarns(t *testing.T) {
	ext := &ExternalClaim{
		ProviderID:     "PRV001",
		PatientKey:     "PAT42",
		DateOfService:  "2024-03-15",
		BilledAmount:   "100",
		StatusCode:     "mystery",
		ProcedureCodes: "99213",
	}
	c, warnings, err := MapClaim(ext, SourceTypeDelimited, genericStatusVocab)
	if err != nil {
		t.Fatalf("MapClaim: %v", err)
	}
	if c.Status != claims.StatusPending {
		t.Errorf("unknown status mapped to %s, want pending", c.Status)
	}
	if len(warnings) != 1 {
		t.Errorf("warnings = %v, want exactly one", warnings)
	}
}

func TestMapClaimBadDate(t *testing.T) {
	ext := &ExternalClaim{
		ProviderID:    "PRV001",
		PatientKey:    "PAT42",
		DateOfService: "yesterday",
		BilledAmount:  "100",
	}
	if _, _, err := MapClaim(ext, SourceTypeDelimited, genericStatusVocab); !errors.Is(err, ErrDateFormat) {
		t.Fatalf("err = %v, want ErrDateFormat", err)
	}
}

func TestMapAppeal(t *testing.T) {
	ext := &ExternalAppeal{
		ProviderID:    "PRV001",
		PatientKey:    "PAT42",
		DateOfService: "20240315",
		ProcedureCode: "99213",
		Status:        "submitted",
		AppealDate:    "2024-04-01",
		Outcome:       "",
	}
	a, err := MapAppeal(ext)
	if err != nil {
		t.Fatalf("MapAppeal: %v", err)
	}
	if a.ClaimID != GenerateClaimID("PRV001", "PAT42", "2024-03-15", "99213") {
		t.Error("appeal must recompute the deterministic claim id")
	}
	if a.AppealDate != "2024-04-01" {
		t.Errorf("appeal date = %s", a.AppealDate)
	}
	if a.Outcome != nil {
		t.Error("empty outcome must stay nil")
	}
}

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"1250.50", 1250.50, false},
		{"$1,250.50", 1250.50, false},
		{"-45.10", -45.10, false},
		{"0", 0, false},
		{"", 0, true},
		{"abc", 0, true},
	}
	for _, tc := range cases {
		got, err := parseAmount(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("parseAmount(%q) err = %v, wantErr %v", tc.in, err, tc.wantErr)
			continue
		}
		if !tc.wantErr && got != tc.want {
			t.Errorf("parseAmount(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
