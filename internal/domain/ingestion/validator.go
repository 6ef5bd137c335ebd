package ingestion

import (
	"strings"

	"github.com/claimsync/claimsync/internal/domain/claims"
)

// ValidateOptions tunes validation for the adapter variant.
type ValidateOptions struct {
	// AllowAdjustments relaxes the paid <= billed check for remittance
	// records, where negative adjustments and recouped overpayments are
	// legitimate.
	AllowAdjustments bool
}

// requiredClaimFields maps canonical field names to their extractors.
var requiredClaimFields = []struct {
	name string
	get  func(*ExternalClaim) string
}{
	{"provider_id", func(e *ExternalClaim) string { return e.ProviderID }},
	{"patient_key", func(e *ExternalClaim) string { return e.PatientKey }},
	{"date_of_service", func(e *ExternalClaim) string { return e.DateOfService }},
	{"billed_amount", func(e *ExternalClaim) string { return e.BilledAmount }},
}

// ValidateClaim runs the structural and business checks on a raw external
// record. Business-rule failures come back in the result, never as an
// error; the record is guaranteed non-nil by the pipeline, so a nil input
// here is programmer error and panics like any other nil dereference.
func ValidateClaim(ext *ExternalClaim, vocab map[string]claims.Status, opts ValidateOptions) ValidationResult {
	res := ValidationResult{Valid: true}

	for _, f := range requiredClaimFields {
		if strings.TrimSpace(f.get(ext)) == "" {
			res.add(f.name, "missing required field "+f.name)
		}
	}

	if strings.TrimSpace(ext.DateOfService) != "" {
		if _, err := FormatDate(ext.DateOfService); err != nil {
			res.add("date_of_service", "unparseable date of service "+strings.TrimSpace(ext.DateOfService))
		}
	}

	billed := 0.0
	billedOK := false
	// A missing billed amount is already reported by the required-field
	// pass; only parse when something is present.
	if strings.TrimSpace(ext.BilledAmount) != "" {
		billed, billedOK = checkAmount(&res, "billed_amount", ext.BilledAmount, "billed")
	}
	paid := 0.0
	paidOK := true
	if strings.TrimSpace(ext.PaidAmount) != "" {
		// Remittance records may carry negative paid amounts (recoupments),
		// so the negative check only applies outside adjustment mode.
		if v, err := parseAmount(ext.PaidAmount); err != nil {
			res.add("paid_amount", "unparseable paid amount")
			paidOK = false
		} else if v < 0 && !opts.AllowAdjustments {
			res.add("paid_amount", "negative paid amount")
			paidOK = false
		} else {
			paid = v
		}
	}
	if billedOK && paidOK && !opts.AllowAdjustments && paid > billed {
		res.add("paid_amount", "paid amount exceeds billed amount")
	}

	if len(ParseCodes(ext.ProcedureCodes)) == 0 {
		res.add("procedure_codes", "no procedure codes")
	}

	// Status consistency: a denial reason must accompany denied status.
	// Remittance advices may deny without a CAS adjustment segment; in
	// adjustment mode the merge against the stored claim supplies a
	// default reason, so the check only applies to full claim records.
	if !opts.AllowAdjustments {
		if st, _ := MapStatus(ext.StatusCode, vocab); st == claims.StatusDenied && strings.TrimSpace(ext.DenialReason) == "" {
			res.add("denial_reason", "denied claim missing denial reason")
		}
	}

	return res
}

func checkAmount(res *ValidationResult, field, raw, label string) (float64, bool) {
	v, err := parseAmount(raw)
	if err != nil {
		res.add(field, "unparseable "+label+" amount")
		return 0, false
	}
	if v < 0 {
		res.add(field, "negative "+label+" amount")
		return v, false
	}
	return v, true
}
