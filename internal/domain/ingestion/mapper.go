package ingestion

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/claimsync/claimsync/internal/domain/claims"
)

// The canonical mapper: pure, side-effect-free functions shared by all
// adapter variants.

// dateLayouts are the source date encodings accepted by FormatDate, tried
// in order.
var dateLayouts = []string{
	"2006-01-02",
	"20060102",
	"01/02/2006",
	"1/2/2006",
	"2006/01/02",
	"01-02-2006",
	"2006-01-02T15:04:05Z07:00",
}

// FormatDate normalizes heterogeneous source date encodings to canonical
// YYYY-MM-DD. Unparseable input fails with ErrDateFormat; callers treat
// that as a per-record validation failure, never as fatal.
func FormatDate(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	// EDI DTP segments prefix dates with a short qualifier such as D8 or
	// RD8. Timestamps also contain colons, so only strip short prefixes.
	if i := strings.Index(s, ":"); i >= 1 && i <= 3 {
		s = s[i+1:]
	}
	if s == "" {
		return "", fmt.Errorf("%w: empty date", ErrDateFormat)
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrDateFormat, raw)
}

// MapStatus maps an adapter-specific status code to the canonical enum
// using the variant's vocabulary. Unknown codes fall back to pending; the
// second return value is false so the caller records a warning instead of
// dropping the code silently.
func MapStatus(code string, vocab map[string]claims.Status) (claims.Status, bool) {
	key := strings.ToLower(strings.TrimSpace(code))
	if key == "" {
		// A fresh submission with no status is simply pending.
		return claims.StatusPending, true
	}
	if st, ok := vocab[key]; ok {
		return st, true
	}
	return claims.StatusPending, false
}

// StatusVocab returns the status vocabulary for a source type. Unknown
// source types get the generic text vocabulary.
func StatusVocab(sourceType string) map[string]claims.Status {
	if v, ok := statusVocabs[sourceType]; ok {
		return v
	}
	return genericStatusVocab
}

// genericStatusVocab covers the free-text statuses seen in delimited
// extracts.
var genericStatusVocab = map[string]claims.Status{
	"approved":   claims.StatusApproved,
	"a":          claims.StatusApproved,
	"denied":     claims.StatusDenied,
	"d":          claims.StatusDenied,
	"den":        claims.StatusDenied,
	"pending":    claims.StatusPending,
	"p":          claims.StatusPending,
	"in process": claims.StatusPending,
	"appealed":   claims.StatusAppealed,
	"appeal":     claims.StatusAppealed,
	"paid":       claims.StatusPaid,
	"pd":         claims.StatusPaid,
}

// era835StatusVocab maps CLP02 claim status codes from payment advices.
var era835StatusVocab = map[string]claims.Status{
	"1":  claims.StatusPaid, // processed as primary
	"2":  claims.StatusPaid, // processed as secondary
	"3":  claims.StatusPaid, // processed as tertiary
	"4":  claims.StatusDenied,
	"19": claims.StatusPaid, // primary, forwarded
	"20": claims.StatusPaid, // secondary, forwarded
	"21": claims.StatusPaid, // tertiary, forwarded
	"22": claims.StatusAppealed, // reversal of previous payment
	"23": claims.StatusPending,  // not our claim, forwarded
}

var statusVocabs = map[string]map[string]claims.Status{
	SourceTypeDelimited: genericStatusVocab,
	SourceTypeEDI837:    genericStatusVocab,
	SourceTypeERA835:    era835StatusVocab,
}

// codeSeps are the separators accepted inside raw code lists.
var codeSeps = func(r rune) bool {
	return r == ',' || r == ';' || r == '|' || r == ' '
}

// ParseCodes splits a raw delimited code list into an ordered sequence of
// normalized codes: upper-cased, trimmed, empty entries removed. Order is
// preserved because the first procedure code is the claim's primary one.
func ParseCodes(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, c := range strings.FieldsFunc(raw, codeSeps) {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

// GenerateClaimID derives the canonical claim id from the fields that
// identify a logical claim. The id is a pure function of its inputs, so
// repeated imports of the same claim collide to the same row and
// concurrent runs agree on identity without shared state.
func GenerateClaimID(providerID, patientKey, dateOfService, primaryProcedure string) string {
	norm := func(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
	sum := sha256.Sum256([]byte(
		norm(providerID) + "|" + norm(patientKey) + "|" + norm(dateOfService) + "|" + norm(primaryProcedure)))
	return hex.EncodeToString(sum[:16])
}

// MapClaim converts a validated external record into the canonical shape.
// It returns any mapping warnings (unknown status codes) alongside the
// claim; a date failure is returned as an error for the caller to count as
// a record-local validation failure.
func MapClaim(ext *ExternalClaim, sourceType string, vocab map[string]claims.Status) (*claims.Claim, []string, error) {
	if ext == nil {
		return nil, nil, fmt.Errorf("external claim is required")
	}

	dos, err := FormatDate(ext.DateOfService)
	if err != nil {
		return nil, nil, err
	}

	billed, err := parseAmount(ext.BilledAmount)
	if err != nil {
		return nil, nil, fmt.Errorf("billed amount: %w", err)
	}
	paid := 0.0
	if strings.TrimSpace(ext.PaidAmount) != "" {
		if paid, err = parseAmount(ext.PaidAmount); err != nil {
			return nil, nil, fmt.Errorf("paid amount: %w", err)
		}
	}

	var warnings []string
	status, known := MapStatus(ext.StatusCode, vocab)
	if !known {
		warnings = append(warnings,
			fmt.Sprintf("unknown status code %q mapped to %s", ext.StatusCode, claims.StatusPending))
	}

	procs := ParseCodes(ext.ProcedureCodes)
	c := &claims.Claim{
		ID:             GenerateClaimID(ext.ProviderID, ext.PatientKey, dos, firstOrEmpty(procs)),
		ProviderID:     strings.TrimSpace(ext.ProviderID),
		PatientKey:     strings.TrimSpace(ext.PatientKey),
		DateOfService:  dos,
		BilledAmount:   billed,
		PaidAmount:     paid,
		Status:         status,
		ProcedureCodes: procs,
		DiagnosisCodes: ParseCodes(ext.DiagnosisCodes),
		Modifiers:      ParseCodes(ext.Modifiers),
		SourceType:     sourceType,
	}
	if name := strings.TrimSpace(ext.PatientName); name != "" {
		c.PatientName = &name
	}
	if reason := strings.TrimSpace(ext.DenialReason); reason != "" {
		c.DenialReason = &reason
	}
	if ref := strings.TrimSpace(ext.SourceRecordID); ref != "" {
		c.SourceRef = &ref
	}
	now := time.Now().UTC()
	c.ProcessedAt = &now
	return c, warnings, nil
}

// MapAppeal recomputes the claim id from an appeal update's identity
// fields and normalizes its dates.
func MapAppeal(ext *ExternalAppeal) (*claims.Appeal, error) {
	if ext == nil {
		return nil, fmt.Errorf("external appeal is required")
	}
	dos, err := FormatDate(ext.DateOfService)
	if err != nil {
		return nil, err
	}
	appealDate := dos
	if strings.TrimSpace(ext.AppealDate) != "" {
		if appealDate, err = FormatDate(ext.AppealDate); err != nil {
			return nil, err
		}
	}
	a := &claims.Appeal{
		ClaimID:    GenerateClaimID(ext.ProviderID, ext.PatientKey, dos, strings.ToUpper(strings.TrimSpace(ext.ProcedureCode))),
		Status:     strings.TrimSpace(ext.Status),
		AppealDate: appealDate,
	}
	if out := strings.TrimSpace(ext.Outcome); out != "" {
		a.Outcome = &out
	}
	return a, nil
}

func parseAmount(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("unparseable amount %q", raw)
	}
	return v, nil
}

func firstOrEmpty(codes []string) string {
	if len(codes) == 0 {
		return ""
	}
	return codes[0]
}
