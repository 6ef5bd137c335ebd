package ingestion

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Canonical field names accepted as column-mapping targets.
const (
	FieldRecordID       = "record_id"
	FieldProviderID     = "provider_id"
	FieldPatientKey     = "patient_key"
	FieldPatientName    = "patient_name"
	FieldDateOfService  = "date_of_service"
	FieldBilledAmount   = "billed_amount"
	FieldPaidAmount     = "paid_amount"
	FieldStatus         = "status"
	FieldDenialReason   = "denial_reason"
	FieldProcedureCodes = "procedure_codes"
	FieldDiagnosisCodes = "diagnosis_codes"
	FieldModifiers      = "modifiers"
)

// DelimitedAdapter ingests flat delimited files (CSV and friends) with a
// configurable external-column-to-canonical-field mapping. Records are
// streamed row by row, so limits stop reading without a full file scan.
type DelimitedAdapter struct {
	cfg       Config
	file      *os.File
	csv       *csv.Reader
	colIdx    map[string]int // lowercased header name -> column index
	header    []string
	connected bool
	fetched   bool
	rowNum    int
}

func NewDelimitedAdapter() *DelimitedAdapter { return &DelimitedAdapter{} }

func (a *DelimitedAdapter) Metadata() Metadata {
	return Metadata{
		Type:        SourceTypeDelimited,
		Name:        "Delimited File",
		Description: "Flat CSV/TSV claim extracts with configurable column mapping",
	}
}

// Connect opens the file (or accepts inline content) and reads the header
// row. Without a header, column-mapping keys are 1-based column numbers.
func (a *DelimitedAdapter) Connect(ctx context.Context, cfg Config) error {
	if a.connected {
		return fmt.Errorf("delimited adapter already connected")
	}
	if err := cfg.Validate(); err != nil {
		return &ConnectionError{SourceType: SourceTypeDelimited, Err: err}
	}
	if !cfg.hasSource() {
		return &ConnectionError{SourceType: SourceTypeDelimited, Err: fmt.Errorf("file_path or content is required")}
	}

	var src io.Reader
	if cfg.FilePath != "" {
		f, err := os.Open(cfg.FilePath)
		if err != nil {
			return &ConnectionError{SourceType: SourceTypeDelimited, Err: err}
		}
		a.file = f
		src = f
	} else {
		src = strings.NewReader(cfg.Content)
	}

	r := csv.NewReader(src)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	if cfg.Delimiter != "" {
		r.Comma = rune(cfg.Delimiter[0])
	}

	if cfg.HasHeader {
		header, err := r.Read()
		if err != nil {
			a.closeFile()
			return &ConnectionError{SourceType: SourceTypeDelimited, Err: fmt.Errorf("read header: %w", err)}
		}
		a.header = header
		a.colIdx = make(map[string]int, len(header))
		for i, name := range header {
			a.colIdx[strings.ToLower(strings.TrimSpace(name))] = i
		}
	}

	a.cfg = cfg
	a.csv = r
	a.connected = true
	return nil
}

func (a *DelimitedAdapter) FetchClaims(ctx context.Context, opts FetchOptions) (*RecordSeq, error) {
	if !a.connected {
		return nil, &ConnectionError{SourceType: SourceTypeDelimited, Err: fmt.Errorf("not connected")}
	}
	if a.fetched {
		return nil, ErrSeqExhausted
	}
	a.fetched = true

	return newRecordSeq(func() (*Record, error) {
		for {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			row, err := a.csv.Read()
			if errors.Is(err, io.EOF) {
				return nil, nil
			}
			a.rowNum++
			rec := &Record{Seq: a.rowNum}
			if err != nil {
				// encoding/csv reports per-line parse errors and keeps
				// reading, so a broken line stays record-local.
				var pe *csv.ParseError
				if errors.As(err, &pe) {
					rec.Err = &FormatError{RecordID: strconv.Itoa(a.rowNum), Reason: err.Error()}
					return rec, nil
				}
				return nil, fmt.Errorf("read row %d: %w", a.rowNum, err)
			}

			ext := a.mapRow(row)
			if opts.Since != "" {
				if dos, err := FormatDate(ext.DateOfService); err == nil && dos < opts.Since {
					continue
				}
			}
			rec.Claim = ext
			return rec, nil
		}
	}, opts.Limit), nil
}

// FetchAppeals is not supported by the delimited variant.
func (a *DelimitedAdapter) FetchAppeals(ctx context.Context, opts FetchOptions) (*RecordSeq, error) {
	return nil, ErrUnsupportedOperation
}

func (a *DelimitedAdapter) Disconnect(ctx context.Context) error {
	a.connected = false
	a.csv = nil
	a.closeFile()
	return nil
}

func (a *DelimitedAdapter) closeFile() {
	if a.file != nil {
		_ = a.file.Close()
		a.file = nil
	}
}

// mapRow applies the column mapping to one row. Unmapped or out-of-range
// columns leave the canonical field empty; the validator fails the record
// if the field was required, and the batch continues.
func (a *DelimitedAdapter) mapRow(row []string) *ExternalClaim {
	get := func(field string) string {
		ext, ok := a.externalColumn(field)
		if !ok {
			return ""
		}
		idx, ok := a.columnIndex(ext)
		if !ok || idx < 0 || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	ext := &ExternalClaim{
		SourceRecordID: get(FieldRecordID),
		ProviderID:     get(FieldProviderID),
		PatientKey:     get(FieldPatientKey),
		PatientName:    get(FieldPatientName),
		DateOfService:  get(FieldDateOfService),
		BilledAmount:   get(FieldBilledAmount),
		PaidAmount:     get(FieldPaidAmount),
		StatusCode:     get(FieldStatus),
		DenialReason:   get(FieldDenialReason),
		ProcedureCodes: get(FieldProcedureCodes),
		DiagnosisCodes: get(FieldDiagnosisCodes),
		Modifiers:      get(FieldModifiers),
		Raw:            make(map[string]string, len(row)),
	}
	if ext.SourceRecordID == "" {
		ext.SourceRecordID = strconv.Itoa(a.rowNum)
	}
	for i, v := range row {
		key := strconv.Itoa(i + 1)
		if i < len(a.header) {
			key = a.header[i]
		}
		ext.Raw[key] = v
	}
	return ext
}

// externalColumn resolves a canonical field to its external column name.
// With no explicit mapping the external column is assumed to carry the
// canonical name itself.
func (a *DelimitedAdapter) externalColumn(field string) (string, bool) {
	if len(a.cfg.ColumnMapping) == 0 {
		return field, true
	}
	for ext, canonical := range a.cfg.ColumnMapping {
		if strings.EqualFold(canonical, field) {
			return ext, true
		}
	}
	return "", false
}

func (a *DelimitedAdapter) columnIndex(ext string) (int, bool) {
	if a.colIdx != nil {
		idx, ok := a.colIdx[strings.ToLower(strings.TrimSpace(ext))]
		return idx, ok
	}
	// Headerless files address columns by 1-based number.
	n, err := strconv.Atoi(strings.TrimSpace(ext))
	if err != nil || n < 1 {
		return 0, false
	}
	return n - 1, true
}
