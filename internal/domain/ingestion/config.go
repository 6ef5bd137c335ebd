package ingestion

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Source type identifiers for the built-in adapter variants.
const (
	SourceTypeEDI837    = "edi_837"
	SourceTypeERA835    = "era_835"
	SourceTypeDelimited = "delimited"
)

// Config carries adapter connection parameters. Credentials arrive already
// resolved from the secrets provider; this package never reads environment
// or config stores itself. Credentials must never appear in logs or API
// responses; use Masked() at every boundary.
type Config struct {
	Endpoint string `json:"endpoint,omitempty" validate:"omitempty,url"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	APIKey   string `json:"api_key,omitempty"`

	// Exactly one of FilePath and Content supplies file-based sources.
	FilePath string `json:"file_path,omitempty"`
	Content  string `json:"content,omitempty"`

	// Delimited-file settings.
	Delimiter     string            `json:"delimiter,omitempty" validate:"omitempty,len=1"`
	HasHeader     bool              `json:"has_header,omitempty"`
	ColumnMapping map[string]string `json:"column_mapping,omitempty" validate:"omitempty,dive,keys,required,endkeys,required"`
}

var validate = validator.New()

// Validate checks structural constraints on the config. Adapter variants
// enforce their own additional requirements at Connect time.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid adapter config: %w", err)
	}
	return nil
}

const maskedValue = "********"

// Masked returns a copy with all credential material replaced, for logging
// and API responses.
func (c Config) Masked() Config {
	if c.Password != "" {
		c.Password = maskedValue
	}
	if c.APIKey != "" {
		c.APIKey = maskedValue
	}
	return c
}

// hasSource reports whether a file-based source was supplied.
func (c Config) hasSource() bool {
	return c.FilePath != "" || c.Content != ""
}
