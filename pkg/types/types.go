package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// OutputFormat selects how the rendered body is returned to the caller
type OutputFormat string

const (
	OutputFormatMarkdown OutputFormat = "markdown"
	OutputFormatHTML     OutputFormat = "html"
)

// ParseOutputFormat normalizes a requested format; empty means markdown
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(s))) {
	case "", OutputFormatMarkdown:
		return OutputFormatMarkdown, nil
	case OutputFormatHTML:
		return OutputFormatHTML, nil
	default:
		return "", fmt.Errorf("unsupported output_format %q (must be markdown or html)", s)
	}
}

// UnmarshalJSON accepts the format case-insensitively and rejects unknown values
func (f *OutputFormat) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("output_format must be a string: %w", err)
	}
	parsed, err := ParseOutputFormat(s)
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// Error codes returned in ErrorDetail.Code
const (
	ErrorCodeTimeout        = "TIMEOUT_EXCEEDED"
	ErrorCodeBrowser        = "BROWSER_ERROR"
	ErrorCodeInternal       = "INTERNAL_ERROR"
	ErrorCodeUnauthorized   = "UNAUTHORIZED"
	ErrorCodeInvalidRequest = "INVALID_REQUEST"
	ErrorCodeNotFound       = "NOT_FOUND"
)

// ScrapeRequest is the body of POST /scrape
type ScrapeRequest struct {
	URL          string       `json:"url"`
	OutputFormat OutputFormat `json:"output_format,omitempty"`
}

// PageMetadata holds the document title and every og:* meta property found on the page
type PageMetadata struct {
	Title  string            `json:"title"`
	OGTags map[string]string `json:"og_tags"`
}

// ScrapeData is the successful payload of a scrape
type ScrapeData struct {
	Metadata PageMetadata `json:"metadata"`
	Content  string       `json:"content"`
}

// ErrorDetail is the machine-readable error payload
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ScrapeResponse is the envelope for every /scrape response
type ScrapeResponse struct {
	Success bool         `json:"success"`
	Data    *ScrapeData  `json:"data"`
	Error   *ErrorDetail `json:"error"`
}

// NewScrapeSuccess wraps data in a successful envelope
func NewScrapeSuccess(data ScrapeData) ScrapeResponse {
	return ScrapeResponse{Success: true, Data: &data}
}

// NewScrapeError wraps an error code and message in a failed envelope
func NewScrapeError(code, message string) ScrapeResponse {
	return ScrapeResponse{
		Success: false,
		Error:   &ErrorDetail{Code: code, Message: message},
	}
}

// Duration wraps time.Duration for YAML and JSON configuration values ("10s", "1m30s")
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}

	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalJSON accepts nanosecond numbers and duration strings
func (d *Duration) UnmarshalJSON(data []byte) error {
	var ns int64
	if err := json.Unmarshal(data, &ns); err == nil {
		*d = Duration(ns)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a number or string: %w", err)
	}

	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(dur)
	return nil
}

// MarshalJSON renders the duration as a string
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Std returns the value as time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}
