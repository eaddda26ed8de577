// Package config holds the parser limits and flags, loaded from YAML and
// overridden from ODATA_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// KeyDelimiter selects how keys are written in resource paths.
type KeyDelimiter string

const (
	KeyParentheses KeyDelimiter = "parentheses" // People(1)
	KeySlash       KeyDelimiter = "slash"       // People/1
)

// ErrInvalidSettings is wrapped by every validation failure.
var ErrInvalidSettings = errors.New("invalid settings")

// Settings configures every parser behind the facade.
type Settings struct {
	FilterLimit              int          `yaml:"filterLimit"`
	OrderByLimit             int          `yaml:"orderByLimit"`
	SearchLimit              int          `yaml:"searchLimit"`
	PathLimit                int          `yaml:"pathLimit"`
	SelectExpandLimit        int          `yaml:"selectExpandLimit"`
	MaximumExpansionDepth    int          `yaml:"maximumExpansionDepth"`
	MaxPathDepth             int          `yaml:"maxPathDepth"`
	CaseInsensitive          bool         `yaml:"caseInsensitive"`
	NoDollarQueryOptions     bool         `yaml:"noDollarQueryOptions"`
	URITemplateParsing       bool         `yaml:"uriTemplateParsing"`
	KeyDelimiter             KeyDelimiter `yaml:"keyDelimiter"`
	UnqualifiedOperationCall bool         `yaml:"unqualifiedOperationCall"`
}

// Default returns the default settings.
func Default() *Settings {
	return &Settings{
		FilterLimit:           800,
		OrderByLimit:          800,
		SearchLimit:           100,
		PathLimit:             100,
		SelectExpandLimit:     800,
		MaximumExpansionDepth: 100,
		MaxPathDepth:          100,
		KeyDelimiter:          KeyParentheses,
	}
}

// KeyAsSegment reports whether keys are written as path segments.
func (s *Settings) KeyAsSegment() bool {
	return s.KeyDelimiter == KeySlash
}

// Load reads settings from a YAML file. Fields absent from the file keep
// their defaults.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading settings: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML settings over the defaults. Unknown fields are rejected.
func Parse(data []byte) (*Settings, error) {
	s := Default()
	if len(bytes.TrimSpace(data)) > 0 {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(s); err != nil {
			return nil, fmt.Errorf("parsing settings: %w", err)
		}
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// LoadEnvFile loads variables from a dotenv file into the process
// environment, leaving variables that are already set untouched.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading env file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides s from ODATA_* environment variables.
func (s *Settings) ApplyEnv() error {
	ints := []struct {
		key string
		dst *int
	}{
		{"ODATA_FILTER_LIMIT", &s.FilterLimit},
		{"ODATA_ORDERBY_LIMIT", &s.OrderByLimit},
		{"ODATA_SEARCH_LIMIT", &s.SearchLimit},
		{"ODATA_PATH_LIMIT", &s.PathLimit},
		{"ODATA_SELECT_EXPAND_LIMIT", &s.SelectExpandLimit},
		{"ODATA_MAX_EXPANSION_DEPTH", &s.MaximumExpansionDepth},
		{"ODATA_MAX_PATH_DEPTH", &s.MaxPathDepth},
	}
	for _, e := range ints {
		v := envOrDefault(e.key, "")
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidSettings, e.key, v)
		}
		*e.dst = n
	}

	bools := []struct {
		key string
		dst *bool
	}{
		{"ODATA_CASE_INSENSITIVE", &s.CaseInsensitive},
		{"ODATA_NO_DOLLAR_QUERY_OPTIONS", &s.NoDollarQueryOptions},
		{"ODATA_URI_TEMPLATE_PARSING", &s.URITemplateParsing},
		{"ODATA_UNQUALIFIED_OPERATION_CALL", &s.UnqualifiedOperationCall},
	}
	for _, e := range bools {
		v := envOrDefault(e.key, "")
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a boolean", ErrInvalidSettings, e.key, v)
		}
		*e.dst = b
	}

	s.KeyDelimiter = KeyDelimiter(strings.ToLower(envOrDefault("ODATA_KEY_DELIMITER", string(s.KeyDelimiter))))
	return s.Validate()
}

// Validate checks that every limit is positive and the key delimiter is known.
func (s *Settings) Validate() error {
	limits := []struct {
		name  string
		value int
	}{
		{"filterLimit", s.FilterLimit},
		{"orderByLimit", s.OrderByLimit},
		{"searchLimit", s.SearchLimit},
		{"pathLimit", s.PathLimit},
		{"selectExpandLimit", s.SelectExpandLimit},
		{"maximumExpansionDepth", s.MaximumExpansionDepth},
		{"maxPathDepth", s.MaxPathDepth},
	}
	for _, l := range limits {
		if l.value <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %d", ErrInvalidSettings, l.name, l.value)
		}
	}
	switch s.KeyDelimiter {
	case KeyParentheses, KeySlash:
	default:
		return fmt.Errorf("%w: keyDelimiter must be %q or %q, got %q", ErrInvalidSettings, KeyParentheses, KeySlash, s.KeyDelimiter)
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
