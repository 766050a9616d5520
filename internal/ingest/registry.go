package ingest

import (
	"embed"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

//go:embed config/sources.yaml
var sourcesYAML embed.FS

// DefaultSourceID is the registry entry used by the server and CLI.
const DefaultSourceID = "tenderned"

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("cron", func(fl validator.FieldLevel) bool {
		_, err := cron.ParseStandard(fl.Field().String())
		return err == nil
	})
	return v
}

// Registry holds the configuration for all data sources.
type Registry struct {
	Sources []SourceConfig `yaml:"sources" validate:"required,min=1,dive"`
}

// FetchConfig defines HTTP fetching configuration for a source.
type FetchConfig struct {
	Engine            string  `yaml:"engine,omitempty" validate:"omitempty,oneof=http colly"`
	TimeoutSeconds    int     `yaml:"timeout_seconds,omitempty" validate:"gte=0"` // Default: 30
	MaxRetries        int     `yaml:"max_retries,omitempty" validate:"gte=0"`     // Default: 3
	RateLimitRPS      float64 `yaml:"rate_limit_rps,omitempty" validate:"gte=0"`  // Requests per second, default: 1.0
	Burst             int     `yaml:"burst,omitempty" validate:"gte=0"`
	ProxyURL          string  `yaml:"proxy_url,omitempty" validate:"omitempty,url"`
	AcceptLanguage    string  `yaml:"accept_language,omitempty"`
	AllowPrivateHosts bool    `yaml:"allow_private_hosts,omitempty"` // local mirrors and tests only
}

type DetailConfig struct {
	Enabled     bool `yaml:"enabled"`
	Concurrency int  `yaml:"concurrency,omitempty" validate:"gte=0,lte=16"`
	// CPVFilter drops publications whose detail lists no monitored CPV code.
	// Publications without a readable detail are kept.
	CPVFilter   bool `yaml:"cpv_filter,omitempty"`
}

// SourceConfig defines a single publication source.
type SourceConfig struct {
	ID              string       `yaml:"id" validate:"required"`
	Name            string       `yaml:"name" validate:"required"`
	Description     string       `yaml:"description,omitempty"`
	BaseURL         string       `yaml:"base_url" validate:"required,url"`
	SiteURL         string       `yaml:"site_url" validate:"required,url"`
	PageSize        int          `yaml:"page_size" validate:"gte=1,lte=100"`
	MaxPages        int          `yaml:"max_pages" validate:"gte=1,lte=500"`
	CacheTTLMinutes int          `yaml:"cache_ttl_minutes" validate:"gte=1"`
	Schedule        string       `yaml:"schedule,omitempty" validate:"omitempty,cron"`
	Detail          DetailConfig `yaml:"detail,omitempty"`
	Fetch           FetchConfig  `yaml:"fetch,omitempty"`
}

// LoadRegistry reads the registry from path when given, otherwise the embedded sources.yaml.
func LoadRegistry(path string) (*Registry, error) {
	var data []byte
	var err error
	if path != "" {
		data, err = os.ReadFile(path)
	} else {
		data, err = sourcesYAML.ReadFile("config/sources.yaml")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read source registry: %w", err)
	}
	return ParseRegistry(data)
}

// ParseRegistry expands environment variables (e.g. ${TENDERNED_PROXY_URL}), decodes and validates.
func ParseRegistry(data []byte) (*Registry, error) {
	expanded := os.ExpandEnv(string(data))

	var reg Registry
	if err := yaml.Unmarshal([]byte(expanded), &reg); err != nil {
		return nil, fmt.Errorf("failed to parse source registry: %w", err)
	}
	if err := validate.Struct(reg); err != nil {
		return nil, fmt.Errorf("invalid source registry: %w", err)
	}
	return &reg, nil
}

// Source returns the source with the given id.
func (r *Registry) Source(id string) (SourceConfig, error) {
	for _, s := range r.Sources {
		if s.ID == id {
			return s, nil
		}
	}
	return SourceConfig{}, fmt.Errorf("source %q not found in registry", id)
}

// NewFetcher builds the fetcher selected by the source's fetch engine.
func (s SourceConfig) NewFetcher() Fetcher {
	if s.Fetch.Engine == "colly" {
		return CollyFetcherWithConfig(s.Fetch)
	}
	return NewRateLimitedFetcher(s.Fetch)
}
