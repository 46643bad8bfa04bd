package config

import (
	"fmt"
	"time"

	"github.com/jackzampolin/tagflow/internal/tagstate"
)

// Config is the complete daemon configuration. It is constructed once at
// startup and passed into every component constructor; there is no ambient
// global state.
type Config struct {
	Paperless PaperlessConfig `mapstructure:"paperless" yaml:"paperless"`
	Provider  ProviderConfig  `mapstructure:"provider" yaml:"provider"`
	OCR       OCRConfig       `mapstructure:"ocr" yaml:"ocr"`
	Classify  ClassifyConfig  `mapstructure:"classify" yaml:"classify"`
	Daemon    DaemonConfig    `mapstructure:"daemon" yaml:"daemon"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
}

// PaperlessConfig locates the document store.
type PaperlessConfig struct {
	URL   string `mapstructure:"url" yaml:"url"`
	Token string `mapstructure:"token" yaml:"token"`
}

// ProviderConfig selects and configures the model backend. Type is either
// "openai" (cloud) or "ollama" (self-hosted OpenAI-compatible endpoint).
type ProviderConfig struct {
	Type          string `mapstructure:"type" yaml:"type"`
	APIKey        string `mapstructure:"api_key" yaml:"api_key"`
	OllamaBaseURL string `mapstructure:"ollama_base_url" yaml:"ollama_base_url"`

	// Models is the ordered fallback list; the first entry is the primary
	// model. An empty list selects per-type defaults.
	Models []string `mapstructure:"models" yaml:"models"`
}

// OCRConfig drives the transcription stage.
type OCRConfig struct {
	PreTag            int      `mapstructure:"pre_tag" yaml:"pre_tag"`
	PostTag           int      `mapstructure:"post_tag" yaml:"post_tag"`
	ProcessingTag     int      `mapstructure:"processing_tag" yaml:"processing_tag"`
	DPI               int      `mapstructure:"dpi" yaml:"dpi"`
	PageWorkers       int      `mapstructure:"page_workers" yaml:"page_workers"`
	IncludePageModels bool     `mapstructure:"include_page_models" yaml:"include_page_models"`
	RefusalMarkers    []string `mapstructure:"refusal_markers" yaml:"refusal_markers"`
}

// ClassifyConfig drives the classification stage.
type ClassifyConfig struct {
	// PreTag defaults to the OCR post tag so documents flow from one
	// stage into the next.
	PreTag        int `mapstructure:"pre_tag" yaml:"pre_tag"`
	PostTag       int `mapstructure:"post_tag" yaml:"post_tag"`
	ProcessingTag int `mapstructure:"processing_tag" yaml:"processing_tag"`

	PersonField       int    `mapstructure:"person_field" yaml:"person_field"`
	DefaultCountryTag string `mapstructure:"default_country_tag" yaml:"default_country_tag"`

	// TagLimit caps model-suggested tags; required tags (year, country,
	// model markers) are exempt.
	TagLimit      int `mapstructure:"tag_limit" yaml:"tag_limit"`
	TaxonomyLimit int `mapstructure:"taxonomy_limit" yaml:"taxonomy_limit"`

	// Truncation limits for classification input.
	MaxPages            int `mapstructure:"max_pages" yaml:"max_pages"`
	TailPages           int `mapstructure:"tail_pages" yaml:"tail_pages"`
	HeaderlessCharLimit int `mapstructure:"headerless_char_limit" yaml:"headerless_char_limit"`
	MaxChars            int `mapstructure:"max_chars" yaml:"max_chars"`
}

// DaemonConfig holds the shared scheduling and resilience knobs.
type DaemonConfig struct {
	PollIntervalSeconds   int `mapstructure:"poll_interval" yaml:"poll_interval"`
	DocumentWorkers       int `mapstructure:"document_workers" yaml:"document_workers"`
	MaxRetries            int `mapstructure:"max_retries" yaml:"max_retries"`
	MaxRetryBackoffSecs   int `mapstructure:"max_retry_backoff" yaml:"max_retry_backoff"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout" yaml:"request_timeout"`

	// ErrorTag is shared by both stages; zero disables error tagging.
	ErrorTag int `mapstructure:"error_tag" yaml:"error_tag"`
}

// LogConfig controls log output.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"` // console or json
}

// PollInterval returns the poll interval as a duration, never below 1s.
func (c *DaemonConfig) PollInterval() time.Duration {
	secs := c.PollIntervalSeconds
	if secs < 1 {
		secs = 1
	}
	return time.Duration(secs) * time.Second
}

// RequestTimeout returns the per-request timeout.
func (c *DaemonConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// MaxRetryBackoff returns the backoff cap.
func (c *DaemonConfig) MaxRetryBackoff() time.Duration {
	return time.Duration(c.MaxRetryBackoffSecs) * time.Second
}

// OCRStage returns the tag-state configuration for the OCR stage.
func (c *Config) OCRStage() tagstate.Stage {
	return tagstate.Stage{
		Pre:        c.OCR.PreTag,
		Post:       c.OCR.PostTag,
		Processing: c.OCR.ProcessingTag,
		Error:      c.Daemon.ErrorTag,
	}
}

// ClassifyStage returns the tag-state configuration for the classification
// stage. An unset classify pre tag falls back to the OCR post tag.
func (c *Config) ClassifyStage() tagstate.Stage {
	pre := c.Classify.PreTag
	if pre == 0 {
		pre = c.OCR.PostTag
	}
	return tagstate.Stage{
		Pre:        pre,
		Post:       c.Classify.PostTag,
		Processing: c.Classify.ProcessingTag,
		Error:      c.Daemon.ErrorTag,
	}
}

// Models returns the ordered model fallback list, applying per-backend
// defaults when unconfigured.
func (c *Config) Models() []string {
	if len(c.Provider.Models) > 0 {
		return c.Provider.Models
	}
	if c.Provider.Type == "ollama" {
		return []string{"gemma3:27b", "gemma3:12b"}
	}
	return []string{"gpt-5-mini", "gpt-5.2", "o4-mini"}
}

// Validate checks the configuration for values the daemon cannot run
// without.
func (c *Config) Validate() error {
	if c.Paperless.URL == "" {
		return fmt.Errorf("paperless.url is required")
	}
	if c.Paperless.Token == "" {
		return fmt.Errorf("paperless.token is required")
	}
	switch c.Provider.Type {
	case "openai":
		if c.Provider.APIKey == "" {
			return fmt.Errorf("provider.api_key is required when provider.type is openai")
		}
	case "ollama":
	default:
		return fmt.Errorf("provider.type must be \"openai\" or \"ollama\", got %q", c.Provider.Type)
	}
	if c.OCR.PreTag == 0 || c.OCR.PostTag == 0 {
		return fmt.Errorf("ocr.pre_tag and ocr.post_tag are required")
	}
	if c.Daemon.MaxRetries < 1 {
		return fmt.Errorf("daemon.max_retries must be >= 1")
	}
	if c.Daemon.MaxRetryBackoffSecs < 1 {
		return fmt.Errorf("daemon.max_retry_backoff must be >= 1")
	}
	switch c.Log.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("log.format must be \"console\" or \"json\", got %q", c.Log.Format)
	}
	return nil
}
