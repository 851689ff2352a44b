package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/personad/internal/logging"
	"github.com/fyrsmithlabs/personad/internal/persona"
	"github.com/fyrsmithlabs/personad/internal/sanitize"
	"github.com/fyrsmithlabs/personad/internal/telemetry"
)

// Store backend names accepted by StoreConfig.Backend.
const (
	StoreMemory  = "memory"
	StoreChromem = "chromem"
	StoreQdrant  = "qdrant"
)

// Config holds the complete personad configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	NATS      NATSConfig      `koanf:"nats"`
	Store     StoreConfig     `koanf:"store"`
	Pipeline  PipelineConfig  `koanf:"pipeline"`
	Analysis  AnalysisConfig  `koanf:"analysis"`
	Synthesis SynthesisConfig `koanf:"synthesis"`
	Sanitize  SanitizeConfig  `koanf:"sanitize"`

	// Vocabulary overrides the built-in trait vocabulary per axis. The first
	// value of each axis becomes that axis's default trait.
	Vocabulary map[string][]string `koanf:"vocabulary"`

	Logging   logging.Config   `koanf:"logging"`
	Telemetry telemetry.Config `koanf:"telemetry"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string          `koanf:"host"`
	Port            int             `koanf:"port"`
	ShutdownTimeout time.Duration   `koanf:"shutdown_timeout"`
	ReadTimeout     time.Duration   `koanf:"read_timeout"`
	WriteTimeout    time.Duration   `koanf:"write_timeout"`
	RateLimit       RateLimitConfig `koanf:"rate_limit"`
}

// RateLimitConfig bounds request throughput on the message endpoint.
type RateLimitConfig struct {
	Enabled bool    `koanf:"enabled"`
	RPS     float64 `koanf:"rps"`
	Burst   int     `koanf:"burst"`
}

// NATSConfig holds the event publisher's broker connection settings.
type NATSConfig struct {
	Enabled        bool          `koanf:"enabled"`
	URL            string        `koanf:"url"`
	Name           string        `koanf:"name"`
	SubjectPrefix  string        `koanf:"subject_prefix"`
	ConnectTimeout time.Duration `koanf:"connect_timeout"`
	ReconnectWait  time.Duration `koanf:"reconnect_wait"`
	MaxReconnects  int           `koanf:"max_reconnects"`
}

// StoreConfig selects and configures the persona store backend.
type StoreConfig struct {
	Backend    string        `koanf:"backend"`
	VectorSize int           `koanf:"vector_size"`
	Chromem    ChromemConfig `koanf:"chromem"`
	Qdrant     QdrantConfig  `koanf:"qdrant"`
}

// ChromemConfig configures the embedded chromem backend.
type ChromemConfig struct {
	Path     string `koanf:"path"`
	Compress bool   `koanf:"compress"`
}

// QdrantConfig configures the Qdrant gRPC backend.
type QdrantConfig struct {
	Host             string `koanf:"host"`
	Port             int    `koanf:"port"`
	APIKey           Secret `koanf:"api_key"`
	UseTLS           bool   `koanf:"use_tls"`
	CollectionPrefix string `koanf:"collection_prefix"`
}

// PipelineConfig holds orchestrator settings.
type PipelineConfig struct {
	// StageTimeout bounds each stage that doesn't declare its own timeout.
	StageTimeout time.Duration `koanf:"stage_timeout"`

	// ContinueOnError keeps a run going past required-stage failures. The
	// run still reports failure.
	ContinueOnError bool `koanf:"continue_on_error"`

	// TraceEnabled collects per-stage execution traces. Disabling it
	// makes trace opt-in requests return nothing.
	TraceEnabled bool `koanf:"trace_enabled"`
}

// AnalysisConfig holds fan-out settings.
type AnalysisConfig struct {
	// Timeout bounds each analysis branch.
	Timeout time.Duration `koanf:"timeout"`
	// MaxConcurrent caps concurrently running branches. Zero means unbounded.
	MaxConcurrent int `koanf:"max_concurrent"`
}

// SynthesisConfig holds synthesis settings.
type SynthesisConfig struct {
	// Tuning carries free-form knobs (increments, thresholds, bonuses) read
	// through the Values accessor. Missing keys fall back to built-ins.
	Tuning map[string]interface{} `koanf:"tuning"`
}

// Values returns a tuning accessor over this section.
func (c SynthesisConfig) Values() Values {
	return NewValues(c.Tuning)
}

// SanitizeConfig holds message normalization and scrubbing settings.
type SanitizeConfig struct {
	MaxMessageBytes int    `koanf:"max_message_bytes"`
	Scrub           bool   `koanf:"scrub"`
	AllowlistPath   string `koanf:"allowlist_path"`
}

// NewDefaultConfig returns the complete default configuration.
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8420,
			ShutdownTimeout: 10 * time.Second,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     25,
				Burst:   50,
			},
		},
		NATS: NATSConfig{
			Enabled:        false,
			URL:            "nats://127.0.0.1:4222",
			Name:           "personad",
			SubjectPrefix:  "persona.runs",
			ConnectTimeout: 5 * time.Second,
			ReconnectWait:  2 * time.Second,
			MaxReconnects:  5,
		},
		Store: StoreConfig{
			Backend:    StoreMemory,
			VectorSize: 256,
			Chromem: ChromemConfig{
				Path:     "~/.local/share/personad/store",
				Compress: true,
			},
			Qdrant: QdrantConfig{
				Host:             "localhost",
				Port:             6334,
				CollectionPrefix: "personad",
			},
		},
		Pipeline: PipelineConfig{
			StageTimeout: 5 * time.Second,
			TraceEnabled: true,
		},
		Analysis: AnalysisConfig{
			Timeout:       2 * time.Second,
			MaxConcurrent: 4,
		},
		Sanitize: SanitizeConfig{
			MaxMessageBytes: 64 * 1024,
			Scrub:           true,
		},
		Logging:   *logging.NewDefaultConfig(),
		Telemetry: *telemetry.NewDefaultConfig(),
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("server.shutdown_timeout must be positive")
	}
	if c.Server.RateLimit.Enabled {
		if c.Server.RateLimit.RPS <= 0 {
			return errors.New("server.rate_limit.rps must be positive when enabled")
		}
		if c.Server.RateLimit.Burst < 1 {
			return errors.New("server.rate_limit.burst must be at least 1 when enabled")
		}
	}

	if c.NATS.Enabled {
		if c.NATS.URL == "" {
			return errors.New("nats.url is required when nats is enabled")
		}
		if c.NATS.ConnectTimeout <= 0 {
			return errors.New("nats.connect_timeout must be positive")
		}
		if c.NATS.MaxReconnects < -1 {
			return fmt.Errorf("nats.max_reconnects must be >= -1, got %d", c.NATS.MaxReconnects)
		}
	}

	switch c.Store.Backend {
	case StoreMemory:
	case StoreChromem:
		if c.Store.Chromem.Path == "" {
			return errors.New("store.chromem.path is required for the chromem backend")
		}
		if _, err := sanitize.ValidatePath(c.Store.Chromem.Path); err != nil {
			return fmt.Errorf("invalid store.chromem.path: %w", err)
		}
	case StoreQdrant:
		if c.Store.Qdrant.Host == "" {
			return errors.New("store.qdrant.host is required for the qdrant backend")
		}
		if c.Store.Qdrant.Port < 1 || c.Store.Qdrant.Port > 65535 {
			return fmt.Errorf("invalid store.qdrant.port: %d", c.Store.Qdrant.Port)
		}
	default:
		return fmt.Errorf("unknown store backend %q (must be %s, %s, or %s)",
			c.Store.Backend, StoreMemory, StoreChromem, StoreQdrant)
	}
	if c.Store.VectorSize < 1 {
		return fmt.Errorf("store.vector_size must be positive, got %d", c.Store.VectorSize)
	}

	if c.Pipeline.StageTimeout <= 0 {
		return errors.New("pipeline.stage_timeout must be positive")
	}
	if c.Analysis.Timeout <= 0 {
		return errors.New("analysis.timeout must be positive")
	}
	if c.Analysis.MaxConcurrent < 0 {
		return fmt.Errorf("analysis.max_concurrent must be >= 0, got %d", c.Analysis.MaxConcurrent)
	}

	if c.Sanitize.MaxMessageBytes < 1 {
		return fmt.Errorf("sanitize.max_message_bytes must be positive, got %d", c.Sanitize.MaxMessageBytes)
	}
	if c.Sanitize.AllowlistPath != "" {
		if _, err := sanitize.ValidatePath(c.Sanitize.AllowlistPath); err != nil {
			return fmt.Errorf("invalid sanitize.allowlist_path: %w", err)
		}
	}

	if _, err := c.BuildVocabulary(); err != nil {
		return fmt.Errorf("invalid vocabulary: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}
	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("invalid telemetry config: %w", err)
	}

	return nil
}

// BuildVocabulary converts the configured vocabulary overrides into a trait
// vocabulary, or returns the built-in one when no overrides are present.
func (c *Config) BuildVocabulary() (*persona.Vocabulary, error) {
	if len(c.Vocabulary) == 0 {
		return persona.DefaultVocabulary(), nil
	}
	values := make(map[persona.TraitAxis][]string, len(c.Vocabulary))
	for axis, vals := range c.Vocabulary {
		values[persona.TraitAxis(axis)] = vals
	}
	return persona.NewVocabulary(values)
}
