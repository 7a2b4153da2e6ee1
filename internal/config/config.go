package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the synthesis service
type Config struct {
	// Server configuration
	Port string `envconfig:"PORT" default:"8080"`

	// Synthesis provider selection: "google" or "azure"
	Provider string `envconfig:"TTS_PROVIDER" default:"google"`

	// Google Cloud Text-to-Speech configuration
	GoogleAPIKey string `envconfig:"GOOGLE_TTS_API_KEY" default:""`

	// Azure Speech configuration
	AzureSpeechKey    string `envconfig:"AZURE_SPEECH_KEY" default:""`
	AzureSpeechRegion string `envconfig:"AZURE_SPEECH_REGION" default:"eastus"`

	// Default voice parameters, passed through to the provider.
	// Per-request overrides are accepted in the HTTP body.
	VoiceLanguage string  `envconfig:"TTS_VOICE_LANGUAGE" default:"en-US"`
	VoiceName     string  `envconfig:"TTS_VOICE_NAME" default:"en-US-Neural2-C"`
	AudioEncoding string  `envconfig:"TTS_AUDIO_ENCODING" default:"MP3"` // MP3, LINEAR16, OGG_OPUS
	SpeakingRate  float64 `envconfig:"TTS_SPEAKING_RATE" default:"1.0"`

	// Chunking configuration
	MaxChunkLength int `envconfig:"MAX_CHUNK_LENGTH" default:"4900"` // Provider per-request character limit minus headroom

	// Batch scheduling configuration
	MaxConcurrent        int     `envconfig:"MAX_CONCURRENT" default:"10"`           // Outstanding synthesis calls at any instant
	MaxRequestsPerMinute int     `envconfig:"MAX_REQUESTS_PER_MINUTE" default:"100"` // Provider quota
	InitialRetryDelayMs  int     `envconfig:"INITIAL_RETRY_DELAY_MS" default:"1000"` // Base for exponential backoff
	MaxRetries           int     `envconfig:"MAX_RETRIES" default:"3"`               // Retries per rate-limited chunk
	FailureRatioCeiling  float64 `envconfig:"FAILURE_RATIO_CEILING" default:"0.10"`  // Max tolerated fraction of failed chunks
	SynthesisTimeout     int     `envconfig:"SYNTHESIS_TIMEOUT" default:"60"`        // Per-request timeout in seconds

	// Resilience configuration
	CircuitBreakerEnabled      bool `envconfig:"CIRCUIT_BREAKER_ENABLED" default:"false"`
	CircuitBreakerMaxFailures  int  `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int  `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables.
// It first attempts to load from .env file if it exists, then from environment.
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments).
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks provider credentials and pipeline bounds.
func (c *Config) Validate() error {
	switch c.Provider {
	case "google":
		if c.GoogleAPIKey == "" {
			return fmt.Errorf("GOOGLE_TTS_API_KEY is required when TTS_PROVIDER=google")
		}
	case "azure":
		if c.AzureSpeechKey == "" {
			return fmt.Errorf("AZURE_SPEECH_KEY is required when TTS_PROVIDER=azure")
		}
		if c.AzureSpeechRegion == "" {
			return fmt.Errorf("AZURE_SPEECH_REGION is required when TTS_PROVIDER=azure")
		}
	default:
		return fmt.Errorf("unknown TTS_PROVIDER %q (expected google or azure)", c.Provider)
	}

	if c.MaxChunkLength <= 0 {
		return fmt.Errorf("MAX_CHUNK_LENGTH must be positive, got %d", c.MaxChunkLength)
	}
	if c.MaxConcurrent <= 0 {
		return fmt.Errorf("MAX_CONCURRENT must be positive, got %d", c.MaxConcurrent)
	}
	if c.MaxRequestsPerMinute <= 0 {
		return fmt.Errorf("MAX_REQUESTS_PER_MINUTE must be positive, got %d", c.MaxRequestsPerMinute)
	}
	if c.FailureRatioCeiling < 0 || c.FailureRatioCeiling >= 1 {
		return fmt.Errorf("FAILURE_RATIO_CEILING must be in [0, 1), got %f", c.FailureRatioCeiling)
	}

	return nil
}

// InitialRetryDelay returns the backoff base as a duration.
func (c *Config) InitialRetryDelay() time.Duration {
	return time.Duration(c.InitialRetryDelayMs) * time.Millisecond
}
