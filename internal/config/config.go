package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/dgallion1/deckgest/internal/retry"
)

const (
	ProviderLlamaParse = "llamaparse"
	ProviderLocal      = "local"
)

type Config struct {
	Port     string `toml:"port"`
	LogLevel string `toml:"log_level"`

	// Text extraction
	ExtractProvider        string        `toml:"extract_provider"`
	LlamaCloudAPIKey       string        `toml:"llama_cloud_api_key"`
	LlamaCloudBaseURL      string        `toml:"llama_cloud_base_url"`
	LlamaParsePollInterval time.Duration `toml:"llama_parse_poll_interval"`
	LlamaParseTimeout      time.Duration `toml:"llama_parse_timeout"`
	ExtractMaxAttempts     int           `toml:"extract_max_attempts"`
	PDFFallbackPdftotext   bool          `toml:"pdf_fallback_pdftotext"`

	// Field extraction
	OpenAIAPIKey      string        `toml:"openai_api_key"`
	OpenAIBaseURL     string        `toml:"openai_base_url"`
	OpenAIModel       string        `toml:"openai_model"`
	OpenAITemperature float64       `toml:"openai_temperature"`
	OpenAITimeout     time.Duration `toml:"openai_timeout"`
	LLMMaxAttempts    int           `toml:"llm_max_attempts"`

	// Retry backoff shared by both collaborators
	RetryBaseDelay time.Duration `toml:"retry_base_delay"`
	RetryMaxDelay  time.Duration `toml:"retry_max_delay"`

	// Intake
	MaxConcurrentExtract int   `toml:"max_concurrent_extract"`
	MaxUploadBytes       int64 `toml:"max_upload_bytes"`
	MaxInputTokens       int   `toml:"max_input_tokens"`

	// Sessions
	SessionTTL             time.Duration `toml:"session_ttl"`
	SessionCleanupSchedule string        `toml:"session_cleanup_schedule"`

	// Optional YAML preset replacing the built-in starter schema.
	SchemaFile string `toml:"schema_file"`
}

func defaults() Config {
	return Config{
		Port:     "8090",
		LogLevel: "info",

		ExtractProvider:        ProviderLlamaParse,
		LlamaCloudBaseURL:      "https://api.cloud.llamaindex.ai",
		LlamaParsePollInterval: 2 * time.Second,
		LlamaParseTimeout:      5 * time.Minute,
		ExtractMaxAttempts:     3,
		PDFFallbackPdftotext:   true,

		OpenAIBaseURL:  "https://api.openai.com/v1",
		OpenAIModel:    "gpt-4o-2024-08-06",
		OpenAITimeout:  120 * time.Second,
		LLMMaxAttempts: 3,

		RetryBaseDelay: 1 * time.Second,
		RetryMaxDelay:  30 * time.Second,

		MaxConcurrentExtract: 4,
		MaxUploadBytes:       52428800, // 50MB
		MaxInputTokens:       100000,

		SessionTTL:             1 * time.Hour,
		SessionCleanupSchedule: "@every 5m",
	}
}

// Load builds the config from defaults, the optional TOML file named by
// CONFIG_FILE, and then environment variables, in increasing precedence.
func Load() (Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("decode config file %s: %w", path, err)
		}
	}

	cfg.Port = envOr("PORT", cfg.Port)
	cfg.LogLevel = envOr("LOG_LEVEL", cfg.LogLevel)

	cfg.ExtractProvider = envOr("EXTRACT_PROVIDER", cfg.ExtractProvider)
	cfg.LlamaCloudAPIKey = envOr("LLAMA_CLOUD_API_KEY", cfg.LlamaCloudAPIKey)
	cfg.LlamaCloudBaseURL = envOr("LLAMA_CLOUD_BASE_URL", cfg.LlamaCloudBaseURL)
	cfg.LlamaParsePollInterval = envDuration("LLAMA_PARSE_POLL_INTERVAL", cfg.LlamaParsePollInterval)
	cfg.LlamaParseTimeout = envDuration("LLAMA_PARSE_TIMEOUT", cfg.LlamaParseTimeout)
	cfg.ExtractMaxAttempts = envInt("EXTRACT_MAX_ATTEMPTS", cfg.ExtractMaxAttempts)
	cfg.PDFFallbackPdftotext = envBool("PDF_FALLBACK_PDFTOTEXT", cfg.PDFFallbackPdftotext)

	cfg.OpenAIAPIKey = envOr("OPENAI_API_KEY", cfg.OpenAIAPIKey)
	cfg.OpenAIBaseURL = envOr("OPENAI_BASE_URL", cfg.OpenAIBaseURL)
	cfg.OpenAIModel = envOr("OPENAI_MODEL", cfg.OpenAIModel)
	cfg.OpenAITemperature = envFloat("OPENAI_TEMPERATURE", cfg.OpenAITemperature)
	cfg.OpenAITimeout = envDuration("OPENAI_TIMEOUT", cfg.OpenAITimeout)
	cfg.LLMMaxAttempts = envInt("LLM_MAX_ATTEMPTS", cfg.LLMMaxAttempts)

	cfg.RetryBaseDelay = envDuration("RETRY_BASE_DELAY", cfg.RetryBaseDelay)
	cfg.RetryMaxDelay = envDuration("RETRY_MAX_DELAY", cfg.RetryMaxDelay)

	cfg.MaxConcurrentExtract = envInt("MAX_CONCURRENT_EXTRACT", cfg.MaxConcurrentExtract)
	cfg.MaxUploadBytes = envInt64("MAX_UPLOAD_BYTES", cfg.MaxUploadBytes)
	cfg.MaxInputTokens = envInt("MAX_INPUT_TOKENS", cfg.MaxInputTokens)

	cfg.SessionTTL = envDuration("SESSION_TTL", cfg.SessionTTL)
	cfg.SessionCleanupSchedule = envOr("SESSION_CLEANUP_SCHEDULE", cfg.SessionCleanupSchedule)

	cfg.SchemaFile = envOr("SCHEMA_FILE", cfg.SchemaFile)

	cfg.applyFloors()
	return cfg, nil
}

// applyFloors resets non-positive limits to their defaults.
func (c *Config) applyFloors() {
	d := defaults()
	if c.ExtractMaxAttempts <= 0 {
		c.ExtractMaxAttempts = d.ExtractMaxAttempts
	}
	if c.LLMMaxAttempts <= 0 {
		c.LLMMaxAttempts = d.LLMMaxAttempts
	}
	if c.LlamaParsePollInterval <= 0 {
		c.LlamaParsePollInterval = d.LlamaParsePollInterval
	}
	if c.LlamaParseTimeout <= 0 {
		c.LlamaParseTimeout = d.LlamaParseTimeout
	}
	if c.OpenAITimeout <= 0 {
		c.OpenAITimeout = d.OpenAITimeout
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = d.RetryBaseDelay
	}
	if c.RetryMaxDelay < c.RetryBaseDelay {
		c.RetryMaxDelay = c.RetryBaseDelay
	}
	if c.MaxConcurrentExtract <= 0 {
		c.MaxConcurrentExtract = d.MaxConcurrentExtract
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = d.MaxUploadBytes
	}
	if c.MaxInputTokens <= 0 {
		c.MaxInputTokens = d.MaxInputTokens
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = d.SessionTTL
	}
	if c.SessionCleanupSchedule == "" {
		c.SessionCleanupSchedule = d.SessionCleanupSchedule
	}
}

func (c Config) Validate() error {
	if c.OpenAIAPIKey == "" {
		return errors.New("OPENAI_API_KEY is required")
	}
	switch c.ExtractProvider {
	case ProviderLlamaParse:
		if c.LlamaCloudAPIKey == "" {
			return errors.New("LLAMA_CLOUD_API_KEY is required when EXTRACT_PROVIDER is llamaparse")
		}
	case ProviderLocal:
	default:
		return fmt.Errorf("unknown EXTRACT_PROVIDER %q", c.ExtractProvider)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// LLMRetry is the backoff policy for field extraction calls.
func (c Config) LLMRetry() retry.Policy {
	return retry.Policy{MaxAttempts: c.LLMMaxAttempts, BaseDelay: c.RetryBaseDelay, MaxDelay: c.RetryMaxDelay}
}

// ExtractRetry is the backoff policy for text extraction calls.
func (c Config) ExtractRetry() retry.Policy {
	return retry.Policy{MaxAttempts: c.ExtractMaxAttempts, BaseDelay: c.RetryBaseDelay, MaxDelay: c.RetryMaxDelay}
}

// SlogLevel maps LogLevel onto slog; unknown values mean info.
func (c Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
