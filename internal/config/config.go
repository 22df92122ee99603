// Package config loads service configuration from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port              string        `mapstructure:"PORT"`
	Env               string        `mapstructure:"ENV"`
	LogLevel          string        `mapstructure:"LOG_LEVEL"`
	DatabaseURL       string        `mapstructure:"DATABASE_URL"`
	DBMaxConns        int32         `mapstructure:"DB_MAX_CONNS"`
	FHIRBaseURL       string        `mapstructure:"FHIR_BASE_URL"`
	FHIRPageSize      int           `mapstructure:"FHIR_PAGE_SIZE"`
	FHIRMaxPages      int           `mapstructure:"FHIR_MAX_PAGES"`
	FHIRTimeout       time.Duration `mapstructure:"FHIR_TIMEOUT"`
	LLMBaseURL        string        `mapstructure:"LLM_BASE_URL"`
	LLMAPIKey         string        `mapstructure:"LLM_API_KEY"`
	LLMModel          string        `mapstructure:"LLM_MODEL"`
	LLMTemperature    float64       `mapstructure:"LLM_TEMPERATURE"`
	LLMMaxTokens      int           `mapstructure:"LLM_MAX_TOKENS"`
	LLMTimeout        time.Duration `mapstructure:"LLM_TIMEOUT"`
	KafkaBrokers      []string      `mapstructure:"KAFKA_BROKERS"`
	RedisURL          string        `mapstructure:"REDIS_URL"`
	NarrativeCacheTTL time.Duration `mapstructure:"NARRATIVE_CACHE_TTL"`
	MinioEndpoint     string        `mapstructure:"MINIO_ENDPOINT"`
	MinioAccessKey    string        `mapstructure:"MINIO_ACCESS_KEY"`
	MinioSecretKey    string        `mapstructure:"MINIO_SECRET_KEY"`
	MinioBucket       string        `mapstructure:"MINIO_BUCKET"`
	MinioUseSSL       bool          `mapstructure:"MINIO_USE_SSL"`
	OTLPEndpoint      string        `mapstructure:"OTLP_ENDPOINT"`
	TraceSampleRate   float64       `mapstructure:"TRACE_SAMPLE_RATE"`
	OrgName           string        `mapstructure:"ORG_NAME"`
	OrgOID            string        `mapstructure:"ORG_OID"`
	CORSOrigins       []string      `mapstructure:"CORS_ORIGINS"`
	Workers           int           `mapstructure:"WORKERS"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL", "DATABASE_URL", "DB_MAX_CONNS",
	"FHIR_BASE_URL", "FHIR_PAGE_SIZE", "FHIR_MAX_PAGES", "FHIR_TIMEOUT",
	"LLM_BASE_URL", "LLM_API_KEY", "LLM_MODEL", "LLM_TEMPERATURE", "LLM_MAX_TOKENS", "LLM_TIMEOUT",
	"KAFKA_BROKERS", "REDIS_URL", "NARRATIVE_CACHE_TTL",
	"MINIO_ENDPOINT", "MINIO_ACCESS_KEY", "MINIO_SECRET_KEY", "MINIO_BUCKET", "MINIO_USE_SSL",
	"OTLP_ENDPOINT", "TRACE_SAMPLE_RATE", "ORG_NAME", "ORG_OID", "CORS_ORIGINS", "WORKERS",
}

// Load reads configuration from the environment, falling back to the given
// .env file (".env" when empty). A missing file is not an error.
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}

	v := viper.New()
	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("FHIR_BASE_URL", "http://localhost:8080/fhir")
	v.SetDefault("FHIR_PAGE_SIZE", 100)
	v.SetDefault("FHIR_MAX_PAGES", 50)
	v.SetDefault("FHIR_TIMEOUT", "30s")
	v.SetDefault("LLM_BASE_URL", "http://localhost:11434/v1")
	v.SetDefault("LLM_MODEL", "gpt-4o-mini")
	v.SetDefault("LLM_TEMPERATURE", 0.2)
	v.SetDefault("LLM_MAX_TOKENS", 1024)
	v.SetDefault("LLM_TIMEOUT", "120s")
	v.SetDefault("NARRATIVE_CACHE_TTL", "24h")
	v.SetDefault("MINIO_BUCKET", "clinical-documents")
	v.SetDefault("TRACE_SAMPLE_RATE", 1.0)
	v.SetDefault("ORG_NAME", "Clinical Context Service")
	v.SetDefault("ORG_OID", "2.16.840.1.113883.3.0000")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("WORKERS", 4)

	for _, k := range keys {
		v.BindEnv(k)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", envFile, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.KafkaBrokers = splitList(cfg.KafkaBrokers)
	cfg.CORSOrigins = splitList(cfg.CORSOrigins)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// splitList accepts both repeated values and a single comma-separated value.
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Validate checks values every binary depends on.
func (c *Config) Validate() error {
	if _, err := url.ParseRequestURI(c.FHIRBaseURL); err != nil {
		return fmt.Errorf("FHIR_BASE_URL is invalid: %w", err)
	}
	if c.FHIRPageSize <= 0 || c.FHIRMaxPages <= 0 {
		return fmt.Errorf("FHIR_PAGE_SIZE and FHIR_MAX_PAGES must be positive")
	}
	if c.LLMTemperature < 0 || c.LLMTemperature > 2 {
		return fmt.Errorf("LLM_TEMPERATURE must be between 0 and 2, got %v", c.LLMTemperature)
	}
	if c.LLMMaxTokens <= 0 {
		return fmt.Errorf("LLM_MAX_TOKENS must be positive")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("WORKERS must be positive")
	}
	return nil
}

// RequireDatabase reports a missing DATABASE_URL.
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	return nil
}

// RequireBrokers reports a missing KAFKA_BROKERS.
func (c *Config) RequireBrokers() error {
	if len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required")
	}
	return nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// CacheEnabled reports whether narratives are cached in Redis.
func (c *Config) CacheEnabled() bool {
	return c.RedisURL != "" && c.NarrativeCacheTTL > 0
}

// ArchiveEnabled reports whether CDA documents are archived to object storage.
func (c *Config) ArchiveEnabled() bool {
	return c.MinioEndpoint != ""
}
