package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	v *viper.Viper
}

// New creates a new configuration instance
func New() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/mail-triage/")
	v.AddConfigPath("$HOME/.mail-triage")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	// Set defaults
	setDefaults(v)

	// Environment variables
	v.AutomaticEnv()
	v.SetEnvPrefix("MAIL_TRIAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, using defaults
	}

	return &Config{v: v}, nil
}

// NewFromViper creates a new configuration instance from an existing Viper instance
func NewFromViper(v *viper.Viper) *Config {
	return &Config{v: v}
}

// NewEmptyViper creates a new Viper instance with defaults
func NewEmptyViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

// setDefaults sets the default configuration values
func setDefaults(v *viper.Viper) {
	// Advisory provider defaults
	v.SetDefault("advisory.provider", "none")
	v.SetDefault("advisory.timeout", "10s")

	// Triage defaults
	v.SetDefault("triage.confidence_threshold", 0.85)
	v.SetDefault("triage.trusted_senders", []string{})

	// Lexicon overrides; an empty list keeps the built-in terms
	v.SetDefault("lexicons.complexity_keywords", []string{})
	v.SetDefault("lexicons.reasoning_indicators", []string{})
	v.SetDefault("lexicons.high_stakes_terms", []string{})
	v.SetDefault("lexicons.urgent_phrases", []string{})
	v.SetDefault("lexicons.soon_phrases", []string{})
	v.SetDefault("lexicons.request_phrases", []string{})
	v.SetDefault("lexicons.no_response_phrases", []string{})
	v.SetDefault("lexicons.meeting_phrases", []string{})
	v.SetDefault("lexicons.info_request_phrases", []string{})
	v.SetDefault("lexicons.confirmation_phrases", []string{})
	v.SetDefault("lexicons.acknowledgment_phrases", []string{})
	v.SetDefault("lexicons.financial_terms", []string{})
	v.SetDefault("lexicons.legal_terms", []string{})
	v.SetDefault("lexicons.sensitive_terms", []string{})

	// Dedup defaults
	v.SetDefault("dedup.similarity_report", 0.8)
	v.SetDefault("dedup.similarity_duplicate", 0.95)
	v.SetDefault("dedup.forward_overlap", 0.7)
	v.SetDefault("dedup.cc_group_similarity", 0.9)
	v.SetDefault("dedup.quoted_ratio", 0.8)
	v.SetDefault("dedup.suppress_quoted_replies", false)

	// Server defaults
	v.SetDefault("server.filter_type", "postfix")
	v.SetDefault("server.listen_address", "0.0.0.0:10025")
	v.SetDefault("server.drop_suppressed", false)
	v.SetDefault("server.headers.action", "X-Triage-Action")
	v.SetDefault("server.headers.state", "X-Triage-State")
	v.SetDefault("server.headers.tier", "X-Triage-Tier")
	v.SetDefault("server.headers.duplicate", "X-Triage-Duplicate")
	v.SetDefault("server.headers.confidence", "X-Triage-Confidence")
	v.SetDefault("server.postfix.address", "127.0.0.1")
	v.SetDefault("server.postfix.port", 10026)
	v.SetDefault("server.postfix.enabled", true)

	// Bedrock defaults
	v.SetDefault("bedrock.region", "us-east-1")
	v.SetDefault("bedrock.model_id", "anthropic.claude-v2")
	v.SetDefault("bedrock.max_tokens", 1000)
	v.SetDefault("bedrock.temperature", 0.1)
	v.SetDefault("bedrock.top_p", 0.9)
	v.SetDefault("bedrock.max_body_size", 4096)

	// Gemini defaults
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model_name", "gemini-pro")
	v.SetDefault("gemini.max_tokens", 1000)
	v.SetDefault("gemini.temperature", 0.1)
	v.SetDefault("gemini.top_p", 0.9)
	v.SetDefault("gemini.max_body_size", 4096)

	// OpenAI defaults
	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.model_name", "gpt-4")
	v.SetDefault("openai.max_tokens", 1000)
	v.SetDefault("openai.temperature", 0.1)
	v.SetDefault("openai.top_p", 0.9)
	v.SetDefault("openai.max_body_size", 4096)

	// Store defaults
	v.SetDefault("store.type", "memory")
	v.SetDefault("store.retention", "720h")
	v.SetDefault("store.cleanup_frequency", "1h")
	v.SetDefault("store.sqlite_path", "/data/triage_fingerprints.db")
	v.SetDefault("store.mysql_dsn", "user:password@tcp(localhost:3306)/mail_triage")
	v.SetDefault("store.redis.address", "localhost:6379")
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// GetString gets a string value from the configuration
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt gets an integer value from the configuration
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// GetFloat64 gets a float64 value from the configuration
func (c *Config) GetFloat64(key string) float64 {
	return c.v.GetFloat64(key)
}

// GetBool gets a boolean value from the configuration
func (c *Config) GetBool(key string) bool {
	return c.v.GetBool(key)
}

// GetStringSlice gets a string slice value from the configuration
func (c *Config) GetStringSlice(key string) []string {
	return c.v.GetStringSlice(key)
}

// GetDuration gets a duration value from the configuration
func (c *Config) GetDuration(key string) (time.Duration, error) {
	return time.ParseDuration(c.GetString(key))
}

// GetViper returns the underlying Viper instance
func (c *Config) GetViper() *viper.Viper {
	return c.v
}
