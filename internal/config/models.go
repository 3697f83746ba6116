package config

import "time"

// AdvisoryConfig selects the external advisory provider
type AdvisoryConfig struct {
	Provider string
	Timeout  time.Duration
}

// TriageConfig holds the decision engine settings
type TriageConfig struct {
	ConfidenceThreshold float64
	TrustedSenders      []string
}

// LexiconsConfig holds the term-list overrides for the complexity router,
// the decision engine and the safety checks. An empty list means the
// built-in terms stay in effect.
type LexiconsConfig struct {
	ComplexityKeywords    []string
	ReasoningIndicators   []string
	HighStakesTerms       []string
	UrgentPhrases         []string
	SoonPhrases           []string
	RequestPhrases        []string
	NoResponsePhrases     []string
	MeetingPhrases        []string
	InfoRequestPhrases    []string
	ConfirmationPhrases   []string
	AcknowledgmentPhrases []string
	FinancialTerms        []string
	LegalTerms            []string
	SensitiveTerms        []string
}

// DedupConfig holds the duplicate detection thresholds
type DedupConfig struct {
	SimilarityReport      float64
	SimilarityDuplicate   float64
	ForwardOverlap        float64
	CCGroupSimilarity     float64
	QuotedRatio           float64
	SuppressQuotedReplies bool
}

// StoreConfig holds the fingerprint store settings
type StoreConfig struct {
	Type             string
	Retention        time.Duration
	CleanupFrequency time.Duration
	SQLitePath       string
	MySQLDSN         string
	RedisAddress     string
	RedisPassword    string
	RedisDB          int
}

// BedrockConfig represents the configuration for Amazon Bedrock
type BedrockConfig struct {
	Region      string
	ModelID     string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// GeminiConfig represents the configuration for Google Gemini
type GeminiConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// OpenAIConfig represents the configuration for OpenAI
type OpenAIConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// GetAdvisory returns the advisory provider configuration
func (c *Config) GetAdvisory() AdvisoryConfig {
	timeout, err := c.GetDuration("advisory.timeout")
	if err != nil {
		timeout = 10 * time.Second
	}
	return AdvisoryConfig{
		Provider: c.GetString("advisory.provider"),
		Timeout:  timeout,
	}
}

// GetTriage returns the decision engine configuration
func (c *Config) GetTriage() TriageConfig {
	return TriageConfig{
		ConfidenceThreshold: c.GetFloat64("triage.confidence_threshold"),
		TrustedSenders:      c.GetStringSlice("triage.trusted_senders"),
	}
}

// GetLexicons returns the configured term-list overrides
func (c *Config) GetLexicons() LexiconsConfig {
	return LexiconsConfig{
		ComplexityKeywords:    c.GetStringSlice("lexicons.complexity_keywords"),
		ReasoningIndicators:   c.GetStringSlice("lexicons.reasoning_indicators"),
		HighStakesTerms:       c.GetStringSlice("lexicons.high_stakes_terms"),
		UrgentPhrases:         c.GetStringSlice("lexicons.urgent_phrases"),
		SoonPhrases:           c.GetStringSlice("lexicons.soon_phrases"),
		RequestPhrases:        c.GetStringSlice("lexicons.request_phrases"),
		NoResponsePhrases:     c.GetStringSlice("lexicons.no_response_phrases"),
		MeetingPhrases:        c.GetStringSlice("lexicons.meeting_phrases"),
		InfoRequestPhrases:    c.GetStringSlice("lexicons.info_request_phrases"),
		ConfirmationPhrases:   c.GetStringSlice("lexicons.confirmation_phrases"),
		AcknowledgmentPhrases: c.GetStringSlice("lexicons.acknowledgment_phrases"),
		FinancialTerms:        c.GetStringSlice("lexicons.financial_terms"),
		LegalTerms:            c.GetStringSlice("lexicons.legal_terms"),
		SensitiveTerms:        c.GetStringSlice("lexicons.sensitive_terms"),
	}
}

// GetDedup returns the duplicate detection configuration
func (c *Config) GetDedup() DedupConfig {
	return DedupConfig{
		SimilarityReport:      c.GetFloat64("dedup.similarity_report"),
		SimilarityDuplicate:   c.GetFloat64("dedup.similarity_duplicate"),
		ForwardOverlap:        c.GetFloat64("dedup.forward_overlap"),
		CCGroupSimilarity:     c.GetFloat64("dedup.cc_group_similarity"),
		QuotedRatio:           c.GetFloat64("dedup.quoted_ratio"),
		SuppressQuotedReplies: c.GetBool("dedup.suppress_quoted_replies"),
	}
}

// GetStore returns the fingerprint store configuration
func (c *Config) GetStore() StoreConfig {
	retention, err := c.GetDuration("store.retention")
	if err != nil {
		retention = 30 * 24 * time.Hour
	}
	cleanup, err := c.GetDuration("store.cleanup_frequency")
	if err != nil {
		cleanup = time.Hour
	}
	return StoreConfig{
		Type:             c.GetString("store.type"),
		Retention:        retention,
		CleanupFrequency: cleanup,
		SQLitePath:       c.GetString("store.sqlite_path"),
		MySQLDSN:         c.GetString("store.mysql_dsn"),
		RedisAddress:     c.GetString("store.redis.address"),
		RedisPassword:    c.GetString("store.redis.password"),
		RedisDB:          c.GetInt("store.redis.db"),
	}
}

// GetBedrock returns the Bedrock configuration
func (c *Config) GetBedrock() BedrockConfig {
	return BedrockConfig{
		Region:      c.GetString("bedrock.region"),
		ModelID:     c.GetString("bedrock.model_id"),
		MaxTokens:   c.GetInt("bedrock.max_tokens"),
		Temperature: float32(c.GetFloat64("bedrock.temperature")),
		TopP:        float32(c.GetFloat64("bedrock.top_p")),
		MaxBodySize: c.GetInt("bedrock.max_body_size"),
	}
}

// GetGemini returns the Gemini configuration
func (c *Config) GetGemini() GeminiConfig {
	return GeminiConfig{
		APIKey:      c.GetString("gemini.api_key"),
		ModelName:   c.GetString("gemini.model_name"),
		MaxTokens:   c.GetInt("gemini.max_tokens"),
		Temperature: float32(c.GetFloat64("gemini.temperature")),
		TopP:        float32(c.GetFloat64("gemini.top_p")),
		MaxBodySize: c.GetInt("gemini.max_body_size"),
	}
}

// GetOpenAI returns the OpenAI configuration
func (c *Config) GetOpenAI() OpenAIConfig {
	return OpenAIConfig{
		APIKey:      c.GetString("openai.api_key"),
		ModelName:   c.GetString("openai.model_name"),
		MaxTokens:   c.GetInt("openai.max_tokens"),
		Temperature: float32(c.GetFloat64("openai.temperature")),
		TopP:        float32(c.GetFloat64("openai.top_p")),
		MaxBodySize: c.GetInt("openai.max_body_size"),
	}
}
