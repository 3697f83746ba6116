package di

import (
	"flag"
	"strings"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/mail-triage/internal/config"
	"github.com/mikey/mail-triage/internal/core"
	"github.com/mikey/mail-triage/internal/factory"
	"github.com/mikey/mail-triage/internal/logging"
	"github.com/mikey/mail-triage/internal/ports"
	"github.com/mikey/mail-triage/internal/utils"
)

// CLIFlags contains all command line flags for the CLI application
type CLIFlags struct {
	// Advisory provider flags
	Provider    string
	MaxTokens   int
	Temperature float64
	TopP        float64
	MaxBodySize int

	// Bedrock flags
	BedrockRegion  string
	BedrockModelID string

	// Gemini flags
	GeminiAPIKey    string
	GeminiModelName string

	// OpenAI flags
	OpenAIAPIKey    string
	OpenAIModelName string

	// Triage flags
	ConfidenceThreshold float64
	TrustedSenders      string

	// Input flags
	InputFile  string
	Verbose    bool
	JSONLog    bool
	ConfigFile string
}

// ParseFlags parses command line flags and returns a CLIFlags struct
func ParseFlags() *CLIFlags {
	flags := &CLIFlags{}

	// Advisory provider flags
	flag.StringVar(&flags.Provider, "provider", "none", "Advisory provider (bedrock, gemini, openai, none)")
	flag.IntVar(&flags.MaxTokens, "max-tokens", 1000, "Maximum tokens for the advisory response")
	flag.Float64Var(&flags.Temperature, "temperature", 0.1, "Temperature for advisory generation")
	flag.Float64Var(&flags.TopP, "top-p", 0.9, "Top-p for advisory generation")
	flag.IntVar(&flags.MaxBodySize, "max-body-size", 4096, "Maximum email body size to send to the advisory model")

	// Bedrock flags
	flag.StringVar(&flags.BedrockRegion, "bedrock-region", "us-east-1", "AWS region for Bedrock")
	flag.StringVar(&flags.BedrockModelID, "bedrock-model", "anthropic.claude-v2", "Bedrock model ID")

	// Gemini flags
	flag.StringVar(&flags.GeminiAPIKey, "gemini-api-key", "", "API key for Google Gemini")
	flag.StringVar(&flags.GeminiModelName, "gemini-model", "gemini-pro", "Gemini model name")

	// OpenAI flags
	flag.StringVar(&flags.OpenAIAPIKey, "openai-api-key", "", "API key for OpenAI")
	flag.StringVar(&flags.OpenAIModelName, "openai-model", "gpt-4", "OpenAI model name")

	// Triage flags
	flag.Float64Var(&flags.ConfidenceThreshold, "threshold", 0.85, "Confidence threshold for autonomous execution")
	flag.StringVar(&flags.TrustedSenders, "trusted-senders", "", "Comma-separated list of trusted sender addresses")

	// Input flags
	flag.StringVar(&flags.InputFile, "file", "", "Input email file (use stdin if not specified)")
	flag.BoolVar(&flags.Verbose, "verbose", false, "Enable verbose logging")
	flag.BoolVar(&flags.JSONLog, "json-log", false, "Output logs in JSON format")
	flag.StringVar(&flags.ConfigFile, "config", "", "Path to config file (overrides command line flags)")

	flag.Parse()
	return flags
}

// BuildCLIContainer creates and configures a dependency injection container for the CLI application
func BuildCLIContainer(flags *CLIFlags) (*dig.Container, error) {
	container := dig.New()

	// Register flags
	if err := container.Provide(func() *CLIFlags { return flags }); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(func(flags *CLIFlags) (*zap.Logger, error) {
		return logging.InitConsoleLogger(flags.Verbose, flags.JSONLog)
	}); err != nil {
		return nil, err
	}

	// Register configuration
	if err := container.Provide(func(flags *CLIFlags, logger *zap.Logger) (*config.Config, error) {
		if flags.ConfigFile != "" {
			cfg, err := config.New()
			if err != nil {
				return nil, err
			}
			logger.Info("Loaded configuration from file", zap.String("file", cfg.GetViper().ConfigFileUsed()))
			return cfg, nil
		}

		// Create config from command line flags
		return createConfigFromFlags(flags), nil
	}); err != nil {
		return nil, err
	}

	// Register text processor
	if err := container.Provide(factory.NewTextProcessorFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.TextProcessorFactory) *utils.TextProcessor {
		return f.CreateTextProcessor()
	}); err != nil {
		return nil, err
	}

	// Register advisory client
	if err := container.Provide(factory.NewAdvisoryFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.AdvisoryFactory) (core.AdvisoryClient, error) {
		return f.CreateAdvisoryClient()
	}); err != nil {
		return nil, err
	}

	// Register lexicons
	if err := container.Provide(func(cfg *config.Config) *core.Lexicons {
		return buildLexicons(cfg)
	}); err != nil {
		return nil, err
	}

	// Register the pipeline with an in-memory store: a one-shot run has no
	// history to deduplicate against, but the pipeline stages still run
	if err := container.Provide(func(
		cfg *config.Config,
		lexicons *core.Lexicons,
		advisory core.AdvisoryClient,
		logger *zap.Logger,
	) (*core.TriageService, error) {
		storeFactory := factory.NewStoreFactory(cfg, logger)
		fpStore, err := storeFactory.CreateFingerprintStore()
		if err != nil {
			return nil, err
		}
		detector := core.NewDetector(fpStore, dedupConfig(cfg), logger)
		scorer := core.NewScorer(lexicons)
		engine := core.NewEngine(lexicons, cfg.GetTriage().ConfidenceThreshold, logger)
		return core.NewTriageService(
			fpStore,
			detector,
			scorer,
			engine,
			advisory,
			cfg.GetAdvisory().Timeout,
			logger,
		), nil
	}); err != nil {
		return nil, err
	}

	// Register message filter
	if err := container.Provide(factory.NewFilterFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.FilterFactory) (ports.MessageFilter, error) {
		return f.CreateMessageFilter()
	}); err != nil {
		return nil, err
	}

	return container, nil
}

// createConfigFromFlags creates a configuration from command line flags
func createConfigFromFlags(flags *CLIFlags) *config.Config {
	v := config.NewEmptyViper()

	// Set some cli specific settings
	v.Set("server.filter_type", "cli")
	v.Set("cli.verbose", flags.Verbose)
	v.Set("store.type", "memory")

	// Set advisory provider
	v.Set("advisory.provider", flags.Provider)

	// Set provider-specific configuration
	switch flags.Provider {
	case "bedrock":
		v.Set("bedrock.region", flags.BedrockRegion)
		v.Set("bedrock.model_id", flags.BedrockModelID)
		v.Set("bedrock.max_tokens", flags.MaxTokens)
		v.Set("bedrock.temperature", flags.Temperature)
		v.Set("bedrock.top_p", flags.TopP)
		v.Set("bedrock.max_body_size", flags.MaxBodySize)
	case "gemini":
		v.Set("gemini.api_key", flags.GeminiAPIKey)
		v.Set("gemini.model_name", flags.GeminiModelName)
		v.Set("gemini.max_tokens", flags.MaxTokens)
		v.Set("gemini.temperature", flags.Temperature)
		v.Set("gemini.top_p", flags.TopP)
		v.Set("gemini.max_body_size", flags.MaxBodySize)
	case "openai":
		v.Set("openai.api_key", flags.OpenAIAPIKey)
		v.Set("openai.model_name", flags.OpenAIModelName)
		v.Set("openai.max_tokens", flags.MaxTokens)
		v.Set("openai.temperature", flags.Temperature)
		v.Set("openai.top_p", flags.TopP)
		v.Set("openai.max_body_size", flags.MaxBodySize)
	}

	// Set triage settings
	v.Set("triage.confidence_threshold", flags.ConfidenceThreshold)
	if flags.TrustedSenders != "" {
		v.Set("triage.trusted_senders", strings.Split(flags.TrustedSenders, ","))
	}

	return config.NewFromViper(v)
}
