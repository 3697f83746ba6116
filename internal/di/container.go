package di

import (
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/mail-triage/internal/config"
	"github.com/mikey/mail-triage/internal/core"
	"github.com/mikey/mail-triage/internal/factory"
	"github.com/mikey/mail-triage/internal/logging"
	"github.com/mikey/mail-triage/internal/ports"
	"github.com/mikey/mail-triage/internal/utils"
)

// BuildContainer creates and configures a dependency injection container
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(config.New); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	// Register factories
	if err := container.Provide(factory.NewStoreFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewAdvisoryFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewFilterFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewTextProcessorFactory); err != nil {
		return nil, err
	}

	// Register text processor
	if err := container.Provide(func(f *factory.TextProcessorFactory) *utils.TextProcessor {
		return f.CreateTextProcessor()
	}); err != nil {
		return nil, err
	}

	// Register fingerprint store
	if err := container.Provide(func(f *factory.StoreFactory) (core.FingerprintStore, error) {
		return f.CreateFingerprintStore()
	}); err != nil {
		return nil, err
	}

	// Register advisory client
	if err := container.Provide(func(f *factory.AdvisoryFactory) (core.AdvisoryClient, error) {
		return f.CreateAdvisoryClient()
	}); err != nil {
		return nil, err
	}

	// Register lexicons
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) *core.Lexicons {
		lexicons := buildLexicons(cfg)
		if len(lexicons.TrustedSenders) > 0 {
			logger.Info("Loaded trusted senders", zap.Strings("senders", lexicons.TrustedSenders))
		}
		return lexicons
	}); err != nil {
		return nil, err
	}

	// Register duplicate detector
	if err := container.Provide(func(cfg *config.Config, store core.FingerprintStore, logger *zap.Logger) *core.Detector {
		return core.NewDetector(store, dedupConfig(cfg), logger)
	}); err != nil {
		return nil, err
	}

	// Register complexity scorer
	if err := container.Provide(core.NewScorer); err != nil {
		return nil, err
	}

	// Register decision engine
	if err := container.Provide(func(cfg *config.Config, lexicons *core.Lexicons, logger *zap.Logger) *core.Engine {
		return core.NewEngine(lexicons, cfg.GetTriage().ConfidenceThreshold, logger)
	}); err != nil {
		return nil, err
	}

	// Register triage service
	if err := container.Provide(func(
		cfg *config.Config,
		store core.FingerprintStore,
		detector *core.Detector,
		scorer *core.Scorer,
		engine *core.Engine,
		advisory core.AdvisoryClient,
		logger *zap.Logger,
	) *core.TriageService {
		return core.NewTriageService(
			store,
			detector,
			scorer,
			engine,
			advisory,
			cfg.GetAdvisory().Timeout,
			logger,
		)
	}); err != nil {
		return nil, err
	}

	// Register message filter
	if err := container.Provide(func(f *factory.FilterFactory) (ports.MessageFilter, error) {
		return f.CreateMessageFilter()
	}); err != nil {
		return nil, err
	}

	return container, nil
}

// buildLexicons starts from the built-in term lists and replaces every list
// the configuration overrides. An unset or empty key keeps the built-in list.
func buildLexicons(cfg *config.Config) *core.Lexicons {
	lexicons := core.DefaultLexicons()
	overrides := cfg.GetLexicons()

	apply := func(dst *[]string, src []string) {
		if len(src) > 0 {
			*dst = src
		}
	}
	apply(&lexicons.ComplexityKeywords, overrides.ComplexityKeywords)
	apply(&lexicons.ReasoningIndicators, overrides.ReasoningIndicators)
	apply(&lexicons.HighStakesTerms, overrides.HighStakesTerms)
	apply(&lexicons.UrgentPhrases, overrides.UrgentPhrases)
	apply(&lexicons.SoonPhrases, overrides.SoonPhrases)
	apply(&lexicons.RequestPhrases, overrides.RequestPhrases)
	apply(&lexicons.NoResponsePhrases, overrides.NoResponsePhrases)
	apply(&lexicons.MeetingPhrases, overrides.MeetingPhrases)
	apply(&lexicons.InfoRequestPhrases, overrides.InfoRequestPhrases)
	apply(&lexicons.ConfirmationPhrases, overrides.ConfirmationPhrases)
	apply(&lexicons.AcknowledgmentPhrases, overrides.AcknowledgmentPhrases)
	apply(&lexicons.FinancialTerms, overrides.FinancialTerms)
	apply(&lexicons.LegalTerms, overrides.LegalTerms)
	apply(&lexicons.SensitiveTerms, overrides.SensitiveTerms)
	apply(&lexicons.TrustedSenders, cfg.GetTriage().TrustedSenders)

	return lexicons
}

// dedupConfig maps the configuration keys onto the detector's thresholds
func dedupConfig(cfg *config.Config) core.DedupConfig {
	dc := cfg.GetDedup()
	return core.DedupConfig{
		SimilarityReport:      dc.SimilarityReport,
		SimilarityDuplicate:   dc.SimilarityDuplicate,
		ForwardOverlap:        dc.ForwardOverlap,
		CCGroupSimilarity:     dc.CCGroupSimilarity,
		QuotedRatio:           dc.QuotedRatio,
		SuppressQuotedReplies: dc.SuppressQuotedReplies,
	}
}
