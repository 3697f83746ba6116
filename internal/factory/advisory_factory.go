package factory

import (
	"fmt"

	"github.com/mikey/mail-triage/internal/adapters/bedrock"
	"github.com/mikey/mail-triage/internal/adapters/gemini"
	"github.com/mikey/mail-triage/internal/adapters/openai"
	"github.com/mikey/mail-triage/internal/config"
	"github.com/mikey/mail-triage/internal/core"
	"github.com/mikey/mail-triage/internal/utils"
	"go.uber.org/zap"
)

// AdvisoryFactory creates advisory clients
type AdvisoryFactory struct {
	cfg           *config.Config
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewAdvisoryFactory creates a new advisory factory
func NewAdvisoryFactory(cfg *config.Config, logger *zap.Logger, textProcessor *utils.TextProcessor) *AdvisoryFactory {
	return &AdvisoryFactory{
		cfg:           cfg,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// CreateAdvisoryClient creates an advisory client based on the configuration.
// A "none" provider returns nil: the decision engine then runs without
// external analysis.
func (f *AdvisoryFactory) CreateAdvisoryClient() (core.AdvisoryClient, error) {
	advisoryCfg := f.cfg.GetAdvisory()

	switch advisoryCfg.Provider {
	case "bedrock":
		factory := bedrock.NewFactory(f.cfg, f.logger, f.textProcessor)
		return factory.CreateAdvisoryClient()
	case "gemini":
		factory := gemini.NewFactory(f.cfg, f.logger, f.textProcessor)
		return factory.CreateAdvisoryClient()
	case "openai":
		factory := openai.NewFactory(f.cfg, f.logger, f.textProcessor)
		return factory.CreateAdvisoryClient()
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported advisory provider: %s", advisoryCfg.Provider)
	}
}
