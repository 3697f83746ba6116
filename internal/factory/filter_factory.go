package factory

import (
	"fmt"

	"github.com/mikey/mail-triage/internal/adapters/filter"
	"github.com/mikey/mail-triage/internal/config"
	"github.com/mikey/mail-triage/internal/core"
	"github.com/mikey/mail-triage/internal/ports"
	"go.uber.org/zap"
)

// FilterFactory creates message filters based on configuration
type FilterFactory struct {
	cfg           *config.Config
	logger        *zap.Logger
	triageService *core.TriageService
}

// NewFilterFactory creates a new filter factory
func NewFilterFactory(cfg *config.Config, logger *zap.Logger, triageService *core.TriageService) *FilterFactory {
	return &FilterFactory{
		cfg:           cfg,
		logger:        logger,
		triageService: triageService,
	}
}

// CreateMessageFilter creates a message filter based on the configuration
func (f *FilterFactory) CreateMessageFilter() (ports.MessageFilter, error) {
	filterType := f.cfg.GetString("server.filter_type")

	switch filterType {
	case "postfix":
		return filter.NewPostfixFilter(
			f.triageService,
			f.logger,
			f.cfg.GetString("server.listen_address"),
			f.cfg.GetBool("server.drop_suppressed"),
			f.cfg.GetString("server.headers.action"),
			f.cfg.GetString("server.headers.state"),
			f.cfg.GetString("server.headers.tier"),
			f.cfg.GetString("server.headers.duplicate"),
			f.cfg.GetString("server.headers.confidence"),
			f.cfg.GetString("server.postfix.address"),
			f.cfg.GetInt("server.postfix.port"),
			f.cfg.GetBool("server.postfix.enabled"),
		), nil
	case "cli":
		return filter.NewCliFilter(
			f.triageService,
			f.logger,
			f.cfg.GetBool("cli.verbose"),
		)
	default:
		return nil, fmt.Errorf("unsupported filter type: %s", filterType)
	}
}
