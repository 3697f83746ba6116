package di

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/mikey/mail-triage/internal/config"
	"github.com/mikey/mail-triage/internal/core"
)

func TestBuildLexiconsDefaults(t *testing.T) {
	cfg := config.NewFromViper(config.NewEmptyViper())

	lexicons := buildLexicons(cfg)

	defaults := core.DefaultLexicons()
	assert.Equal(t, defaults.ComplexityKeywords, lexicons.ComplexityKeywords)
	assert.Equal(t, defaults.UrgentPhrases, lexicons.UrgentPhrases)
	assert.Equal(t, defaults.FinancialTerms, lexicons.FinancialTerms)
	assert.Empty(t, lexicons.TrustedSenders)
}

func TestBuildLexiconsOverrides(t *testing.T) {
	v := config.NewEmptyViper()
	v.Set("lexicons.complexity_keywords", []string{"tender", "rfp"})
	v.Set("lexicons.urgent_phrases", []string{"drop everything"})
	v.Set("lexicons.financial_terms", []string{"iban"})
	v.Set("triage.trusted_senders", []string{"ceo@example.com"})
	cfg := config.NewFromViper(v)

	lexicons := buildLexicons(cfg)

	assert.Equal(t, []string{"tender", "rfp"}, lexicons.ComplexityKeywords)
	assert.Equal(t, []string{"drop everything"}, lexicons.UrgentPhrases)
	assert.Equal(t, []string{"iban"}, lexicons.FinancialTerms)
	assert.Equal(t, []string{"ceo@example.com"}, lexicons.TrustedSenders)

	// Lists without an override keep the built-in terms.
	defaults := core.DefaultLexicons()
	assert.Equal(t, defaults.LegalTerms, lexicons.LegalTerms)
	assert.Equal(t, defaults.MeetingPhrases, lexicons.MeetingPhrases)
}

func TestBuildLexiconsOverridesReachTheEngine(t *testing.T) {
	v := config.NewEmptyViper()
	v.Set("lexicons.high_stakes_terms", []string{"franchise dispute"})
	cfg := config.NewFromViper(v)

	engine := core.NewEngine(buildLexicons(cfg), cfg.GetTriage().ConfidenceThreshold, zap.NewNop())
	email := &core.Email{
		From:    "alice@example.com",
		To:      []string{"me@example.com"},
		Subject: "Franchise dispute update",
		Body:    "The franchise dispute is moving to arbitration next week.",
	}

	// The built-in high-stakes list would not match this message.
	decision := engine.Decide(email, core.TierStandard, nil)

	assert.Equal(t, core.ActionEscalate, decision.Action)
	assert.Equal(t, "high", decision.Details["business_impact"])
}
