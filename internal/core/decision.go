package core

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultConfidenceThreshold is the authorization gate default
const DefaultConfidenceThreshold = 0.85

// degradedConfidenceMargin keeps degraded-analysis decisions below the
// authorization threshold so a human always reviews them
const degradedConfidenceMargin = 0.05

// Intent is the fixed set of pattern classes the analyzer recognizes
type Intent string

const (
	IntentMeetingRequest Intent = "meeting_request"
	IntentInfoRequest    Intent = "information_request"
	IntentConfirmation   Intent = "confirmation"
	IntentAcknowledgment Intent = "acknowledgment"
	IntentUrgentMatter   Intent = "urgent_matter"
	IntentGeneral        Intent = "general"
)

// analysis is the engine's rule-based read of a message
type analysis struct {
	intent           Intent
	requiresResponse bool
	businessImpact   string // high or medium
	timeSensitivity  string // urgent, soon, normal
	sentiment        string
}

// decisionRule is one entry in the ordered predicate list. Rules are
// evaluated top to bottom; the first match fixes action, confidence
// and reasoning.
type decisionRule struct {
	name       string
	matches    func(a *analysis) bool
	action     ActionType
	confidence float64
	reasoning  string
}

// HistoryEntry is one decided message in the engine's append-only record
type HistoryEntry struct {
	ProcessingID string
	Action       ActionType
	Confidence   float64
	State        DecisionState
	DecidedAt    time.Time
}

// Engine runs the confidence-gated decision process for novel messages
type Engine struct {
	lexicons       *Lexicons
	threshold      float64
	trustedSenders []string
	logger         *zap.Logger
	rules          []decisionRule

	mu      sync.Mutex
	history []HistoryEntry
}

// NewEngine creates a new decision engine. A threshold of zero falls back
// to the default.
func NewEngine(lexicons *Lexicons, threshold float64, logger *zap.Logger) *Engine {
	if lexicons == nil {
		lexicons = DefaultLexicons()
	}
	if threshold <= 0 {
		threshold = DefaultConfidenceThreshold
	}
	e := &Engine{
		lexicons:       lexicons,
		threshold:      threshold,
		trustedSenders: normalizeAddresses(lexicons.TrustedSenders),
		logger:         logger,
	}
	e.rules = []decisionRule{
		{
			name:       "high_business_impact",
			matches:    func(a *analysis) bool { return a.businessImpact == "high" },
			action:     ActionEscalate,
			confidence: 0.95,
			reasoning:  "high business impact requires human attention",
		},
		{
			name:       "meeting_request",
			matches:    func(a *analysis) bool { return a.intent == IntentMeetingRequest },
			action:     ActionSchedule,
			confidence: 0.90,
			reasoning:  "meeting request can be scheduled",
		},
		{
			name:       "information_request",
			matches:    func(a *analysis) bool { return a.intent == IntentInfoRequest },
			action:     ActionInform,
			confidence: 0.85,
			reasoning:  "information request can be answered",
		},
		{
			name:       "confirmation",
			matches:    func(a *analysis) bool { return a.intent == IntentConfirmation },
			action:     ActionConfirm,
			confidence: 0.92,
			reasoning:  "confirmation request can be acknowledged",
		},
		{
			name:       "sensitive_response",
			matches:    func(a *analysis) bool { return a.requiresResponse && a.sentiment == "negative" },
			action:     ActionDraftResponse,
			confidence: 0.75, // deliberately lowered for emotionally sensitive cases
			reasoning:  "response needed for a negatively phrased message; draft for review",
		},
		{
			name:       "no_response_needed",
			matches:    func(a *analysis) bool { return !a.requiresResponse },
			action:     ActionFile,
			confidence: 0.88,
			reasoning:  "no response required; file the message",
		},
		{
			name:       "default_draft",
			matches:    func(a *analysis) bool { return true },
			action:     ActionDraftResponse,
			confidence: 0.80,
			reasoning:  "response needed; draft for review",
		},
	}
	return e
}

// Threshold returns the configured authorization threshold
func (e *Engine) Threshold() float64 {
	return e.threshold
}

// Decide runs the linear state machine for one message:
// Received -> Analyzed -> SafetyChecked -> {Authorized | Escalated | PendingApproval}.
// actx may be nil; the neutral default is used.
func (e *Engine) Decide(msg *Email, tier ResourceTier, actx *AnalysisContext) *Decision {
	if actx == nil {
		actx = &AnalysisContext{}
	}

	decision := &Decision{
		ProcessingID: uuid.NewString(),
		State:        StateReceived,
		Tier:         tier,
		Details:      map[string]string{"tier": tier.Name},
		DecidedAt:    time.Now(),
	}

	a := e.analyze(msg, actx)
	decision.State = StateAnalyzed
	decision.Details["intent"] = string(a.intent)
	decision.Details["business_impact"] = a.businessImpact
	decision.Details["time_sensitivity"] = a.timeSensitivity

	for _, rule := range e.rules {
		if rule.matches(a) {
			decision.Action = rule.action
			decision.Confidence = rule.confidence
			decision.Reasoning = append(decision.Reasoning, rule.reasoning)
			decision.Details["rule"] = rule.name
			break
		}
	}

	if actx.Degraded {
		// The advisory collaborator was unavailable; complete with the
		// rule-based read only and force human review. A high-impact
		// escalation keeps its action so the signal is not lost.
		if decision.Action != ActionEscalate {
			decision.Action = ActionDraftResponse
			if decision.Confidence >= e.threshold {
				decision.Confidence = e.threshold - degradedConfidenceMargin
			}
		}
		decision.Reasoning = append(decision.Reasoning,
			"advisory analysis unavailable; rule-based analysis only")
	}
	if actx.SuggestedDraft != "" {
		decision.Details["suggested_draft"] = actx.SuggestedDraft
	}

	decision.Safety = e.runSafetyChecks(msg, actx)
	decision.State = StateSafetyChecked

	switch {
	case !decision.Safety.Passed:
		decision.State = StateEscalated
		decision.RequiresApproval = true
		for _, check := range decision.Safety.Checks {
			if !check.Passed {
				decision.Reasoning = append(decision.Reasoning,
					fmt.Sprintf("safety check failed: %s (%s)", check.Name, check.Reason))
			}
		}
	case decision.Confidence >= e.threshold && decision.Action != ActionEscalate:
		decision.State = StateAuthorized
	case decision.Action == ActionEscalate:
		decision.State = StateEscalated
		decision.RequiresApproval = true
	default:
		decision.State = StatePendingApproval
		decision.RequiresApproval = true
	}

	e.record(decision)
	e.logger.Debug("Decision made",
		zap.String("processing_id", decision.ProcessingID),
		zap.String("action", string(decision.Action)),
		zap.String("state", string(decision.State)),
		zap.Float64("confidence", decision.Confidence))
	return decision
}

// Escalate builds the conservative fallback decision used when the pipeline
// hits an unrecoverable per-message condition.
func (e *Engine) Escalate(tier ResourceTier, reason string) *Decision {
	decision := &Decision{
		ProcessingID:     uuid.NewString(),
		Action:           ActionEscalate,
		Reasoning:        []string{reason},
		Confidence:       0.0,
		Details:          map[string]string{"tier": tier.Name},
		Safety:           SafetyCheckResult{Passed: true},
		RequiresApproval: true,
		State:            StateEscalated,
		Tier:             tier,
		DecidedAt:        time.Now(),
	}
	e.record(decision)
	return decision
}

// History returns a copy of the append-only decision record
func (e *Engine) History() []HistoryEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]HistoryEntry, len(e.history))
	copy(out, e.history)
	return out
}

func (e *Engine) record(d *Decision) {
	e.mu.Lock()
	e.history = append(e.history, HistoryEntry{
		ProcessingID: d.ProcessingID,
		Action:       d.Action,
		Confidence:   d.Confidence,
		State:        d.State,
		DecidedAt:    d.DecidedAt,
	})
	e.mu.Unlock()
}

func (e *Engine) analyze(msg *Email, actx *AnalysisContext) *analysis {
	text := msg.Subject + " " + msg.Body

	a := &analysis{
		intent:          e.classifyIntent(text),
		businessImpact:  "medium",
		timeSensitivity: "normal",
		sentiment:       actx.Sentiment,
	}
	if a.sentiment == "" {
		a.sentiment = "neutral"
	}

	if ContainsAny(text, e.lexicons.HighStakesTerms) {
		a.businessImpact = "high"
	}

	switch {
	case actx.Urgency != "":
		a.timeSensitivity = actx.Urgency
	case ContainsAny(text, e.lexicons.UrgentPhrases):
		a.timeSensitivity = "urgent"
	case ContainsAny(text, e.lexicons.SoonPhrases):
		a.timeSensitivity = "soon"
	}

	a.requiresResponse = strings.Contains(msg.Body, "?") ||
		ContainsAny(text, e.lexicons.RequestPhrases)
	if ContainsAny(text, e.lexicons.NoResponsePhrases) {
		a.requiresResponse = false
	}

	return a
}

// classifyIntent evaluates the fixed pattern classes in order; the first
// match wins
func (e *Engine) classifyIntent(text string) Intent {
	switch {
	case ContainsAny(text, e.lexicons.MeetingPhrases):
		return IntentMeetingRequest
	case ContainsAny(text, e.lexicons.InfoRequestPhrases):
		return IntentInfoRequest
	case ContainsAny(text, e.lexicons.ConfirmationPhrases):
		return IntentConfirmation
	case ContainsAny(text, e.lexicons.AcknowledgmentPhrases):
		return IntentAcknowledgment
	case ContainsAny(text, e.lexicons.UrgentPhrases):
		return IntentUrgentMatter
	default:
		return IntentGeneral
	}
}

func (e *Engine) runSafetyChecks(msg *Email, actx *AnalysisContext) SafetyCheckResult {
	text := msg.Subject + " " + msg.Body
	trusted := e.isTrustedSender(msg.From)

	checks := []SafetyCheck{
		lexiconCheck("financial_impact", text, e.lexicons.FinancialTerms),
		lexiconCheck("legal_risk", text, e.lexicons.LegalTerms),
		contextCheck("reputation_risk", !actx.ReputationRisk, "caller flagged reputation risk"),
		lexiconCheck("sensitive_content", text, e.lexicons.SensitiveTerms),
		contextCheck("recipient_validity", trusted || !actx.InvalidRecipient, "caller flagged invalid recipient"),
	}

	result := SafetyCheckResult{Passed: true, Checks: checks}
	for _, check := range checks {
		if !check.Passed {
			result.Passed = false
		}
	}
	return result
}

func (e *Engine) isTrustedSender(from string) bool {
	folded := strings.ToLower(strings.TrimSpace(from))
	for _, trusted := range e.trustedSenders {
		if trusted == folded {
			return true
		}
	}
	return false
}

func lexiconCheck(name, text string, terms []string) SafetyCheck {
	if ContainsAny(text, terms) {
		return SafetyCheck{Name: name, Passed: false, Reason: "content matches " + name + " terms"}
	}
	return SafetyCheck{Name: name, Passed: true}
}

func contextCheck(name string, passed bool, failReason string) SafetyCheck {
	if passed {
		return SafetyCheck{Name: name, Passed: true}
	}
	return SafetyCheck{Name: name, Passed: false, Reason: failReason}
}

func normalizeAddresses(addrs []string) []string {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		normalized := strings.ToLower(strings.TrimSpace(a))
		if normalized != "" {
			out = append(out, normalized)
		}
	}
	return out
}
