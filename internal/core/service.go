package core

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// TriageService is the core pipeline: deduplication, complexity routing and
// the decision engine, in that order. All external calls (advisory service,
// mail transport, notifications) happen outside it; the only shared mutable
// state is the fingerprint store and the engine's decision history.
type TriageService struct {
	store           FingerprintStore
	detector        *Detector
	scorer          *Scorer
	engine          *Engine
	advisory        AdvisoryClient // nil when no collaborator is configured
	logger          *zap.Logger
	advisoryTimeout time.Duration
}

// NewTriageService creates a new triage service
func NewTriageService(
	store FingerprintStore,
	detector *Detector,
	scorer *Scorer,
	engine *Engine,
	advisory AdvisoryClient,
	advisoryTimeout time.Duration,
	logger *zap.Logger,
) *TriageService {
	if advisoryTimeout <= 0 {
		advisoryTimeout = 10 * time.Second
	}
	return &TriageService{
		store:           store,
		detector:        detector,
		scorer:          scorer,
		engine:          engine,
		advisory:        advisory,
		advisoryTimeout: advisoryTimeout,
		logger:          logger,
	}
}

// Triage runs the full pipeline for one message. The returned decision is
// nil when the verdict suppressed the message. Malformed messages and store
// corruption surface as explicit errors; everything recoverable folds into
// the decision's confidence and approval fields.
func (s *TriageService) Triage(ctx context.Context, msg *Email) (*TriageResult, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	verdict, err := s.detector.Detect(ctx, msg)
	if err != nil {
		return s.corruptionFallback(msg, verdict, err)
	}

	result := &TriageResult{Verdict: verdict}

	if verdict.IsDuplicate && s.suppresses(msg, verdict) {
		s.logger.Info("Message suppressed as duplicate",
			zap.String("sender", msg.From),
			zap.String("kind", string(verdict.Kind)),
			zap.Float64("confidence", verdict.Confidence))
		result.Suppressed = true
		return result, nil
	}

	_, created, err := s.store.Insert(ctx, msg)
	if err != nil {
		return s.corruptionFallback(msg, verdict, err)
	}
	result.StoreUpdated = created

	score := s.scorer.Score(msg)
	tier := SelectTier(score.Score)
	result.Score = score
	result.Tier = tier

	actx := s.consultAdvisory(ctx, msg)

	decision := s.engine.Decide(msg, tier, actx)
	if verdict.Kind == KindUnclassifiable {
		s.clampForReview(decision, "message could not be checked for duplicates")
	}
	result.Decision = decision

	s.logger.Info("Message triaged",
		zap.String("sender", msg.From),
		zap.Int("complexity", score.Score),
		zap.String("tier", tier.Name),
		zap.String("action", string(decision.Action)),
		zap.String("state", string(decision.State)))

	return result, nil
}

// Evict triggers the retention sweep on the fingerprint store
func (s *TriageService) Evict(ctx context.Context, now time.Time) (int, error) {
	evicted, err := s.store.Evict(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("retention sweep: %w", err)
	}
	if evicted > 0 {
		s.logger.Info("Evicted expired fingerprint records", zap.Int("count", evicted))
	}
	return evicted, nil
}

// History exposes the engine's append-only decision record
func (s *TriageService) History() []HistoryEntry {
	return s.engine.History()
}

// suppresses applies the duplicate-handling policy: exact, content and
// cc-group duplicates are dropped; a forward is processed only when it
// reaches at least one recipient the original did not.
func (s *TriageService) suppresses(msg *Email, verdict *DuplicateVerdict) bool {
	switch verdict.Kind {
	case KindExact, KindContent, KindCCGroup:
		return true
	case KindForward:
		return !hasNewAudience(msg, verdict.Original)
	case KindQuotedReply:
		// Only when the operator enabled quoted-reply suppression; the
		// detector sets IsDuplicate accordingly.
		return verdict.IsDuplicate
	default:
		return false
	}
}

// consultAdvisory asks the external reasoning collaborator for sentiment and
// urgency. On failure the pipeline continues with rule-based analysis only
// and the engine clamps confidence below the authorization threshold.
func (s *TriageService) consultAdvisory(ctx context.Context, msg *Email) *AnalysisContext {
	if s.advisory == nil {
		return nil
	}

	advisoryCtx, cancel := context.WithTimeout(ctx, s.advisoryTimeout)
	defer cancel()

	advice, err := s.advisory.AnalyzeEmail(advisoryCtx, msg)
	if err != nil {
		s.logger.Warn("Advisory analysis unavailable, continuing rule-based",
			zap.String("sender", msg.From),
			zap.Error(err))
		return &AnalysisContext{Degraded: true}
	}

	return &AnalysisContext{
		Sentiment:      advice.Sentiment,
		Urgency:        advice.Urgency,
		SuggestedDraft: advice.SuggestedDraft,
	}
}

// corruptionFallback routes a message hit by a store invariant violation to
// escalation and still reports the error to the caller.
func (s *TriageService) corruptionFallback(msg *Email, verdict *DuplicateVerdict, err error) (*TriageResult, error) {
	s.logger.Error("Fingerprint store error, escalating message",
		zap.String("sender", msg.From),
		zap.Error(err))
	if verdict == nil {
		verdict = &DuplicateVerdict{Kind: KindUnclassifiable, Reasons: []string{"store error during detection"}}
	}
	decision := s.engine.Escalate(TierStandard, fmt.Sprintf("store error: %v", err))
	return &TriageResult{
		Verdict:  verdict,
		Tier:     TierStandard,
		Decision: decision,
	}, err
}

// clampForReview forces a decision below the authorization threshold
func (s *TriageService) clampForReview(d *Decision, reason string) {
	if d.State == StateAuthorized {
		d.State = StatePendingApproval
	}
	if d.Confidence >= s.engine.Threshold() {
		d.Confidence = s.engine.Threshold() - degradedConfidenceMargin
	}
	d.RequiresApproval = true
	d.Reasoning = append(d.Reasoning, reason)
}

// hasNewAudience reports whether msg reaches a recipient absent from the
// original's recipient list
func hasNewAudience(msg *Email, original *FingerprintRecord) bool {
	if original == nil || original.Message == nil {
		return true
	}
	seen := make(map[string]struct{})
	for _, r := range original.Message.Recipients() {
		seen[fold(r)] = struct{}{}
	}
	for _, r := range msg.Recipients() {
		if _, ok := seen[fold(r)]; !ok {
			return true
		}
	}
	return false
}
