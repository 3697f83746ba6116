package core

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrMalformedMessage is returned when a message is missing required fields
	ErrMalformedMessage = errors.New("malformed message")
	// ErrStoreCorruption is returned when the fingerprint store violates an internal invariant
	ErrStoreCorruption = errors.New("fingerprint store corruption")
)

// Attachment holds attachment metadata (never content)
type Attachment struct {
	Filename    string
	ContentType string
	Size        int64
}

// Email represents an inbound email message. Immutable once received.
type Email struct {
	MessageID   string // transport-assigned identifier, may be empty
	ThreadID    string
	From        string
	To          []string
	Cc          []string
	Subject     string
	Body        string
	ReceivedAt  time.Time
	FromSelf    bool // true if the message originated from our own outbound sends
	Attachments []Attachment
	Headers     map[string][]string
}

// Recipients returns the combined To and Cc lists
func (e *Email) Recipients() []string {
	out := make([]string, 0, len(e.To)+len(e.Cc))
	out = append(out, e.To...)
	out = append(out, e.Cc...)
	return out
}

// Validate checks that the message carries the fields the pipeline requires.
// A message with no sender, or with neither subject nor body, is rejected
// before it enters the pipeline.
func (e *Email) Validate() error {
	if e == nil {
		return fmt.Errorf("%w: nil message", ErrMalformedMessage)
	}
	if e.From == "" {
		return fmt.Errorf("%w: missing sender", ErrMalformedMessage)
	}
	if e.Subject == "" && e.Body == "" {
		return fmt.Errorf("%w: empty subject and body", ErrMalformedMessage)
	}
	return nil
}

// FingerprintRecord is the stored trace of a previously seen message.
// Created once per novel message and never mutated afterwards.
type FingerprintRecord struct {
	IdentityFingerprint  string
	ContentFingerprint   string
	RecipientFingerprint string
	CleanSubject         string
	Message              *Email
	RecordedAt           time.Time
}

// DuplicateKind is the category of redundancy detected
type DuplicateKind string

const (
	KindNone           DuplicateKind = ""
	KindExact          DuplicateKind = "exact"
	KindContent        DuplicateKind = "content"
	KindForward        DuplicateKind = "forward"
	KindCCGroup        DuplicateKind = "cc_group"
	KindQuotedReply    DuplicateKind = "quoted_reply"
	KindUnclassifiable DuplicateKind = "unclassifiable"
)

// DuplicateVerdict is the transient result of checking one message against
// the fingerprint store. Recomputed per message, never persisted.
type DuplicateVerdict struct {
	IsDuplicate bool
	Kind        DuplicateKind
	Original    *FingerprintRecord // matched record, nil when novel
	Confidence  float64            // similarity/confidence in [0,1]
	Reasons     []string
}

// Validate checks if the verdict has consistent values
func (v *DuplicateVerdict) Validate() error {
	if v.Confidence < 0.0 || v.Confidence > 1.0 {
		return fmt.Errorf("confidence must be between 0.0 and 1.0 (got %.2f)", v.Confidence)
	}
	if v.IsDuplicate && v.Kind == KindNone {
		return fmt.Errorf("kind must be set when is_duplicate is true")
	}
	if v.IsDuplicate && v.Kind != KindQuotedReply && v.Kind != KindUnclassifiable && v.Original == nil {
		return fmt.Errorf("original record must be set for duplicate kind %q", v.Kind)
	}
	return nil
}

// ComplexityScore is a 0-100 measure of how much reasoning effort a message
// likely requires, with a per-factor breakdown of contributions.
type ComplexityScore struct {
	Score     int
	Breakdown map[string]float64
}

// ResourceTier determines how much downstream reasoning capability to allocate
type ResourceTier struct {
	Name             string
	UnitCost         float64
	MaxContentLength int
}

var (
	TierSimple   = ResourceTier{Name: "simple", UnitCost: 1, MaxContentLength: 2000}
	TierStandard = ResourceTier{Name: "standard", UnitCost: 4, MaxContentLength: 8000}
	TierComplex  = ResourceTier{Name: "complex", UnitCost: 12, MaxContentLength: 32000}
)

// ActionType is the closed set of actions a decision can select
type ActionType string

const (
	ActionEscalate      ActionType = "escalate"
	ActionSchedule      ActionType = "schedule"
	ActionInform        ActionType = "inform"
	ActionConfirm       ActionType = "confirm"
	ActionDraftResponse ActionType = "draft_response"
	ActionFile          ActionType = "file"
	ActionSuppress      ActionType = "suppress"
)

// DecisionState is a state of the decision state machine. Authorized,
// Escalated and PendingApproval are terminal.
type DecisionState string

const (
	StateReceived        DecisionState = "received"
	StateAnalyzed        DecisionState = "analyzed"
	StateSafetyChecked   DecisionState = "safety_checked"
	StateAuthorized      DecisionState = "authorized"
	StateEscalated       DecisionState = "escalated"
	StatePendingApproval DecisionState = "pending_approval"
)

// SafetyCheck is the outcome of a single safety screen
type SafetyCheck struct {
	Name   string
	Passed bool
	Reason string
}

// SafetyCheckResult aggregates the five safety screens
type SafetyCheckResult struct {
	Passed bool
	Checks []SafetyCheck
}

// Decision is the triage engine's final output for a non-suppressed message
type Decision struct {
	ProcessingID     string
	Action           ActionType
	Reasoning        []string
	Confidence       float64
	Details          map[string]string
	Safety           SafetyCheckResult
	RequiresApproval bool
	State            DecisionState
	Tier             ResourceTier
	DecidedAt        time.Time
}

// Validate checks the decision invariants. A decision that failed a safety
// check, or that escalates, must never be marked executable.
func (d *Decision) Validate() error {
	if d.Confidence < 0.0 || d.Confidence > 1.0 {
		return fmt.Errorf("confidence must be between 0.0 and 1.0 (got %.2f)", d.Confidence)
	}
	if !d.Safety.Passed && !d.RequiresApproval {
		return fmt.Errorf("failed safety check requires approval")
	}
	if d.Action == ActionEscalate && d.State == StateAuthorized {
		return fmt.Errorf("escalation cannot be authorized for autonomous execution")
	}
	if d.State == StateAuthorized && d.RequiresApproval {
		return fmt.Errorf("authorized decision cannot require approval")
	}
	return nil
}

// TriageResult is what the pipeline hands back to the orchestrator
type TriageResult struct {
	Verdict      *DuplicateVerdict
	Score        *ComplexityScore // nil when suppressed
	Tier         ResourceTier
	Decision     *Decision // nil when the verdict suppressed the message
	Suppressed   bool
	StoreUpdated bool
}

// AdvisoryResult is what the external reasoning collaborator returns.
// The decision engine reads it but never computes it.
type AdvisoryResult struct {
	Sentiment      string // negative, neutral, positive
	Urgency        string // urgent, soon, normal
	SuggestedDraft string
	Confidence     float64
	ModelUsed      string
	AnalyzedAt     time.Time
}

// AnalysisContext carries caller-supplied signals the decision engine reads
// but does not compute. The zero value is the neutral default.
type AnalysisContext struct {
	Sentiment        string // empty means neutral
	Urgency          string // empty defers to lexicon matching
	ReputationRisk   bool   // true fails the reputation safety check
	InvalidRecipient bool   // true fails the recipient-validity safety check
	Degraded         bool   // true when the advisory collaborator was unavailable
	SuggestedDraft   string
}
