package core

import (
	"context"
	"time"
)

// AdvisoryClient defines the interface for the external reasoning service.
// It supplies semantic judgments (sentiment, urgency, response drafts) that
// the rule-based engine cannot derive on its own. The pipeline must still
// complete when this collaborator is unavailable.
type AdvisoryClient interface {
	// AnalyzeEmail asks the reasoning service for an advisory read of the message
	AnalyzeEmail(ctx context.Context, email *Email) (*AdvisoryResult, error)
}

// FingerprintStore defines the interface for the bounded-retention index of
// previously seen messages. Insert must be atomic: two concurrent inserts of
// the same identity fingerprint yield exactly one record.
type FingerprintStore interface {
	// Lookup finds the record indexed under any fingerprint kind; no side effects
	Lookup(ctx context.Context, fingerprint string) (*FingerprintRecord, bool, error)

	// Insert records a message under all of its fingerprints. Idempotent for
	// an already-recorded identity: the second call returns the existing
	// record and false. Returns ErrStoreCorruption if the identity
	// fingerprint already maps to a different message identifier.
	Insert(ctx context.Context, msg *Email) (*FingerprintRecord, bool, error)

	// BySender returns records previously seen from the given sender
	BySender(ctx context.Context, sender string) ([]*FingerprintRecord, error)

	// BySubject returns records whose clean subject equals the given one,
	// oldest first. This is the forward-chain bucket.
	BySubject(ctx context.Context, cleanSubject string) ([]*FingerprintRecord, error)

	// CCGroup returns records sharing the recipient-set fingerprint, oldest first
	CCGroup(ctx context.Context, recipientFingerprint string) ([]*FingerprintRecord, error)

	// Evict removes records older than the retention window and returns how
	// many were dropped. Safe to call concurrently with lookups and inserts.
	Evict(ctx context.Context, now time.Time) (int, error)
}
