package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubAdvisory returns a canned result or error
type stubAdvisory struct {
	result *AdvisoryResult
	err    error
	calls  int
	mu     sync.Mutex
}

func (s *stubAdvisory) AnalyzeEmail(ctx context.Context, email *Email) (*AdvisoryResult, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func newTestService(store FingerprintStore, advisory AdvisoryClient) *TriageService {
	logger := zap.NewNop()
	lexicons := DefaultLexicons()
	return NewTriageService(
		store,
		NewDetector(store, DefaultDedupConfig(), logger),
		NewScorer(lexicons),
		NewEngine(lexicons, 0, logger),
		advisory,
		time.Second,
		logger,
	)
}

func testEmail(id, from, subject, body string, to ...string) *Email {
	return &Email{
		MessageID:  id,
		From:       from,
		To:         to,
		Subject:    subject,
		Body:       body,
		ReceivedAt: time.Now(),
	}
}

func TestTriageNovelMessage(t *testing.T) {
	svc := newTestService(newTestStore(), nil)

	msg := testEmail("<m1@example.com>", "alice@example.com", "Team sync",
		"Are you available to catch up on the project this week?", "me@example.com")

	result, err := svc.Triage(context.Background(), msg)
	require.NoError(t, err)

	assert.False(t, result.Suppressed)
	assert.True(t, result.StoreUpdated)
	require.NotNil(t, result.Score)
	require.NotNil(t, result.Decision)
	assert.Equal(t, ActionSchedule, result.Decision.Action)
	assert.Equal(t, result.Tier, result.Decision.Tier)
}

func TestTriageMalformedMessage(t *testing.T) {
	svc := newTestService(newTestStore(), nil)

	tests := []struct {
		name string
		msg  *Email
	}{
		{"nil message", nil},
		{"no sender", testEmail("<m1@x>", "", "subject", "body", "me@example.com")},
		{"empty subject and body", testEmail("<m1@x>", "alice@example.com", "", "", "me@example.com")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := svc.Triage(context.Background(), tt.msg)
			assert.Nil(t, result)
			assert.ErrorIs(t, err, ErrMalformedMessage)
		})
	}
}

func TestTriageExactDuplicateSuppressed(t *testing.T) {
	svc := newTestService(newTestStore(), nil)
	ctx := context.Background()

	msg := testEmail("<m1@example.com>", "alice@example.com", "Status",
		"Everything is on track.", "me@example.com")

	first, err := svc.Triage(ctx, msg)
	require.NoError(t, err)
	require.False(t, first.Suppressed)

	second, err := svc.Triage(ctx, msg)
	require.NoError(t, err)

	assert.True(t, second.Suppressed)
	assert.Equal(t, KindExact, second.Verdict.Kind)
	assert.Nil(t, second.Decision, "suppressed messages never reach the engine")
	assert.Nil(t, second.Score)
	assert.False(t, second.StoreUpdated)
}

func TestTriageAdmissionIsIdempotent(t *testing.T) {
	store := newTestStore()
	svc := newTestService(store, nil)
	ctx := context.Background()

	msg := testEmail("<m1@example.com>", "alice@example.com", "Status",
		"Everything is on track.", "me@example.com")

	_, err := svc.Triage(ctx, msg)
	require.NoError(t, err)

	// Direct re-insert of the same message does not create a second record
	_, created, err := store.Insert(ctx, msg)
	require.NoError(t, err)
	assert.False(t, created)

	records, err := store.BySender(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestTriageForwardAudiencePolicy(t *testing.T) {
	svc := newTestService(newTestStore(), nil)
	ctx := context.Background()

	originalBody := "Please review the budget numbers for the quarter before our friday meeting. " +
		"The totals cover every department and the spreadsheet is attached."
	original := testEmail("<m1@example.com>", "alice@example.com", "Budget Review",
		originalBody, "bob@example.com")
	_, err := svc.Triage(ctx, original)
	require.NoError(t, err)

	// Forward back to the original audience carries no new information
	sameAudience := testEmail("<m2@example.com>", "bob@example.com", "Fwd: Budget Review",
		"See below.\n\n"+originalBody, "bob@example.com")
	result, err := svc.Triage(ctx, sameAudience)
	require.NoError(t, err)
	assert.True(t, result.Suppressed)
	assert.Equal(t, KindForward, result.Verdict.Kind)

	// Forward reaching a new recipient is admitted
	newAudience := testEmail("<m3@example.com>", "bob@example.com", "Fwd: Budget Review",
		"See below.\n\n"+originalBody, "carol@example.com")
	result, err = svc.Triage(ctx, newAudience)
	require.NoError(t, err)
	assert.False(t, result.Suppressed)
	assert.Equal(t, KindForward, result.Verdict.Kind)
	require.NotNil(t, result.Decision)
}

func TestTriageUnclassifiableClampedForReview(t *testing.T) {
	svc := newTestService(newTestStore(), nil)

	msg := testEmail("<m1@example.com>", "alice@example.com", "Deployment done",
		"", "me@example.com")
	msg.Body = ""
	msg.Subject = "FYI deployment finished"

	result, err := svc.Triage(context.Background(), msg)
	require.NoError(t, err)

	assert.False(t, result.Suppressed)
	assert.Equal(t, KindUnclassifiable, result.Verdict.Kind)
	require.NotNil(t, result.Decision)
	assert.NotEqual(t, StateAuthorized, result.Decision.State)
	assert.True(t, result.Decision.RequiresApproval)
	assert.Less(t, result.Decision.Confidence, DefaultConfidenceThreshold)
}

func TestTriageAdvisoryFeedsDecision(t *testing.T) {
	advisory := &stubAdvisory{result: &AdvisoryResult{
		Sentiment:  "negative",
		Urgency:    "normal",
		Confidence: 0.9,
		ModelUsed:  "test-model",
	}}
	svc := newTestService(newTestStore(), advisory)

	msg := testEmail("<m1@example.com>", "customer@example.com", "Still broken",
		"The export failed again. When will this be fixed?", "me@example.com")

	result, err := svc.Triage(context.Background(), msg)
	require.NoError(t, err)

	require.NotNil(t, result.Decision)
	assert.Equal(t, 1, advisory.calls)
	assert.Equal(t, ActionDraftResponse, result.Decision.Action)
	assert.Equal(t, 0.75, result.Decision.Confidence, "negative sentiment lowers confidence")
}

func TestTriageAdvisoryFailureDegradesGracefully(t *testing.T) {
	advisory := &stubAdvisory{err: errors.New("provider unreachable")}
	svc := newTestService(newTestStore(), advisory)

	msg := testEmail("<m1@example.com>", "alice@example.com", "Team sync",
		"Are you available to catch up on the project this week?", "me@example.com")

	result, err := svc.Triage(context.Background(), msg)
	require.NoError(t, err, "advisory failure must not fail the pipeline")

	require.NotNil(t, result.Decision)
	assert.Equal(t, ActionDraftResponse, result.Decision.Action)
	assert.Less(t, result.Decision.Confidence, DefaultConfidenceThreshold)
	assert.True(t, result.Decision.RequiresApproval)
}

func TestTriageStoreErrorEscalates(t *testing.T) {
	store := newTestStore()
	store.lookupErr = ErrStoreCorruption
	svc := newTestService(store, nil)

	msg := testEmail("<m1@example.com>", "alice@example.com", "Status",
		"Everything is on track.", "me@example.com")

	result, err := svc.Triage(context.Background(), msg)

	assert.ErrorIs(t, err, ErrStoreCorruption)
	require.NotNil(t, result, "a conservative decision accompanies the error")
	require.NotNil(t, result.Decision)
	assert.Equal(t, ActionEscalate, result.Decision.Action)
	assert.Equal(t, StateEscalated, result.Decision.State)
	assert.True(t, result.Decision.RequiresApproval)
}

func TestTriageConcurrentSameMessage(t *testing.T) {
	svc := newTestService(newTestStore(), nil)
	ctx := context.Background()

	msg := testEmail("<m1@example.com>", "alice@example.com", "Status",
		"Everything is on track.", "me@example.com")

	const workers = 8
	var wg sync.WaitGroup
	results := make([]*TriageResult, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := svc.Triage(ctx, msg)
			assert.NoError(t, err)
			results[i] = result
		}(i)
	}
	wg.Wait()

	// However the races resolve, the message is admitted at most once
	admitted := 0
	for _, result := range results {
		if result != nil && result.StoreUpdated {
			admitted++
		}
	}
	assert.LessOrEqual(t, admitted, 1)
}

func TestServiceHistory(t *testing.T) {
	svc := newTestService(newTestStore(), nil)
	ctx := context.Background()

	_, err := svc.Triage(ctx, testEmail("<m1@example.com>", "alice@example.com", "Status",
		"Everything is on track.", "me@example.com"))
	require.NoError(t, err)
	_, err = svc.Triage(ctx, testEmail("<m2@example.com>", "bob@example.com", "Question",
		"Which regions go first?", "me@example.com"))
	require.NoError(t, err)

	history := svc.History()
	assert.Len(t, history, 2)
}

func TestServiceEvict(t *testing.T) {
	store := newTestStore()
	svc := newTestService(store, nil)
	ctx := context.Background()

	_, err := svc.Triage(ctx, testEmail("<m1@example.com>", "alice@example.com", "Status",
		"Everything is on track.", "me@example.com"))
	require.NoError(t, err)

	evicted, err := svc.Evict(ctx, time.Now().Add(31*24*time.Hour))
	require.NoError(t, err)
	assert.Greater(t, evicted, 0)
}
