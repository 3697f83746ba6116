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

// testStore is a minimal in-memory FingerprintStore for exercising the
// pipeline without the adapter layer
type testStore struct {
	mu            sync.Mutex
	byFingerprint map[string]*FingerprintRecord
	bySender      map[string][]*FingerprintRecord
	bySubject     map[string][]*FingerprintRecord
	ccGroups      map[string][]*FingerprintRecord

	lookupErr error
	insertErr error
}

func newTestStore() *testStore {
	return &testStore{
		byFingerprint: make(map[string]*FingerprintRecord),
		bySender:      make(map[string][]*FingerprintRecord),
		bySubject:     make(map[string][]*FingerprintRecord),
		ccGroups:      make(map[string][]*FingerprintRecord),
	}
}

func (s *testStore) Lookup(ctx context.Context, fingerprint string) (*FingerprintRecord, bool, error) {
	if s.lookupErr != nil {
		return nil, false, s.lookupErr
	}
	if fingerprint == "" {
		return nil, false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.byFingerprint[fingerprint]
	return record, ok, nil
}

func (s *testStore) Insert(ctx context.Context, msg *Email) (*FingerprintRecord, bool, error) {
	if s.insertErr != nil {
		return nil, false, s.insertErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fps := FingerprintEmail(msg)
	if fps.Identity != "" {
		if existing, ok := s.byFingerprint[fps.Identity]; ok {
			return existing, false, nil
		}
	} else if existing, ok := s.byFingerprint[fps.Content]; ok {
		return existing, false, nil
	}

	record := &FingerprintRecord{
		IdentityFingerprint:  fps.Identity,
		ContentFingerprint:   fps.Content,
		RecipientFingerprint: fps.RecipientSet,
		CleanSubject:         fps.CleanSubject,
		Message:              msg,
		RecordedAt:           time.Now(),
	}
	if fps.Identity != "" {
		s.byFingerprint[fps.Identity] = record
	}
	if _, ok := s.byFingerprint[fps.Content]; !ok {
		s.byFingerprint[fps.Content] = record
	}
	if fps.RecipientSet != "" {
		s.ccGroups[fps.RecipientSet] = append(s.ccGroups[fps.RecipientSet], record)
	}
	s.bySender[msg.From] = append(s.bySender[msg.From], record)
	if fps.CleanSubject != "" {
		s.bySubject[fps.CleanSubject] = append(s.bySubject[fps.CleanSubject], record)
	}
	return record, true, nil
}

func (s *testStore) BySender(ctx context.Context, sender string) ([]*FingerprintRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bySender[sender], nil
}

func (s *testStore) BySubject(ctx context.Context, cleanSubject string) ([]*FingerprintRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bySubject[cleanSubject], nil
}

func (s *testStore) CCGroup(ctx context.Context, recipientFingerprint string) ([]*FingerprintRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ccGroups[recipientFingerprint], nil
}

func (s *testStore) Evict(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	evicted := 0
	for key, record := range s.byFingerprint {
		if now.Sub(record.RecordedAt) > 30*24*time.Hour {
			delete(s.byFingerprint, key)
			evicted++
		}
	}
	return evicted, nil
}

func mustInsert(t *testing.T, store *testStore, msg *Email) {
	t.Helper()
	_, created, err := store.Insert(context.Background(), msg)
	require.NoError(t, err)
	require.True(t, created)
}

func TestDetectExactDuplicate(t *testing.T) {
	store := newTestStore()
	detector := NewDetector(store, DefaultDedupConfig(), zap.NewNop())

	original := &Email{
		MessageID: "<msg-1@example.com>",
		From:      "alice@example.com",
		To:        []string{"bob@example.com"},
		Subject:   "Status update",
		Body:      "Everything is on track for the release.",
	}
	mustInsert(t, store, original)

	verdict, err := detector.Detect(context.Background(), original)
	require.NoError(t, err)

	assert.True(t, verdict.IsDuplicate)
	assert.Equal(t, KindExact, verdict.Kind)
	assert.Equal(t, 1.0, verdict.Confidence)
	require.NotNil(t, verdict.Original)
	assert.Equal(t, "<msg-1@example.com>", verdict.Original.Message.MessageID)
}

func TestDetectContentDuplicateWithoutMessageID(t *testing.T) {
	store := newTestStore()
	detector := NewDetector(store, DefaultDedupConfig(), zap.NewNop())

	original := &Email{
		From:    "alice@example.com",
		To:      []string{"bob@example.com"},
		Subject: "Status update",
		Body:    "Everything is on track for the release.",
	}
	mustInsert(t, store, original)

	// Same sender, subject and body but a fresh transport identity
	resend := &Email{
		MessageID: "<msg-2@example.com>",
		From:      "alice@example.com",
		To:        []string{"bob@example.com"},
		Subject:   "Status update",
		Body:      "Everything is on track for the release.",
	}

	verdict, err := detector.Detect(context.Background(), resend)
	require.NoError(t, err)

	assert.True(t, verdict.IsDuplicate)
	assert.Equal(t, KindContent, verdict.Kind)
}

func TestDetectNearIdenticalBySimilarity(t *testing.T) {
	store := newTestStore()
	detector := NewDetector(store, DefaultDedupConfig(), zap.NewNop())

	body := "Please review the quarterly budget numbers before the meeting on friday. " +
		"The spreadsheet covers revenue, spending and headcount projections for every department."
	mustInsert(t, store, &Email{
		MessageID: "<msg-1@example.com>",
		From:      "alice@example.com",
		To:        []string{"bob@example.com"},
		Subject:   "Quarterly numbers",
		Body:      body,
	})

	// Identical body, different subject: content fingerprint differs but
	// token similarity exceeds the duplicate threshold
	verdict, err := detector.Detect(context.Background(), &Email{
		MessageID: "<msg-2@example.com>",
		From:      "alice@example.com",
		To:        []string{"bob@example.com"},
		Subject:   "Numbers for the quarter",
		Body:      body,
	})
	require.NoError(t, err)

	assert.True(t, verdict.IsDuplicate)
	assert.Equal(t, KindContent, verdict.Kind)
	assert.Greater(t, verdict.Confidence, 0.95)
}

func TestDetectForward(t *testing.T) {
	store := newTestStore()
	detector := NewDetector(store, DefaultDedupConfig(), zap.NewNop())

	originalBody := "The vendor contract draft is attached. Please review the payment schedule " +
		"and the termination clauses before we respond."
	mustInsert(t, store, &Email{
		MessageID: "<msg-1@example.com>",
		From:      "alice@example.com",
		To:        []string{"bob@example.com"},
		Subject:   "Vendor contract draft",
		Body:      originalBody,
	})

	forward := &Email{
		MessageID: "<msg-2@example.com>",
		From:      "bob@example.com",
		To:        []string{"carol@example.com"},
		Subject:   "Fwd: Vendor contract draft",
		Body:      "Carol, see below.\n\n" + originalBody,
	}

	verdict, err := detector.Detect(context.Background(), forward)
	require.NoError(t, err)

	assert.True(t, verdict.IsDuplicate)
	assert.Equal(t, KindForward, verdict.Kind)
	assert.InDelta(t, 0.9, verdict.Confidence, 1e-9)
}

func TestDetectForwardRequiresPrefix(t *testing.T) {
	store := newTestStore()
	detector := NewDetector(store, DefaultDedupConfig(), zap.NewNop())

	originalBody := "The vendor contract draft is attached. Please review the payment schedule."
	mustInsert(t, store, &Email{
		MessageID: "<msg-1@example.com>",
		From:      "alice@example.com",
		To:        []string{"bob@example.com"},
		Subject:   "Vendor contract draft",
		Body:      originalBody,
	})

	// Same subject without a forward marker is not treated as a forward
	verdict, err := detector.Detect(context.Background(), &Email{
		MessageID: "<msg-2@example.com>",
		From:      "bob@example.com",
		To:        []string{"carol@example.com"},
		Subject:   "Vendor contract draft",
		Body:      "Unrelated note about the same topic.",
	})
	require.NoError(t, err)
	assert.False(t, verdict.IsDuplicate)
}

func TestDetectCCGroupDuplicate(t *testing.T) {
	store := newTestStore()
	detector := NewDetector(store, DefaultDedupConfig(), zap.NewNop())

	body := "Reminder: the all-hands meeting moved to thursday afternoon in the main room."
	mustInsert(t, store, &Email{
		MessageID: "<msg-1@example.com>",
		From:      "alice@example.com",
		To:        []string{"team@example.com"},
		Cc:        []string{"bob@example.com", "carol@example.com"},
		Subject:   "All-hands moved",
		Body:      body,
	})

	// Different sender, same recipient group and content
	verdict, err := detector.Detect(context.Background(), &Email{
		MessageID: "<msg-2@example.com>",
		From:      "dave@example.com",
		To:        []string{"team@example.com"},
		Cc:        []string{"carol@example.com", "bob@example.com"},
		Subject:   "All-hands moved",
		Body:      body,
	})
	require.NoError(t, err)

	assert.True(t, verdict.IsDuplicate)
	assert.Equal(t, KindCCGroup, verdict.Kind)
}

func TestDetectQuotedReplyReportedNotSuppressed(t *testing.T) {
	store := newTestStore()
	detector := NewDetector(store, DefaultDedupConfig(), zap.NewNop())

	body := "Agreed.\n" +
		"> Please review the quarterly budget numbers before the meeting on friday.\n" +
		"> The spreadsheet covers revenue, spending and headcount projections.\n" +
		"> Let me know if anything looks off before I send it upward.\n" +
		"> We also need the final headcount confirmed by each team lead.\n"

	verdict, err := detector.Detect(context.Background(), &Email{
		MessageID: "<msg-2@example.com>",
		From:      "bob@example.com",
		To:        []string{"alice@example.com"},
		Subject:   "Re: Quarterly numbers",
		Body:      body,
	})
	require.NoError(t, err)

	assert.Equal(t, KindQuotedReply, verdict.Kind)
	assert.False(t, verdict.IsDuplicate, "quote-heavy replies are reported, not suppressed, by default")
	assert.NotEmpty(t, verdict.Reasons)
}

func TestDetectQuotedReplySuppressWhenConfigured(t *testing.T) {
	store := newTestStore()
	cfg := DefaultDedupConfig()
	cfg.SuppressQuotedReplies = true
	detector := NewDetector(store, cfg, zap.NewNop())

	body := "Ok.\n" +
		"> Please review the quarterly budget numbers before the meeting on friday.\n" +
		"> The spreadsheet covers revenue, spending and headcount projections.\n" +
		"> Let me know if anything looks off before I send it upward.\n"

	verdict, err := detector.Detect(context.Background(), &Email{
		MessageID: "<msg-2@example.com>",
		From:      "bob@example.com",
		To:        []string{"alice@example.com"},
		Subject:   "Re: Quarterly numbers",
		Body:      body,
	})
	require.NoError(t, err)

	assert.Equal(t, KindQuotedReply, verdict.Kind)
	assert.True(t, verdict.IsDuplicate)
}

func TestDetectUnclassifiable(t *testing.T) {
	store := newTestStore()
	detector := NewDetector(store, DefaultDedupConfig(), zap.NewNop())

	tests := []struct {
		name string
		msg  *Email
	}{
		{"empty body", &Email{
			MessageID: "<msg-1@example.com>",
			From:      "alice@example.com",
			To:        []string{"bob@example.com"},
			Subject:   "Subject only",
		}},
		{"no recipients", &Email{
			MessageID: "<msg-2@example.com>",
			From:      "alice@example.com",
			Subject:   "Bcc blast",
			Body:      "Some content here.",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict, err := detector.Detect(context.Background(), tt.msg)
			require.NoError(t, err)
			assert.False(t, verdict.IsDuplicate)
			assert.Equal(t, KindUnclassifiable, verdict.Kind)
			assert.NotEmpty(t, verdict.Reasons)
		})
	}
}

func TestDetectStoreError(t *testing.T) {
	store := newTestStore()
	store.lookupErr = errors.New("index unavailable")
	detector := NewDetector(store, DefaultDedupConfig(), zap.NewNop())

	_, err := detector.Detect(context.Background(), &Email{
		MessageID: "<msg-1@example.com>",
		From:      "alice@example.com",
		To:        []string{"bob@example.com"},
		Subject:   "hello",
		Body:      "world",
	})

	assert.Error(t, err)
}

func TestQuotedRatio(t *testing.T) {
	assert.Equal(t, 0.0, QuotedRatio(""))
	assert.Equal(t, 0.0, QuotedRatio("fresh content only"))

	mostlyQuoted := "ok\n> line one of the quote\n> line two of the quote\n> line three of it\n"
	assert.Greater(t, QuotedRatio(mostlyQuoted), 0.8)

	separator := "See my notes below.\n-----Original Message-----\nFrom: alice\nAll of this counts as quoted content now.\n"
	assert.Greater(t, QuotedRatio(separator), 0.5)
}

func TestExtractUnquoted(t *testing.T) {
	body := "My reply.\n> quoted line\nOn Mon, Alice wrote:\n> more quoting\ntrailing quoted"
	got := ExtractUnquoted(body)

	assert.Contains(t, got, "My reply.")
	assert.NotContains(t, got, "quoted line")
	assert.NotContains(t, got, "more quoting")
	assert.NotContains(t, got, "trailing quoted")
}
