package store

import (
	"context"
	"testing"
	"time"

	"github.com/mikey/mail-triage/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestMemoryStore(t *testing.T) *MemoryStore {
	t.Helper()
	// Cleanup frequency of zero keeps the background sweep off in tests
	s := NewMemoryStore(zap.NewNop(), time.Hour, 0)
	t.Cleanup(s.Stop)
	return s
}

func sampleEmail(id string) *core.Email {
	return &core.Email{
		MessageID:  id,
		From:       "alice@example.com",
		To:         []string{"bob@example.com"},
		Subject:    "Re: Budget Review",
		Body:       "Please review the budget numbers before friday.",
		ReceivedAt: time.Now(),
	}
}

func TestMemoryStoreInsertAndLookup(t *testing.T) {
	s := newTestMemoryStore(t)
	ctx := context.Background()

	msg := sampleEmail("<m1@example.com>")
	record, created, err := s.Insert(ctx, msg)
	require.NoError(t, err)
	assert.True(t, created)
	require.NotNil(t, record)
	assert.Equal(t, "Budget Review", record.CleanSubject)

	found, ok, err := s.Lookup(ctx, record.IdentityFingerprint)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Same(t, record, found)

	byContent, ok, err := s.Lookup(ctx, record.ContentFingerprint)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Same(t, record, byContent)
}

func TestMemoryStoreLookupMisses(t *testing.T) {
	s := newTestMemoryStore(t)
	ctx := context.Background()

	_, ok, err := s.Lookup(ctx, "id:deadbeef")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = s.Lookup(ctx, "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStoreInsertIdempotent(t *testing.T) {
	s := newTestMemoryStore(t)
	ctx := context.Background()

	msg := sampleEmail("<m1@example.com>")

	first, created, err := s.Insert(ctx, msg)
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := s.Insert(ctx, msg)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Same(t, first, second)

	records, err := s.BySender(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestMemoryStoreInsertWithoutMessageID(t *testing.T) {
	s := newTestMemoryStore(t)
	ctx := context.Background()

	msg := sampleEmail("")

	first, created, err := s.Insert(ctx, msg)
	require.NoError(t, err)
	require.True(t, created)
	assert.Empty(t, first.IdentityFingerprint)

	// Content-level idempotency stands in for the missing identity
	second, created, err := s.Insert(ctx, msg)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Same(t, first, second)
}

func TestMemoryStoreCorruptionDetected(t *testing.T) {
	s := newTestMemoryStore(t)
	ctx := context.Background()

	msg := sampleEmail("<m1@example.com>")
	record, _, err := s.Insert(ctx, msg)
	require.NoError(t, err)

	// Simulate an index whose stored message no longer matches its key
	record.Message = sampleEmail("<other@example.com>")

	_, _, err = s.Insert(ctx, msg)
	assert.ErrorIs(t, err, core.ErrStoreCorruption)
}

func TestMemoryStoreBuckets(t *testing.T) {
	s := newTestMemoryStore(t)
	ctx := context.Background()

	msg := sampleEmail("<m1@example.com>")
	record, _, err := s.Insert(ctx, msg)
	require.NoError(t, err)

	bySubject, err := s.BySubject(ctx, "Budget Review")
	require.NoError(t, err)
	require.Len(t, bySubject, 1)
	assert.Same(t, record, bySubject[0])

	group, err := s.CCGroup(ctx, record.RecipientFingerprint)
	require.NoError(t, err)
	require.Len(t, group, 1)
	assert.Same(t, record, group[0])

	empty, err := s.BySender(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMemoryStoreEvict(t *testing.T) {
	s := newTestMemoryStore(t)
	ctx := context.Background()

	msg := sampleEmail("<m1@example.com>")
	record, _, err := s.Insert(ctx, msg)
	require.NoError(t, err)

	// Nothing expires inside the retention window
	evicted, err := s.Evict(ctx, time.Now())
	require.NoError(t, err)
	assert.Zero(t, evicted)

	// Beyond the window every index forgets the message
	evicted, err = s.Evict(ctx, time.Now().Add(2*time.Hour))
	require.NoError(t, err)
	assert.Greater(t, evicted, 0)

	_, ok, err := s.Lookup(ctx, record.IdentityFingerprint)
	require.NoError(t, err)
	assert.False(t, ok)

	bySender, err := s.BySender(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Empty(t, bySender)

	// A re-send after eviction is novel again
	_, created, err := s.Insert(ctx, msg)
	require.NoError(t, err)
	assert.True(t, created)
}

func TestMemoryStoreExpiredRecordsInvisible(t *testing.T) {
	s := NewMemoryStore(zap.NewNop(), time.Millisecond, 0)
	t.Cleanup(s.Stop)
	ctx := context.Background()

	msg := sampleEmail("<m1@example.com>")
	record, _, err := s.Insert(ctx, msg)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	_, ok, err := s.Lookup(ctx, record.IdentityFingerprint)
	require.NoError(t, err)
	assert.False(t, ok, "expired records do not resolve even before eviction runs")

	records, err := s.BySender(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestMemoryStoreStopIdempotent(t *testing.T) {
	s := NewMemoryStore(zap.NewNop(), time.Hour, time.Minute)
	s.Stop()
	s.Stop()
}
