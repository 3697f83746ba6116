package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mikey/mail-triage/internal/core"
	"go.uber.org/zap"
)

// ErrNotFound is returned when a fingerprint is not indexed
var ErrNotFound = errors.New("fingerprint not found")

// DefaultRetention is the default retention window for seen messages
const DefaultRetention = 30 * 24 * time.Hour

// MemoryStore is an in-memory implementation of the FingerprintStore
// interface. A single mutex guards all indices and buckets so the
// check-then-insert of Insert is one critical section.
type MemoryStore struct {
	mu            sync.RWMutex
	byFingerprint map[string]*core.FingerprintRecord // identity, content and recipient-set keys
	bySender      map[string][]*core.FingerprintRecord
	bySubject     map[string][]*core.FingerprintRecord // forward-chain buckets by clean subject
	ccGroups      map[string][]*core.FingerprintRecord

	logger      *zap.Logger
	retention   time.Duration
	cleanupFreq time.Duration
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewMemoryStore creates a new in-memory fingerprint store and starts its
// background retention sweep
func NewMemoryStore(logger *zap.Logger, retention, cleanupFreq time.Duration) *MemoryStore {
	if retention <= 0 {
		retention = DefaultRetention
	}
	s := &MemoryStore{
		byFingerprint: make(map[string]*core.FingerprintRecord),
		bySender:      make(map[string][]*core.FingerprintRecord),
		bySubject:     make(map[string][]*core.FingerprintRecord),
		ccGroups:      make(map[string][]*core.FingerprintRecord),
		logger:        logger,
		retention:     retention,
		cleanupFreq:   cleanupFreq,
		stopCh:        make(chan struct{}),
	}

	if cleanupFreq > 0 {
		go s.startCleanupTask()
	}

	return s
}

// Lookup finds the record indexed under a fingerprint of any kind
func (s *MemoryStore) Lookup(ctx context.Context, fingerprint string) (*core.FingerprintRecord, bool, error) {
	if fingerprint == "" {
		return nil, false, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.byFingerprint[fingerprint]
	if !ok {
		return nil, false, nil
	}
	if s.expired(record, time.Now()) {
		return nil, false, nil
	}
	return record, true, nil
}

// Insert records a message under all of its fingerprints. The second insert
// of an already-recorded identity is a no-op returning the existing record.
func (s *MemoryStore) Insert(ctx context.Context, msg *core.Email) (*core.FingerprintRecord, bool, error) {
	fps := core.FingerprintEmail(msg)

	s.mu.Lock()
	defer s.mu.Unlock()

	if fps.Identity != "" {
		if existing, ok := s.byFingerprint[fps.Identity]; ok {
			if existing.Message != nil && existing.Message.MessageID != msg.MessageID {
				return nil, false, fmt.Errorf("%w: identity fingerprint %q maps to message %q",
					core.ErrStoreCorruption, fps.Identity, existing.Message.MessageID)
			}
			return existing, false, nil
		}
	} else if existing, ok := s.byFingerprint[fps.Content]; ok {
		// No transport identity; fall back to content-level idempotency
		return existing, false, nil
	}

	record := &core.FingerprintRecord{
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
	// First record wins for shared keys so later lookups find the original
	if _, ok := s.byFingerprint[fps.Content]; !ok {
		s.byFingerprint[fps.Content] = record
	}
	if fps.RecipientSet != "" {
		if _, ok := s.byFingerprint[fps.RecipientSet]; !ok {
			s.byFingerprint[fps.RecipientSet] = record
		}
		s.ccGroups[fps.RecipientSet] = append(s.ccGroups[fps.RecipientSet], record)
	}
	s.bySender[msg.From] = append(s.bySender[msg.From], record)
	if fps.CleanSubject != "" {
		s.bySubject[fps.CleanSubject] = append(s.bySubject[fps.CleanSubject], record)
	}

	return record, true, nil
}

// BySender returns live records previously seen from the given sender
func (s *MemoryStore) BySender(ctx context.Context, sender string) ([]*core.FingerprintRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.liveRecords(s.bySender[sender]), nil
}

// BySubject returns live records whose clean subject matches, oldest first
func (s *MemoryStore) BySubject(ctx context.Context, cleanSubject string) ([]*core.FingerprintRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.liveRecords(s.bySubject[cleanSubject]), nil
}

// CCGroup returns live records sharing the recipient-set fingerprint, oldest first
func (s *MemoryStore) CCGroup(ctx context.Context, recipientFingerprint string) ([]*core.FingerprintRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.liveRecords(s.ccGroups[recipientFingerprint]), nil
}

// Evict removes records older than the retention window
func (s *MemoryStore) Evict(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for key, record := range s.byFingerprint {
		if s.expired(record, now) {
			delete(s.byFingerprint, key)
			evicted++
		}
	}
	for sender, records := range s.bySender {
		kept := s.pruneExpired(records, now)
		if len(kept) == 0 {
			delete(s.bySender, sender)
		} else {
			s.bySender[sender] = kept
		}
	}
	for subject, records := range s.bySubject {
		kept := s.pruneExpired(records, now)
		if len(kept) == 0 {
			delete(s.bySubject, subject)
		} else {
			s.bySubject[subject] = kept
		}
	}
	for group, records := range s.ccGroups {
		kept := s.pruneExpired(records, now)
		if len(kept) == 0 {
			delete(s.ccGroups, group)
		} else {
			s.ccGroups[group] = kept
		}
	}

	if evicted > 0 {
		s.logger.Debug("Evicted expired fingerprint entries", zap.Int("evicted_keys", evicted))
	}
	return evicted, nil
}

// Stop stops the background retention sweep
func (s *MemoryStore) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *MemoryStore) expired(record *core.FingerprintRecord, now time.Time) bool {
	return now.Sub(record.RecordedAt) > s.retention
}

func (s *MemoryStore) liveRecords(records []*core.FingerprintRecord) []*core.FingerprintRecord {
	now := time.Now()
	out := make([]*core.FingerprintRecord, 0, len(records))
	for _, record := range records {
		if !s.expired(record, now) {
			out = append(out, record)
		}
	}
	return out
}

func (s *MemoryStore) pruneExpired(records []*core.FingerprintRecord, now time.Time) []*core.FingerprintRecord {
	kept := records[:0]
	for _, record := range records {
		if !s.expired(record, now) {
			kept = append(kept, record)
		}
	}
	return kept
}

func (s *MemoryStore) startCleanupTask() {
	ticker := time.NewTicker(s.cleanupFreq)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.Evict(context.Background(), time.Now()); err != nil {
				s.logger.Error("Failed to run retention sweep", zap.Error(err))
			}
		case <-s.stopCh:
			return
		}
	}
}
