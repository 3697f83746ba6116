package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mikey/mail-triage/internal/core"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Key prefixes namespacing triage data in Redis
const (
	redisFingerprintPrefix = "triage:fp:"
	redisRecordPrefix      = "triage:rec:"
	redisSenderPrefix      = "triage:sender:"
	redisSubjectPrefix     = "triage:subject:"
	redisCCGroupPrefix     = "triage:cc:"
)

// RedisStore is a Redis implementation of the FingerprintStore interface for
// sharing the seen-message index between instances. Identity admission uses
// SETNX so concurrent inserts of the same message admit exactly one record;
// retention is enforced by key TTLs rather than an explicit sweep.
type RedisStore struct {
	rdb       *redis.Client
	logger    *zap.Logger
	retention time.Duration
}

// storedRecord is the JSON shape of a record in Redis
type storedRecord struct {
	IdentityFp   string    `json:"identity_fp,omitempty"`
	ContentFp    string    `json:"content_fp"`
	RecipientFp  string    `json:"recipient_fp,omitempty"`
	CleanSubject string    `json:"clean_subject,omitempty"`
	MessageID    string    `json:"message_id,omitempty"`
	ThreadID     string    `json:"thread_id,omitempty"`
	From         string    `json:"from"`
	To           []string  `json:"to,omitempty"`
	Cc           []string  `json:"cc,omitempty"`
	Subject      string    `json:"subject,omitempty"`
	Body         string    `json:"body,omitempty"`
	ReceivedAt   time.Time `json:"received_at"`
	FromSelf     bool      `json:"from_self,omitempty"`
	RecordedAt   time.Time `json:"recorded_at"`
}

// NewRedisStore creates a fingerprint store backed by Redis
func NewRedisStore(rdb *redis.Client, logger *zap.Logger, retention time.Duration) *RedisStore {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &RedisStore{
		rdb:       rdb,
		logger:    logger,
		retention: retention,
	}
}

// Lookup finds the record indexed under a fingerprint of any kind
func (s *RedisStore) Lookup(ctx context.Context, fingerprint string) (*core.FingerprintRecord, bool, error) {
	if fingerprint == "" {
		return nil, false, nil
	}

	recordKey, err := s.rdb.Get(ctx, redisFingerprintPrefix+fingerprint).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("fingerprint GET: %w", err)
	}

	record, err := s.fetchRecord(ctx, recordKey)
	if err != nil {
		return nil, false, err
	}
	if record == nil {
		// Record TTL ran out before the fingerprint key's
		return nil, false, nil
	}
	return record, true, nil
}

// Insert records a message under all of its fingerprints. SETNX on the
// identity key decides admission atomically.
func (s *RedisStore) Insert(ctx context.Context, msg *core.Email) (*core.FingerprintRecord, bool, error) {
	fps := core.FingerprintEmail(msg)

	recordKey := redisRecordPrefix + fps.Content

	admissionFp := fps.Identity
	if admissionFp == "" {
		admissionFp = fps.Content
	}

	// SET NX = set only if the key does not exist; returns true if set
	set, err := s.rdb.SetNX(ctx, redisFingerprintPrefix+admissionFp, recordKey, s.retention).Result()
	if err != nil {
		return nil, false, fmt.Errorf("admission SETNX: %w", err)
	}
	if !set {
		existingKey, err := s.rdb.Get(ctx, redisFingerprintPrefix+admissionFp).Result()
		if err != nil && err != redis.Nil {
			return nil, false, fmt.Errorf("existing fingerprint GET: %w", err)
		}
		existing, err := s.fetchRecord(ctx, existingKey)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			if fps.Identity != "" && existing.Message.MessageID != msg.MessageID {
				return nil, false, fmt.Errorf("%w: identity fingerprint %q maps to message %q",
					core.ErrStoreCorruption, fps.Identity, existing.Message.MessageID)
			}
			return existing, false, nil
		}
		// The record behind the fingerprint expired; fall through and rewrite it
	}

	recordedAt := time.Now()
	stored := storedRecord{
		IdentityFp:   fps.Identity,
		ContentFp:    fps.Content,
		RecipientFp:  fps.RecipientSet,
		CleanSubject: fps.CleanSubject,
		MessageID:    msg.MessageID,
		ThreadID:     msg.ThreadID,
		From:         msg.From,
		To:           msg.To,
		Cc:           msg.Cc,
		Subject:      msg.Subject,
		Body:         msg.Body,
		ReceivedAt:   msg.ReceivedAt,
		FromSelf:     msg.FromSelf,
		RecordedAt:   recordedAt,
	}
	payload, err := json.Marshal(stored)
	if err != nil {
		return nil, false, fmt.Errorf("record marshal: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, recordKey, payload, s.retention)
	pipe.SetNX(ctx, redisFingerprintPrefix+fps.Content, recordKey, s.retention)
	if fps.RecipientSet != "" {
		pipe.SetNX(ctx, redisFingerprintPrefix+fps.RecipientSet, recordKey, s.retention)
		ccKey := redisCCGroupPrefix + fps.RecipientSet
		pipe.RPush(ctx, ccKey, recordKey)
		pipe.Expire(ctx, ccKey, s.retention)
	}
	senderKey := redisSenderPrefix + msg.From
	pipe.RPush(ctx, senderKey, recordKey)
	pipe.Expire(ctx, senderKey, s.retention)
	if fps.CleanSubject != "" {
		subjectKey := redisSubjectPrefix + fps.CleanSubject
		pipe.RPush(ctx, subjectKey, recordKey)
		pipe.Expire(ctx, subjectKey, s.retention)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, false, fmt.Errorf("record pipeline: %w", err)
	}

	return stored.toRecord(), true, nil
}

// BySender returns live records previously seen from the given sender
func (s *RedisStore) BySender(ctx context.Context, sender string) ([]*core.FingerprintRecord, error) {
	return s.bucketRecords(ctx, redisSenderPrefix+sender)
}

// BySubject returns live records whose clean subject matches, oldest first
func (s *RedisStore) BySubject(ctx context.Context, cleanSubject string) ([]*core.FingerprintRecord, error) {
	return s.bucketRecords(ctx, redisSubjectPrefix+cleanSubject)
}

// CCGroup returns live records sharing the recipient-set fingerprint, oldest first
func (s *RedisStore) CCGroup(ctx context.Context, recipientFingerprint string) ([]*core.FingerprintRecord, error) {
	if recipientFingerprint == "" {
		return nil, nil
	}
	return s.bucketRecords(ctx, redisCCGroupPrefix+recipientFingerprint)
}

// Evict is a no-op for Redis: retention rides on key TTLs. Dead bucket
// entries are skipped on read.
func (s *RedisStore) Evict(ctx context.Context, now time.Time) (int, error) {
	s.logger.Debug("Redis store eviction delegated to key TTLs")
	return 0, nil
}

func (s *RedisStore) bucketRecords(ctx context.Context, bucketKey string) ([]*core.FingerprintRecord, error) {
	recordKeys, err := s.rdb.LRange(ctx, bucketKey, 0, -1).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("bucket LRANGE: %w", err)
	}

	var records []*core.FingerprintRecord
	for _, key := range recordKeys {
		record, err := s.fetchRecord(ctx, key)
		if err != nil {
			return nil, err
		}
		if record != nil {
			records = append(records, record)
		}
	}
	return records, nil
}

func (s *RedisStore) fetchRecord(ctx context.Context, recordKey string) (*core.FingerprintRecord, error) {
	if recordKey == "" {
		return nil, nil
	}
	payload, err := s.rdb.Get(ctx, recordKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("record GET: %w", err)
	}

	var stored storedRecord
	if err := json.Unmarshal(payload, &stored); err != nil {
		return nil, fmt.Errorf("record unmarshal: %w", err)
	}
	return stored.toRecord(), nil
}

func (r storedRecord) toRecord() *core.FingerprintRecord {
	return &core.FingerprintRecord{
		IdentityFingerprint:  r.IdentityFp,
		ContentFingerprint:   r.ContentFp,
		RecipientFingerprint: r.RecipientFp,
		CleanSubject:         r.CleanSubject,
		Message: &core.Email{
			MessageID:  r.MessageID,
			ThreadID:   r.ThreadID,
			From:       r.From,
			To:         r.To,
			Cc:         r.Cc,
			Subject:    r.Subject,
			Body:       r.Body,
			ReceivedAt: r.ReceivedAt,
			FromSelf:   r.FromSelf,
		},
		RecordedAt: r.RecordedAt,
	}
}
