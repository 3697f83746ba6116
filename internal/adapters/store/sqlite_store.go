package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/mikey/mail-triage/internal/core"
	"go.uber.org/zap"
)

// SQLiteStore is a SQLite implementation of the FingerprintStore interface
// for single-node durable retention across restarts
type SQLiteStore struct {
	db          *sql.DB
	logger      *zap.Logger
	retention   time.Duration
	cleanupFreq time.Duration
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewSQLiteStore creates a new SQLite fingerprint store
func NewSQLiteStore(dbPath string, logger *zap.Logger, retention, cleanupFreq time.Duration) (*SQLiteStore, error) {
	if retention <= 0 {
		retention = DefaultRetention
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS fingerprint_records (
			identity_fp TEXT,
			content_fp TEXT NOT NULL,
			recipient_fp TEXT,
			clean_subject TEXT,
			message_id TEXT,
			thread_id TEXT,
			sender TEXT NOT NULL,
			to_list TEXT,
			cc_list TEXT,
			subject TEXT,
			body TEXT,
			received_at TIMESTAMP,
			from_self BOOLEAN,
			recorded_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	for _, stmt := range []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_identity_fp ON fingerprint_records(identity_fp) WHERE identity_fp != ''`,
		`CREATE INDEX IF NOT EXISTS idx_content_fp ON fingerprint_records(content_fp)`,
		`CREATE INDEX IF NOT EXISTS idx_recipient_fp ON fingerprint_records(recipient_fp)`,
		`CREATE INDEX IF NOT EXISTS idx_sender ON fingerprint_records(sender)`,
		`CREATE INDEX IF NOT EXISTS idx_clean_subject ON fingerprint_records(clean_subject)`,
		`CREATE INDEX IF NOT EXISTS idx_recorded_at ON fingerprint_records(recorded_at)`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create index: %w", err)
		}
	}

	s := &SQLiteStore{
		db:          db,
		logger:      logger,
		retention:   retention,
		cleanupFreq: cleanupFreq,
		stopCh:      make(chan struct{}),
	}

	if cleanupFreq > 0 {
		go s.startCleanupTask()
	}

	return s, nil
}

// Lookup finds the record indexed under a fingerprint of any kind
func (s *SQLiteStore) Lookup(ctx context.Context, fingerprint string) (*core.FingerprintRecord, bool, error) {
	if fingerprint == "" {
		return nil, false, nil
	}

	row := s.db.QueryRowContext(ctx, selectColumns+`
		FROM fingerprint_records
		WHERE (identity_fp = ? OR content_fp = ? OR recipient_fp = ?)
		  AND recorded_at > ?
		ORDER BY recorded_at ASC
		LIMIT 1
	`, fingerprint, fingerprint, fingerprint, s.cutoff(time.Now()))

	record, err := scanRecord(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to query fingerprint: %w", err)
	}
	return record, true, nil
}

// Insert records a message under all of its fingerprints. The check and the
// insert run in one transaction so admission stays at-most-once under
// concurrent retries.
func (s *SQLiteStore) Insert(ctx context.Context, msg *core.Email) (*core.FingerprintRecord, bool, error) {
	fps := core.FingerprintEmail(msg)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	checkFp := fps.Identity
	checkColumn := "identity_fp"
	if checkFp == "" {
		checkFp = fps.Content
		checkColumn = "content_fp"
	}

	row := tx.QueryRowContext(ctx, selectColumns+`
		FROM fingerprint_records WHERE `+checkColumn+` = ? LIMIT 1
	`, checkFp)
	existing, err := scanRecord(row)
	if err != nil && err != sql.ErrNoRows {
		return nil, false, fmt.Errorf("failed to check existing record: %w", err)
	}
	if existing != nil {
		if fps.Identity != "" && existing.Message.MessageID != msg.MessageID {
			return nil, false, fmt.Errorf("%w: identity fingerprint %q maps to message %q",
				core.ErrStoreCorruption, fps.Identity, existing.Message.MessageID)
		}
		return existing, false, nil
	}

	recordedAt := time.Now()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO fingerprint_records
			(identity_fp, content_fp, recipient_fp, clean_subject, message_id, thread_id,
			 sender, to_list, cc_list, subject, body, received_at, from_self, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, fps.Identity, fps.Content, fps.RecipientSet, fps.CleanSubject, msg.MessageID, msg.ThreadID,
		msg.From, joinList(msg.To), joinList(msg.Cc), msg.Subject, msg.Body,
		msg.ReceivedAt.UTC().Format(time.RFC3339), msg.FromSelf, recordedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit insert: %w", err)
	}

	return &core.FingerprintRecord{
		IdentityFingerprint:  fps.Identity,
		ContentFingerprint:   fps.Content,
		RecipientFingerprint: fps.RecipientSet,
		CleanSubject:         fps.CleanSubject,
		Message:              msg,
		RecordedAt:           recordedAt,
	}, true, nil
}

// BySender returns live records previously seen from the given sender
func (s *SQLiteStore) BySender(ctx context.Context, sender string) ([]*core.FingerprintRecord, error) {
	return s.queryRecords(ctx, "sender", sender)
}

// BySubject returns live records whose clean subject matches, oldest first
func (s *SQLiteStore) BySubject(ctx context.Context, cleanSubject string) ([]*core.FingerprintRecord, error) {
	return s.queryRecords(ctx, "clean_subject", cleanSubject)
}

// CCGroup returns live records sharing the recipient-set fingerprint, oldest first
func (s *SQLiteStore) CCGroup(ctx context.Context, recipientFingerprint string) ([]*core.FingerprintRecord, error) {
	if recipientFingerprint == "" {
		return nil, nil
	}
	return s.queryRecords(ctx, "recipient_fp", recipientFingerprint)
}

// Evict removes records older than the retention window
func (s *SQLiteStore) Evict(ctx context.Context, now time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM fingerprint_records WHERE recorded_at <= ?
	`, s.cutoff(now))
	if err != nil {
		return 0, fmt.Errorf("failed to evict expired records: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		s.logger.Warn("Failed to get rows affected during eviction", zap.Error(err))
		return 0, nil
	}
	if rowsAffected > 0 {
		s.logger.Debug("Evicted expired fingerprint records", zap.Int64("evicted", rowsAffected))
	}
	return int(rowsAffected), nil
}

// Stop stops the background sweep and closes the database
func (s *SQLiteStore) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close SQLite database", zap.Error(err))
	}
}

func (s *SQLiteStore) queryRecords(ctx context.Context, column, value string) ([]*core.FingerprintRecord, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+`
		FROM fingerprint_records
		WHERE `+column+` = ? AND recorded_at > ?
		ORDER BY recorded_at ASC
	`, value, s.cutoff(time.Now()))
	if err != nil {
		return nil, fmt.Errorf("failed to query by %s: %w", column, err)
	}
	defer rows.Close()

	var records []*core.FingerprintRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) cutoff(now time.Time) string {
	return now.Add(-s.retention).UTC().Format(time.RFC3339)
}

func (s *SQLiteStore) startCleanupTask() {
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

const selectColumns = `
	SELECT identity_fp, content_fp, recipient_fp, clean_subject, message_id, thread_id,
	       sender, to_list, cc_list, subject, body, received_at, from_self, recorded_at
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*core.FingerprintRecord, error) {
	var identityFp, contentFp, recipientFp, cleanSubject string
	var messageID, threadID, sender, toList, ccList, subject, body string
	var receivedAt, recordedAt string
	var fromSelf bool

	err := row.Scan(&identityFp, &contentFp, &recipientFp, &cleanSubject, &messageID, &threadID,
		&sender, &toList, &ccList, &subject, &body, &receivedAt, &fromSelf, &recordedAt)
	if err != nil {
		return nil, err
	}

	received, err := time.Parse(time.RFC3339, receivedAt)
	if err != nil {
		received = time.Time{}
	}
	recorded, err := time.Parse(time.RFC3339, recordedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse recorded_at: %w", err)
	}

	return &core.FingerprintRecord{
		IdentityFingerprint:  identityFp,
		ContentFingerprint:   contentFp,
		RecipientFingerprint: recipientFp,
		CleanSubject:         cleanSubject,
		Message: &core.Email{
			MessageID:  messageID,
			ThreadID:   threadID,
			From:       sender,
			To:         splitList(toList),
			Cc:         splitList(ccList),
			Subject:    subject,
			Body:       body,
			ReceivedAt: received,
			FromSelf:   fromSelf,
		},
		RecordedAt: recorded,
	}, nil
}

func joinList(items []string) string {
	return strings.Join(items, "\n")
}

func splitList(joined string) []string {
	if joined == "" {
		return nil
	}
	return strings.Split(joined, "\n")
}
