package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/mikey/mail-triage/internal/core"
	"go.uber.org/zap"
)

// MySQLStore is a MySQL implementation of the FingerprintStore interface,
// for sharing the seen-message index between instances
type MySQLStore struct {
	db          *sql.DB
	logger      *zap.Logger
	retention   time.Duration
	cleanupFreq time.Duration
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewMySQLStore creates a new MySQL fingerprint store
func NewMySQLStore(dsn string, logger *zap.Logger, retention, cleanupFreq time.Duration) (*MySQLStore, error) {
	if retention <= 0 {
		retention = DefaultRetention
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to MySQL database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS fingerprint_records (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			identity_fp VARCHAR(64),
			content_fp VARCHAR(64) NOT NULL,
			recipient_fp VARCHAR(64),
			clean_subject VARCHAR(512),
			message_id VARCHAR(512),
			thread_id VARCHAR(512),
			sender VARCHAR(255) NOT NULL,
			to_list TEXT,
			cc_list TEXT,
			subject TEXT,
			body MEDIUMTEXT,
			received_at VARCHAR(40),
			from_self BOOLEAN,
			recorded_at VARCHAR(40) NOT NULL,
			INDEX idx_identity_fp (identity_fp),
			INDEX idx_content_fp (content_fp),
			INDEX idx_recipient_fp (recipient_fp),
			INDEX idx_sender (sender),
			INDEX idx_clean_subject (clean_subject(191)),
			INDEX idx_recorded_at (recorded_at)
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	s := &MySQLStore{
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
func (s *MySQLStore) Lookup(ctx context.Context, fingerprint string) (*core.FingerprintRecord, bool, error) {
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

// Insert records a message under all of its fingerprints. The existence
// check locks the matched rows (SELECT ... FOR UPDATE) so concurrent
// inserts of the same identity admit exactly one record.
func (s *MySQLStore) Insert(ctx context.Context, msg *core.Email) (*core.FingerprintRecord, bool, error) {
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
		FROM fingerprint_records WHERE `+checkColumn+` = ? LIMIT 1 FOR UPDATE
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
func (s *MySQLStore) BySender(ctx context.Context, sender string) ([]*core.FingerprintRecord, error) {
	return s.queryRecords(ctx, "sender", sender)
}

// BySubject returns live records whose clean subject matches, oldest first
func (s *MySQLStore) BySubject(ctx context.Context, cleanSubject string) ([]*core.FingerprintRecord, error) {
	return s.queryRecords(ctx, "clean_subject", cleanSubject)
}

// CCGroup returns live records sharing the recipient-set fingerprint, oldest first
func (s *MySQLStore) CCGroup(ctx context.Context, recipientFingerprint string) ([]*core.FingerprintRecord, error) {
	if recipientFingerprint == "" {
		return nil, nil
	}
	return s.queryRecords(ctx, "recipient_fp", recipientFingerprint)
}

// Evict removes records older than the retention window
func (s *MySQLStore) Evict(ctx context.Context, now time.Time) (int, error) {
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
func (s *MySQLStore) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close MySQL database", zap.Error(err))
	}
}

func (s *MySQLStore) queryRecords(ctx context.Context, column, value string) ([]*core.FingerprintRecord, error) {
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

func (s *MySQLStore) cutoff(now time.Time) string {
	return now.Add(-s.retention).UTC().Format(time.RFC3339)
}

func (s *MySQLStore) startCleanupTask() {
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
