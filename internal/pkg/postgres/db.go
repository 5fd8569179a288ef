package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/howie/coaching-transcript-tool-sub000/internal/pkg/persistence"
	"github.com/howie/coaching-transcript-tool-sub000/internal/pkg/status"
	"github.com/howie/coaching-transcript-tool-sub000/internal/pkg/utils"
)

// DB provides operations with postgresql
type DB struct {
	pool *pgxpool.Pool
}

// NewDB creates DB instance
func NewDB(pool *pgxpool.Pool) (*DB, error) {
	res := &DB{pool: pool}
	return res, nil
}

// LoadSession loads session from DB
func (db *DB) LoadSession(ctx context.Context, id string) (*persistence.Session, error) {
	var res persistence.Session
	err := db.pool.QueryRow(ctx, `SELECT id, user_id, email, audio_key, original_filename, language,
	diarization, min_speakers, max_speakers, provider, status, error, cost, duration,
	metadata, request_id, created FROM sessions
		WHERE id = $1`, id).Scan(&res.ID, &res.UserID, &res.Email, &res.AudioKey, &res.OriginalFilename,
		&res.Language, &res.Diarization, &res.MinSpeakers, &res.MaxSpeakers, &res.Provider,
		&res.Status, &res.Error, &res.Cost, &res.Duration, &res.Metadata, &res.RequestID, &res.Created)
	if err != nil {
		return nil, fmt.Errorf("can't load session: %w", err)
	}
	return &res, nil
}

// UpdateSessionStatus moves session to a new lifecycle state
func (db *DB) UpdateSessionStatus(ctx context.Context, id string, st status.Status) error {
	rows, err := db.pool.Exec(ctx, `UPDATE sessions SET status = $2, updated = $3 WHERE id = $1`,
		id, st.String(), time.Now())
	if err != nil {
		return fmt.Errorf("can't update session: %w", err)
	}
	if rows.RowsAffected() != 1 {
		return fmt.Errorf("can't update session, no record found")
	}
	return nil
}

// InsertStatus inserts processing status row
func (db *DB) InsertStatus(ctx context.Context, item *persistence.Status) error {
	rows, err := db.pool.Query(ctx, `INSERT INTO processing_status(id, status, progress, message, started, created)
	VALUES($1, $2, $3, $4, $5, $6)`, item.ID, item.Status, item.Progress, item.Message, item.Started, time.Now())
	if err != nil {
		return fmt.Errorf("can't insert status: %w", err)
	}
	defer rows.Close()
	return nil
}

// LoadStatus loads processing status, nil without error when missing
func (db *DB) LoadStatus(ctx context.Context, id string) (*persistence.Status, error) {
	var res persistence.Status
	err := db.pool.QueryRow(ctx, `SELECT id, status, progress, message, error, error_code,
	duration_processed, duration_total, started, estimated_completion, speed, version FROM processing_status
		WHERE id = $1`, id).Scan(&res.ID, &res.Status, &res.Progress, &res.Message, &res.Error,
		&res.ErrorCode, &res.DurationProcessed, &res.DurationTotal, &res.Started,
		&res.EstimatedCompletion, &res.Speed, &res.Version)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("can't load status: %w", err)
	}
	return &res, nil
}

// UpdateStatus updates processing status using optimistic versioning
func (db *DB) UpdateStatus(ctx context.Context, item *persistence.Status) error {
	rows, err := db.pool.Exec(ctx, `UPDATE processing_status SET
	status = $3,
	progress = $4,
	message = $5,
	error = $6,
	error_code = $7,
	duration_processed = $8,
	duration_total = $9,
	estimated_completion = $10,
	speed = $11,
	updated = $12,
	version = $2 + 1
	WHERE id = $1 and version = $2`, item.ID, item.Version, item.Status,
		item.Progress, item.Message, item.Error, item.ErrorCode, item.DurationProcessed,
		item.DurationTotal, item.EstimatedCompletion, item.Speed, time.Now())
	if err != nil {
		return fmt.Errorf("can't update status: %w", err)
	}
	if rows.RowsAffected() != 1 {
		return fmt.Errorf("can't update status, no records found")
	}
	return nil
}

// InsertSegments bulk-appends recognized segments in one transaction
func (db *DB) InsertSegments(ctx context.Context, sessionID string, segs []persistence.Segment) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("can't begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	now := time.Now()
	_, err = tx.CopyFrom(ctx, pgx.Identifier{"segments"},
		[]string{"session_id", "speaker", "start_sec", "end_sec", "content", "confidence", "created"},
		pgx.CopyFromSlice(len(segs), func(i int) ([]any, error) {
			s := segs[i]
			return []any{sessionID, s.Speaker, s.Start, s.End, s.Content, s.Confidence, now}, nil
		}))
	if err != nil {
		return fmt.Errorf("can't insert segments: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("can't commit segments: %w", err)
	}
	return nil
}

// CountSegments returns persisted segment count for a session
func (db *DB) CountSegments(ctx context.Context, sessionID string) (int, error) {
	var res int
	err := db.pool.QueryRow(ctx, `SELECT count(*) FROM segments WHERE session_id = $1`, sessionID).Scan(&res)
	if err != nil {
		return 0, fmt.Errorf("can't count segments: %w", err)
	}
	return res, nil
}

// CompleteSession marks session and status COMPLETED in one transaction
func (db *DB) CompleteSession(ctx context.Context, id string, cost, duration float64, metadata map[string]string) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("can't begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	now := time.Now()
	rows, err := tx.Exec(ctx, `UPDATE sessions SET status = $2, cost = $3, duration = $4,
	metadata = $5, error = NULL, updated = $6 WHERE id = $1`,
		id, status.Completed.String(), cost, duration, metadata, now)
	if err != nil {
		return fmt.Errorf("can't update session: %w", err)
	}
	if rows.RowsAffected() != 1 {
		return fmt.Errorf("can't update session, no record found")
	}
	_, err = tx.Exec(ctx, `UPDATE processing_status SET status = $2, progress = 100,
	message = $3, duration_processed = $4, duration_total = $4, updated = $5, version = version + 1
	WHERE id = $1`, id, status.Completed.String(), "Transcription completed", duration, now)
	if err != nil {
		return fmt.Errorf("can't update status: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("can't commit: %w", err)
	}
	return nil
}

// FailSession writes the failure to both session and status rows
// within the same transaction
func (db *DB) FailSession(ctx context.Context, id, errMsg string, errCode status.ErrCode) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("can't begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	now := time.Now()
	rows, err := tx.Exec(ctx, `UPDATE sessions SET status = $2, error = $3, updated = $4 WHERE id = $1`,
		id, status.Failed.String(), utils.ToSQLStr(errMsg), now)
	if err != nil {
		return fmt.Errorf("can't update session: %w", err)
	}
	if rows.RowsAffected() != 1 {
		return fmt.Errorf("can't update session, no record found")
	}
	_, err = tx.Exec(ctx, `UPDATE processing_status SET status = $2, error = $3, error_code = $4,
	updated = $5, version = version + 1 WHERE id = $1`,
		id, status.Failed.String(), utils.ToSQLStr(errMsg), utils.ToSQLStr(errCode.String()), now)
	if err != nil {
		return fmt.Errorf("can't update status: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("can't commit: %w", err)
	}
	return nil
}

// InsertUsage appends a usage ledger record
func (db *DB) InsertUsage(ctx context.Context, item *persistence.UsageRecord) error {
	rows, err := db.pool.Query(ctx, `INSERT INTO usage_records(id, session_id, user_id, provider, duration, cost, created)
	VALUES($1, $2, $3, $4, $5, $6, $7)`, item.ID, item.SessionID, item.UserID, item.Provider,
		item.Duration, item.Cost, time.Now())
	if err != nil {
		return fmt.Errorf("can't insert usage record: %w", err)
	}
	defer rows.Close()
	return nil
}

// LockEmailTable marks an email of msgType as taken for sending,
// fails if it was already sent or is being sent
func (db *DB) LockEmailTable(ctx context.Context, id, msgType string) error {
	rows, err := db.pool.Exec(ctx, `INSERT INTO email_lock(id, msg_type, status, created)
	VALUES($1, $2, 1, $3) ON CONFLICT (id, msg_type) DO NOTHING`, id, msgType, time.Now())
	if err != nil {
		return fmt.Errorf("can't lock email table: %w", err)
	}
	if rows.RowsAffected() != 1 {
		return fmt.Errorf("already locked")
	}
	return nil
}

// UnLockEmailTable drops the lock on failure (value 0) or
// marks the email as sent (value 2)
func (db *DB) UnLockEmailTable(ctx context.Context, id, msgType string, value *int) error {
	if value == nil || *value == 0 {
		if _, err := db.pool.Exec(ctx, `DELETE FROM email_lock WHERE id = $1 AND msg_type = $2`,
			id, msgType); err != nil {
			return fmt.Errorf("can't unlock email table: %w", err)
		}
		return nil
	}
	if _, err := db.pool.Exec(ctx, `UPDATE email_lock SET status = $3 WHERE id = $1 AND msg_type = $2`,
		id, msgType, *value); err != nil {
		return fmt.Errorf("can't unlock email table: %w", err)
	}
	return nil
}

// Live returns no error if db is reachable and initialized
func (db *DB) Live(ctx context.Context) error {
	var exists bool
	if err := db.pool.QueryRow(ctx, `SELECT EXISTS (SELECT FROM pg_tables WHERE tablename = 'gue_jobs')`).Scan(&exists); err != nil {
		return fmt.Errorf("can't check table: %w", err)
	}
	if !exists {
		return fmt.Errorf("no migration done")
	}
	return nil
}

// IsIntegrityViolation indicates a constraint/integrity failure,
// such writes must not be retried
func IsIntegrityViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "23")
}
