package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const submissionColumns = `
  id, profile, origin, status, attempt, max_attempts, dedupe_key,
  created_at, started_at, completed_at, next_retry_at, last_error`

type Queue struct {
	db *sql.DB
}

func New(db *sql.DB) *Queue {
	return &Queue{db: db}
}

// Enqueue inserts a new queued submission. If the request carries a dedupe
// key that any existing submission holds, the insert is dropped and a
// DedupeDropError identifies the existing row. Terminal rows hold their key
// too: a daily check-in that already ran to completion, succeeded or not,
// must not start a fresh attempt series the same day.
func (q *Queue) Enqueue(ctx context.Context, req EnqueueRequest) (string, error) {
	if req.Profile == "" {
		return "", fmt.Errorf("profile is empty")
	}
	if req.Origin == "" {
		return "", fmt.Errorf("origin is empty")
	}

	id := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339Nano)

	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if req.DedupeKey != nil && *req.DedupeKey != "" {
		var existingID string
		err := tx.QueryRowContext(ctx, `
SELECT id FROM submission_queue
WHERE dedupe_key = ?
LIMIT 1;
`, *req.DedupeKey).Scan(&existingID)
		if err == nil {
			return "", &DedupeDropError{DedupeKey: *req.DedupeKey, ExistingID: existingID}
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("dedupe check: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO submission_queue(
  id, profile, origin, status, attempt, max_attempts, dedupe_key, created_at
)
VALUES(?, ?, ?, ?, 1, ?, ?, ?);
`, id, req.Profile, req.Origin, StatusQueued, maxAttempts, req.DedupeKey, now)
	if err != nil {
		return "", fmt.Errorf("enqueue submission: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit tx: %w", err)
	}
	return id, nil
}

// Dequeue claims the oldest due queued submission and marks it running.
// Returns (nil, nil) if nothing is due.
func (q *Queue) Dequeue(ctx context.Context) (*Submission, error) {
	now := time.Now().UTC()
	nowS := now.Format(time.RFC3339Nano)

	row := q.db.QueryRowContext(ctx, `
WITH next AS (
  SELECT id
  FROM submission_queue
  WHERE status = ? AND (next_retry_at IS NULL OR next_retry_at <= ?)
  ORDER BY created_at ASC, rowid ASC
  LIMIT 1
)
UPDATE submission_queue
SET status = ?, started_at = ?
WHERE id IN (SELECT id FROM next)
RETURNING`+submissionColumns+`;
`, StatusQueued, nowS, StatusRunning, nowS)

	sub, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue submission: %w", err)
	}
	return sub, nil
}

// CompleteAttempt records the outcome of one attempt. A nil attemptErr marks
// the submission succeeded. On failure, the submission is requeued with the
// attempt counter bumped and next_retry_at set backoff in the future, until
// max_attempts is exhausted and it goes failed. The resulting status is
// returned so callers can tell a retry from a terminal failure.
func (q *Queue) CompleteAttempt(ctx context.Context, id string, attemptErr *string, backoff time.Duration) (Status, error) {
	if id == "" {
		return "", fmt.Errorf("submission id is empty")
	}

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var attempt, maxAttempts int
	err = tx.QueryRowContext(ctx, `
SELECT attempt, max_attempts FROM submission_queue WHERE id = ?;
`, id).Scan(&attempt, &maxAttempts)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrSubmissionNotFound
	}
	if err != nil {
		return "", fmt.Errorf("load submission for completion: %w", err)
	}

	now := time.Now().UTC()
	nowS := now.Format(time.RFC3339Nano)

	var status Status
	switch {
	case attemptErr == nil:
		status = StatusSucceeded
		_, err = tx.ExecContext(ctx, `
UPDATE submission_queue
SET status = ?, completed_at = ?, next_retry_at = NULL, last_error = NULL
WHERE id = ?;
`, status, nowS, id)
	case attempt < maxAttempts:
		status = StatusQueued
		retryAt := now.Add(backoff).Format(time.RFC3339Nano)
		_, err = tx.ExecContext(ctx, `
UPDATE submission_queue
SET status = ?, attempt = attempt + 1, started_at = NULL, next_retry_at = ?, last_error = ?
WHERE id = ?;
`, status, retryAt, *attemptErr, id)
	default:
		status = StatusFailed
		_, err = tx.ExecContext(ctx, `
UPDATE submission_queue
SET status = ?, completed_at = ?, last_error = ?
WHERE id = ?;
`, status, nowS, *attemptErr, id)
	}
	if err != nil {
		return "", fmt.Errorf("update submission completion: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit tx: %w", err)
	}
	return status, nil
}

// RecoverOrphans requeues submissions left running by a crashed process.
// Rows out of attempts go dead instead. Returns how many rows were touched.
func (q *Queue) RecoverOrphans(ctx context.Context) (int, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	nowS := time.Now().UTC().Format(time.RFC3339Nano)

	requeued, err := tx.ExecContext(ctx, `
UPDATE submission_queue
SET status = ?, attempt = attempt + 1, started_at = NULL,
    last_error = 'recovered after unclean shutdown'
WHERE status = ? AND attempt < max_attempts;
`, StatusQueued, StatusRunning)
	if err != nil {
		return 0, fmt.Errorf("requeue orphaned submissions: %w", err)
	}

	died, err := tx.ExecContext(ctx, `
UPDATE submission_queue
SET status = ?, completed_at = ?,
    last_error = 'max attempts exhausted during crash recovery'
WHERE status = ?;
`, StatusDead, nowS, StatusRunning)
	if err != nil {
		return 0, fmt.Errorf("kill exhausted orphaned submissions: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	nRequeued, _ := requeued.RowsAffected()
	nDied, _ := died.RowsAffected()
	return int(nRequeued + nDied), nil
}

// PruneTerminal deletes terminal submissions older than retention. This keeps
// the queue a transient coordination log rather than a history store.
func (q *Queue) PruneTerminal(ctx context.Context, retention time.Duration) error {
	cutoff := time.Now().UTC().Add(-retention).Format(time.RFC3339Nano)
	_, err := q.db.ExecContext(ctx, `
DELETE FROM submission_queue
WHERE status IN (?, ?, ?) AND completed_at IS NOT NULL AND completed_at < ?;
`, StatusSucceeded, StatusFailed, StatusDead, cutoff)
	if err != nil {
		return fmt.Errorf("prune terminal submissions: %w", err)
	}
	return nil
}

// OutstandingFor counts non-terminal submissions for a profile.
func (q *Queue) OutstandingFor(ctx context.Context, profile string) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM submission_queue WHERE profile = ? AND status IN (?, ?);
`, profile, StatusQueued, StatusRunning).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count outstanding submissions: %w", err)
	}
	return n, nil
}

// FindByStatus returns all submissions with the given status, oldest first.
func (q *Queue) FindByStatus(ctx context.Context, status Status) ([]*Submission, error) {
	rows, err := q.db.QueryContext(ctx, `
SELECT`+submissionColumns+`
FROM submission_queue
WHERE status = ?
ORDER BY created_at ASC, rowid ASC;
`, status)
	if err != nil {
		return nil, fmt.Errorf("find submissions by status: %w", err)
	}
	defer rows.Close()
	return collectSubmissions(rows)
}

// ListRecent returns the newest submissions regardless of status.
func (q *Queue) ListRecent(ctx context.Context, limit int) ([]*Submission, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := q.db.QueryContext(ctx, `
SELECT`+submissionColumns+`
FROM submission_queue
ORDER BY created_at DESC, rowid DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent submissions: %w", err)
	}
	defer rows.Close()
	return collectSubmissions(rows)
}

// Get loads a single submission by id.
func (q *Queue) Get(ctx context.Context, id string) (*Submission, error) {
	row := q.db.QueryRowContext(ctx, `
SELECT`+submissionColumns+`
FROM submission_queue
WHERE id = ?;
`, id)
	sub, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSubmissionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get submission: %w", err)
	}
	return sub, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row rowScanner) (*Submission, error) {
	var (
		s            Submission
		statusS      string
		dedupeKey    sql.NullString
		createdAtS   string
		startedAtS   sql.NullString
		completedAtS sql.NullString
		nextRetryAtS sql.NullString
		lastError    sql.NullString
	)
	err := row.Scan(
		&s.ID, &s.Profile, &s.Origin, &statusS, &s.Attempt, &s.MaxAttempts, &dedupeKey,
		&createdAtS, &startedAtS, &completedAtS, &nextRetryAtS, &lastError,
	)
	if err != nil {
		return nil, err
	}

	s.Status = Status(statusS)
	if dedupeKey.Valid {
		s.DedupeKey = &dedupeKey.String
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAtS); err == nil {
		s.CreatedAt = t
	}
	if startedAtS.Valid {
		if t, err := time.Parse(time.RFC3339Nano, startedAtS.String); err == nil {
			s.StartedAt = &t
		}
	}
	if completedAtS.Valid {
		if t, err := time.Parse(time.RFC3339Nano, completedAtS.String); err == nil {
			s.CompletedAt = &t
		}
	}
	if nextRetryAtS.Valid {
		if t, err := time.Parse(time.RFC3339Nano, nextRetryAtS.String); err == nil {
			s.NextRetryAt = &t
		}
	}
	if lastError.Valid {
		s.LastError = &lastError.String
	}
	return &s, nil
}

func collectSubmissions(rows *sql.Rows) ([]*Submission, error) {
	var subs []*Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}
