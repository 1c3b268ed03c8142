package dialer

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres repositories.
//
// Assumed tables:
// - dial_sessions (id, rep_id, status, conference_id, calls_made,
//   calls_connected, started_at, ended_at)
//   with a partial unique index enforcing one live session per rep:
//   UNIQUE (rep_id) WHERE status <> 'ended'
// - dial_queue_items (id, session_id, lead_id, priority, status, enqueued_at)
//   with UNIQUE (session_id, lead_id) WHERE status <> 'removed'. Claimed
//   items are consumed as soon as the dial attempt is made, so the index only
//   blocks duplicates while the lead is actually waiting.
// - call_records (id, session_id, lead_id, provider_call_id, status,
//   direction, dialed_at, answered_at, connected_at, ended_at, disposition)

const pgUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

type PostgresSessionRepo struct {
	db *sql.DB
}

func NewPostgresSessionRepo(db *sql.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

func (r *PostgresSessionRepo) Create(ctx context.Context, s Session) error {
	const q = `
INSERT INTO dial_sessions (id, rep_id, status, conference_id, calls_made, calls_connected, started_at, ended_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`
	_, err := r.db.ExecContext(ctx, q,
		s.ID,
		s.RepID,
		s.Status,
		s.ConferenceID,
		s.CallsMade,
		s.CallsConnected,
		s.StartedAt,
		s.EndedAt,
	)
	if isUniqueViolation(err) {
		return ErrAlreadyActive
	}
	return err
}

func (r *PostgresSessionRepo) Get(ctx context.Context, id string) (Session, error) {
	const q = `
SELECT id, rep_id, status, conference_id, calls_made, calls_connected, started_at, ended_at
FROM dial_sessions
WHERE id = $1
`
	return scanSession(r.db.QueryRowContext(ctx, q, id))
}

func (r *PostgresSessionRepo) FindActiveByRep(ctx context.Context, repID string) (Session, error) {
	const q = `
SELECT id, rep_id, status, conference_id, calls_made, calls_connected, started_at, ended_at
FROM dial_sessions
WHERE rep_id = $1 AND status <> 'ended'
LIMIT 1
`
	return scanSession(r.db.QueryRowContext(ctx, q, repID))
}

func (r *PostgresSessionRepo) UpdateStatus(ctx context.Context, id string, status SessionStatus, endedAt *time.Time) error {
	const q = `
UPDATE dial_sessions
SET status = $2, ended_at = $3
WHERE id = $1
`
	return r.execOne(ctx, q, id, status, endedAt)
}

func (r *PostgresSessionRepo) IncrementCallsMade(ctx context.Context, id string) error {
	const q = `
UPDATE dial_sessions
SET calls_made = calls_made + 1
WHERE id = $1
`
	return r.execOne(ctx, q, id)
}

func (r *PostgresSessionRepo) IncrementCallsConnected(ctx context.Context, id string) error {
	const q = `
UPDATE dial_sessions
SET calls_connected = calls_connected + 1
WHERE id = $1
`
	return r.execOne(ctx, q, id)
}

func (r *PostgresSessionRepo) execOne(ctx context.Context, q string, args ...any) error {
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresSessionRepo) ListNotEnded(ctx context.Context) ([]Session, error) {
	const q = `
SELECT id, rep_id, status, conference_id, calls_made, calls_connected, started_at, ended_at
FROM dial_sessions
WHERE status <> 'ended'
`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Session, 0)
	for rows.Next() {
		var s Session
		if err := rows.Scan(&s.ID, &s.RepID, &s.Status, &s.ConferenceID, &s.CallsMade, &s.CallsConnected, &s.StartedAt, &s.EndedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (Session, error) {
	var s Session
	if err := row.Scan(&s.ID, &s.RepID, &s.Status, &s.ConferenceID, &s.CallsMade, &s.CallsConnected, &s.StartedAt, &s.EndedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, ErrNotFound
		}
		return Session{}, err
	}
	return s, nil
}

type PostgresQueueRepo struct {
	db *sql.DB
}

func NewPostgresQueueRepo(db *sql.DB) *PostgresQueueRepo {
	return &PostgresQueueRepo{db: db}
}

func (r *PostgresQueueRepo) Insert(ctx context.Context, item QueueItem) error {
	const q = `
INSERT INTO dial_queue_items (id, session_id, lead_id, priority, status, enqueued_at)
VALUES ($1,$2,$3,$4,$5,$6)
`
	_, err := r.db.ExecContext(ctx, q,
		item.ID,
		item.SessionID,
		item.LeadID,
		item.Priority,
		item.Status,
		item.EnqueuedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateLead
	}
	return err
}

// Claim pops up to n items atomically. SKIP LOCKED keeps concurrent claimers
// from ever returning the same row.
func (r *PostgresQueueRepo) Claim(ctx context.Context, sessionID string, n int) ([]QueueItem, error) {
	if n <= 0 {
		return nil, nil
	}
	const q = `
WITH picked AS (
  SELECT id
  FROM dial_queue_items
  WHERE session_id = $1 AND status = 'queued'
  ORDER BY priority DESC, enqueued_at ASC
  LIMIT $2
  FOR UPDATE SKIP LOCKED
)
UPDATE dial_queue_items i
SET status = 'dialing'
FROM picked
WHERE i.id = picked.id
RETURNING i.id, i.session_id, i.lead_id, i.priority, i.status, i.enqueued_at
`
	rows, err := r.db.QueryContext(ctx, q, sessionID, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]QueueItem, 0, n)
	for rows.Next() {
		var it QueueItem
		if err := rows.Scan(&it.ID, &it.SessionID, &it.LeadID, &it.Priority, &it.Status, &it.EnqueuedAt); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// RETURNING order is not guaranteed; restore dequeue order.
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].Priority != out[b].Priority {
			return out[a].Priority > out[b].Priority
		}
		return out[a].EnqueuedAt.Before(out[b].EnqueuedAt)
	})
	return out, nil
}

func (r *PostgresQueueRepo) MarkRemoved(ctx context.Context, sessionID, leadID string) error {
	const q = `
UPDATE dial_queue_items
SET status = 'removed'
WHERE session_id = $1 AND lead_id = $2 AND status = 'queued'
`
	_, err := r.db.ExecContext(ctx, q, sessionID, leadID)
	return err
}

func (r *PostgresQueueRepo) Consume(ctx context.Context, itemID string) error {
	const q = `
UPDATE dial_queue_items
SET status = 'removed'
WHERE id = $1
`
	res, err := r.db.ExecContext(ctx, q, itemID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresQueueRepo) Clear(ctx context.Context, sessionID string) error {
	const q = `
UPDATE dial_queue_items
SET status = 'removed'
WHERE session_id = $1 AND status = 'queued'
`
	_, err := r.db.ExecContext(ctx, q, sessionID)
	return err
}

func (r *PostgresQueueRepo) CountQueued(ctx context.Context, sessionID string) (int, error) {
	const q = `
SELECT COUNT(*)
FROM dial_queue_items
WHERE session_id = $1 AND status = 'queued'
`
	var n int
	if err := r.db.QueryRowContext(ctx, q, sessionID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *PostgresQueueRepo) ListQueued(ctx context.Context, sessionID string) ([]QueueItem, error) {
	const q = `
SELECT id, session_id, lead_id, priority, status, enqueued_at
FROM dial_queue_items
WHERE session_id = $1 AND status = 'queued'
ORDER BY priority DESC, enqueued_at ASC
`
	rows, err := r.db.QueryContext(ctx, q, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]QueueItem, 0)
	for rows.Next() {
		var it QueueItem
		if err := rows.Scan(&it.ID, &it.SessionID, &it.LeadID, &it.Priority, &it.Status, &it.EnqueuedAt); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

type PostgresCallRepo struct {
	db *sql.DB
}

func NewPostgresCallRepo(db *sql.DB) *PostgresCallRepo {
	return &PostgresCallRepo{db: db}
}

const callColumns = `id, session_id, lead_id, provider_call_id, status, direction, dialed_at, answered_at, connected_at, ended_at, disposition`

func (r *PostgresCallRepo) Insert(ctx context.Context, rec CallRecord) error {
	const q = `
INSERT INTO call_records (` + callColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
`
	_, err := r.db.ExecContext(ctx, q,
		rec.ID,
		rec.SessionID,
		rec.LeadID,
		rec.ProviderCallID,
		rec.Status,
		rec.Direction,
		rec.DialedAt,
		rec.AnsweredAt,
		rec.ConnectedAt,
		rec.EndedAt,
		rec.Disposition,
	)
	return err
}

func (r *PostgresCallRepo) Get(ctx context.Context, id string) (CallRecord, error) {
	const q = `
SELECT ` + callColumns + `
FROM call_records
WHERE id = $1
`
	return scanCall(r.db.QueryRowContext(ctx, q, id))
}

func (r *PostgresCallRepo) FindByProviderID(ctx context.Context, providerCallID string) (CallRecord, error) {
	if providerCallID == "" {
		return CallRecord{}, ErrInvalidArgument
	}
	const q = `
SELECT ` + callColumns + `
FROM call_records
WHERE provider_call_id = $1
LIMIT 1
`
	return scanCall(r.db.QueryRowContext(ctx, q, providerCallID))
}

func (r *PostgresCallRepo) Update(ctx context.Context, rec CallRecord) error {
	const q = `
UPDATE call_records
SET provider_call_id = $2, status = $3, answered_at = $4, connected_at = $5, ended_at = $6, disposition = $7
WHERE id = $1
`
	res, err := r.db.ExecContext(ctx, q,
		rec.ID,
		rec.ProviderCallID,
		rec.Status,
		rec.AnsweredAt,
		rec.ConnectedAt,
		rec.EndedAt,
		rec.Disposition,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresCallRepo) ListBySession(ctx context.Context, sessionID string) ([]CallRecord, error) {
	const q = `
SELECT ` + callColumns + `
FROM call_records
WHERE session_id = $1
ORDER BY dialed_at ASC
`
	return r.queryCalls(ctx, q, sessionID)
}

func (r *PostgresCallRepo) CountNonTerminal(ctx context.Context, sessionID string) (int, error) {
	const q = `
SELECT COUNT(*)
FROM call_records
WHERE session_id = $1
  AND status NOT IN ('completed','failed','no_answer','busy','canceled')
`
	var n int
	if err := r.db.QueryRowContext(ctx, q, sessionID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *PostgresCallRepo) ListStaleNonTerminal(ctx context.Context, sessionID string, cutoff time.Time) ([]CallRecord, error) {
	const q = `
SELECT ` + callColumns + `
FROM call_records
WHERE session_id = $1
  AND status NOT IN ('completed','failed','no_answer','busy','canceled')
  AND dialed_at < $2
`
	return r.queryCalls(ctx, q, sessionID, cutoff)
}

func (r *PostgresCallRepo) queryCalls(ctx context.Context, q string, args ...any) ([]CallRecord, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]CallRecord, 0)
	for rows.Next() {
		var rec CallRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.SessionID,
			&rec.LeadID,
			&rec.ProviderCallID,
			&rec.Status,
			&rec.Direction,
			&rec.DialedAt,
			&rec.AnsweredAt,
			&rec.ConnectedAt,
			&rec.EndedAt,
			&rec.Disposition,
		); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanCall(row rowScanner) (CallRecord, error) {
	var rec CallRecord
	if err := row.Scan(
		&rec.ID,
		&rec.SessionID,
		&rec.LeadID,
		&rec.ProviderCallID,
		&rec.Status,
		&rec.Direction,
		&rec.DialedAt,
		&rec.AnsweredAt,
		&rec.ConnectedAt,
		&rec.EndedAt,
		&rec.Disposition,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallRecord{}, ErrNotFound
		}
		return CallRecord{}, err
	}
	return rec, nil
}
