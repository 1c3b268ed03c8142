package conference

import (
	"context"
	"database/sql"
	"time"
)

// PostgresRepo persists conference participants.
//
// Assumed table:
// - conference_participants (conference_id, leg_id, role, display_name,
//   joined_at, left_at) with PRIMARY KEY (conference_id, leg_id)
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Add(ctx context.Context, p Participant) error {
	const q = `
INSERT INTO conference_participants (conference_id, leg_id, role, display_name, joined_at, left_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (conference_id, leg_id) DO NOTHING
`
	_, err := r.db.ExecContext(ctx, q,
		p.ConferenceID,
		p.LegID,
		p.Role,
		p.DisplayName,
		p.JoinedAt,
		p.LeftAt,
	)
	return err
}

func (r *PostgresRepo) MarkLeft(ctx context.Context, conferenceID, legID string, at time.Time) error {
	const q = `
UPDATE conference_participants
SET left_at = $3
WHERE conference_id = $1 AND leg_id = $2 AND left_at IS NULL
`
	_, err := r.db.ExecContext(ctx, q, conferenceID, legID, at)
	return err
}

func (r *PostgresRepo) ListByConference(ctx context.Context, conferenceID string) ([]Participant, error) {
	const q = `
SELECT conference_id, leg_id, role, display_name, joined_at, left_at
FROM conference_participants
WHERE conference_id = $1
ORDER BY joined_at ASC
`
	rows, err := r.db.QueryContext(ctx, q, conferenceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Participant, 0)
	for rows.Next() {
		var p Participant
		if err := rows.Scan(&p.ConferenceID, &p.LegID, &p.Role, &p.DisplayName, &p.JoinedAt, &p.LeftAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
