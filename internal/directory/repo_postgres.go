package directory

import (
	"context"
	"database/sql"
	"errors"
)

// PostgresDirectory reads lead and colleague contact data from the CRM's
// tables. Read-only: the engine never writes here.
type PostgresDirectory struct {
	db *sql.DB
}

func NewPostgresDirectory(db *sql.DB) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

func (d *PostgresDirectory) Lead(ctx context.Context, leadID string) (Lead, error) {
	const q = `
SELECT id, phone, display_name
FROM leads
WHERE id = $1
`
	var l Lead
	if err := d.db.QueryRowContext(ctx, q, leadID).Scan(&l.ID, &l.Phone, &l.DisplayName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Lead{}, ErrNotFound
		}
		return Lead{}, err
	}
	return l, nil
}

func (d *PostgresDirectory) Colleague(ctx context.Context, colleagueID string) (Colleague, error) {
	const q = `
SELECT id, dial_target, display_name
FROM colleagues
WHERE id = $1
`
	var c Colleague
	if err := d.db.QueryRowContext(ctx, q, colleagueID).Scan(&c.ID, &c.DialTarget, &c.DisplayName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Colleague{}, ErrNotFound
		}
		return Colleague{}, err
	}
	return c, nil
}
