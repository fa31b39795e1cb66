package authority

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"absencetracker/internal/attendance"
)

// User is an account known to the authority.
type User struct {
	ID           string
	Username     string
	Name         string
	Email        string
	PasswordHash string
}

// Repository persists users and absents in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// InsertUser stores a new account.
func (r *Repository) InsertUser(ctx context.Context, u User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, username, name, email, password_hash)
		VALUES ($1, $2, $3, $4, $5)
	`, u.ID, u.Username, u.Name, u.Email, u.PasswordHash)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrUsernameTaken, u.Username)
	}
	return err
}

// UserByUsername loads an account for login.
func (r *Repository) UserByUsername(ctx context.Context, username string) (User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, username, name, email, password_hash
		FROM users WHERE username = $1
	`, username)
	var u User
	if err := row.Scan(&u.ID, &u.Username, &u.Name, &u.Email, &u.PasswordHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrInvalidCredentials
		}
		return User{}, err
	}
	return u, nil
}

const absentColumns = `a.id, a.local_id, a.user_id, COALESCE(NULLIF(a.name, ''), u.name), a.day, a.date, a.type, a.from_at, a.to_at`

// ListAbsents returns every absent, oldest first.
func (r *Repository) ListAbsents(ctx context.Context) ([]attendance.Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+absentColumns+`
		FROM absents a JOIN users u ON u.id = a.user_id
		ORDER BY a.created_at, a.id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []attendance.Record{}
	for rows.Next() {
		rec, err := scanAbsent(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

// InsertAbsent writes a new absent. rec.RemoteID must be set. A local id already
// in use yields ErrDuplicateAbsent.
func (r *Repository) InsertAbsent(ctx context.Context, rec attendance.Record) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO absents (id, local_id, user_id, name, day, date, type, from_at, to_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, rec.RemoteID, rec.ID, rec.User.ID, rec.Name, string(rec.Day), nullTime(rec.Date), string(rec.Type), nullTime(rec.From), nullTime(rec.To))
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrDuplicateAbsent, rec.ID)
	}
	return err
}

// UpdateAbsent replaces the editable columns of an absent owned by owner.
func (r *Repository) UpdateAbsent(ctx context.Context, owner string, rec attendance.Record) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE absents
		SET day = $3, date = $4, type = $5, from_at = $6, to_at = $7
		WHERE id = $1 AND user_id = $2
	`, rec.RemoteID, owner, string(rec.Day), nullTime(rec.Date), string(rec.Type), nullTime(rec.From), nullTime(rec.To))
	return affected(res, err, rec.RemoteID)
}

// DeleteAbsent removes an absent owned by owner.
func (r *Repository) DeleteAbsent(ctx context.Context, owner, remoteID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM absents WHERE id = $1 AND user_id = $2`, remoteID, owner)
	return affected(res, err, remoteID)
}

// GetAbsent returns a single absent by remote id.
func (r *Repository) GetAbsent(ctx context.Context, remoteID string) (attendance.Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+absentColumns+`
		FROM absents a JOIN users u ON u.id = a.user_id
		WHERE a.id = $1
	`, remoteID)
	rec, err := scanAbsent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return attendance.Record{}, fmt.Errorf("%w: %s", ErrNotFound, remoteID)
	}
	return rec, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAbsent(s scanner) (attendance.Record, error) {
	var (
		rec            attendance.Record
		day, typ       string
		date, from, to sql.NullTime
	)
	if err := s.Scan(&rec.RemoteID, &rec.ID, &rec.User.ID, &rec.Name, &day, &date, &typ, &from, &to); err != nil {
		return attendance.Record{}, err
	}
	rec.User.Name = rec.Name
	rec.Day = attendance.Day(day)
	rec.Type = attendance.LeaveType(typ)
	// The driver hands back the session time zone; records are kept in UTC.
	rec.Date = utc(date)
	rec.From = utc(from)
	rec.To = utc(to)
	return rec, nil
}

func affected(res sql.Result, err error, id string) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func utc(t sql.NullTime) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time.UTC()
}
