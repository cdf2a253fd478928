package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/model"
	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/store"
)

// Open opens a PostgreSQL connection using the pgx stdlib driver and verifies connectivity.
func Open(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// EnsureSchema creates tables if they do not exist; safe to call repeatedly.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS concerts (
            id TEXT PRIMARY KEY,
            artist_name TEXT NOT NULL,
            venue TEXT NOT NULL,
            concert_date DATE NOT NULL,
            concert_time TEXT,
            url TEXT,
            notes TEXT,
            owner_user_id BIGINT NOT NULL,
            poll_id TEXT UNIQUE,
            poll_message_id BIGINT,
            creation_time TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,
		`CREATE INDEX IF NOT EXISTS concerts_date_idx ON concerts(concert_date)`,
		`CREATE TABLE IF NOT EXISTS attendance_responses (
            concert_id TEXT NOT NULL REFERENCES concerts(id) ON DELETE CASCADE,
            user_id BIGINT NOT NULL,
            user_name TEXT,
            response_type TEXT NOT NULL CHECK (response_type IN ('going','interested','not_going')),
            updated_at TIMESTAMPTZ NOT NULL,
            PRIMARY KEY (concert_id, user_id)
        )`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// NewWithDB constructs a native Postgres store backed directly by database/sql.
func NewWithDB(db *sql.DB) store.Store { return &pgStore{db: db} }

type pgStore struct{ db *sql.DB }

func (s *pgStore) Concerts() store.Concerts   { return &concerts{db: s.db} }
func (s *pgStore) Responses() store.Responses { return &responses{db: s.db} }

// HealthPing implements health.HealthPinger for Postgres-backed store.
func (s *pgStore) HealthPing(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// --- Concerts ---
type concerts struct{ db *sql.DB }

const concertColumns = `id, artist_name, venue, concert_date, concert_time, url, notes, owner_user_id, poll_id, poll_message_id, creation_time`

func (c *concerts) Create(ctx context.Context, m *model.Concert) (*model.Concert, error) {
	out := *m
	if out.ID == "" {
		out.ID = uuid.New().String()
	}
	row := c.db.QueryRowContext(ctx, `
        INSERT INTO concerts (id, artist_name, venue, concert_date, concert_time, url, notes, owner_user_id)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING creation_time
    `, out.ID, out.ArtistName, out.Venue, out.ConcertDate.Format(store.DateLayout), out.ConcertTime, out.URL, out.Notes, out.OwnerUserID)
	if err := row.Scan(&out.CreationTime); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *concerts) GetByID(ctx context.Context, id string) (*model.Concert, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+concertColumns+` FROM concerts WHERE id=$1`, id)
	return scanConcert(row)
}

func (c *concerts) GetByPollID(ctx context.Context, pollID string) (*model.Concert, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+concertColumns+` FROM concerts WHERE poll_id=$1`, pollID)
	return scanConcert(row)
}

func (c *concerts) LinkPoll(ctx context.Context, concertID, pollID string, messageID int64) error {
	res, err := c.db.ExecContext(ctx, `UPDATE concerts SET poll_id=$1, poll_message_id=$2 WHERE id=$3 AND poll_id IS NULL`, pollID, messageID, concertID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	if _, err := c.GetByID(ctx, concertID); err != nil {
		return err
	}
	return model.ErrAlreadyLinked
}

func (c *concerts) ListUpcoming(ctx context.Context, from time.Time, limit int) ([]*model.Concert, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := c.db.QueryContext(ctx, `
        SELECT `+concertColumns+` FROM concerts
        WHERE concert_date >= $1 ORDER BY concert_date ASC, creation_time ASC LIMIT $2
    `, from.Format(store.DateLayout), limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []*model.Concert
	for rows.Next() {
		m, err := scanConcert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConcert(row scanner) (*model.Concert, error) {
	var m model.Concert
	err := row.Scan(&m.ID, &m.ArtistName, &m.Venue, &m.ConcertDate, &m.ConcertTime, &m.URL, &m.Notes,
		&m.OwnerUserID, &m.PollID, &m.PollMessageID, &m.CreationTime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	m.ConcertDate = time.Date(m.ConcertDate.Year(), m.ConcertDate.Month(), m.ConcertDate.Day(), 0, 0, 0, 0, time.UTC)
	return &m, nil
}

// --- Responses ---
type responses struct{ db *sql.DB }

func (r *responses) Upsert(ctx context.Context, m *model.AttendanceResponse) error {
	_, err := r.db.ExecContext(ctx, `
        INSERT INTO attendance_responses (concert_id, user_id, user_name, response_type, updated_at)
        VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (concert_id, user_id) DO UPDATE SET
            response_type = EXCLUDED.response_type,
            user_name = COALESCE(NULLIF(EXCLUDED.user_name, ''), attendance_responses.user_name),
            updated_at = EXCLUDED.updated_at
    `, m.ConcertID, m.UserID, m.UserName, string(m.ResponseType), m.UpdatedAt.UTC())
	return err
}

func (r *responses) ListByConcert(ctx context.Context, concertID string) ([]*model.AttendanceResponse, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT concert_id, user_id, COALESCE(user_name, ''), response_type, updated_at
        FROM attendance_responses WHERE concert_id=$1 ORDER BY updated_at ASC, user_id ASC
    `, concertID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []*model.AttendanceResponse
	for rows.Next() {
		var m model.AttendanceResponse
		var rt string
		if err := rows.Scan(&m.ConcertID, &m.UserID, &m.UserName, &rt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		m.ResponseType = model.ResponseType(rt)
		out = append(out, &m)
	}
	return out, rows.Err()
}
