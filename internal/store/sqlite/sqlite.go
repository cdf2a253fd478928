package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/model"
	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/store"
)

// Open opens (or creates) a SQLite database at path and enables WAL journal
// mode. ":memory:" opens a private in-memory database.
func Open(path string) (*sql.DB, error) {
	var dsn string
	if path == ":memory:" {
		dsn = fmt.Sprintf("file:mem-%s?mode=memory&cache=shared&_pragma=foreign_keys(ON)", uuid.New().String())
	} else {
		// ensure parent directory exists to avoid SQLITE_CANTOPEN errors
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", path)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// SQLite has a single writer; one connection keeps upserts serialized.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// EnsureSchema creates tables if they do not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS concerts (
            id TEXT PRIMARY KEY,
            artist_name TEXT NOT NULL,
            venue TEXT NOT NULL,
            concert_date TEXT NOT NULL,
            concert_time TEXT,
            url TEXT,
            notes TEXT,
            owner_user_id INTEGER NOT NULL,
            poll_id TEXT UNIQUE,
            poll_message_id INTEGER,
            creation_time TIMESTAMP NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS concerts_date_idx ON concerts(concert_date);`,
		`CREATE TABLE IF NOT EXISTS attendance_responses (
            concert_id TEXT NOT NULL REFERENCES concerts(id) ON DELETE CASCADE,
            user_id INTEGER NOT NULL,
            user_name TEXT,
            response_type TEXT NOT NULL CHECK (response_type IN ('going','interested','not_going')),
            updated_at TIMESTAMP NOT NULL,
            PRIMARY KEY (concert_id, user_id)
        );`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// NewWithDB constructs a SQLite-backed store.Store.
func NewWithDB(db *sql.DB) store.Store { return &sqliteStore{db: db} }

type sqliteStore struct{ db *sql.DB }

func (s *sqliteStore) Concerts() store.Concerts   { return &concerts{db: s.db} }
func (s *sqliteStore) Responses() store.Responses { return &responses{db: s.db} }

// HealthPing implements health.HealthPinger.
func (s *sqliteStore) HealthPing(ctx context.Context) error {
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
	out.CreationTime = time.Now().UTC()
	_, err := c.db.ExecContext(ctx, `
        INSERT INTO concerts (id, artist_name, venue, concert_date, concert_time, url, notes, owner_user_id, creation_time)
        VALUES (?,?,?,?,?,?,?,?,?)
    `, out.ID, out.ArtistName, out.Venue, out.ConcertDate.Format(store.DateLayout), out.ConcertTime, out.URL, out.Notes, out.OwnerUserID, out.CreationTime)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *concerts) GetByID(ctx context.Context, id string) (*model.Concert, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+concertColumns+` FROM concerts WHERE id = ?`, id)
	return scanConcert(row)
}

func (c *concerts) GetByPollID(ctx context.Context, pollID string) (*model.Concert, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+concertColumns+` FROM concerts WHERE poll_id = ?`, pollID)
	return scanConcert(row)
}

func (c *concerts) LinkPoll(ctx context.Context, concertID, pollID string, messageID int64) error {
	res, err := c.db.ExecContext(ctx, `UPDATE concerts SET poll_id = ?, poll_message_id = ? WHERE id = ? AND poll_id IS NULL`, pollID, messageID, concertID)
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
        WHERE concert_date >= ? ORDER BY concert_date ASC, creation_time ASC LIMIT ?
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
	var (
		m    model.Concert
		date string
	)
	err := row.Scan(&m.ID, &m.ArtistName, &m.Venue, &date, &m.ConcertTime, &m.URL, &m.Notes,
		&m.OwnerUserID, &m.PollID, &m.PollMessageID, &m.CreationTime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	d, err := time.Parse(store.DateLayout, date)
	if err != nil {
		return nil, fmt.Errorf("concert %s: bad stored date %q: %w", m.ID, date, err)
	}
	m.ConcertDate = d
	return &m, nil
}

// --- Responses ---
type responses struct{ db *sql.DB }

func (r *responses) Upsert(ctx context.Context, m *model.AttendanceResponse) error {
	_, err := r.db.ExecContext(ctx, `
        INSERT INTO attendance_responses (concert_id, user_id, user_name, response_type, updated_at)
        VALUES (?,?,?,?,?)
        ON CONFLICT (concert_id, user_id) DO UPDATE SET
            response_type = excluded.response_type,
            user_name = COALESCE(NULLIF(excluded.user_name, ''), attendance_responses.user_name),
            updated_at = excluded.updated_at
    `, m.ConcertID, m.UserID, m.UserName, string(m.ResponseType), m.UpdatedAt.UTC())
	return err
}

func (r *responses) ListByConcert(ctx context.Context, concertID string) ([]*model.AttendanceResponse, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT concert_id, user_id, COALESCE(user_name, ''), response_type, updated_at
        FROM attendance_responses WHERE concert_id = ? ORDER BY updated_at ASC, user_id ASC
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
