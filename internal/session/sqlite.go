package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/eduramirezh/adk-go/internal/ids"
	"github.com/eduramirezh/adk-go/internal/llm"
)

// SQLiteService persists sessions in a single SQLite file. Writes go
// through one connection so concurrent handlers serialize instead of
// hitting SQLITE_BUSY.
type SQLiteService struct {
	db *sql.DB
}

func NewSQLiteService(path string) (*SQLiteService, error) {
	if path == "" {
		return nil, errors.New("session db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteService{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteService) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteService) init() error {
	stmts := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=5000;",
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT NOT NULL,
			app_name TEXT NOT NULL,
			user_id TEXT NOT NULL,
			created_at_utc TEXT NOT NULL,
			updated_at_utc TEXT NOT NULL,
			PRIMARY KEY (app_name, user_id, id)
		);`,
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			app_name TEXT NOT NULL,
			user_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			invocation_id TEXT NOT NULL DEFAULT '',
			author TEXT NOT NULL,
			timestamp_utc TEXT NOT NULL,
			response_json TEXT
		);`,
		"CREATE INDEX IF NOT EXISTS idx_events_session ON events(app_name, user_id, session_id, timestamp_utc);",
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteService) Create(ctx context.Context, app, user, id string) (*Session, error) {
	if err := checkSessionScope(app, user); err != nil {
		return nil, err
	}
	if id == "" {
		newID, err := ids.New()
		if err != nil {
			return nil, err
		}
		id = newID
	}

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, app_name, user_id, created_at_utc, updated_at_utc)
		VALUES (?, ?, ?, ?, ?)`,
		id, app, user, now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano),
	)
	if err != nil {
		var serr sqlite3.Error
		if errors.As(err, &serr) && serr.Code == sqlite3.ErrConstraint {
			return nil, fmt.Errorf("session %q: %w", id, ErrExists)
		}
		return nil, fmt.Errorf("create session %s: %w", id, err)
	}
	return &Session{ID: id, AppName: app, UserID: user, CreatedAt: now, UpdatedAt: now}, nil
}

func (s *SQLiteService) Get(ctx context.Context, app, user, id string) (*Session, error) {
	if err := checkSessionScope(app, user); err != nil {
		return nil, err
	}

	var created, updated string
	err := s.db.QueryRowContext(ctx,
		`SELECT created_at_utc, updated_at_utc FROM sessions
		WHERE app_name=? AND user_id=? AND id=?`,
		app, user, id,
	).Scan(&created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	sess := &Session{ID: id, AppName: app, UserID: user}
	sess.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	sess.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, invocation_id, author, timestamp_utc, response_json FROM events
		WHERE app_name=? AND user_id=? AND session_id=?
		ORDER BY timestamp_utc ASC, id ASC`,
		app, user, id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var ev Event
		var ts string
		var respJSON sql.NullString
		if err := rows.Scan(&ev.ID, &ev.InvocationID, &ev.Author, &ts, &respJSON); err != nil {
			return nil, err
		}
		ev.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		if respJSON.Valid && respJSON.String != "" {
			var resp llm.Response
			if err := json.Unmarshal([]byte(respJSON.String), &resp); err != nil {
				return nil, fmt.Errorf("decode event %s response: %w", ev.ID, err)
			}
			ev.Response = &resp
		}
		sess.Events = append(sess.Events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *SQLiteService) Append(ctx context.Context, sess *Session, ev Event) error {
	if err := checkAppendTarget(sess); err != nil {
		return err
	}
	if err := fillEvent(&ev); err != nil {
		return err
	}

	var respJSON any
	if ev.Response != nil {
		b, err := json.Marshal(ev.Response)
		if err != nil {
			return fmt.Errorf("encode event response: %w", err)
		}
		respJSON = string(b)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE sessions SET updated_at_utc=? WHERE app_name=? AND user_id=? AND id=?`,
		ev.Timestamp.Format(time.RFC3339Nano), sess.AppName, sess.UserID, sess.ID,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO events (id, app_name, user_id, session_id, invocation_id, author, timestamp_utc, response_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, sess.AppName, sess.UserID, sess.ID, ev.InvocationID, ev.Author,
		ev.Timestamp.Format(time.RFC3339Nano), respJSON,
	); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	sess.Events = append(sess.Events, ev)
	sess.UpdatedAt = ev.Timestamp
	return nil
}

func (s *SQLiteService) List(ctx context.Context, app, user string) ([]*Session, error) {
	if err := checkSessionScope(app, user); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at_utc, updated_at_utc FROM sessions
		WHERE app_name=? AND user_id=?
		ORDER BY updated_at_utc DESC, id DESC`,
		app, user,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*Session, 0)
	for rows.Next() {
		sess := &Session{AppName: app, UserID: user}
		var created, updated string
		if err := rows.Scan(&sess.ID, &created, &updated); err != nil {
			return nil, err
		}
		sess.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		sess.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLiteService) Delete(ctx context.Context, app, user, id string) error {
	if err := checkSessionScope(app, user); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM events WHERE app_name=? AND user_id=? AND session_id=?`,
		app, user, id,
	); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx,
		`DELETE FROM sessions WHERE app_name=? AND user_id=? AND id=?`,
		app, user, id,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}
