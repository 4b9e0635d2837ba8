// Package postgres stores session history in PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/johncui/haiku/pkg/model"
)

// Config controls the connection pool.
type Config struct {
	DSN    string
	Logger *slog.Logger
}

// Store is a pgx-backed session store.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New connects to PostgreSQL and ensures schema.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, errors.New("postgres dsn is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(os.Stdout, nil))
	}

	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	s := &Store{pool: pool, logger: cfg.Logger}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres schema: %w", err)
	}
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS haiku_sessions (
            session_id TEXT PRIMARY KEY,
            created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,
		`CREATE TABLE IF NOT EXISTS haiku_exchanges (
            seq BIGSERIAL PRIMARY KEY,
            id UUID NOT NULL UNIQUE,
            session_id TEXT NOT NULL REFERENCES haiku_sessions(session_id) ON DELETE CASCADE,
            subject TEXT NOT NULL DEFAULT '',
            prompt TEXT NOT NULL,
            response TEXT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL
        )`,
		`CREATE INDEX IF NOT EXISTS idx_haiku_exchanges_session ON haiku_exchanges (session_id, seq)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Append inserts the exchange under a per-session advisory lock so appends to
// one session commit one at a time.
func (s *Store) Append(ctx context.Context, ex model.Exchange) error {
	if ex.SessionID == "" {
		return errors.New("session id is required")
	}
	id := uuid.New()
	if ex.ID != "" {
		parsed, err := uuid.Parse(ex.ID)
		if err != nil {
			return fmt.Errorf("exchange id: %w", err)
		}
		id = parsed
	}
	if ex.CreatedAt.IsZero() {
		ex.CreatedAt = time.Now().UTC()
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, ex.SessionID); err != nil {
			return fmt.Errorf("lock session: %w", err)
		}
		if _, err := tx.Exec(ctx, `
            INSERT INTO haiku_sessions (session_id) VALUES ($1)
            ON CONFLICT (session_id) DO UPDATE SET updated_at = now()
        `, ex.SessionID); err != nil {
			return fmt.Errorf("upsert session: %w", err)
		}
		if _, err := tx.Exec(ctx, `
            INSERT INTO haiku_exchanges (id, session_id, subject, prompt, response, created_at)
            VALUES ($1, $2, $3, $4, $5, $6)
        `, id, ex.SessionID, ex.Subject, ex.Prompt, ex.Response, ex.CreatedAt); err != nil {
			return fmt.Errorf("insert exchange: %w", err)
		}
		return nil
	})
}

// History returns the session's exchanges in append order.
func (s *Store) History(ctx context.Context, sessionID string, limit int) ([]model.Exchange, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if limit <= 0 {
		rows, err = s.pool.Query(ctx, `
            SELECT id, session_id, subject, prompt, response, created_at
            FROM haiku_exchanges WHERE session_id = $1
            ORDER BY seq DESC
        `, sessionID)
	} else {
		rows, err = s.pool.Query(ctx, `
            SELECT id, session_id, subject, prompt, response, created_at
            FROM haiku_exchanges WHERE session_id = $1
            ORDER BY seq DESC
            LIMIT $2
        `, sessionID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("query exchanges: %w", err)
	}
	defer rows.Close()

	var out []model.Exchange
	for rows.Next() {
		var (
			e  model.Exchange
			id uuid.UUID
		)
		if err := rows.Scan(&id, &e.SessionID, &e.Subject, &e.Prompt, &e.Response, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan exchange: %w", err)
		}
		e.ID = id.String()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.Reverse(out)
	return out, nil
}

// CountSessions returns how many sessions have at least one exchange.
func (s *Store) CountSessions(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM haiku_sessions`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

var _ model.SessionStore = (*Store)(nil)
