package sqlite

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/johncui/haiku/pkg/model"
)

// Append writes a new exchange row, creating the session row on first use.
func (d *Database) Append(ctx context.Context, ex model.Exchange) error {
	if ex.SessionID == "" {
		return fmt.Errorf("session id is required")
	}
	if ex.ID == "" {
		ex.ID = uuid.NewString()
	}
	if ex.CreatedAt.IsZero() {
		ex.CreatedAt = time.Now().UTC()
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO sessions(session_id) VALUES (?);`, ex.SessionID); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
        INSERT INTO exchanges(id, session_id, subject, prompt, response, created_at)
        VALUES(?, ?, ?, ?, ?, ?);
    `, ex.ID, ex.SessionID, ex.Subject, ex.Prompt, ex.Response, ex.CreatedAt); err != nil {
		return fmt.Errorf("insert exchange: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE sessions SET updated_at = CURRENT_TIMESTAMP WHERE session_id = ?;`, ex.SessionID); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return tx.Commit()
}

// History returns the session's exchanges in append order.
func (d *Database) History(ctx context.Context, sessionID string, limit int) ([]model.Exchange, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := d.db.QueryContext(ctx, `
        SELECT id, session_id, subject, prompt, response, created_at
        FROM exchanges
        WHERE session_id = ?
        ORDER BY seq DESC
        LIMIT ?;
    `, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Exchange
	for rows.Next() {
		var e model.Exchange
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Subject, &e.Prompt, &e.Response, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.Reverse(out)
	return out, nil
}

// CountSessions returns how many sessions have at least one exchange.
func (d *Database) CountSessions(ctx context.Context) (int64, error) {
	var n int64
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions;`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

var _ model.SessionStore = (*Database)(nil)
