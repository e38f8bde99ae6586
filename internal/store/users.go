package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/pvolkov/daychain-bot/internal/domain"
)

// UpsertUser inserts or updates a user's settings.
// If the user (chat_id) exists, fields are updated; otherwise, a new row is inserted.
func (r *SQLiteRepo) UpsertUser(ctx context.Context, u *domain.User) error {
	if u == nil {
		return errors.New("nil user")
	}

	created := u.CreatedAt.UTC().Unix()
	if u.CreatedAt.IsZero() {
		created = time.Now().UTC().Unix()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (chat_id, tz_offset, notify_hour, lang, enabled, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			tz_offset   = excluded.tz_offset,
			notify_hour = excluded.notify_hour,
			lang        = excluded.lang,
			enabled     = excluded.enabled`,
		u.ChatID, u.TZOffset, u.NotifyHour, u.Lang, boolToInt(u.Enabled), created,
	)
	return err
}

// GetUser returns a user's settings by chatID or ErrNotFound.
func (r *SQLiteRepo) GetUser(ctx context.Context, chatID int64) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT chat_id, tz_offset, notify_hour, lang, enabled, created_at
		FROM users
		WHERE chat_id = ?`,
		chatID,
	)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// SetEnabled toggles the enabled flag for a user.
func (r *SQLiteRepo) SetEnabled(ctx context.Context, chatID int64, enabled bool) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET enabled = ?
		WHERE chat_id = ?`,
		boolToInt(enabled), chatID,
	)
	return err
}

// ListEnabledUsers returns every user with notifications enabled. The hourly
// sweep filters by local notify hour in memory; offset arithmetic stays out
// of SQL.
func (r *SQLiteRepo) ListEnabledUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT chat_id, tz_offset, notify_hour, lang, enabled, created_at
		FROM users
		WHERE enabled = 1
		ORDER BY chat_id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *u)
	}
	return res, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	var (
		u          domain.User
		enabledInt int
		createdAt  int64
	)
	if err := row.Scan(&u.ChatID, &u.TZOffset, &u.NotifyHour, &u.Lang, &enabledInt, &createdAt); err != nil {
		return nil, err
	}
	u.Enabled = enabledInt != 0
	u.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &u, nil
}
