package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pvolkov/daychain-bot/internal/domain"
)

const assignmentColumns = `id, user_id, chain_id, slot_index, status, assigned_at, expires_at`

// CreateAssignment inserts a pending offer. The partial unique index on
// (user_id, chain_id) over open statuses makes a second open offer for the
// same pair impossible; such inserts return ErrConflict.
func (r *SQLiteRepo) CreateAssignment(ctx context.Context, a *domain.Assignment) error {
	if a == nil {
		return errors.New("nil assignment")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO assignments (`+assignmentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.ChainID, a.SlotIndex, a.Status,
		a.AssignedAt.UTC().Unix(), a.ExpiresAt.UTC().Unix(),
	)
	return mapConflict(err)
}

// GetAssignment returns an assignment by id or ErrNotFound.
func (r *SQLiteRepo) GetAssignment(ctx context.Context, id string) (*domain.Assignment, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+assignmentColumns+` FROM assignments WHERE id = ?`, id)
	a, err := scanAssignment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ListOpenAssignments returns the user's live offers, oldest first. The head
// of this list is what the rolling inbox shows.
func (r *SQLiteRepo) ListOpenAssignments(ctx context.Context, userID int64) ([]domain.Assignment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+assignmentColumns+`
		FROM assignments
		WHERE user_id = ? AND status IN ('pending', 'writing')
		ORDER BY assigned_at ASC, id ASC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *a)
	}
	return res, rows.Err()
}

// MarkAssignmentWriting moves a pending offer to writing once it has been
// surfaced to the user. No-op if the offer already left pending.
func (r *SQLiteRepo) MarkAssignmentWriting(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE assignments
		SET status = 'writing'
		WHERE id = ? AND status = 'pending'`,
		id,
	)
	return err
}

// ResolveAssignment closes an open offer with the given terminal status.
// Returns false when the offer was not open anymore.
func (r *SQLiteRepo) ResolveAssignment(ctx context.Context, id, status string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE assignments
		SET status = ?
		WHERE id = ? AND status IN ('pending', 'writing')`,
		status, id,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ExpireAssignments closes every open offer past its TTL and reports how
// many were touched. Safe to run any number of times.
func (r *SQLiteRepo) ExpireAssignments(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE assignments
		SET status = 'expired'
		WHERE status IN ('pending', 'writing') AND expires_at <= ?`,
		now.UTC().Unix(),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// resolveInTx is ResolveAssignment inside an open transaction; a block write
// and its assignment resolution must commit together.
func resolveInTx(ctx context.Context, tx *sql.Tx, id, status string) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE assignments
		SET status = ?
		WHERE id = ? AND status IN ('pending', 'writing')`,
		status, id,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("assignment %s not open: %w", id, ErrConflict)
	}
	return nil
}

func scanAssignment(row rowScanner) (*domain.Assignment, error) {
	var (
		a          domain.Assignment
		assignedAt int64
		expiresAt  int64
	)
	if err := row.Scan(&a.ID, &a.UserID, &a.ChainID, &a.SlotIndex, &a.Status, &assignedAt, &expiresAt); err != nil {
		return nil, err
	}
	a.AssignedAt = unixUTC(assignedAt)
	a.ExpiresAt = unixUTC(expiresAt)
	return &a, nil
}
