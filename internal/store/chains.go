package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pvolkov/daychain-bot/internal/domain"
)

const chainColumns = `id, creator_id, creator_tz, status, block_count, root_chain_id, fork_slot, start_utc, deliver_at`

// CreateChain inserts a new chain together with its first block; a chain is
// born on first content, never empty. Both rows commit or neither does.
func (r *SQLiteRepo) CreateChain(ctx context.Context, c *domain.Chain, first *domain.Block) error {
	if c == nil || first == nil {
		return errors.New("nil chain or block")
	}
	return r.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO chains (`+chainColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.CreatorID, c.CreatorTZ, c.Status, c.BlockCount,
			c.RootChainID, toNullInt(c.ForkSlot), c.StartUTC.UTC().Unix(), toNullInt64(c.DeliverAt),
		); err != nil {
			return mapConflict(err)
		}
		return insertBlock(ctx, tx, first)
	})
}

// GetChain returns a chain by id or ErrNotFound.
func (r *SQLiteRepo) GetChain(ctx context.Context, id string) (*domain.Chain, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+chainColumns+` FROM chains WHERE id = ?`, id)
	c, err := scanChain(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListCandidateChains returns active chains with a slot left to fill that
// the user has neither contributed to nor holds an open offer on. A chain's
// block run starts at slot 1, a fork's at its divergence slot, so "a slot
// left" means first slot + block count has not passed 24 yet. A skipped
// offer keeps its chain
// out of the user's pool until the offer's TTL would have lapsed, otherwise a
// skip would surface the same chain right back. Oldest chain first, so
// long-waiting chains are never starved. Deliberately no filter on the
// user's timezone matching the chain's next-needed offset.
func (r *SQLiteRepo) ListCandidateChains(ctx context.Context, userID int64, now time.Time) ([]domain.Chain, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+chainColumns+`
		FROM chains c
		WHERE c.status = 'active'
		  AND COALESCE(c.fork_slot, 1) + c.block_count <= ?
		  AND NOT EXISTS (
			SELECT 1 FROM blocks b
			WHERE b.chain_id = c.id AND b.user_id = ?)
		  AND NOT EXISTS (
			SELECT 1 FROM assignments a
			WHERE a.chain_id = c.id AND a.user_id = ?
			  AND (a.status IN ('pending', 'writing')
			    OR (a.status = 'skipped' AND a.expires_at > ?)))
		ORDER BY c.start_utc ASC, c.id ASC`,
		domain.SlotCount, userID, userID, now.UTC().Unix(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectChains(rows)
}

// ListOverdueActive returns active chains born at or before the deadline,
// i.e. chains whose 24h window has elapsed.
func (r *SQLiteRepo) ListOverdueActive(ctx context.Context, deadline time.Time) ([]domain.Chain, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+chainColumns+`
		FROM chains
		WHERE status = 'active' AND start_utc <= ?
		ORDER BY start_utc ASC`,
		deadline.UTC().Unix(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectChains(rows)
}

// ListDeliverable returns completed chains whose deliver_at has arrived.
func (r *SQLiteRepo) ListDeliverable(ctx context.Context, now time.Time) ([]domain.Chain, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+chainColumns+`
		FROM chains
		WHERE status = 'completed' AND deliver_at IS NOT NULL AND deliver_at <= ?
		ORDER BY deliver_at ASC`,
		now.UTC().Unix(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectChains(rows)
}

// CompleteChain flips active -> completed and stamps deliver_at. Returns
// false when the chain was not active, which makes re-runs harmless.
func (r *SQLiteRepo) CompleteChain(ctx context.Context, id string, deliverAt time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE chains
		SET status = 'completed', deliver_at = ?
		WHERE id = ? AND status = 'active'`,
		deliverAt.UTC().Unix(), id,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// MarkDelivered flips completed -> delivered, exactly once.
func (r *SQLiteRepo) MarkDelivered(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE chains
		SET status = 'delivered'
		WHERE id = ? AND status = 'completed'`,
		id,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// CountChainsByRoot returns the size of a fork tree, root included.
func (r *SQLiteRepo) CountChainsByRoot(ctx context.Context, rootID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM chains WHERE root_chain_id = ?`, rootID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count chains: %w", err)
	}
	return n, nil
}

func scanChain(row rowScanner) (*domain.Chain, error) {
	var (
		c        domain.Chain
		forkSlot sql.NullInt64
		startUTC int64
		deliver  sql.NullInt64
	)
	if err := row.Scan(
		&c.ID, &c.CreatorID, &c.CreatorTZ, &c.Status, &c.BlockCount,
		&c.RootChainID, &forkSlot, &startUTC, &deliver,
	); err != nil {
		return nil, err
	}
	c.ForkSlot = fromNullInt(forkSlot)
	c.StartUTC = time.Unix(startUTC, 0).UTC()
	c.DeliverAt = fromNullInt64(deliver)
	return &c, nil
}

func collectChains(rows *sql.Rows) ([]domain.Chain, error) {
	var res []domain.Chain
	for rows.Next() {
		c, err := scanChain(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *c)
	}
	return res, rows.Err()
}
