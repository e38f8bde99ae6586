package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pvolkov/daychain-bot/internal/domain"
)

// AppendBlock inserts a block at its slot, bumps the chain's block_count and
// resolves the backing assignment to written, all in one transaction.
// Returns ErrConflict (nothing committed) when the slot is already taken;
// the caller forks in that case.
func (r *SQLiteRepo) AppendBlock(ctx context.Context, b *domain.Block, assignmentID string) error {
	if b == nil {
		return errors.New("nil block")
	}
	return r.inTx(ctx, func(tx *sql.Tx) error {
		if err := insertBlock(ctx, tx, b); err != nil {
			return err
		}
		if err := bumpBlockCount(ctx, tx, b.ChainID); err != nil {
			return err
		}
		return resolveInTx(ctx, tx, assignmentID, domain.AssignmentWritten)
	})
}

// ForkAndAppend creates the fork chain and inserts the block under it at the
// contested slot, resolving the assignment against the fork. The fork row
// carries block_count=1 to match its single block.
func (r *SQLiteRepo) ForkAndAppend(ctx context.Context, fork *domain.Chain, b *domain.Block, assignmentID string) error {
	if fork == nil || b == nil {
		return errors.New("nil chain or block")
	}
	return r.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO chains (`+chainColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			fork.ID, fork.CreatorID, fork.CreatorTZ, fork.Status, fork.BlockCount,
			fork.RootChainID, toNullInt(fork.ForkSlot), fork.StartUTC.UTC().Unix(), toNullInt64(fork.DeliverAt),
		); err != nil {
			return mapConflict(err)
		}
		if err := insertBlock(ctx, tx, b); err != nil {
			return err
		}
		return resolveInTx(ctx, tx, assignmentID, domain.AssignmentWritten)
	})
}

// GetBlocks returns a chain's blocks in slot order.
func (r *SQLiteRepo) GetBlocks(ctx context.Context, chainID string) ([]domain.Block, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT chain_id, slot_index, user_id, tz_offset, content, media_ref, ledger_hash, created_at
		FROM blocks
		WHERE chain_id = ?
		ORDER BY slot_index ASC`,
		chainID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.Block
	for rows.Next() {
		var (
			b         domain.Block
			createdAt int64
		)
		if err := rows.Scan(
			&b.ChainID, &b.SlotIndex, &b.UserID, &b.TZOffset,
			&b.Content, &b.MediaRef, &b.LedgerHash, &createdAt,
		); err != nil {
			return nil, err
		}
		b.CreatedAt = unixUTC(createdAt)
		res = append(res, b)
	}
	return res, rows.Err()
}

// SetLedgerHash records the ledger's hash for a committed block. Best-effort:
// a missing row is not an error, the block may live under a fork id by now.
func (r *SQLiteRepo) SetLedgerHash(ctx context.Context, chainID string, slot int, hash string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE blocks
		SET ledger_hash = ?
		WHERE chain_id = ? AND slot_index = ?`,
		hash, chainID, slot,
	)
	return err
}

func insertBlock(ctx context.Context, tx *sql.Tx, b *domain.Block) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO blocks (chain_id, slot_index, user_id, tz_offset, content, media_ref, ledger_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ChainID, b.SlotIndex, b.UserID, b.TZOffset,
		b.Content, b.MediaRef, b.LedgerHash, b.CreatedAt.UTC().Unix(),
	)
	return mapConflict(err)
}

func bumpBlockCount(ctx context.Context, tx *sql.Tx, chainID string) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE chains
		SET block_count = block_count + 1
		WHERE id = ?`,
		chainID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("chain %s: %w", chainID, ErrNotFound)
	}
	return nil
}
