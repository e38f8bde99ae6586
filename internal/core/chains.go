package core

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pvolkov/daychain-bot/internal/domain"
)

// CreateChain starts a new chain from a user's first content. The creator
// fills slot 1 themselves; no assignment is involved. The chain is born
// active with the creator's offset as slot 1's timezone.
func (s *Service) CreateChain(ctx context.Context, userID int64, content, mediaRef string) (*domain.Chain, error) {
	u, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if s.validator != nil {
		if err := s.validator.Validate(ctx, content, mediaRef); err != nil {
			return nil, err
		}
	}

	now := s.nowFn()
	c := &domain.Chain{
		ID:         uuid.NewString(),
		CreatorID:  u.ChatID,
		CreatorTZ:  u.TZOffset,
		Status:     domain.ChainStatusActive,
		BlockCount: 1,
		StartUTC:   now,
	}
	c.RootChainID = c.ID

	first := &domain.Block{
		ChainID:   c.ID,
		SlotIndex: 1,
		UserID:    u.ChatID,
		TZOffset:  u.TZOffset,
		Content:   content,
		MediaRef:  mediaRef,
		CreatedAt: now,
	}
	if err := s.repo.CreateChain(ctx, c, first); err != nil {
		return nil, fmt.Errorf("create chain: %w", err)
	}

	s.log.Info("chain started",
		zap.String("chain", c.ID),
		zap.Int64("creator", u.ChatID),
		zap.Int("tz", u.TZOffset))
	s.recordToLedger(*first)
	return c, nil
}

// ChainSummary loads a chain with its blocks, for status rendering.
func (s *Service) ChainSummary(ctx context.Context, chainID string) (*domain.Chain, []domain.Block, error) {
	c, err := s.repo.GetChain(ctx, chainID)
	if err != nil {
		return nil, nil, err
	}
	blocks, err := s.repo.GetBlocks(ctx, chainID)
	if err != nil {
		return nil, nil, err
	}
	return c, blocks, nil
}

// ForkTreeSize reports how many chains share a root, the root included.
// Fork trees are unbounded on purpose; this is the knob to watch them with.
func (s *Service) ForkTreeSize(ctx context.Context, rootID string) (int, error) {
	return s.repo.CountChainsByRoot(ctx, rootID)
}

// deliverAt is the fixed delivery instant: window after start, regardless of
// how fast the chain actually filled.
func (s *Service) deliverAt(c *domain.Chain) time.Time {
	return c.StartUTC.Add(s.window)
}
