package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pvolkov/daychain-bot/internal/domain"
	"github.com/pvolkov/daychain-bot/internal/store"
)

// writeBlock appends the assignment's block to its chain, branching into a
// fork when the slot is already taken. The taken-slot check is the blocks
// table's primary key, not a pre-read, so two racing writers cannot both
// land on the original: one wins the slot, the other forks. A submission is
// never rejected for losing the race.
func (s *Service) writeBlock(ctx context.Context, chain *domain.Chain, a *domain.Assignment, content, mediaRef string) (*SubmitResult, error) {
	slotTZ, err := domain.OffsetForSlot(chain.CreatorTZ, a.SlotIndex)
	if err != nil {
		return nil, fmt.Errorf("slot offset: %w", err)
	}

	b := &domain.Block{
		ChainID:   chain.ID,
		SlotIndex: a.SlotIndex,
		UserID:    a.UserID,
		TZOffset:  slotTZ,
		Content:   content,
		MediaRef:  mediaRef,
		CreatedAt: s.nowFn(),
	}

	err = s.repo.AppendBlock(ctx, b, a.ID)
	if err == nil {
		chain.BlockCount++
		res := &SubmitResult{Accepted: true, Chain: chain, Block: b}
		s.log.Info("block written",
			zap.String("chain", chain.ID),
			zap.Int("slot", b.SlotIndex),
			zap.Int64("user", b.UserID))
		s.recordToLedger(*b)
		res.Completed = s.completeIfFull(ctx, chain)
		return res, nil
	}
	if !errors.Is(err, store.ErrConflict) {
		return nil, fmt.Errorf("append block: %w", err)
	}

	// Slot taken: branch. The fork inherits the ancestor's creator, offset
	// origin and start time, so the whole tree shares one deadline, and it
	// pursues completion independently from the divergence point on.
	forkSlot := a.SlotIndex
	fork := &domain.Chain{
		ID:          uuid.NewString(),
		CreatorID:   chain.CreatorID,
		CreatorTZ:   chain.CreatorTZ,
		Status:      domain.ChainStatusActive,
		BlockCount:  1,
		RootChainID: chain.RootChainID,
		ForkSlot:    &forkSlot,
		StartUTC:    chain.StartUTC,
	}
	b.ChainID = fork.ID

	if err := s.repo.ForkAndAppend(ctx, fork, b, a.ID); err != nil {
		return nil, fmt.Errorf("fork chain: %w", err)
	}
	s.log.Info("slot contested, forked",
		zap.String("chain", chain.ID),
		zap.String("fork", fork.ID),
		zap.Int("slot", forkSlot),
		zap.Int64("user", b.UserID))
	s.recordToLedger(*b)
	res := &SubmitResult{Accepted: true, Forked: true, Chain: fork, Block: b}
	// A fork born at slot 24 has nothing left to fill.
	res.Completed = s.completeIfFull(ctx, fork)
	return res, nil
}

// completeIfFull closes the chain when the write filled slot 24. A root
// chain reaches it with 24 own blocks; a fork with fewer, since its run
// starts at the divergence slot. DeliverAt stays anchored to the start,
// however fast the chain filled.
func (s *Service) completeIfFull(ctx context.Context, chain *domain.Chain) bool {
	if chain.NextSlot() <= domain.SlotCount {
		return false
	}
	due := s.deliverAt(chain)
	ok, err := s.repo.CompleteChain(ctx, chain.ID, due)
	if err != nil {
		s.log.Error("complete full chain failed", zap.String("chain", chain.ID), zap.Error(err))
		return false
	}
	if !ok {
		return false
	}
	chain.Status = domain.ChainStatusCompleted
	chain.DeliverAt = &due
	s.log.Info("chain completed full",
		zap.String("chain", chain.ID),
		zap.Time("deliver_at", due))
	s.notifyCompleted(ctx, *chain)
	return true
}

// notifyCompleted is a best-effort side channel; failure is logged only.
func (s *Service) notifyCompleted(ctx context.Context, chain domain.Chain) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyCompleted(ctx, domain.ChainCompleted{Chain: chain}); err != nil {
		s.log.Warn("completed notification failed", zap.String("chain", chain.ID), zap.Error(err))
	}
}
