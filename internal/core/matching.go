package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/pvolkov/daychain-bot/internal/domain"
	"github.com/pvolkov/daychain-bot/internal/store"
)

// nextOffer is the rolling inbox: the user's oldest open offer, or a fresh
// one from the matching engine when none is open. Nil means nothing pending.
// Offers roll strictly one at a time here; batch creation happens only in
// the hourly sweep.
func (s *Service) nextOffer(ctx context.Context, userID int64) (*domain.AssignmentOffered, error) {
	open, err := s.repo.ListOpenAssignments(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(open) > 0 {
		return s.offerFor(ctx, open[0])
	}

	cands, err := s.repo.ListCandidateChains(ctx, userID, s.nowFn())
	if err != nil {
		return nil, err
	}
	for i := range cands {
		off, err := s.createOffer(ctx, &cands[i], userID)
		if errors.Is(err, store.ErrConflict) {
			// Raced with the hourly sweep for this chain; the open offer it
			// created will surface on the next call.
			continue
		}
		if err != nil {
			return nil, err
		}
		return off, nil
	}
	return nil, nil
}

// createOffer inserts a pending assignment for the chain's next slot. The
// partial unique index rejects a duplicate open offer (store.ErrConflict).
func (s *Service) createOffer(ctx context.Context, chain *domain.Chain, userID int64) (*domain.AssignmentOffered, error) {
	now := s.nowFn()
	a := domain.Assignment{
		ID:         uuid.NewString(),
		UserID:     userID,
		ChainID:    chain.ID,
		SlotIndex:  chain.NextSlot(),
		Status:     domain.AssignmentPending,
		AssignedAt: now,
		ExpiresAt:  now.Add(s.ttl),
	}
	if err := s.repo.CreateAssignment(ctx, &a); err != nil {
		return nil, err
	}
	needed, err := domain.OffsetForSlot(chain.CreatorTZ, a.SlotIndex)
	if err != nil {
		return nil, fmt.Errorf("slot offset: %w", err)
	}
	return &domain.AssignmentOffered{Assignment: a, Chain: *chain, NeededOffset: needed}, nil
}

// offerFor builds the offered event for an existing open assignment and
// moves it to writing, the user having now seen it.
func (s *Service) offerFor(ctx context.Context, a domain.Assignment) (*domain.AssignmentOffered, error) {
	chain, err := s.repo.GetChain(ctx, a.ChainID)
	if err != nil {
		return nil, fmt.Errorf("load chain: %w", err)
	}
	needed, err := domain.OffsetForSlot(chain.CreatorTZ, a.SlotIndex)
	if err != nil {
		return nil, fmt.Errorf("slot offset: %w", err)
	}
	if a.Status == domain.AssignmentPending {
		if err := s.repo.MarkAssignmentWriting(ctx, a.ID); err != nil {
			return nil, err
		}
		a.Status = domain.AssignmentWriting
	}
	return &domain.AssignmentOffered{Assignment: a, Chain: *chain, NeededOffset: needed}, nil
}
