package core

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/pvolkov/daychain-bot/internal/domain"
	"github.com/pvolkov/daychain-bot/internal/store"
)

// SubmitResult is the outcome of a write: which chain actually received the
// block (a fork when the slot was contested), whether the chain completed on
// this write, and the user's next offer if any.
type SubmitResult struct {
	Accepted  bool
	Forked    bool
	Completed bool
	Chain     *domain.Chain
	Block     *domain.Block
	Next      *domain.AssignmentOffered
}

// SubmitBlock resolves an open offer with content. Validation failure keeps
// the offer open (returned as *ValidationError). A slot collision is never
// an error: the write lands on a fresh fork. A chain that closed while the
// offer was pending resolves the offer and reports Accepted=false.
func (s *Service) SubmitBlock(ctx context.Context, assignmentID, content, mediaRef string) (*SubmitResult, error) {
	a, err := s.repo.GetAssignment(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrAssignmentClosed
		}
		return nil, err
	}
	if !a.Open() {
		return nil, ErrAssignmentClosed
	}

	if s.validator != nil {
		if err := s.validator.Validate(ctx, content, mediaRef); err != nil {
			return nil, err
		}
	}

	chain, err := s.repo.GetChain(ctx, a.ChainID)
	if err != nil {
		return nil, fmt.Errorf("load chain: %w", err)
	}
	if chain.Status != domain.ChainStatusActive {
		// The chain closed while the offer was live. Resolve the offer and
		// move the user along; nothing to write into.
		if _, err := s.repo.ResolveAssignment(ctx, a.ID, domain.AssignmentExpired); err != nil {
			return nil, err
		}
		next, err := s.nextOffer(ctx, a.UserID)
		if err != nil {
			return nil, err
		}
		return &SubmitResult{Accepted: false, Next: next}, nil
	}

	res, err := s.writeBlock(ctx, chain, a, content, mediaRef)
	if err != nil {
		return nil, err
	}

	next, err := s.nextOffer(ctx, a.UserID)
	if err != nil {
		// The block is committed; a failed re-roll must not fail the write.
		s.log.Warn("next offer failed after write", zap.Int64("user", a.UserID), zap.Error(err))
	} else {
		res.Next = next
	}
	return res, nil
}

// SkipAssignment resolves an open offer without writing and surfaces the
// user's next candidate.
func (s *Service) SkipAssignment(ctx context.Context, assignmentID string) (*domain.AssignmentOffered, error) {
	a, err := s.repo.GetAssignment(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrAssignmentClosed
		}
		return nil, err
	}
	ok, err := s.repo.ResolveAssignment(ctx, assignmentID, domain.AssignmentSkipped)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAssignmentClosed
	}
	s.log.Info("assignment skipped",
		zap.String("assignment", assignmentID),
		zap.String("chain", a.ChainID),
		zap.Int64("user", a.UserID))
	return s.nextOffer(ctx, a.UserID)
}

// Inbox returns the user's current offer, creating one from the matching
// engine when none is open. Nil means nothing pending.
func (s *Service) Inbox(ctx context.Context, userID int64) (*domain.AssignmentOffered, error) {
	return s.nextOffer(ctx, userID)
}
