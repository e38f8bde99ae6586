package core

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/pvolkov/daychain-bot/internal/domain"
	"github.com/pvolkov/daychain-bot/internal/store"
)

// Reconcile is the hourly tick. Order matters: expire offers first so the
// re-roll at the end never sees stale ones, then close and deliver chains,
// then roll fresh offers to users whose local notify hour has arrived.
// Every pass is guarded by status checks in SQL, so re-running the tick
// within the same hour neither double-expires, double-completes,
// double-delivers nor double-offers.
func (s *Service) Reconcile(ctx context.Context, now time.Time) {
	now = now.UTC()
	s.expirePass(ctx, now)
	s.completePass(ctx, now)
	s.deliverPass(ctx, now)
	s.offerPass(ctx, now)
}

// expirePass closes every open offer past its TTL. No block is created; the
// offer just disappears from the user's inbox.
func (s *Service) expirePass(ctx context.Context, now time.Time) {
	n, err := s.repo.ExpireAssignments(ctx, now)
	if err != nil {
		s.log.Error("expire assignments failed", zap.Error(err))
		return
	}
	if n > 0 {
		s.log.Info("assignments expired", zap.Int64("count", n))
	}
}

// completePass force-closes chains whose wall-clock window elapsed short of
// a full fill. A short chain is a legitimate terminal state, not an error.
func (s *Service) completePass(ctx context.Context, now time.Time) {
	overdue, err := s.repo.ListOverdueActive(ctx, now.Add(-s.window))
	if err != nil {
		s.log.Error("list overdue chains failed", zap.Error(err))
		return
	}
	for i := range overdue {
		c := overdue[i]
		due := s.deliverAt(&c)
		ok, err := s.repo.CompleteChain(ctx, c.ID, due)
		if err != nil {
			s.log.Error("force-complete failed", zap.String("chain", c.ID), zap.Error(err))
			continue
		}
		if !ok {
			continue // completed by a concurrent write or an earlier run
		}
		c.Status = domain.ChainStatusCompleted
		c.DeliverAt = &due
		s.log.Info("chain force-completed",
			zap.String("chain", c.ID),
			zap.Int("blocks", c.BlockCount),
			zap.Time("deliver_at", due))
		s.notifyCompleted(ctx, c)
	}
}

// deliverPass sends each due completed chain to its creator and flips it to
// delivered. The flip happens only after a successful send, so a notifier
// outage re-tries on the next tick instead of losing the delivery.
func (s *Service) deliverPass(ctx context.Context, now time.Time) {
	due, err := s.repo.ListDeliverable(ctx, now)
	if err != nil {
		s.log.Error("list deliverable chains failed", zap.Error(err))
		return
	}
	for i := range due {
		c := due[i]
		blocks, err := s.repo.GetBlocks(ctx, c.ID)
		if err != nil {
			s.log.Error("load blocks failed", zap.String("chain", c.ID), zap.Error(err))
			continue
		}
		if s.notifier != nil {
			if err := s.notifier.DeliverChain(ctx, domain.ChainDelivered{Chain: c, Blocks: blocks}); err != nil {
				s.log.Warn("delivery send failed, will retry", zap.String("chain", c.ID), zap.Error(err))
				continue
			}
		}
		ok, err := s.repo.MarkDelivered(ctx, c.ID)
		if err != nil {
			s.log.Error("mark delivered failed", zap.String("chain", c.ID), zap.Error(err))
			continue
		}
		if ok {
			s.log.Info("chain delivered", zap.String("chain", c.ID), zap.Int("blocks", c.BlockCount))
		}
	}
}

// offerPass rolls offers to every user whose local notify hour equals the
// current hour: one assignment per eligible chain, surfaced one at a time
// starting with the oldest.
func (s *Service) offerPass(ctx context.Context, now time.Time) {
	users, err := s.repo.ListEnabledUsers(ctx)
	if err != nil {
		s.log.Error("list users failed", zap.Error(err))
		return
	}
	for i := range users {
		u := users[i]
		if !u.DueAt(now) {
			continue
		}
		cands, err := s.repo.ListCandidateChains(ctx, u.ChatID, now)
		if err != nil {
			s.log.Error("matching failed", zap.Int64("user", u.ChatID), zap.Error(err))
			continue
		}
		created := 0
		for j := range cands {
			if _, err := s.createOffer(ctx, &cands[j], u.ChatID); err != nil {
				if errors.Is(err, store.ErrConflict) {
					continue // already holds an open offer on this chain
				}
				s.log.Error("create offer failed",
					zap.Int64("user", u.ChatID), zap.String("chain", cands[j].ID), zap.Error(err))
				continue
			}
			created++
		}
		if created > 0 {
			s.log.Info("offers rolled", zap.Int64("user", u.ChatID), zap.Int("count", created))
		}
		s.surfaceHead(ctx, u.ChatID)
	}
}

// surfaceHead pushes the user's current head offer through the notifier.
func (s *Service) surfaceHead(ctx context.Context, userID int64) {
	if s.notifier == nil {
		return
	}
	open, err := s.repo.ListOpenAssignments(ctx, userID)
	if err != nil {
		s.log.Error("list open offers failed", zap.Int64("user", userID), zap.Error(err))
		return
	}
	if len(open) == 0 {
		return
	}
	ev, err := s.offerFor(ctx, open[0])
	if err != nil {
		s.log.Error("build offer event failed", zap.Int64("user", userID), zap.Error(err))
		return
	}
	if err := s.notifier.OfferAssignment(ctx, *ev); err != nil {
		s.log.Warn("offer notification failed", zap.Int64("user", userID), zap.Error(err))
	}
}
