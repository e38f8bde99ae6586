package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/pvolkov/daychain-bot/internal/domain"
	"github.com/pvolkov/daychain-bot/internal/store"
)

// ErrAssignmentClosed is returned when a write or skip targets an offer that
// already resolved (written, skipped or expired).
var ErrAssignmentClosed = errors.New("assignment is not open")

// ValidationError carries the content-safety collaborator's verdict. The
// offer stays open; the user is re-prompted, never skipped or expired.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "content rejected: " + e.Reason }

// Validator is the content-safety collaborator, consulted before a block is
// durably committed.
type Validator interface {
	Validate(ctx context.Context, content, mediaRef string) error
}

// Ledger is the external record collaborator. Fire-and-forget relative to
// local correctness: its failures never block or roll back local state.
type Ledger interface {
	RecordBlock(ctx context.Context, chainID string, slot int, contentHash, prevHash string) (string, error)
}

// Notifier renders core events for users. Implemented by the Telegram
// adapter; the core hands over structs and never produces UI text.
type Notifier interface {
	OfferAssignment(ctx context.Context, ev domain.AssignmentOffered) error
	NotifyCompleted(ctx context.Context, ev domain.ChainCompleted) error
	DeliverChain(ctx context.Context, ev domain.ChainDelivered) error
}

// Service is the relay core: chain/block/assignment state machine, matching,
// fork resolution and the hourly reconciliation entry point.
type Service struct {
	repo      store.Repo
	log       *zap.Logger
	validator Validator
	ledger    Ledger
	notifier  Notifier
	ttl       time.Duration // assignment time box
	window    time.Duration // chain wall-clock lifetime
	nowFn     func() time.Time
}

// NewService wires the core. The notifier is attached separately because the
// presentation adapter is constructed around the service.
func NewService(repo store.Repo, log *zap.Logger, v Validator, l Ledger, ttl, window time.Duration) *Service {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &Service{
		repo:      repo,
		log:       log,
		validator: v,
		ledger:    l,
		ttl:       ttl,
		window:    window,
		nowFn:     func() time.Time { return time.Now().UTC() },
	}
}

// SetNotifier attaches the presentation adapter.
func (s *Service) SetNotifier(n Notifier) { s.notifier = n }

// Window returns the chain wall-clock lifetime.
func (s *Service) Window() time.Duration { return s.window }

// contentHash is the digest sent to the ledger for a block.
func contentHash(content, mediaRef string) string {
	h := sha256.New()
	h.Write([]byte(content))
	h.Write([]byte{0})
	h.Write([]byte(mediaRef))
	return hex.EncodeToString(h.Sum(nil))
}

// recordToLedger ships a committed block to the ledger in the background.
// prevHash is the previous slot's ledger hash when one exists.
func (s *Service) recordToLedger(b domain.Block) {
	if s.ledger == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		prev := s.prevLedgerHash(ctx, b)
		hash, err := s.ledger.RecordBlock(ctx, b.ChainID, b.SlotIndex, contentHash(b.Content, b.MediaRef), prev)
		if err != nil {
			s.log.Warn("ledger record failed",
				zap.String("chain", b.ChainID), zap.Int("slot", b.SlotIndex), zap.Error(err))
			return
		}
		if err := s.repo.SetLedgerHash(ctx, b.ChainID, b.SlotIndex, hash); err != nil {
			s.log.Warn("store ledger hash failed", zap.String("chain", b.ChainID), zap.Error(err))
		}
	}()
}

// prevLedgerHash finds the ledger hash of the block preceding b. The
// predecessor of a fork's first own block lives on the ancestor chain, not
// on b's chain, so the lookup falls back to the fork tree's root there.
func (s *Service) prevLedgerHash(ctx context.Context, b domain.Block) string {
	if b.SlotIndex <= 1 {
		return ""
	}
	if h, ok := s.ledgerHashAt(ctx, b.ChainID, b.SlotIndex-1); ok {
		return h
	}
	c, err := s.repo.GetChain(ctx, b.ChainID)
	if err != nil || !c.IsFork() {
		return ""
	}
	h, _ := s.ledgerHashAt(ctx, c.RootChainID, b.SlotIndex-1)
	return h
}

// ledgerHashAt reports the hash stored for (chainID, slot) and whether that
// block exists at all. An existing block with an empty hash means the ledger
// is lagging, not that the predecessor lives elsewhere.
func (s *Service) ledgerHashAt(ctx context.Context, chainID string, slot int) (string, bool) {
	blocks, err := s.repo.GetBlocks(ctx, chainID)
	if err != nil {
		return "", false
	}
	for _, pb := range blocks {
		if pb.SlotIndex == slot {
			return pb.LedgerHash, true
		}
	}
	return "", false
}
