package domain

import "time"

// Chain statuses. A chain is born active, completes once (full or timed out)
// and is delivered to its creator exactly once.
const (
	ChainStatusActive    = "active"
	ChainStatusCompleted = "completed"
	ChainStatusDelivered = "delivered"
)

// Chain is one relay instance progressing through 24 timezone slots.
// RootChainID equals ID for a chain that is not a fork; a fork points at the
// tree's root and records the slot where it diverged.
type Chain struct {
	ID          string
	CreatorID   int64
	CreatorTZ   int // offset of slot 1
	Status      string
	BlockCount  int
	RootChainID string
	ForkSlot    *int
	StartUTC    time.Time
	DeliverAt   *time.Time // set on completion: StartUTC + chain window
}

// IsFork reports whether the chain diverged from another one.
func (c *Chain) IsFork() bool {
	return c.RootChainID != c.ID
}

// NextSlot is the slot index the chain needs next. A root chain's blocks
// run contiguously from slot 1, a fork's from its divergence slot, so the
// next slot is the run's first slot plus the blocks already in it. Returns
// SlotCount+1 once slot 24 is filled.
func (c *Chain) NextSlot() int {
	first := 1
	if c.ForkSlot != nil {
		first = *c.ForkSlot
	}
	return first + c.BlockCount
}

// Deadline is the instant after which the chain force-completes.
func (c *Chain) Deadline(window time.Duration) time.Time {
	return c.StartUTC.Add(window)
}

// Block is one user's content occupying one slot of one chain.
// Immutable once created; (ChainID, SlotIndex) is unique.
type Block struct {
	ChainID    string
	SlotIndex  int // 1..24
	UserID     int64
	TZOffset   int
	Content    string
	MediaRef   string // Telegram file id, empty for text-only
	LedgerHash string // best-effort, filled after the ledger ack
	CreatedAt  time.Time
}
