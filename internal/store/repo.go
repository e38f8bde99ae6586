package store

import (
	"context"
	"time"

	"github.com/pvolkov/daychain-bot/internal/domain"
)

// Repo defines storage operations for users, chains, blocks and assignments.
// All mutating methods are safe to retry: uniqueness lives in constraints
// (surfaced as ErrConflict) and status transitions are guarded in SQL.
type Repo interface {
	// Users.
	UpsertUser(ctx context.Context, u *domain.User) error
	GetUser(ctx context.Context, chatID int64) (*domain.User, error)
	SetEnabled(ctx context.Context, chatID int64, enabled bool) error
	ListEnabledUsers(ctx context.Context) ([]domain.User, error)

	// Chains.
	CreateChain(ctx context.Context, c *domain.Chain, first *domain.Block) error
	GetChain(ctx context.Context, id string) (*domain.Chain, error)
	ListCandidateChains(ctx context.Context, userID int64, now time.Time) ([]domain.Chain, error)
	ListOverdueActive(ctx context.Context, deadline time.Time) ([]domain.Chain, error)
	ListDeliverable(ctx context.Context, now time.Time) ([]domain.Chain, error)
	CompleteChain(ctx context.Context, id string, deliverAt time.Time) (bool, error)
	MarkDelivered(ctx context.Context, id string) (bool, error)
	CountChainsByRoot(ctx context.Context, rootID string) (int, error)

	// Blocks.
	AppendBlock(ctx context.Context, b *domain.Block, assignmentID string) error
	ForkAndAppend(ctx context.Context, fork *domain.Chain, b *domain.Block, assignmentID string) error
	GetBlocks(ctx context.Context, chainID string) ([]domain.Block, error)
	SetLedgerHash(ctx context.Context, chainID string, slot int, hash string) error

	// Assignments.
	CreateAssignment(ctx context.Context, a *domain.Assignment) error
	GetAssignment(ctx context.Context, id string) (*domain.Assignment, error)
	ListOpenAssignments(ctx context.Context, userID int64) ([]domain.Assignment, error)
	MarkAssignmentWriting(ctx context.Context, id string) error
	ResolveAssignment(ctx context.Context, id, status string) (bool, error)
	ExpireAssignments(ctx context.Context, now time.Time) (int64, error)

	Close() error
}
