package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/pvolkov/daychain-bot/internal/domain"
)

func openTestRepo(t *testing.T) *SQLiteRepo {
	t.Helper()
	repo, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func seedChain(t *testing.T, repo *SQLiteRepo, id string, creator int64, start time.Time) *domain.Chain {
	t.Helper()
	c := &domain.Chain{
		ID:          id,
		CreatorID:   creator,
		CreatorTZ:   9,
		Status:      domain.ChainStatusActive,
		BlockCount:  1,
		RootChainID: id,
		StartUTC:    start,
	}
	first := &domain.Block{
		ChainID:   id,
		SlotIndex: 1,
		UserID:    creator,
		TZOffset:  9,
		Content:   "first",
		CreatedAt: start,
	}
	if err := repo.CreateChain(context.Background(), c, first); err != nil {
		t.Fatalf("seed chain: %v", err)
	}
	return c
}

func seedAssignment(t *testing.T, repo *SQLiteRepo, id string, user int64, chainID string, slot int, at time.Time) *domain.Assignment {
	t.Helper()
	a := &domain.Assignment{
		ID:         id,
		UserID:     user,
		ChainID:    chainID,
		SlotIndex:  slot,
		Status:     domain.AssignmentPending,
		AssignedAt: at,
		ExpiresAt:  at.Add(time.Hour),
	}
	if err := repo.CreateAssignment(context.Background(), a); err != nil {
		t.Fatalf("seed assignment: %v", err)
	}
	return a
}

func TestAppendBlockSlotUniqueness(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	start := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	seedChain(t, repo, "chain-1", 100, start)

	a1 := seedAssignment(t, repo, "as-1", 101, "chain-1", 2, start)
	a2 := seedAssignment(t, repo, "as-2", 102, "chain-1", 2, start)

	b := &domain.Block{ChainID: "chain-1", SlotIndex: 2, UserID: 101, TZOffset: 8, Content: "b", CreatedAt: start}
	if err := repo.AppendBlock(ctx, b, a1.ID); err != nil {
		t.Fatalf("first append: %v", err)
	}

	dup := &domain.Block{ChainID: "chain-1", SlotIndex: 2, UserID: 102, TZOffset: 8, Content: "c", CreatedAt: start}
	err := repo.AppendBlock(ctx, dup, a2.ID)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	// The losing transaction must roll back completely: block_count
	// untouched, assignment still open.
	c, err := repo.GetChain(ctx, "chain-1")
	if err != nil {
		t.Fatal(err)
	}
	if c.BlockCount != 2 {
		t.Errorf("block_count = %d, want 2", c.BlockCount)
	}
	got, err := repo.GetAssignment(ctx, a2.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Open() {
		t.Errorf("losing assignment status = %s, want open", got.Status)
	}
}

func TestOneOpenAssignmentPerUserChain(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	start := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	seedChain(t, repo, "chain-1", 100, start)

	seedAssignment(t, repo, "as-1", 101, "chain-1", 2, start)

	second := &domain.Assignment{
		ID: "as-2", UserID: 101, ChainID: "chain-1", SlotIndex: 2,
		Status: domain.AssignmentPending, AssignedAt: start, ExpiresAt: start.Add(time.Hour),
	}
	if err := repo.CreateAssignment(ctx, second); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for second open assignment, got %v", err)
	}

	// After the first resolves, a new offer for the same pair is fine.
	ok, err := repo.ResolveAssignment(ctx, "as-1", domain.AssignmentSkipped)
	if err != nil || !ok {
		t.Fatalf("resolve: ok=%v err=%v", ok, err)
	}
	if err := repo.CreateAssignment(ctx, second); err != nil {
		t.Fatalf("assignment after resolve: %v", err)
	}
}

func TestExpireAssignmentsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	start := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	seedChain(t, repo, "chain-1", 100, start)
	seedAssignment(t, repo, "as-1", 101, "chain-1", 2, start)

	later := start.Add(2 * time.Hour)
	n, err := repo.ExpireAssignments(ctx, later)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expired %d, want 1", n)
	}
	n, err = repo.ExpireAssignments(ctx, later)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("second run expired %d, want 0", n)
	}
}

func TestCompleteAndDeliverGuards(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	start := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	seedChain(t, repo, "chain-1", 100, start)
	due := start.Add(24 * time.Hour)

	ok, err := repo.CompleteChain(ctx, "chain-1", due)
	if err != nil || !ok {
		t.Fatalf("complete: ok=%v err=%v", ok, err)
	}
	ok, err = repo.CompleteChain(ctx, "chain-1", due)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("second complete reported a transition")
	}

	ok, err = repo.MarkDelivered(ctx, "chain-1")
	if err != nil || !ok {
		t.Fatalf("deliver: ok=%v err=%v", ok, err)
	}
	ok, err = repo.MarkDelivered(ctx, "chain-1")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("second deliver reported a transition")
	}

	c, err := repo.GetChain(ctx, "chain-1")
	if err != nil {
		t.Fatal(err)
	}
	if c.Status != domain.ChainStatusDelivered {
		t.Errorf("status = %s, want delivered", c.Status)
	}
	if c.DeliverAt == nil || !c.DeliverAt.Equal(due) {
		t.Errorf("deliver_at = %v, want %v", c.DeliverAt, due)
	}
}

func TestListCandidateChainsFilters(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	start := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

	// Three chains, oldest first expected in results.
	seedChain(t, repo, "chain-old", 100, start)
	seedChain(t, repo, "chain-mid", 100, start.Add(time.Minute))
	seedChain(t, repo, "chain-new", 100, start.Add(2*time.Minute))

	// User 101 already contributed to chain-mid.
	a := seedAssignment(t, repo, "as-mid", 101, "chain-mid", 2, start)
	b := &domain.Block{ChainID: "chain-mid", SlotIndex: 2, UserID: 101, TZOffset: 8, Content: "x", CreatedAt: start}
	if err := repo.AppendBlock(ctx, b, a.ID); err != nil {
		t.Fatal(err)
	}
	// And holds an open offer on chain-new.
	seedAssignment(t, repo, "as-new", 101, "chain-new", 2, start)

	// A fork whose run already reached slot 24 has nothing left to offer.
	slot24 := 24
	full := &domain.Chain{
		ID: "fork-full", CreatorID: 100, CreatorTZ: 9,
		Status: domain.ChainStatusActive, BlockCount: 1,
		RootChainID: "chain-old", ForkSlot: &slot24, StartUTC: start,
	}
	last := &domain.Block{ChainID: "fork-full", SlotIndex: 24, UserID: 300, TZOffset: 10, Content: "x", CreatedAt: start}
	if err := repo.CreateChain(ctx, full, last); err != nil {
		t.Fatal(err)
	}

	cands, err := repo.ListCandidateChains(ctx, 101, start)
	if err != nil {
		t.Fatal(err)
	}
	if len(cands) != 1 || cands[0].ID != "chain-old" {
		ids := make([]string, len(cands))
		for i, c := range cands {
			ids[i] = c.ID
		}
		t.Fatalf("candidates = %v, want [chain-old]", ids)
	}

	// A skip shadows the chain until the offer's TTL would have lapsed.
	if _, err := repo.ResolveAssignment(ctx, "as-new", domain.AssignmentSkipped); err != nil {
		t.Fatal(err)
	}
	cands, err = repo.ListCandidateChains(ctx, 101, start)
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range cands {
		if c.ID == "chain-new" {
			t.Fatal("skipped chain resurfaced before cool-down")
		}
	}
	cands, err = repo.ListCandidateChains(ctx, 101, start.Add(2*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, c := range cands {
		found = found || c.ID == "chain-new"
	}
	if !found {
		t.Error("skipped chain still shadowed after cool-down")
	}

	// The creator never gets their own chain back: they hold block 1.
	cands, err = repo.ListCandidateChains(ctx, 100, start)
	if err != nil {
		t.Fatal(err)
	}
	if len(cands) != 0 {
		t.Fatalf("creator got %d candidates, want 0", len(cands))
	}
}

func TestForkAndAppend(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	start := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	seedChain(t, repo, "chain-1", 100, start)
	a := seedAssignment(t, repo, "as-1", 102, "chain-1", 2, start)

	slot := 2
	fork := &domain.Chain{
		ID:          "fork-1",
		CreatorID:   100,
		CreatorTZ:   9,
		Status:      domain.ChainStatusActive,
		BlockCount:  1,
		RootChainID: "chain-1",
		ForkSlot:    &slot,
		StartUTC:    start,
	}
	b := &domain.Block{ChainID: "fork-1", SlotIndex: 2, UserID: 102, TZOffset: 8, Content: "branch", CreatedAt: start}
	if err := repo.ForkAndAppend(ctx, fork, b, a.ID); err != nil {
		t.Fatalf("fork and append: %v", err)
	}

	n, err := repo.CountChainsByRoot(ctx, "chain-1")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("chains under root = %d, want 2", n)
	}

	got, err := repo.GetChain(ctx, "fork-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.ForkSlot == nil || *got.ForkSlot != 2 {
		t.Errorf("fork_slot = %v, want 2", got.ForkSlot)
	}
	if !got.StartUTC.Equal(start) {
		t.Errorf("fork start = %v, want ancestor's %v", got.StartUTC, start)
	}

	resolved, err := repo.GetAssignment(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if resolved.Status != domain.AssignmentWritten {
		t.Errorf("assignment status = %s, want written", resolved.Status)
	}
}

func TestUsersRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)

	u := &domain.User{ChatID: 7, TZOffset: -11, NotifyHour: 21, Lang: "en", Enabled: true, CreatedAt: time.Now().UTC()}
	if err := repo.UpsertUser(ctx, u); err != nil {
		t.Fatal(err)
	}

	got, err := repo.GetUser(ctx, 7)
	if err != nil {
		t.Fatal(err)
	}
	if got.TZOffset != -11 || got.NotifyHour != 21 || !got.Enabled {
		t.Errorf("round trip mismatch: %+v", got)
	}

	if err := repo.SetEnabled(ctx, 7, false); err != nil {
		t.Fatal(err)
	}
	users, err := repo.ListEnabledUsers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 0 {
		t.Errorf("disabled user still listed")
	}

	if _, err := repo.GetUser(ctx, 8); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
