package service

import (
	"context"
	"testing"
	"time"

	"app/internal/clock"
	"app/internal/model"

	"github.com/rs/zerolog"
)

func newTestUsage(t *testing.T) (UsageService, *fakeUsageRepo, *clock.FakeClock) {
	t.Helper()
	repo := newFakeUsageRepo()
	clk := clock.NewFakeClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	return NewUsageService(repo, clk, zerolog.Nop()), repo, clk
}

func TestGetUsageIsIdempotent(t *testing.T) {
	svc, _, _ := newTestUsage(t)
	ctx := context.Background()

	if err := svc.Increment(ctx, "u1", model.OpAiChat); err != nil {
		t.Fatalf("Increment: %v", err)
	}
	first, err := svc.GetUsage(ctx, "u1")
	if err != nil {
		t.Fatalf("GetUsage: %v", err)
	}
	second, err := svc.GetUsage(ctx, "u1")
	if err != nil {
		t.Fatalf("GetUsage: %v", err)
	}
	if first.Counts[model.OpAiChat] != 1 || second.Counts[model.OpAiChat] != 1 {
		t.Fatalf("reads disagree: %d then %d", first.Counts[model.OpAiChat], second.Counts[model.OpAiChat])
	}
}

// Crossing a day boundary zeroes the daily group and leaves the monthly group
// untouched.
func TestDayBoundaryResetsOnlyDailyGroup(t *testing.T) {
	svc, _, clk := newTestUsage(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := svc.Increment(ctx, "u1", model.OpInlineAiAsk); err != nil {
			t.Fatalf("Increment: %v", err)
		}
	}
	if err := svc.Increment(ctx, "u1", model.OpPodcast); err != nil {
		t.Fatalf("Increment: %v", err)
	}

	clk.Advance(24 * time.Hour)

	uc, err := svc.GetUsage(ctx, "u1")
	if err != nil {
		t.Fatalf("GetUsage: %v", err)
	}
	if uc.Counts[model.OpInlineAiAsk] != 0 {
		t.Fatalf("daily count survived day boundary: %d", uc.Counts[model.OpInlineAiAsk])
	}
	if uc.Counts[model.OpPodcast] != 1 {
		t.Fatalf("monthly count lost on day boundary: %d, want 1", uc.Counts[model.OpPodcast])
	}
}

func TestMonthBoundaryResetsMonthlyGroup(t *testing.T) {
	svc, _, clk := newTestUsage(t)
	ctx := context.Background()

	if err := svc.Increment(ctx, "u1", model.OpDocGeneration); err != nil {
		t.Fatalf("Increment: %v", err)
	}

	clk.Set(time.Date(2026, 4, 1, 0, 0, 1, 0, time.UTC))

	uc, err := svc.GetUsage(ctx, "u1")
	if err != nil {
		t.Fatalf("GetUsage: %v", err)
	}
	if uc.Counts[model.OpDocGeneration] != 0 {
		t.Fatalf("monthly count survived month boundary: %d", uc.Counts[model.OpDocGeneration])
	}
	if uc.LastMonthlyReset != "2026-04" {
		t.Fatalf("monthly marker = %q, want 2026-04", uc.LastMonthlyReset)
	}
}

// The reset is persisted: after a boundary read, the stored markers advance so
// a later read in the same period does not reset again.
func TestLazyResetPersists(t *testing.T) {
	svc, repo, clk := newTestUsage(t)
	ctx := context.Background()

	if err := svc.Increment(ctx, "u1", model.OpAiChat); err != nil {
		t.Fatalf("Increment: %v", err)
	}
	clk.Advance(24 * time.Hour)
	if _, err := svc.GetUsage(ctx, "u1"); err != nil {
		t.Fatalf("GetUsage: %v", err)
	}

	stored, err := repo.GetCounters(ctx, "u1")
	if err != nil {
		t.Fatalf("GetCounters: %v", err)
	}
	if stored.LastResetDate != clk.Now().Format("2006-01-02") {
		t.Fatalf("stored daily marker = %q, want %q", stored.LastResetDate, clk.Now().Format("2006-01-02"))
	}
	if stored.Counts[model.OpAiChat] != 0 {
		t.Fatalf("stored daily count = %d, want 0", stored.Counts[model.OpAiChat])
	}
}

// A free user who used all 4 monthly podcast slots gets a structured
// disallowed result.
func TestFreePodcastLimitExhausted(t *testing.T) {
	svc, _, _ := newTestUsage(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if err := svc.Increment(ctx, "u1", model.OpPodcast); err != nil {
			t.Fatalf("Increment: %v", err)
		}
	}
	res, err := svc.CheckLimit(ctx, "u1", model.OpPodcast, false)
	if err != nil {
		t.Fatalf("CheckLimit: %v", err)
	}
	want := model.LimitResult{Allowed: false, Current: 4, Limit: 4, Remaining: 0}
	if *res != want {
		t.Fatalf("result = %+v, want %+v", *res, want)
	}
}

// Video generation is fully paywalled for free users: limit 0, disallowed
// before first use.
func TestFreeVideoIsPaywalled(t *testing.T) {
	svc, _, _ := newTestUsage(t)

	res, err := svc.CheckLimit(context.Background(), "u1", model.OpVideoGeneration, false)
	if err != nil {
		t.Fatalf("CheckLimit: %v", err)
	}
	if res.Allowed || res.Limit != 0 {
		t.Fatalf("result = %+v, want disallowed with limit 0", *res)
	}
}

// Subscribed limits are advisory: the check reports the numbers but always
// allows.
func TestSubscribedLimitIsAdvisory(t *testing.T) {
	svc, _, _ := newTestUsage(t)
	ctx := context.Background()

	spec, _ := model.OpDeepResearch.Spec()
	for i := 0; i < spec.SubscribedLimit+1; i++ {
		if err := svc.Increment(ctx, "u1", model.OpDeepResearch); err != nil {
			t.Fatalf("Increment: %v", err)
		}
	}
	res, err := svc.CheckLimit(ctx, "u1", model.OpDeepResearch, true)
	if err != nil {
		t.Fatalf("CheckLimit: %v", err)
	}
	if !res.Allowed {
		t.Fatal("subscribed check must stay advisory")
	}
	if res.Current != spec.SubscribedLimit+1 || res.Remaining != 0 {
		t.Fatalf("result = %+v, want current %d remaining 0", *res, spec.SubscribedLimit+1)
	}
}

// An increment that crosses a period boundary lands in the fresh window, not
// on top of the stale count.
func TestIncrementAfterBoundaryStartsFresh(t *testing.T) {
	svc, _, clk := newTestUsage(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := svc.Increment(ctx, "u1", model.OpAiChat); err != nil {
			t.Fatalf("Increment: %v", err)
		}
	}
	clk.Advance(24 * time.Hour)
	if err := svc.Increment(ctx, "u1", model.OpAiChat); err != nil {
		t.Fatalf("Increment: %v", err)
	}

	uc, err := svc.GetUsage(ctx, "u1")
	if err != nil {
		t.Fatalf("GetUsage: %v", err)
	}
	if uc.Counts[model.OpAiChat] != 1 {
		t.Fatalf("count = %d, want 1 in the new day", uc.Counts[model.OpAiChat])
	}
}
