package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"app/internal/clock"
	"app/internal/model"

	"github.com/rs/zerolog"
)

func newTestEntitlement(repo *fakeUserRepo) EntitlementService {
	clk := clock.NewFakeClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	subSvc := NewSubscriptionService(repo, clk, zerolog.Nop())
	return NewEntitlementService(repo, subSvc, zerolog.Nop())
}

func TestCheckAndReserveDeductsCost(t *testing.T) {
	repo := newFakeUserRepo()
	repo.addUser("u1", 100, model.TierNone)
	svc := newTestEntitlement(repo)

	d, err := svc.CheckAndReserve(context.Background(), "u1", model.OpImageGeneration)
	if err != nil {
		t.Fatalf("CheckAndReserve: %v", err)
	}
	if !d.Allowed {
		t.Fatal("expected allowed with sufficient balance")
	}
	if d.Cost != 10 {
		t.Fatalf("cost = %d, want 10", d.Cost)
	}
	if d.Balance != 90 {
		t.Fatalf("balance = %d, want 90", d.Balance)
	}
}

func TestCheckAndReserveInsufficientBalance(t *testing.T) {
	repo := newFakeUserRepo()
	repo.addUser("u1", 30, model.TierNone)
	svc := newTestEntitlement(repo)

	d, err := svc.CheckAndReserve(context.Background(), "u1", model.OpPodcast)
	if err != nil {
		t.Fatalf("CheckAndReserve: %v", err)
	}
	if d.Allowed {
		t.Fatal("expected disallowed: cost 40 against balance 30")
	}
	if d.Cost != 40 || d.Balance != 30 {
		t.Fatalf("decision = {cost %d, balance %d}, want {40, 30}", d.Cost, d.Balance)
	}
	if got, _ := svc.Balance(context.Background(), "u1"); got != 30 {
		t.Fatalf("balance changed on disallowed check: %d", got)
	}
}

// Ten cost-10 deductions from a 100-credit balance succeed exactly, the
// eleventh fails, and the balance never goes negative regardless of
// interleaving.
func TestCheckAndReserveConcurrentNeverOverdraws(t *testing.T) {
	repo := newFakeUserRepo()
	repo.addUser("u1", 100, model.TierNone)
	svc := newTestEntitlement(repo)

	const attempts = 11
	results := make([]bool, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d, err := svc.CheckAndReserve(context.Background(), "u1", model.OpImageGeneration)
			if err != nil {
				t.Errorf("CheckAndReserve: %v", err)
				return
			}
			results[i] = d.Allowed
		}(i)
	}
	wg.Wait()

	allowed := 0
	for _, ok := range results {
		if ok {
			allowed++
		}
	}
	if allowed != 10 {
		t.Fatalf("allowed %d of %d attempts, want exactly 10", allowed, attempts)
	}
	if got, _ := svc.Balance(context.Background(), "u1"); got != 0 {
		t.Fatalf("final balance = %d, want 0", got)
	}
}

func TestUnlimitedBypassSkipsLedger(t *testing.T) {
	repo := newFakeUserRepo()
	repo.addUser("u1", 5, model.TierUnlimited)
	svc := newTestEntitlement(repo)

	d, err := svc.CheckAndReserve(context.Background(), "u1", model.OpPodcast)
	if err != nil {
		t.Fatalf("CheckAndReserve: %v", err)
	}
	if !d.Allowed || !d.Bypassed {
		t.Fatalf("decision = {allowed %v, bypassed %v}, want bypass", d.Allowed, d.Bypassed)
	}
	if got, _ := svc.Balance(context.Background(), "u1"); got != 5 {
		t.Fatalf("bypass touched the ledger: balance %d, want 5", got)
	}
}

// Video generation is excluded from the unlimited bypass: even unlimited
// users pay its credit cost.
func TestUnlimitedTierStillPaysForVideo(t *testing.T) {
	repo := newFakeUserRepo()
	repo.addUser("u1", 100, model.TierUnlimited)
	svc := newTestEntitlement(repo)

	d, err := svc.CheckAndReserve(context.Background(), "u1", model.OpVideoGeneration)
	if err != nil {
		t.Fatalf("CheckAndReserve: %v", err)
	}
	if !d.Allowed || d.Bypassed {
		t.Fatalf("decision = {allowed %v, bypassed %v}, want paid deduction", d.Allowed, d.Bypassed)
	}
	if got, _ := svc.Balance(context.Background(), "u1"); got != 30 {
		t.Fatalf("balance = %d, want 30 after 70-credit deduction", got)
	}
}

func TestUnknownAccountBalanceIsZero(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestEntitlement(repo)

	got, err := svc.Balance(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if got != 0 {
		t.Fatalf("balance = %d, want 0 for unknown account", got)
	}

	d, err := svc.CheckAndReserve(context.Background(), "ghost", model.OpInlineAiAsk)
	if err != nil {
		t.Fatalf("CheckAndReserve: %v", err)
	}
	if d.Allowed {
		t.Fatal("unknown account must not be allowed to spend")
	}
}
