package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"app/internal/clock"
	"app/internal/config"
	"app/internal/model"

	"github.com/rs/zerolog"
)

func newTestSchedule(t *testing.T) (*ScheduleService, *fakeScheduleRepo, *fakeQueue, *clock.FakeClock) {
	t.Helper()
	repo := newFakeScheduleRepo()
	q := &fakeQueue{}
	clk := clock.NewFakeClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	cfg := &config.Config{DispatchQueueName: "dispatch_queue"}
	return NewScheduleService(cfg, repo, q, clk, zerolog.Nop()), repo, q, clk
}

func postInput(userID string, scheduledAt int64) CreateItemInput {
	return CreateItemInput{
		UserID:      userID,
		Kind:        model.KindPost,
		ScheduledAt: scheduledAt,
		Platforms:   []string{"linkedin"},
		Body:        "hello",
	}
}

// The minimum lead is inclusive: exactly 600 seconds out is accepted, 599 is
// not.
func TestScheduleWindowLowerBound(t *testing.T) {
	svc, _, _, clk := newTestSchedule(t)
	ctx := context.Background()
	now := clk.Now().Unix()

	if _, err := svc.Create(ctx, postInput("u1", now+600)); err != nil {
		t.Fatalf("now+600s rejected: %v", err)
	}
	_, err := svc.Create(ctx, postInput("u1", now+599))
	if !errors.Is(err, ErrScheduleTooSoon) {
		t.Fatalf("now+599s: got %v, want ErrScheduleTooSoon", err)
	}
}

func TestScheduleWindowUpperBound(t *testing.T) {
	svc, _, _, clk := newTestSchedule(t)
	ctx := context.Background()
	now := clk.Now().Unix()
	horizon := int64(7 * 24 * 3600)

	if _, err := svc.Create(ctx, postInput("u1", now+horizon)); err != nil {
		t.Fatalf("now+7d rejected: %v", err)
	}
	_, err := svc.Create(ctx, postInput("u1", now+horizon+1))
	if !errors.Is(err, ErrScheduleTooFar) {
		t.Fatalf("now+7d+1s: got %v, want ErrScheduleTooFar", err)
	}
}

func TestCreateEnqueuesWithDelay(t *testing.T) {
	svc, repo, q, clk := newTestSchedule(t)
	ctx := context.Background()
	scheduledAt := clk.Now().Unix() + 3600

	item, err := svc.Create(ctx, postInput("u1", scheduledAt))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(q.sends) != 1 {
		t.Fatalf("sends = %d, want 1", len(q.sends))
	}
	if q.sends[0].delaySec != 3600 {
		t.Fatalf("delay = %d, want 3600", q.sends[0].delaySec)
	}
	stored, _ := repo.GetByID(ctx, item.ID)
	if stored.QueueMsgID == nil || *stored.QueueMsgID != q.sends[0].msgID {
		t.Fatal("queue message id not persisted on the item")
	}
	if stored.Status != model.StatusScheduled {
		t.Fatalf("status = %s, want scheduled", stored.Status)
	}
}

// A failed enqueue must not leave the item pretending it will fire.
func TestCreateMarksFailedWhenEnqueueFails(t *testing.T) {
	svc, repo, q, clk := newTestSchedule(t)
	q.sendErr = errors.New("queue down")
	ctx := context.Background()

	_, err := svc.Create(ctx, postInput("u1", clk.Now().Unix()+3600))
	if err == nil {
		t.Fatal("expected error from failed enqueue")
	}
	items, _ := repo.ListByUser(ctx, "u1", 10, 0)
	if len(items) != 1 {
		t.Fatalf("items = %d, want the failed record kept", len(items))
	}
	if items[0].Status != model.StatusFailed {
		t.Fatalf("status = %s, want failed", items[0].Status)
	}
}

func TestCancelScheduledItem(t *testing.T) {
	svc, repo, q, clk := newTestSchedule(t)
	ctx := context.Background()

	item, err := svc.Create(ctx, postInput("u1", clk.Now().Unix()+3600))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := svc.Cancel(ctx, item.ID, "u1"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	stored, _ := repo.GetByID(ctx, item.ID)
	if stored.Status != model.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", stored.Status)
	}
	if len(q.deleted) != 1 {
		t.Fatalf("queue deletes = %d, want 1", len(q.deleted))
	}
}

// Cancellation is refused once the item has left the scheduled state.
func TestCancelRefusedAfterClaim(t *testing.T) {
	svc, repo, _, clk := newTestSchedule(t)
	ctx := context.Background()

	item, err := svc.Create(ctx, postInput("u1", clk.Now().Unix()+3600))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if claimed, _ := repo.MarkSending(ctx, item.ID); !claimed {
		t.Fatal("claim failed")
	}

	err = svc.Cancel(ctx, item.ID, "u1")
	if !errors.Is(err, ErrNotCancellable) {
		t.Fatalf("got %v, want ErrNotCancellable", err)
	}
}

func TestCancelScopedToOwner(t *testing.T) {
	svc, _, _, clk := newTestSchedule(t)
	ctx := context.Background()

	item, err := svc.Create(ctx, postInput("u1", clk.Now().Unix()+3600))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	err = svc.Cancel(ctx, item.ID, "intruder")
	if !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("got %v, want ErrItemNotFound for foreign user", err)
	}
}
