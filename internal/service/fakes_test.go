package service

import (
	"context"
	"fmt"
	"sync"

	"app/internal/model"
)

// fakeUserRepo is an in-memory UserRepository with the same atomicity
// semantics as the SQL implementation.
type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*model.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*model.User)}
}

func (f *fakeUserRepo) addUser(id string, credits int, tier model.Tier) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[id] = &model.User{UserID: id, Credits: credits, SubscriptionTier: tier}
}

func (f *fakeUserRepo) CreateUser(ctx context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[u.UserID]; ok {
		return fmt.Errorf("user already exists: %s", u.UserID)
	}
	u.Credits = 100
	u.SubscriptionTier = model.TierNone
	cp := *u
	f.users[u.UserID] = &cp
	return nil
}

func (f *fakeUserRepo) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUserRepo) GetUserByStripeCustomerID(ctx context.Context, customerID string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.StripeCustomerID != nil && *u.StripeCustomerID == customerID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeUserRepo) UpdateStripeCustomerID(ctx context.Context, userID, customerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[userID]; ok {
		u.StripeCustomerID = &customerID
	}
	return nil
}

func (f *fakeUserRepo) GetBalance(ctx context.Context, userID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return 0, nil
	}
	return u.Credits, nil
}

func (f *fakeUserRepo) DeductCredits(ctx context.Context, userID string, cost int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok || u.Credits < cost {
		return false, nil
	}
	u.Credits -= cost
	return true, nil
}

func (f *fakeUserRepo) GrantCredits(ctx context.Context, userID string, amount int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if amount <= 0 {
		return fmt.Errorf("grant amount must be positive: %d", amount)
	}
	u, ok := f.users[userID]
	if !ok {
		return fmt.Errorf("no such user: %s", userID)
	}
	u.Credits += amount
	return nil
}

func (f *fakeUserRepo) GetTier(ctx context.Context, userID string) (model.Tier, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return model.TierNone, nil
	}
	return u.SubscriptionTier, nil
}

func (f *fakeUserRepo) SetSubscription(ctx context.Context, userID string, tier model.Tier, subscriptionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return fmt.Errorf("no such user: %s", userID)
	}
	u.SubscriptionTier = tier
	u.SubscriptionID = &subscriptionID
	return nil
}

func (f *fakeUserRepo) ClearSubscription(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return fmt.Errorf("no such user: %s", userID)
	}
	u.SubscriptionTier = model.TierNone
	u.SubscriptionID = nil
	return nil
}

// fakeUsageRepo mirrors the usage_counters table: persisted counts plus
// period markers.
type fakeUsageRepo struct {
	mu       sync.Mutex
	counters map[string]*model.UsageCounters
}

func newFakeUsageRepo() *fakeUsageRepo {
	return &fakeUsageRepo{counters: make(map[string]*model.UsageCounters)}
}

func (f *fakeUsageRepo) GetCounters(ctx context.Context, userID string) (*model.UsageCounters, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	uc, ok := f.counters[userID]
	if !ok {
		return nil, nil
	}
	cp := *uc
	cp.Counts = make(map[model.Operation]int, len(uc.Counts))
	for op, n := range uc.Counts {
		cp.Counts[op] = n
	}
	return &cp, nil
}

func (f *fakeUsageRepo) ApplyResets(ctx context.Context, userID string, resetDaily bool, today string, resetMonthly bool, month string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	uc, ok := f.counters[userID]
	if !ok {
		return nil
	}
	for _, op := range model.Operations {
		spec, _ := op.Spec()
		if (resetDaily && spec.Window == model.ResetDaily) ||
			(resetMonthly && spec.Window == model.ResetMonthly) {
			uc.Counts[op] = 0
		}
	}
	if resetDaily {
		uc.LastResetDate = today
	}
	if resetMonthly {
		uc.LastMonthlyReset = month
	}
	return nil
}

func (f *fakeUsageRepo) Increment(ctx context.Context, userID string, op model.Operation, today, month string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	uc, ok := f.counters[userID]
	if !ok {
		uc = &model.UsageCounters{
			UserID:           userID,
			Counts:           make(map[model.Operation]int),
			LastResetDate:    today,
			LastMonthlyReset: month,
		}
		f.counters[userID] = uc
	}
	uc.Counts[op]++
	return nil
}

// fakeScheduleRepo keeps scheduled items in memory with conditional status
// transitions like the SQL layer.
type fakeScheduleRepo struct {
	mu    sync.Mutex
	items map[string]*model.ScheduledItem
}

func newFakeScheduleRepo() *fakeScheduleRepo {
	return &fakeScheduleRepo{items: make(map[string]*model.ScheduledItem)}
}

func (f *fakeScheduleRepo) Create(ctx context.Context, item *model.ScheduledItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *item
	f.items[item.ID] = &cp
	return nil
}

func (f *fakeScheduleRepo) GetByID(ctx context.Context, id string) (*model.ScheduledItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[id]
	if !ok {
		return nil, nil
	}
	cp := *item
	return &cp, nil
}

func (f *fakeScheduleRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]model.ScheduledItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.ScheduledItem
	for _, item := range f.items {
		if item.UserID == userID {
			out = append(out, *item)
		}
	}
	return out, nil
}

func (f *fakeScheduleRepo) SetQueueMessageID(ctx context.Context, id string, msgID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if item, ok := f.items[id]; ok {
		item.QueueMsgID = &msgID
	}
	return nil
}

func (f *fakeScheduleRepo) MarkSending(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[id]
	if !ok || item.Status != model.StatusScheduled {
		return false, nil
	}
	item.Status = model.StatusSending
	return true, nil
}

func (f *fakeScheduleRepo) MarkSent(ctx context.Context, id string, annotation *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[id]
	if !ok || item.Status != model.StatusSending {
		return nil
	}
	item.Status = model.StatusSent
	item.Error = annotation
	return nil
}

func (f *fakeScheduleRepo) MarkFailed(ctx context.Context, id string, errText string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[id]
	if !ok || item.Status.Terminal() {
		return nil
	}
	item.Status = model.StatusFailed
	item.Error = &errText
	return nil
}

func (f *fakeScheduleRepo) Cancel(ctx context.Context, id, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[id]
	if !ok || item.UserID != userID || item.Status != model.StatusScheduled {
		return false, nil
	}
	item.Status = model.StatusCancelled
	return true, nil
}

// fakeQueue records sends and deletes without a database.
type fakeQueue struct {
	mu      sync.Mutex
	nextID  int64
	sends   []fakeSend
	deleted []int64
	sendErr error
}

type fakeSend struct {
	queue    string
	payload  []byte
	delaySec int64
	msgID    int64
}

func (f *fakeQueue) SendWithDelay(ctx context.Context, queue string, payload []byte, delaySec int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return 0, f.sendErr
	}
	f.nextID++
	f.sends = append(f.sends, fakeSend{queue: queue, payload: payload, delaySec: delaySec, msgID: f.nextID})
	return f.nextID, nil
}

func (f *fakeQueue) Delete(ctx context.Context, queue string, msgID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, msgID)
	return nil
}

// fakeEmailSender records sends and fails for configured recipients.
type fakeEmailSender struct {
	mu      sync.Mutex
	sent    []string
	failFor map[string]bool
}

func newFakeEmailSender() *fakeEmailSender {
	return &fakeEmailSender{failFor: make(map[string]bool)}
}

func (f *fakeEmailSender) Send(ctx context.Context, to, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[to] {
		return fmt.Errorf("smtp rejected %s", to)
	}
	f.sent = append(f.sent, to)
	return nil
}

// fakePublisher records social posts per platform.
type fakePublisher struct {
	mu       sync.Mutex
	platform string
	posts    []string
	fail     bool
}

func (f *fakePublisher) Platform() string { return f.platform }

func (f *fakePublisher) Publish(ctx context.Context, userID, body string, mediaKeys []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return fmt.Errorf("%s unavailable", f.platform)
	}
	f.posts = append(f.posts, body)
	return nil
}
