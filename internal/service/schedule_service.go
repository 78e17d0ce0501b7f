package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"app/internal/clock"
	"app/internal/config"
	"app/internal/model"
	"app/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Scheduling window bounds. Items must be far enough out that the queue delay
// is meaningful and near enough that the payload does not go stale.
const (
	MinLeadTime = 10 * time.Minute
	MaxHorizon  = 7 * 24 * time.Hour
)

var (
	ErrScheduleTooSoon = errors.New("scheduled time is too soon")
	ErrScheduleTooFar  = errors.New("scheduled time is too far in the future")
	ErrItemNotFound    = errors.New("scheduled item not found")
	ErrNotCancellable  = errors.New("item is not in a cancellable state")
)

// DeferredQueue is the slice of the queue client the scheduler needs.
type DeferredQueue interface {
	SendWithDelay(ctx context.Context, queue string, payload []byte, delaySec int64) (int64, error)
	Delete(ctx context.Context, queue string, msgID int64) error
}

// DispatchPayload is the message body carried through the queue to the
// dispatcher. It names the item to execute, nothing more; the dispatcher
// re-reads the item so a cancellation between enqueue and fire is honored.
type DispatchPayload struct {
	ItemID string `json:"item_id"`
}

// ScheduleService creates, lists and cancels scheduled items and enqueues
// their deferred execution.
type ScheduleService struct {
	cfg    *config.Config
	repo   repository.ScheduleRepository
	queue  DeferredQueue
	clk    clock.Clock
	logger zerolog.Logger
}

func NewScheduleService(cfg *config.Config, repo repository.ScheduleRepository, queue DeferredQueue, clk clock.Clock, logger zerolog.Logger) *ScheduleService {
	return &ScheduleService{
		cfg:    cfg,
		repo:   repo,
		queue:  queue,
		clk:    clk,
		logger: logger.With().Str("service", "ScheduleService").Logger(),
	}
}

// CreateItemInput carries the fields needed to schedule a new item. Kind
// determines which of the post/email fields are meaningful.
type CreateItemInput struct {
	UserID      string
	ProjectID   string
	Kind        model.ItemKind
	ScheduledAt int64
	Platforms   []string
	Recipients  []string
	MediaKeys   []string
	Subject     string
	Body        string
}

// validateWindow checks the scheduled time against the lead and horizon
// bounds. The minimum lead is inclusive: exactly MinLeadTime out is accepted.
func (s *ScheduleService) validateWindow(scheduledAt int64) error {
	now := s.clk.Now()
	lead := time.Unix(scheduledAt, 0).Sub(now)
	if lead < MinLeadTime {
		return fmt.Errorf("%w: must be at least %s from now", ErrScheduleTooSoon, MinLeadTime)
	}
	if lead > MaxHorizon {
		return fmt.Errorf("%w: must be within %s", ErrScheduleTooFar, MaxHorizon)
	}
	return nil
}

// Create persists a scheduled item and enqueues its deferred dispatch. If the
// enqueue fails the item is marked failed rather than left dangling in the
// scheduled state with no message behind it.
func (s *ScheduleService) Create(ctx context.Context, in CreateItemInput) (*model.ScheduledItem, error) {
	if err := s.validateWindow(in.ScheduledAt); err != nil {
		return nil, err
	}

	now := s.clk.Now()
	item := &model.ScheduledItem{
		ID:          uuid.NewString(),
		UserID:      in.UserID,
		ProjectID:   in.ProjectID,
		Kind:        in.Kind,
		ScheduledAt: in.ScheduledAt,
		Status:      model.StatusScheduled,
		Platforms:   in.Platforms,
		Recipients:  in.Recipients,
		MediaKeys:   in.MediaKeys,
		Subject:     in.Subject,
		Body:        in.Body,
		CreatedAt:   now,
	}
	if err := s.repo.Create(ctx, item); err != nil {
		return nil, fmt.Errorf("create scheduled item: %w", err)
	}

	payload, err := json.Marshal(DispatchPayload{ItemID: item.ID})
	if err != nil {
		return nil, fmt.Errorf("marshal dispatch payload: %w", err)
	}
	delaySec := in.ScheduledAt - now.Unix()
	msgID, err := s.queue.SendWithDelay(ctx, s.cfg.DispatchQueueName, payload, delaySec)
	if err != nil {
		s.logger.Error().Err(err).Str("item_id", item.ID).Msg("Failed to enqueue deferred dispatch")
		if ferr := s.repo.MarkFailed(ctx, item.ID, "failed to enqueue dispatch: "+err.Error()); ferr != nil {
			s.logger.Error().Err(ferr).Str("item_id", item.ID).Msg("Failed to mark item failed after enqueue error")
		}
		return nil, fmt.Errorf("enqueue deferred dispatch: %w", err)
	}
	if err := s.repo.SetQueueMessageID(ctx, item.ID, msgID); err != nil {
		// Dispatch still fires; only cancel-time queue cleanup degrades.
		s.logger.Error().Err(err).Str("item_id", item.ID).Int64("msg_id", msgID).Msg("Failed to record queue message id")
	}
	item.QueueMsgID = &msgID

	s.logger.Info().
		Str("item_id", item.ID).
		Str("user_id", in.UserID).
		Str("kind", string(in.Kind)).
		Int64("scheduled_at", in.ScheduledAt).
		Msg("Scheduled item created")
	return item, nil
}

// Get returns the item, scoped to its owner.
func (s *ScheduleService) Get(ctx context.Context, id, userID string) (*model.ScheduledItem, error) {
	item, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch scheduled item: %w", err)
	}
	if item == nil || item.UserID != userID {
		return nil, ErrItemNotFound
	}
	return item, nil
}

// List returns the user's scheduled items, newest first.
func (s *ScheduleService) List(ctx context.Context, userID string, limit, offset int) ([]model.ScheduledItem, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	items, err := s.repo.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list scheduled items: %w", err)
	}
	return items, nil
}

// Cancel moves a scheduled item to cancelled. Only items still in the
// scheduled state can be cancelled; anything in flight or terminal is
// refused. The conditional update is the arbiter, so a cancel racing the
// dispatcher never fires on an item the dispatcher has already claimed.
func (s *ScheduleService) Cancel(ctx context.Context, id, userID string) error {
	item, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("fetch scheduled item: %w", err)
	}
	if item == nil || item.UserID != userID {
		return ErrItemNotFound
	}

	cancelled, err := s.repo.Cancel(ctx, id, userID)
	if err != nil {
		return fmt.Errorf("cancel scheduled item: %w", err)
	}
	if !cancelled {
		return ErrNotCancellable
	}

	// Best effort: drop the pending queue message so the dispatcher does not
	// wake up for a cancelled item. If this fails the dispatcher's claim on
	// the sending state still refuses the cancelled item.
	if item.QueueMsgID != nil {
		if err := s.queue.Delete(ctx, s.cfg.DispatchQueueName, *item.QueueMsgID); err != nil {
			s.logger.Warn().Err(err).Str("item_id", id).Int64("msg_id", *item.QueueMsgID).Msg("Failed to delete queue message for cancelled item")
		}
	}

	s.logger.Info().Str("item_id", id).Str("user_id", userID).Msg("Scheduled item cancelled")
	return nil
}
