package service

import (
	"context"

	"app/internal/clock"
	"app/internal/model"
	"app/internal/repository"

	"github.com/rs/zerolog"
)

const (
	dayLayout   = "2006-01-02"
	monthLayout = "2006-01"
)

// UsageService tracks per-operation usage in daily and monthly windows with
// lazy reset-on-read semantics: every read reconciles period boundaries
// before returning counts.
type UsageService interface {
	GetUsage(ctx context.Context, userID string) (*model.UsageCounters, error)
	// CheckLimit enforces the free-tier limit for unsubscribed users. For
	// subscribed users the limit is advisory: the result is recorded for
	// analytics but Allowed is always true.
	CheckLimit(ctx context.Context, userID string, op model.Operation, subscribed bool) (*model.LimitResult, error)
	// Increment adds one to the operation's counter. Called exactly once per
	// completed feature invocation.
	Increment(ctx context.Context, userID string, op model.Operation) error
}

type usageService struct {
	repo   repository.UsageRepository
	clk    clock.Clock
	logger zerolog.Logger
}

func NewUsageService(repo repository.UsageRepository, clk clock.Clock, logger zerolog.Logger) UsageService {
	return &usageService{
		repo:   repo,
		clk:    clk,
		logger: logger.With().Str("service", "UsageService").Logger(),
	}
}

func (s *usageService) GetUsage(ctx context.Context, userID string) (*model.UsageCounters, error) {
	now := s.clk.Now()
	today := now.Format(dayLayout)
	month := now.Format(monthLayout)

	uc, err := s.repo.GetCounters(ctx, userID)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to fetch usage counters")
		return nil, err
	}
	if uc == nil {
		// No usage yet: logically zero everywhere, nothing to persist.
		uc = &model.UsageCounters{
			UserID:           userID,
			Counts:           make(map[model.Operation]int),
			LastResetDate:    today,
			LastMonthlyReset: month,
		}
		for _, op := range model.Operations {
			uc.Counts[op] = 0
		}
		return uc, nil
	}

	resetDaily := uc.LastResetDate != today
	resetMonthly := uc.LastMonthlyReset != month
	if resetDaily || resetMonthly {
		if err := s.repo.ApplyResets(ctx, userID, resetDaily, today, resetMonthly, month); err != nil {
			s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to apply usage period resets")
			return nil, err
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
	}
	return uc, nil
}

func (s *usageService) CheckLimit(ctx context.Context, userID string, op model.Operation, subscribed bool) (*model.LimitResult, error) {
	spec, ok := op.Spec()
	if !ok {
		return nil, model.ErrUnknownOperation
	}
	uc, err := s.GetUsage(ctx, userID)
	if err != nil {
		return nil, err
	}
	current := uc.Counts[op]

	limit := spec.FreeLimit
	if subscribed {
		limit = spec.SubscribedLimit
	}
	remaining := limit - current
	if remaining < 0 {
		remaining = 0
	}
	// Enforced for free users, advisory once subscribed.
	allowed := subscribed || current < limit
	return &model.LimitResult{Allowed: allowed, Current: current, Limit: limit, Remaining: remaining}, nil
}

func (s *usageService) Increment(ctx context.Context, userID string, op model.Operation) error {
	// Reconcile period boundaries first so the increment lands in the current
	// window rather than on top of stale counts.
	if _, err := s.GetUsage(ctx, userID); err != nil {
		return err
	}
	now := s.clk.Now()
	if err := s.repo.Increment(ctx, userID, op, now.Format(dayLayout), now.Format(monthLayout)); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Str("operation", string(op)).Msg("Failed to increment usage")
		return err
	}
	return nil
}
