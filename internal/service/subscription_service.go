package service

import (
	"context"
	"time"

	"app/internal/cache"
	"app/internal/clock"
	"app/internal/model"
	"app/internal/repository"

	"github.com/rs/zerolog"
)

// tierCacheTTL bounds how stale an entitlement-path tier read can be.
const tierCacheTTL = 45 * time.Second

// SubscriptionService exposes subscription state. Reads on the entitlement hot
// path go through a short TTL cache; webhook-driven writes invalidate it.
type SubscriptionService interface {
	GetTier(ctx context.Context, userID string) (model.Tier, error)
	IsSubscribed(ctx context.Context, userID string) (bool, error)
	// ApplySubscription sets the tier and subscription id; called only from
	// the verified payment-webhook path.
	ApplySubscription(ctx context.Context, userID string, tier model.Tier, subscriptionID string) error
	// Downgrade drops the account to the free tier.
	Downgrade(ctx context.Context, userID string) error
	// InvalidateTier drops the cached tier for a user.
	InvalidateTier(userID string)
}

type subscriptionService struct {
	repo   repository.UserRepository
	tiers  *cache.TTLCache[string, model.Tier]
	logger zerolog.Logger
}

// NewSubscriptionService creates a SubscriptionService with a scoped logger.
func NewSubscriptionService(repo repository.UserRepository, clk clock.Clock, logger zerolog.Logger) SubscriptionService {
	return &subscriptionService{
		repo:   repo,
		tiers:  cache.NewTTLCache[string, model.Tier](tierCacheTTL, clk),
		logger: logger.With().Str("service", "SubscriptionService").Logger(),
	}
}

func (s *subscriptionService) GetTier(ctx context.Context, userID string) (model.Tier, error) {
	if tier, ok := s.tiers.Get(userID); ok {
		return tier, nil
	}
	tier, err := s.repo.GetTier(ctx, userID)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to fetch subscription tier")
		return model.TierNone, err
	}
	s.tiers.Set(userID, tier)
	return tier, nil
}

func (s *subscriptionService) IsSubscribed(ctx context.Context, userID string) (bool, error) {
	tier, err := s.GetTier(ctx, userID)
	if err != nil {
		return false, err
	}
	return tier == model.TierPro || tier == model.TierUnlimited, nil
}

func (s *subscriptionService) ApplySubscription(ctx context.Context, userID string, tier model.Tier, subscriptionID string) error {
	if err := s.repo.SetSubscription(ctx, userID, tier, subscriptionID); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Str("tier", string(tier)).Msg("Failed to apply subscription")
		return err
	}
	s.tiers.Invalidate(userID)
	return nil
}

func (s *subscriptionService) Downgrade(ctx context.Context, userID string) error {
	if err := s.repo.ClearSubscription(ctx, userID); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to downgrade user")
		return err
	}
	s.tiers.Invalidate(userID)
	return nil
}

func (s *subscriptionService) InvalidateTier(userID string) {
	s.tiers.Invalidate(userID)
}
