package service

import (
	"context"

	"app/internal/model"
	"app/internal/repository"

	"github.com/rs/zerolog"
)

// Decision is the structured outcome of an entitlement check. When Allowed is
// false, Cost and Balance let the client render an upgrade prompt rather than
// a generic failure.
type Decision struct {
	Allowed  bool            `json:"allowed"`
	Op       model.Operation `json:"operation"`
	Cost     int             `json:"cost"`
	Balance  int             `json:"balance"`
	Bypassed bool            `json:"bypassed"`
}

// EntitlementService gates paid operations against the credit ledger and the
// unlimited-tier bypass rules.
type EntitlementService interface {
	// CheckAndReserve must happen-before the gated action executes. On an
	// unlimited tier with a bypass-eligible operation the ledger is untouched;
	// otherwise the cost is deducted atomically. Deducted credits are not
	// refunded if the gated action later fails: the attempt is billable.
	CheckAndReserve(ctx context.Context, userID string, op model.Operation) (*Decision, error)
	// Balance returns the current credit balance, 0 for unknown accounts.
	Balance(ctx context.Context, userID string) (int, error)
}

type entitlementService struct {
	userRepo repository.UserRepository
	subSvc   SubscriptionService
	logger   zerolog.Logger
}

func NewEntitlementService(userRepo repository.UserRepository, subSvc SubscriptionService, logger zerolog.Logger) EntitlementService {
	return &entitlementService{
		userRepo: userRepo,
		subSvc:   subSvc,
		logger:   logger.With().Str("service", "EntitlementService").Logger(),
	}
}

func (s *entitlementService) CheckAndReserve(ctx context.Context, userID string, op model.Operation) (*Decision, error) {
	spec, ok := op.Spec()
	if !ok {
		// ParseOperation guards the API boundary; reaching here is a
		// programming error, not client input.
		s.logger.Error().Str("operation", string(op)).Msg("Operation outside the closed set")
		return nil, model.ErrUnknownOperation
	}

	tier, err := s.subSvc.GetTier(ctx, userID)
	if err != nil {
		return nil, err
	}
	if tier == model.TierUnlimited && spec.UnlimitedBypass {
		return &Decision{Allowed: true, Op: op, Cost: spec.Cost, Bypassed: true}, nil
	}

	deducted, err := s.userRepo.DeductCredits(ctx, userID, spec.Cost)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Str("operation", string(op)).Msg("Failed to deduct credits")
		return nil, err
	}

	balance, err := s.userRepo.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !deducted {
		return &Decision{Allowed: false, Op: op, Cost: spec.Cost, Balance: balance}, nil
	}
	return &Decision{Allowed: true, Op: op, Cost: spec.Cost, Balance: balance}, nil
}

func (s *entitlementService) Balance(ctx context.Context, userID string) (int, error) {
	return s.userRepo.GetBalance(ctx, userID)
}
