package service

import (
	"context"
	"fmt"
	"strings"

	"app/internal/model"
	"app/internal/repository"

	"github.com/rs/zerolog"
)

// DeliveryService executes scheduled items when their dispatch callback
// fires. The sending-state claim makes execution idempotent: a redelivered
// callback finds the item already claimed and does nothing.
type DeliveryService struct {
	repo       repository.ScheduleRepository
	publishers *PublisherRegistry
	email      EmailSender
	logger     zerolog.Logger
}

func NewDeliveryService(repo repository.ScheduleRepository, publishers *PublisherRegistry, email EmailSender, logger zerolog.Logger) *DeliveryService {
	return &DeliveryService{
		repo:       repo,
		publishers: publishers,
		email:      email,
		logger:     logger.With().Str("service", "DeliveryService").Logger(),
	}
}

// Execute delivers the named item. Returns ErrItemNotFound for unknown ids;
// returns nil when the item was not claimable (already executed, in flight or
// cancelled) so the dispatcher acknowledges the message instead of retrying.
func (s *DeliveryService) Execute(ctx context.Context, itemID string) error {
	item, err := s.repo.GetByID(ctx, itemID)
	if err != nil {
		return fmt.Errorf("fetch scheduled item: %w", err)
	}
	if item == nil {
		return ErrItemNotFound
	}

	claimed, err := s.repo.MarkSending(ctx, itemID)
	if err != nil {
		return fmt.Errorf("claim scheduled item: %w", err)
	}
	if !claimed {
		s.logger.Info().Str("item_id", itemID).Str("status", string(item.Status)).Msg("Item not claimable, skipping delivery")
		return nil
	}

	var targets int
	var failures []string
	switch item.Kind {
	case model.KindPost:
		targets = len(item.Platforms)
		failures = s.deliverPost(ctx, item)
	case model.KindEmail:
		targets = len(item.Recipients)
		failures = s.deliverEmail(ctx, item)
	default:
		if err := s.repo.MarkFailed(ctx, itemID, fmt.Sprintf("unknown item kind: %s", item.Kind)); err != nil {
			return fmt.Errorf("mark item failed: %w", err)
		}
		return nil
	}

	switch {
	case targets == 0:
		if err := s.repo.MarkFailed(ctx, itemID, "item has no delivery targets"); err != nil {
			return fmt.Errorf("mark item failed: %w", err)
		}
	case len(failures) == targets:
		if err := s.repo.MarkFailed(ctx, itemID, strings.Join(failures, "; ")); err != nil {
			return fmt.Errorf("mark item failed: %w", err)
		}
		s.logger.Error().Str("item_id", itemID).Int("targets", targets).Msg("All delivery targets failed")
	case len(failures) > 0:
		annotation := "partial failure: " + strings.Join(failures, "; ")
		if err := s.repo.MarkSent(ctx, itemID, &annotation); err != nil {
			return fmt.Errorf("mark item sent: %w", err)
		}
		s.logger.Warn().Str("item_id", itemID).Int("failed", len(failures)).Int("targets", targets).Msg("Item delivered with partial failures")
	default:
		if err := s.repo.MarkSent(ctx, itemID, nil); err != nil {
			return fmt.Errorf("mark item sent: %w", err)
		}
		s.logger.Info().Str("item_id", itemID).Str("kind", string(item.Kind)).Msg("Item delivered")
	}
	return nil
}

func (s *DeliveryService) deliverPost(ctx context.Context, item *model.ScheduledItem) []string {
	var failures []string
	for _, platform := range item.Platforms {
		pub, err := s.publishers.Get(platform)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", platform, err))
			continue
		}
		if err := pub.Publish(ctx, item.UserID, item.Body, item.MediaKeys); err != nil {
			s.logger.Error().Err(err).Str("item_id", item.ID).Str("platform", platform).Msg("Failed to publish post")
			failures = append(failures, fmt.Sprintf("%s: %v", platform, err))
		}
	}
	return failures
}

func (s *DeliveryService) deliverEmail(ctx context.Context, item *model.ScheduledItem) []string {
	var failures []string
	for _, recipient := range item.Recipients {
		if err := s.email.Send(ctx, recipient, item.Subject, item.Body); err != nil {
			s.logger.Error().Err(err).Str("item_id", item.ID).Str("recipient", recipient).Msg("Failed to send email")
			failures = append(failures, fmt.Sprintf("%s: %v", recipient, err))
		}
	}
	return failures
}
