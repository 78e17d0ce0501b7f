package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"app/internal/config"
	"app/internal/model"
	"app/internal/pubsub"
	"app/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v82"
	billingsession "github.com/stripe/stripe-go/v82/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	customerpkg "github.com/stripe/stripe-go/v82/customer"
	subscriptionpkg "github.com/stripe/stripe-go/v82/subscription"
	"github.com/stripe/stripe-go/v82/webhook"
)

// Credit grants per tier: issued once at checkout completion and again on each
// renewal cycle.
const (
	creditGrantPro       = 500
	creditGrantUnlimited = 2000
)

// BillingEvent is published to the analytics topic after a webhook event has
// been applied.
type BillingEvent struct {
	UserID        string     `json:"user_id"`
	EventType     string     `json:"event_type"`
	Tier          model.Tier `json:"tier"`
	CreditsGranted int       `json:"credits_granted,omitempty"`
}

// StripeService manages Stripe checkout, portal and webhook-driven
// subscription state.
type StripeService struct {
	cfg       *config.Config
	userRepo  repository.UserRepository
	subSvc    SubscriptionService
	eventRepo repository.WebhookEventRepository
	publisher pubsub.Publisher
	logger    zerolog.Logger
}

// NewStripeService initializes the Stripe key and returns the service with a
// scoped logger.
func NewStripeService(
	cfg *config.Config,
	userRepo repository.UserRepository,
	subSvc SubscriptionService,
	eventRepo repository.WebhookEventRepository,
	publisher pubsub.Publisher,
	logger zerolog.Logger,
) *StripeService {
	stripe.Key = cfg.StripeSecretKey
	return &StripeService{
		cfg:       cfg,
		userRepo:  userRepo,
		subSvc:    subSvc,
		eventRepo: eventRepo,
		publisher: publisher,
		logger:    logger.With().Str("service", "StripeService").Logger(),
	}
}

// tierFromPrice resolves the subscription tier from the purchased price's
// metadata.
func tierFromPrice(price *stripe.Price) (model.Tier, error) {
	if price == nil {
		return model.TierNone, errors.New("price missing from subscription item")
	}
	switch price.Metadata["tier"] {
	case "pro":
		return model.TierPro, nil
	case "unlimited":
		return model.TierUnlimited, nil
	default:
		return model.TierNone, fmt.Errorf("price %s carries no recognized tier metadata", price.ID)
	}
}

// grantForTier returns the fixed credit grant for a tier, 0 when the tier
// bears no credits.
func grantForTier(tier model.Tier) int {
	switch tier {
	case model.TierPro:
		return creditGrantPro
	case model.TierUnlimited:
		return creditGrantUnlimited
	default:
		return 0
	}
}

// renewalGrantDue reports whether an invoice represents a renewal cycle. The
// initial invoice is excluded: its grant is issued at checkout completion, so
// granting here too would double-grant.
func renewalGrantDue(reason stripe.InvoiceBillingReason) bool {
	return reason == stripe.InvoiceBillingReasonSubscriptionCycle
}

// getUserIDFromEvent resolves the account from webhook metadata or, failing
// that, the Stripe customer id.
func (s *StripeService) getUserIDFromEvent(ctx context.Context, metadata map[string]string, customerID string) (string, error) {
	if userID, ok := metadata["user_id"]; ok && userID != "" {
		return userID, nil
	}
	if customerID == "" {
		return "", errors.New("cannot determine user: missing metadata and customer id")
	}
	s.logger.Warn().Str("stripe_customer_id", customerID).Msg("Missing user_id metadata; looking up user by customer ID")
	u, err := s.userRepo.GetUserByStripeCustomerID(ctx, customerID)
	if err != nil {
		return "", fmt.Errorf("failed to lookup user by Stripe customer ID: %w", err)
	}
	if u == nil {
		return "", fmt.Errorf("no user found for customer ID: %s", customerID)
	}
	return u.UserID, nil
}

// GetOrCreateCustomer ensures a Stripe customer exists for a user.
func (s *StripeService) GetOrCreateCustomer(ctx context.Context, user *model.User) (string, error) {
	if user.StripeCustomerID != nil && *user.StripeCustomerID != "" {
		return *user.StripeCustomerID, nil
	}
	s.logger.Warn().Str("user_id", user.UserID).Msg("No Stripe customer ID found, creating customer as fallback")
	return s.CreateCustomer(ctx, user)
}

// CreateCustomer creates a new Stripe customer for a user.
func (s *StripeService) CreateCustomer(ctx context.Context, user *model.User) (string, error) {
	params := &stripe.CustomerParams{
		Email:    stripe.String(user.Email),
		Name:     stripe.String(user.Name),
		Metadata: map[string]string{"user_id": user.UserID},
	}
	cust, err := customerpkg.New(params)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", user.UserID).Msg("Failed to create Stripe customer")
		return "", fmt.Errorf("create stripe customer: %w", err)
	}
	if err := s.userRepo.UpdateStripeCustomerID(ctx, user.UserID, cust.ID); err != nil {
		s.logger.Error().Err(err).Str("user_id", user.UserID).Msg("Failed to store stripe customer id")
		return "", fmt.Errorf("store stripe customer id: %w", err)
	}
	return cust.ID, nil
}

// CreateCheckoutSession creates a Stripe Checkout session for a plan upgrade.
func (s *StripeService) CreateCheckoutSession(ctx context.Context, userID, plan string) (string, error) {
	user, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("fetch user: %w", err)
	}
	if user == nil {
		return "", fmt.Errorf("user not found: %s", userID)
	}
	customerID, err := s.GetOrCreateCustomer(ctx, user)
	if err != nil {
		return "", err
	}
	var priceID string
	switch plan {
	case "pro":
		priceID = s.cfg.StripePricePro
	case "unlimited":
		priceID = s.cfg.StripePriceUnlimited
	default:
		return "", fmt.Errorf("invalid plan: %s", plan)
	}
	sessParams := &stripe.CheckoutSessionParams{
		Customer:           stripe.String(customerID),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems:          []*stripe.CheckoutSessionLineItemParams{{Price: stripe.String(priceID), Quantity: stripe.Int64(1)}},
		Mode:               stripe.String(stripe.CheckoutSessionModeSubscription),
		SuccessURL:         stripe.String(s.cfg.StripePortalReturnURL + "?status=success"),
		CancelURL:          stripe.String(s.cfg.StripePortalReturnURL + "?status=cancel"),
		Metadata:           map[string]string{"user_id": userID},
	}
	sess, err := checkoutsession.New(sessParams)
	if err != nil {
		s.logger.Error().Err(err).Str("plan", plan).Msg("Failed to create Stripe checkout session")
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	return sess.URL, nil
}

// CreatePortalSession creates a Stripe Customer Portal session.
func (s *StripeService) CreatePortalSession(ctx context.Context, userID string) (string, error) {
	user, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("fetch user: %w", err)
	}
	if user == nil || user.StripeCustomerID == nil || *user.StripeCustomerID == "" {
		return "", fmt.Errorf("no stripe customer for user: %s", userID)
	}
	params := &stripe.BillingPortalSessionParams{Customer: stripe.String(*user.StripeCustomerID), ReturnURL: stripe.String(s.cfg.StripePortalReturnURL)}
	sess, err := billingsession.New(params)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to create Stripe billing portal session")
		return "", fmt.Errorf("create billing portal session: %w", err)
	}
	return sess.URL, nil
}

// subscriptionTier fetches a subscription and resolves its tier from the first
// item's price metadata.
func (s *StripeService) subscriptionTier(subID string) (model.Tier, error) {
	sub, err := subscriptionpkg.Get(subID, nil)
	if err != nil {
		return model.TierNone, fmt.Errorf("fetch subscription %s: %w", subID, err)
	}
	if len(sub.Items.Data) == 0 {
		return model.TierNone, fmt.Errorf("subscription %s has no items", subID)
	}
	return tierFromPrice(sub.Items.Data[0].Price)
}

// subscriptionIDFromInvoice finds the subscription id on an invoice's line
// items; empty for one-time invoices.
func subscriptionIDFromInvoice(invoice *stripe.Invoice) string {
	if invoice.Lines == nil {
		return ""
	}
	for _, line := range invoice.Lines.Data {
		if line.Subscription != nil && line.Subscription.ID != "" {
			return line.Subscription.ID
		}
	}
	return ""
}

func (s *StripeService) publishBillingEvent(ctx context.Context, ev BillingEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to marshal billing event")
		return
	}
	if _, err := s.publisher.Publish(ctx, s.cfg.BillingTopicName, payload); err != nil {
		// Fan-out is best-effort; subscription state is already persisted.
		s.logger.Error().Err(err).Str("event_type", ev.EventType).Msg("Failed to publish billing event")
	}
}

// HandleWebhook processes Stripe webhook events. Signature failures are
// rejected with no state mutation; processing failures return 500 so Stripe
// redelivers; replayed events are detected by their event id and acknowledged
// without re-applying.
func (s *StripeService) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read Stripe webhook payload")
		http.Error(w, "failed to read payload", http.StatusBadRequest)
		return
	}
	sig := r.Header.Get("Stripe-Signature")
	event, err := webhook.ConstructEvent(payload, sig, s.cfg.StripeWebhookSecret)
	if err != nil {
		s.logger.Error().Err(err).Msg("Signature verification failed for Stripe webhook")
		http.Error(w, "signature verification failed", http.StatusBadRequest)
		return
	}
	s.logger.Info().Str("event_type", string(event.Type)).Str("event_id", event.ID).Msg("Stripe webhook received")

	ctx := r.Context()
	fresh, err := s.eventRepo.MarkProcessed(ctx, event.ID, string(event.Type))
	if err != nil {
		s.logger.Error().Err(err).Str("event_id", event.ID).Msg("Failed to record webhook event")
		http.Error(w, "failed to record event", http.StatusInternalServerError)
		return
	}
	if !fresh {
		s.logger.Info().Str("event_id", event.ID).Msg("Webhook event already processed, skipping")
		w.WriteHeader(http.StatusOK)
		return
	}

	switch event.Type {
	case "checkout.session.completed":
		err = s.handleCheckoutCompleted(ctx, event.Data.Raw)
	case "invoice.payment_succeeded":
		err = s.handleInvoicePaymentSucceeded(ctx, event.Data.Raw)
	case "invoice.payment_failed":
		err = s.handleInvoicePaymentFailed(ctx, event.Data.Raw)
	case "customer.subscription.updated":
		err = s.handleSubscriptionUpdated(ctx, event.Data.Raw)
	case "customer.subscription.deleted":
		err = s.handleSubscriptionDeleted(ctx, event.Data.Raw)
	default:
		s.logger.Warn().Str("event_type", string(event.Type)).Msg("Unhandled Stripe webhook event")
	}
	if err != nil {
		s.logger.Error().Err(err).Str("event_type", string(event.Type)).Msg("Failed to process Stripe webhook")
		http.Error(w, "failed to process event", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *StripeService) handleCheckoutCompleted(ctx context.Context, raw json.RawMessage) error {
	var cs stripe.CheckoutSession
	if err := json.Unmarshal(raw, &cs); err != nil {
		return fmt.Errorf("invalid checkout.session data: %w", err)
	}
	userID := cs.Metadata["user_id"]
	if userID == "" {
		return errors.New("missing user_id in checkout session metadata")
	}
	if cs.Subscription == nil || cs.Subscription.ID == "" {
		return errors.New("checkout session has no subscription")
	}
	subID := cs.Subscription.ID
	tier, err := s.subscriptionTier(subID)
	if err != nil {
		return err
	}

	if err := s.subSvc.ApplySubscription(ctx, userID, tier, subID); err != nil {
		return fmt.Errorf("apply subscription on checkout completion: %w", err)
	}
	granted := grantForTier(tier)
	if granted > 0 {
		if err := s.userRepo.GrantCredits(ctx, userID, granted); err != nil {
			return fmt.Errorf("initial credit grant: %w", err)
		}
	}
	s.publishBillingEvent(ctx, BillingEvent{UserID: userID, EventType: "checkout.completed", Tier: tier, CreditsGranted: granted})
	return nil
}

func (s *StripeService) handleInvoicePaymentSucceeded(ctx context.Context, raw json.RawMessage) error {
	var invoice stripe.Invoice
	if err := json.Unmarshal(raw, &invoice); err != nil {
		return fmt.Errorf("invalid invoice.payment_succeeded payload: %w", err)
	}
	subID := subscriptionIDFromInvoice(&invoice)
	if subID == "" {
		s.logger.Info().Str("invoice_id", invoice.ID).Msg("Invoice has no subscription, skipping")
		return nil
	}
	var customerID string
	if invoice.Customer != nil {
		customerID = invoice.Customer.ID
	}
	userID, err := s.getUserIDFromEvent(ctx, invoice.Metadata, customerID)
	if err != nil {
		return fmt.Errorf("identify user from invoice %s: %w", invoice.ID, err)
	}
	tier, err := s.subscriptionTier(subID)
	if err != nil {
		return err
	}

	// Renewal re-affirms the active tier.
	if err := s.subSvc.ApplySubscription(ctx, userID, tier, subID); err != nil {
		return fmt.Errorf("re-affirm subscription on renewal: %w", err)
	}
	granted := 0
	if renewalGrantDue(invoice.BillingReason) {
		granted = grantForTier(tier)
		if granted > 0 {
			if err := s.userRepo.GrantCredits(ctx, userID, granted); err != nil {
				return fmt.Errorf("renewal credit grant: %w", err)
			}
		}
	}
	s.publishBillingEvent(ctx, BillingEvent{UserID: userID, EventType: "invoice.paid", Tier: tier, CreditsGranted: granted})
	return nil
}

func (s *StripeService) handleInvoicePaymentFailed(ctx context.Context, raw json.RawMessage) error {
	var invoice stripe.Invoice
	if err := json.Unmarshal(raw, &invoice); err != nil {
		return fmt.Errorf("invalid invoice.payment_failed payload: %w", err)
	}
	subID := subscriptionIDFromInvoice(&invoice)
	if subID == "" {
		s.logger.Info().Str("invoice_id", invoice.ID).Msg("Invoice has no subscription, skipping")
		return nil
	}
	var customerID string
	if invoice.Customer != nil {
		customerID = invoice.Customer.ID
	}
	userID, err := s.getUserIDFromEvent(ctx, invoice.Metadata, customerID)
	if err != nil {
		return fmt.Errorf("identify user from invoice %s: %w", invoice.ID, err)
	}

	// Only a failed payment for the active subscription downgrades the user.
	user, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("fetch user %s: %w", userID, err)
	}
	if user == nil || user.SubscriptionID == nil || *user.SubscriptionID != subID {
		s.logger.Info().Str("user_id", userID).Str("subscription_id", subID).Msg("Payment failed for a non-active subscription, skipping downgrade")
		return nil
	}
	if err := s.subSvc.Downgrade(ctx, userID); err != nil {
		return fmt.Errorf("downgrade on payment failure: %w", err)
	}
	s.publishBillingEvent(ctx, BillingEvent{UserID: userID, EventType: "invoice.payment_failed", Tier: model.TierNone})
	return nil
}

func (s *StripeService) handleSubscriptionUpdated(ctx context.Context, raw json.RawMessage) error {
	var ss stripe.Subscription
	if err := json.Unmarshal(raw, &ss); err != nil {
		return fmt.Errorf("invalid customer.subscription.updated payload: %w", err)
	}
	var customerID string
	if ss.Customer != nil {
		customerID = ss.Customer.ID
	}
	userID, err := s.getUserIDFromEvent(ctx, ss.Metadata, customerID)
	if err != nil {
		return fmt.Errorf("identify user from subscription %s: %w", ss.ID, err)
	}
	if ss.Status == stripe.SubscriptionStatusCanceled {
		if err := s.subSvc.Downgrade(ctx, userID); err != nil {
			return fmt.Errorf("downgrade on subscription cancellation: %w", err)
		}
		s.publishBillingEvent(ctx, BillingEvent{UserID: userID, EventType: "subscription.cancelled", Tier: model.TierNone})
		return nil
	}
	if len(ss.Items.Data) == 0 {
		return fmt.Errorf("subscription %s has no items", ss.ID)
	}
	tier, err := tierFromPrice(ss.Items.Data[0].Price)
	if err != nil {
		return err
	}
	if err := s.subSvc.ApplySubscription(ctx, userID, tier, ss.ID); err != nil {
		return fmt.Errorf("apply subscription update: %w", err)
	}
	s.publishBillingEvent(ctx, BillingEvent{UserID: userID, EventType: "subscription.updated", Tier: tier})
	return nil
}

func (s *StripeService) handleSubscriptionDeleted(ctx context.Context, raw json.RawMessage) error {
	var ss stripe.Subscription
	if err := json.Unmarshal(raw, &ss); err != nil {
		return fmt.Errorf("invalid customer.subscription.deleted payload: %w", err)
	}
	var customerID string
	if ss.Customer != nil {
		customerID = ss.Customer.ID
	}
	userID, err := s.getUserIDFromEvent(ctx, ss.Metadata, customerID)
	if err != nil {
		return fmt.Errorf("identify user from subscription %s: %w", ss.ID, err)
	}
	if err := s.subSvc.Downgrade(ctx, userID); err != nil {
		return fmt.Errorf("downgrade on subscription deletion: %w", err)
	}
	s.publishBillingEvent(ctx, BillingEvent{UserID: userID, EventType: "subscription.deleted", Tier: model.TierNone})
	return nil
}
