package model

import "time"

// Tier is the subscription tier driven exclusively by payment webhooks.
type Tier string

const (
	TierNone      Tier = "none"
	TierPro       Tier = "pro"
	TierUnlimited Tier = "unlimited"
)

// User represents a user profile, including the credit ledger fields.
type User struct {
	UserID                string     `db:"user_id" json:"user_id"`
	Name                  string     `db:"name" json:"name"`
	Email                 string     `db:"email" json:"email"`
	StripeCustomerID      *string    `db:"stripe_customer_id" json:"stripe_customer_id,omitempty"`
	Credits               int        `db:"credits" json:"credits"`
	SubscriptionTier      Tier       `db:"subscription_tier" json:"subscription_tier"`
	SubscriptionID        *string    `db:"subscription_id" json:"subscription_id,omitempty"`
	CreditsUpdatedAt      *time.Time `db:"credits_updated_at" json:"credits_updated_at,omitempty"`
	SubscriptionUpdatedAt *time.Time `db:"subscription_updated_at" json:"subscription_updated_at,omitempty"`
	CreatedAt             time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time  `db:"updated_at" json:"updated_at"`
}

// Subscribed reports whether the user is on any paid tier.
func (u *User) Subscribed() bool {
	return u.SubscriptionTier == TierPro || u.SubscriptionTier == TierUnlimited
}
