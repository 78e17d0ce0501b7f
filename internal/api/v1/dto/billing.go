package dto

// SubscriptionCheckoutRequest selects the plan to purchase.
type SubscriptionCheckoutRequest struct {
	Plan string `json:"plan" validate:"required,oneof=pro unlimited"`
}

// SubscriptionStatusResponse reports the user's current tier.
type SubscriptionStatusResponse struct {
	Tier       string `json:"tier"`
	Subscribed bool   `json:"subscribed"`
}
