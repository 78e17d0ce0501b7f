package dto

// UsageResponseDTO reports per-operation usage counts for the current windows.
type UsageResponseDTO struct {
	Counts           map[string]int `json:"counts"`
	LastResetDate    string         `json:"last_reset_date"`
	LastMonthlyReset string         `json:"last_monthly_reset"`
}

// UsageCheckRequest asks whether the user is within the window limit for an
// operation.
type UsageCheckRequest struct {
	Operation string `json:"operation" validate:"required"`
}

// LimitResultDTO is the outcome of a usage limit check.
type LimitResultDTO struct {
	Allowed   bool `json:"allowed"`
	Current   int  `json:"current"`
	Limit     int  `json:"limit"`
	Remaining int  `json:"remaining"`
}
