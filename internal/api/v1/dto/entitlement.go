package dto

// EntitlementCheckRequest asks whether the user may run an operation. The
// check deducts credits on success.
type EntitlementCheckRequest struct {
	Operation string `json:"operation" validate:"required"`
}

// EntitlementDecisionDTO is the structured outcome of an entitlement check.
type EntitlementDecisionDTO struct {
	Allowed   bool   `json:"allowed"`
	Operation string `json:"operation"`
	Cost      int    `json:"cost"`
	Balance   int    `json:"balance"`
	Bypassed  bool   `json:"bypassed"`
}

// CreditBalanceResponse reports the user's current credit balance.
type CreditBalanceResponse struct {
	Credits int `json:"credits"`
}
