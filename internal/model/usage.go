package model

import "time"

// UsageCounters holds one counter per operation for a single user, with the
// period markers the lazy reset-on-read logic compares against. A counter is
// logically zero for any period before its marker.
type UsageCounters struct {
	UserID           string            `db:"user_id" json:"user_id"`
	Counts           map[Operation]int `json:"counts"`
	LastResetDate    string            `db:"last_reset_date" json:"last_reset_date"`       // YYYY-MM-DD
	LastMonthlyReset string            `db:"last_monthly_reset" json:"last_monthly_reset"` // YYYY-MM
	UpdatedAt        time.Time         `db:"updated_at" json:"updated_at"`
}

// LimitResult is the structured outcome of a usage-limit check. When not
// allowed, the client renders an upgrade prompt from Current/Limit.
type LimitResult struct {
	Allowed   bool `json:"allowed"`
	Current   int  `json:"current"`
	Limit     int  `json:"limit"`
	Remaining int  `json:"remaining"`
}
