package model

import "time"

// ItemKind distinguishes what a scheduled item delivers at fire time.
type ItemKind string

const (
	KindPost  ItemKind = "post"
	KindEmail ItemKind = "email"
)

// ItemStatus is the scheduled-item lifecycle state. Transitions are monotonic:
// scheduled -> sending -> sent|failed, or scheduled -> cancelled. Terminal
// states never change.
type ItemStatus string

const (
	StatusScheduled ItemStatus = "scheduled"
	StatusSending   ItemStatus = "sending"
	StatusSent      ItemStatus = "sent"
	StatusFailed    ItemStatus = "failed"
	StatusCancelled ItemStatus = "cancelled"
)

// Terminal reports whether s admits no further transitions.
func (s ItemStatus) Terminal() bool {
	return s == StatusSent || s == StatusFailed || s == StatusCancelled
}

// ScheduledItem is a persisted one-shot future action (publish a post or send
// an email), created by the API layer and advanced only by the dispatcher
// callback.
type ScheduledItem struct {
	ID          string     `db:"id" json:"id"`
	UserID      string     `db:"user_id" json:"user_id"`
	ProjectID   string     `db:"project_id" json:"project_id"`
	Kind        ItemKind   `db:"kind" json:"kind"`
	ScheduledAt int64      `db:"scheduled_at" json:"scheduled_at"` // epoch seconds
	Status      ItemStatus `db:"status" json:"status"`
	Platforms   []string   `db:"platforms" json:"platforms,omitempty"`  // posts
	Recipients  []string   `db:"recipients" json:"recipients,omitempty"` // emails
	Subject     string     `db:"subject" json:"subject,omitempty"`
	Body        string     `db:"body" json:"body"`
	MediaKeys   []string   `db:"media_keys" json:"media_keys,omitempty"`
	QueueMsgID  *int64     `db:"queue_msg_id" json:"queue_msg_id,omitempty"`
	Error       *string    `db:"error" json:"error,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	SentAt      *time.Time `db:"sent_at" json:"sent_at,omitempty"`
}
