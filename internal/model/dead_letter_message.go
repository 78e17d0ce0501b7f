package model

import "time"

// DeadLetterMessage records a dispatch that exhausted its retries, persisted
// for offline analysis and manual replay.
type DeadLetterMessage struct {
	ID         string    `db:"id"`
	QueueName  string    `db:"queue_name"`
	MessageID  int64     `db:"message_id"`
	Payload    string    `db:"payload"` // JSON body the dispatcher was delivering
	LastError  *string   `db:"last_error"`
	Attempts   int       `db:"attempts"`
	Status     string    `db:"status"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}
