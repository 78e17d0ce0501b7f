package queue

import (
	"context"
	"database/sql"
	"fmt"
)

// Client wraps a Postgres DB for pgmq queue operations. Delayed sends are the
// deferred-execution primitive: a message stays invisible until its delay
// elapses, so the dispatcher only ever reads due work.
type Client struct {
	db *sql.DB
}

// New returns a new queue client backed by the given DB connection.
func New(db *sql.DB) *Client {
	return &Client{db: db}
}

// Message represents a single queued message.
type Message struct {
	ID   int64  // message identifier
	Data []byte // raw JSON payload
}

// SendWithDelay pushes a JSON payload that becomes visible after delaySec
// seconds. The returned message id is persisted on the scheduled item for
// traceability and cancellation.
func (c *Client) SendWithDelay(ctx context.Context, queue string, payload []byte, delaySec int64) (int64, error) {
	var msgID int64
	query := "SELECT pgmq.send($1, $2::jsonb, $3)"
	if err := c.db.QueryRowContext(ctx, query, queue, string(payload), delaySec).Scan(&msgID); err != nil {
		return 0, fmt.Errorf("pgmq send failed: %w", err)
	}
	return msgID, nil
}

// ReadWithPoll reads up to maxMessages due messages, blocking up to timeoutSec
// seconds.
func (c *Client) ReadWithPoll(ctx context.Context, queue string, timeoutSec, maxMessages int) ([]*Message, error) {
	query := "SELECT msg_id, message FROM pgmq.read_with_poll($1, $2, $3)"
	rows, err := c.db.QueryContext(ctx, query, queue, timeoutSec, maxMessages)
	if err != nil {
		return nil, fmt.Errorf("pgmq read_with_poll failed: %w", err)
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		var id int64
		var data []byte
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("pgmq read scan failed: %w", err)
		}
		msgs = append(msgs, &Message{ID: id, Data: data})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgmq read rows error: %w", err)
	}
	return msgs, nil
}

// Delete removes a message from the specified queue. Used on successful
// delivery and for best-effort cancellation of a not-yet-due message.
func (c *Client) Delete(ctx context.Context, queue string, msgID int64) error {
	query := "SELECT pgmq.delete($1, $2::bigint)"
	if _, err := c.db.ExecContext(ctx, query, queue, msgID); err != nil {
		return fmt.Errorf("pgmq delete failed: %w", err)
	}
	return nil
}

// Archive moves a message to the queue's archive table instead of dropping it.
// Used when the dispatcher exhausts its retries.
func (c *Client) Archive(ctx context.Context, queue string, msgID int64) error {
	query := "SELECT pgmq.archive($1, $2::bigint)"
	if _, err := c.db.ExecContext(ctx, query, queue, msgID); err != nil {
		return fmt.Errorf("pgmq archive failed: %w", err)
	}
	return nil
}
