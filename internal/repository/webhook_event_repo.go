package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// WebhookEventRepository records processed payment-provider event ids so a
// redelivered webhook cannot re-apply its effects (in particular, a replayed
// renewal invoice cannot double-grant credits).
type WebhookEventRepository interface {
	// MarkProcessed records the event id. Returns false when the event was
	// already recorded.
	MarkProcessed(ctx context.Context, eventID, eventType string) (bool, error)
}

type webhookEventRepo struct {
	db *sql.DB
}

func NewWebhookEventRepo(db *sql.DB) WebhookEventRepository {
	return &webhookEventRepo{db: db}
}

func (r *webhookEventRepo) MarkProcessed(ctx context.Context, eventID, eventType string) (bool, error) {
	query := `
        INSERT INTO webhook_events (event_id, event_type)
        VALUES ($1, $2)
        ON CONFLICT (event_id) DO NOTHING
    `
	res, err := r.db.ExecContext(ctx, query, eventID, eventType)
	if err != nil {
		return false, fmt.Errorf("record webhook event %s: %w", eventID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("webhook event rows affected for %s: %w", eventID, err)
	}
	return n == 1, nil
}
