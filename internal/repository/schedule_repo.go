package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"app/internal/model"
)

// ScheduleRepository persists scheduled items. Every status transition is a
// conditional UPDATE guarded on the current status, so terminal states are
// immutable and at most one caller claims the sending transition.
type ScheduleRepository interface {
	Create(ctx context.Context, item *model.ScheduledItem) error
	GetByID(ctx context.Context, id string) (*model.ScheduledItem, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]model.ScheduledItem, error)
	SetQueueMessageID(ctx context.Context, id string, msgID int64) error

	// MarkSending claims the scheduled -> sending transition. Returns false
	// when the item is no longer in the scheduled state.
	MarkSending(ctx context.Context, id string) (bool, error)
	// MarkSent terminalizes a sending item; annotation records a partial
	// failure, nil for a clean send.
	MarkSent(ctx context.Context, id string, annotation *string) error
	// MarkFailed terminalizes a sending item with the last observed error.
	MarkFailed(ctx context.Context, id string, errText string) error
	// Cancel flips scheduled -> cancelled for the owning user. Returns false
	// when the item has already left the scheduled state.
	Cancel(ctx context.Context, id, userID string) (bool, error)
}

type scheduleRepo struct {
	db *sql.DB
}

func NewScheduleRepo(db *sql.DB) ScheduleRepository {
	return &scheduleRepo{db: db}
}

const itemColumns = `id, user_id, project_id, kind, scheduled_at, status, platforms, recipients,
       subject, body, media_keys, queue_msg_id, error, created_at, sent_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanItem(row rowScanner) (*model.ScheduledItem, error) {
	var it model.ScheduledItem
	var platforms, recipients, mediaKeys []byte
	err := row.Scan(
		&it.ID,
		&it.UserID,
		&it.ProjectID,
		&it.Kind,
		&it.ScheduledAt,
		&it.Status,
		&platforms,
		&recipients,
		&it.Subject,
		&it.Body,
		&mediaKeys,
		&it.QueueMsgID,
		&it.Error,
		&it.CreatedAt,
		&it.SentAt,
	)
	if err != nil {
		return nil, err
	}
	for _, pair := range []struct {
		raw  []byte
		dest *[]string
	}{{platforms, &it.Platforms}, {recipients, &it.Recipients}, {mediaKeys, &it.MediaKeys}} {
		if len(pair.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(pair.raw, pair.dest); err != nil {
			return nil, fmt.Errorf("unmarshal scheduled item %s lists: %w", it.ID, err)
		}
	}
	return &it, nil
}

func marshalList(list []string) ([]byte, error) {
	if list == nil {
		list = []string{}
	}
	return json.Marshal(list)
}

func (r *scheduleRepo) Create(ctx context.Context, item *model.ScheduledItem) error {
	platforms, err := marshalList(item.Platforms)
	if err != nil {
		return err
	}
	recipients, err := marshalList(item.Recipients)
	if err != nil {
		return err
	}
	mediaKeys, err := marshalList(item.MediaKeys)
	if err != nil {
		return err
	}
	query := `
        INSERT INTO scheduled_items
            (id, user_id, project_id, kind, scheduled_at, status, platforms, recipients, subject, body, media_keys)
        VALUES ($1, $2, $3, $4, $5, 'scheduled', $6, $7, $8, $9, $10)
        RETURNING created_at
    `
	if err := r.db.QueryRowContext(ctx, query,
		item.ID, item.UserID, item.ProjectID, item.Kind, item.ScheduledAt,
		platforms, recipients, item.Subject, item.Body, mediaKeys,
	).Scan(&item.CreatedAt); err != nil {
		return fmt.Errorf("insert scheduled item: %w", err)
	}
	item.Status = model.StatusScheduled
	return nil
}

func (r *scheduleRepo) GetByID(ctx context.Context, id string) (*model.ScheduledItem, error) {
	query := `SELECT ` + itemColumns + ` FROM scheduled_items WHERE id = $1`
	item, err := scanItem(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch scheduled item %s: %w", id, err)
	}
	return item, nil
}

func (r *scheduleRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]model.ScheduledItem, error) {
	query := `SELECT ` + itemColumns + `
        FROM scheduled_items
        WHERE user_id = $1
        ORDER BY scheduled_at DESC
        LIMIT $2 OFFSET $3`
	rows, err := r.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list scheduled items for user %s: %w", userID, err)
	}
	defer rows.Close()

	var items []model.ScheduledItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan scheduled item: %w", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list scheduled items rows: %w", err)
	}
	return items, nil
}

func (r *scheduleRepo) SetQueueMessageID(ctx context.Context, id string, msgID int64) error {
	query := `UPDATE scheduled_items SET queue_msg_id = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, msgID); err != nil {
		return fmt.Errorf("set queue message id on item %s: %w", id, err)
	}
	return nil
}

func (r *scheduleRepo) MarkSending(ctx context.Context, id string) (bool, error) {
	query := `UPDATE scheduled_items SET status = 'sending' WHERE id = $1 AND status = 'scheduled'`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("mark item %s sending: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark sending rows affected for item %s: %w", id, err)
	}
	return n == 1, nil
}

func (r *scheduleRepo) MarkSent(ctx context.Context, id string, annotation *string) error {
	query := `
        UPDATE scheduled_items
        SET status = 'sent', sent_at = NOW(), error = $2
        WHERE id = $1 AND status = 'sending'
    `
	if _, err := r.db.ExecContext(ctx, query, id, annotation); err != nil {
		return fmt.Errorf("mark item %s sent: %w", id, err)
	}
	return nil
}

func (r *scheduleRepo) MarkFailed(ctx context.Context, id string, errText string) error {
	query := `
        UPDATE scheduled_items
        SET status = 'failed', error = $2
        WHERE id = $1 AND status = 'sending'
    `
	if _, err := r.db.ExecContext(ctx, query, id, errText); err != nil {
		return fmt.Errorf("mark item %s failed: %w", id, err)
	}
	return nil
}

func (r *scheduleRepo) Cancel(ctx context.Context, id, userID string) (bool, error) {
	query := `
        UPDATE scheduled_items
        SET status = 'cancelled'
        WHERE id = $1 AND user_id = $2 AND status = 'scheduled'
    `
	res, err := r.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return false, fmt.Errorf("cancel item %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("cancel rows affected for item %s: %w", id, err)
	}
	return n == 1, nil
}
