package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"app/internal/model"
)

// usageColumns maps each operation to its counter column. The table has one
// integer column per operation; increments and group resets address columns
// through this map only, so an operation outside the closed set cannot reach
// SQL.
var usageColumns = map[model.Operation]string{
	model.OpInlineAiAsk:     "inline_ai_ask",
	model.OpAiChat:          "ai_chat",
	model.OpDocGeneration:   "doc_generation",
	model.OpImageGeneration: "image_generation",
	model.OpDeepResearch:    "deep_research",
	model.OpPodcast:         "podcast",
	model.OpVideoGeneration: "video_generation",
}

// UsageRepository persists per-user, per-operation usage counters with lazy
// period resets.
type UsageRepository interface {
	// GetCounters returns the user's counters, nil when no row exists yet.
	GetCounters(ctx context.Context, userID string) (*model.UsageCounters, error)
	// ApplyResets zeroes the daily and/or monthly counter group and rewrites
	// the corresponding period markers.
	ApplyResets(ctx context.Context, userID string, resetDaily bool, today string, resetMonthly bool, month string) error
	// Increment adds one to the operation's counter, creating the counters row
	// with the given period markers on first use.
	Increment(ctx context.Context, userID string, op model.Operation, today, month string) error
}

type usageRepo struct {
	db *sql.DB
}

func NewUsageRepo(db *sql.DB) UsageRepository {
	return &usageRepo{db: db}
}

func groupColumns(window model.ResetWindow) []string {
	var cols []string
	for _, op := range model.Operations {
		spec, _ := op.Spec()
		if spec.Window == window {
			cols = append(cols, usageColumns[op])
		}
	}
	return cols
}

func (r *usageRepo) GetCounters(ctx context.Context, userID string) (*model.UsageCounters, error) {
	cols := make([]string, 0, len(model.Operations))
	for _, op := range model.Operations {
		cols = append(cols, usageColumns[op])
	}
	query := fmt.Sprintf(`
        SELECT %s, last_reset_date::text, last_monthly_reset, updated_at
        FROM usage_counters
        WHERE user_id = $1
    `, strings.Join(cols, ", "))

	dest := make([]interface{}, 0, len(model.Operations)+3)
	counts := make([]int, len(model.Operations))
	for i := range counts {
		dest = append(dest, &counts[i])
	}
	uc := model.UsageCounters{UserID: userID, Counts: make(map[model.Operation]int)}
	dest = append(dest, &uc.LastResetDate, &uc.LastMonthlyReset, &uc.UpdatedAt)

	if err := r.db.QueryRowContext(ctx, query, userID).Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch usage counters for user %s: %w", userID, err)
	}
	for i, op := range model.Operations {
		uc.Counts[op] = counts[i]
	}
	return &uc, nil
}

func (r *usageRepo) ApplyResets(ctx context.Context, userID string, resetDaily bool, today string, resetMonthly bool, month string) error {
	if !resetDaily && !resetMonthly {
		return nil
	}
	var sets []string
	args := []interface{}{userID}
	if resetDaily {
		for _, col := range groupColumns(model.ResetDaily) {
			sets = append(sets, col+" = 0")
		}
		args = append(args, today)
		sets = append(sets, fmt.Sprintf("last_reset_date = $%d::date", len(args)))
	}
	if resetMonthly {
		for _, col := range groupColumns(model.ResetMonthly) {
			sets = append(sets, col+" = 0")
		}
		args = append(args, month)
		sets = append(sets, fmt.Sprintf("last_monthly_reset = $%d", len(args)))
	}
	sets = append(sets, "updated_at = NOW()")

	query := fmt.Sprintf(`UPDATE usage_counters SET %s WHERE user_id = $1`, strings.Join(sets, ", "))
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("apply usage resets for user %s: %w", userID, err)
	}
	return nil
}

func (r *usageRepo) Increment(ctx context.Context, userID string, op model.Operation, today, month string) error {
	col, ok := usageColumns[op]
	if !ok {
		return fmt.Errorf("unknown operation %q", op)
	}
	query := fmt.Sprintf(`
        INSERT INTO usage_counters (user_id, %s, last_reset_date, last_monthly_reset)
        VALUES ($1, 1, $2::date, $3)
        ON CONFLICT (user_id) DO UPDATE
        SET %s = usage_counters.%s + 1,
            updated_at = NOW()
    `, col, col, col)
	if _, err := r.db.ExecContext(ctx, query, userID, today, month); err != nil {
		return fmt.Errorf("increment %s usage for user %s: %w", op, userID, err)
	}
	return nil
}
