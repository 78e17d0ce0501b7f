package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"app/internal/model"
)

// DefaultCreditGrant is the ledger balance a profile starts with.
const DefaultCreditGrant = 100

type UserRepository interface {
	CreateUser(ctx context.Context, u *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByStripeCustomerID(ctx context.Context, customerID string) (*model.User, error)
	UpdateStripeCustomerID(ctx context.Context, userID, customerID string) error

	// GetBalance returns the current credit balance, 0 for an unknown account.
	GetBalance(ctx context.Context, userID string) (int, error)
	// DeductCredits atomically checks balance >= cost and decrements. Returns
	// false, leaving the balance untouched, when the balance is insufficient.
	DeductCredits(ctx context.Context, userID string, cost int) (bool, error)
	// GrantCredits atomically increments the balance by a positive amount.
	GrantCredits(ctx context.Context, userID string, amount int) error

	// GetTier returns the subscription tier, TierNone for an unknown account.
	GetTier(ctx context.Context, userID string) (model.Tier, error)
	SetSubscription(ctx context.Context, userID string, tier model.Tier, subscriptionID string) error
	ClearSubscription(ctx context.Context, userID string) error
}

type userRepo struct {
	db *sql.DB
}

func NewUserRepo(db *sql.DB) UserRepository {
	return &userRepo{db: db}
}

const userColumns = `user_id, name, email, stripe_customer_id, credits, subscription_tier, subscription_id,
       credits_updated_at, subscription_updated_at, created_at, updated_at`

func scanUser(row *sql.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(
		&u.UserID,
		&u.Name,
		&u.Email,
		&u.StripeCustomerID,
		&u.Credits,
		&u.SubscriptionTier,
		&u.SubscriptionID,
		&u.CreditsUpdatedAt,
		&u.SubscriptionUpdatedAt,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (r *userRepo) CreateUser(ctx context.Context, u *model.User) error {
	query := `INSERT INTO user_profiles (user_id, name, email, credits, subscription_tier)
              VALUES ($1, $2, $3, $4, 'none')
              RETURNING ` + userColumns
	row := r.db.QueryRowContext(ctx, query, u.UserID, u.Name, u.Email, DefaultCreditGrant)
	created, err := scanUser(row)
	if err != nil {
		return err
	}
	*u = *created
	return nil
}

func (r *userRepo) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM user_profiles WHERE user_id=$1`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *userRepo) GetUserByStripeCustomerID(ctx context.Context, customerID string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM user_profiles WHERE stripe_customer_id=$1`
	return scanUser(r.db.QueryRowContext(ctx, query, customerID))
}

func (r *userRepo) UpdateStripeCustomerID(ctx context.Context, userID, customerID string) error {
	query := `UPDATE user_profiles SET stripe_customer_id=$2, updated_at=NOW() WHERE user_id=$1`
	if _, err := r.db.ExecContext(ctx, query, userID, customerID); err != nil {
		return fmt.Errorf("update stripe customer id for user %s: %w", userID, err)
	}
	return nil
}

func (r *userRepo) GetBalance(ctx context.Context, userID string) (int, error) {
	var balance int
	query := `SELECT credits FROM user_profiles WHERE user_id=$1`
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&balance); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("fetch balance for user %s: %w", userID, err)
	}
	return balance, nil
}

// DeductCredits relies on a single conditional UPDATE so two concurrent
// deductions for the same account can never both succeed on one cost's worth
// of balance.
func (r *userRepo) DeductCredits(ctx context.Context, userID string, cost int) (bool, error) {
	if cost < 0 {
		return false, fmt.Errorf("negative cost %d", cost)
	}
	query := `
        UPDATE user_profiles
        SET credits = credits - $2,
            credits_updated_at = NOW(),
            updated_at = NOW()
        WHERE user_id = $1
          AND credits >= $2
    `
	res, err := r.db.ExecContext(ctx, query, userID, cost)
	if err != nil {
		return false, fmt.Errorf("deduct %d credits for user %s: %w", cost, userID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("deduct rows affected for user %s: %w", userID, err)
	}
	return n == 1, nil
}

func (r *userRepo) GrantCredits(ctx context.Context, userID string, amount int) error {
	if amount <= 0 {
		return fmt.Errorf("grant amount must be positive, got %d", amount)
	}
	query := `
        UPDATE user_profiles
        SET credits = credits + $2,
            credits_updated_at = NOW(),
            updated_at = NOW()
        WHERE user_id = $1
    `
	res, err := r.db.ExecContext(ctx, query, userID, amount)
	if err != nil {
		return fmt.Errorf("grant %d credits for user %s: %w", amount, userID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("grant rows affected for user %s: %w", userID, err)
	}
	if n == 0 {
		return fmt.Errorf("grant credits: no such user %s", userID)
	}
	return nil
}

func (r *userRepo) GetTier(ctx context.Context, userID string) (model.Tier, error) {
	var tier model.Tier
	query := `SELECT subscription_tier FROM user_profiles WHERE user_id=$1`
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&tier); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.TierNone, nil
		}
		return model.TierNone, fmt.Errorf("fetch tier for user %s: %w", userID, err)
	}
	return tier, nil
}

func (r *userRepo) SetSubscription(ctx context.Context, userID string, tier model.Tier, subscriptionID string) error {
	query := `
        UPDATE user_profiles
        SET subscription_tier = $2,
            subscription_id = $3,
            subscription_updated_at = NOW(),
            updated_at = NOW()
        WHERE user_id = $1
    `
	if _, err := r.db.ExecContext(ctx, query, userID, tier, subscriptionID); err != nil {
		return fmt.Errorf("set subscription %s for user %s: %w", tier, userID, err)
	}
	return nil
}

func (r *userRepo) ClearSubscription(ctx context.Context, userID string) error {
	query := `
        UPDATE user_profiles
        SET subscription_tier = 'none',
            subscription_id = NULL,
            subscription_updated_at = NOW(),
            updated_at = NOW()
        WHERE user_id = $1
    `
	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("clear subscription for user %s: %w", userID, err)
	}
	return nil
}
