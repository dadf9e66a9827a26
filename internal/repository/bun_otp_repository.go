package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/darkauth/darkauth/internal/db/models"
)

// BunOTPRepository implements OTPRepository using Bun ORM
type BunOTPRepository struct {
	db *bun.DB
}

// NewBunOTPRepository creates a new Bun-based OTP repository
func NewBunOTPRepository(db *bun.DB) *BunOTPRepository {
	return &BunOTPRepository{db: db}
}

// Upsert writes the actor's OTP credential. Re-running setup before
// verification replaces the pending secret.
func (r *BunOTPRepository) Upsert(ctx context.Context, cred *models.OTPCredential) error {
	_, err := r.db.NewInsert().
		Model(cred).
		On("CONFLICT (actor_ref) DO UPDATE").
		Set("secret_enc = EXCLUDED.secret_enc").
		Set("algorithm = EXCLUDED.algorithm").
		Set("enabled = EXCLUDED.enabled").
		Set("verified = EXCLUDED.verified").
		Set("failure_count = EXCLUDED.failure_count").
		Set("locked_until = EXCLUDED.locked_until").
		Set("last_step = EXCLUDED.last_step").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert otp credential: %w", err)
	}
	return nil
}

// Get retrieves the actor's OTP credential
func (r *BunOTPRepository) Get(ctx context.Context, actorRef string) (*models.OTPCredential, error) {
	cred := new(models.OTPCredential)
	err := r.db.NewSelect().
		Model(cred).
		Where("actor_ref = ?", actorRef).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("otp credential: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("get otp credential: %w", err)
	}
	return cred, nil
}

// Update persists verification state, failure counters, and the replay step.
func (r *BunOTPRepository) Update(ctx context.Context, cred *models.OTPCredential) error {
	res, err := r.db.NewUpdate().
		Model(cred).
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update otp credential: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("otp credential: %w", ErrNotFound)
	}
	return nil
}

// Delete removes the actor's OTP credential (admin reset)
func (r *BunOTPRepository) Delete(ctx context.Context, actorRef string) error {
	res, err := r.db.NewDelete().
		Model((*models.OTPCredential)(nil)).
		Where("actor_ref = ?", actorRef).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete otp credential: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("otp credential: %w", ErrNotFound)
	}
	return nil
}

// CreateEmailToken inserts a verification token, invalidating any active
// token for the same user and purpose so only the newest link works.
func (r *BunOTPRepository) CreateEmailToken(ctx context.Context, token *models.EmailVerificationToken) error {
	return r.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		now := time.Now()
		if _, err := tx.NewUpdate().
			Model((*models.EmailVerificationToken)(nil)).
			Set("consumed_at = ?", now).
			Where("user_sub = ?", token.UserSub).
			Where("purpose = ?", token.Purpose).
			Where("consumed_at IS NULL").
			Exec(ctx); err != nil {
			return fmt.Errorf("invalidate prior email tokens: %w", err)
		}
		if _, err := tx.NewInsert().Model(token).Exec(ctx); err != nil {
			return fmt.Errorf("create email token: %w", err)
		}
		return nil
	})
}

// GetEmailToken looks up an active token without consuming it. The recovery
// start step uses it to resolve the subject before the PAKE exchange; the
// token stays live until the finish step consumes it.
func (r *BunOTPRepository) GetEmailToken(ctx context.Context, tokenHash string, now time.Time) (*models.EmailVerificationToken, error) {
	token := new(models.EmailVerificationToken)
	err := r.db.NewSelect().
		Model(token).
		Where("token_hash = ?", tokenHash).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("email token: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("get email token: %w", err)
	}
	if token.ConsumedAt != nil || !token.ExpiresAt.After(now) {
		return nil, fmt.Errorf("email token: %w", ErrAlreadyConsumed)
	}
	return token, nil
}

// ConsumeEmailToken marks the token consumed exactly once and returns it.
// Expired or already-consumed tokens lose the compare-and-set.
func (r *BunOTPRepository) ConsumeEmailToken(ctx context.Context, tokenHash string, now time.Time) (*models.EmailVerificationToken, error) {
	res, err := r.db.NewUpdate().
		Model((*models.EmailVerificationToken)(nil)).
		Set("consumed_at = ?", now).
		Where("token_hash = ?", tokenHash).
		Where("consumed_at IS NULL").
		Where("expires_at > ?", now).
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("consume email token: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		token := new(models.EmailVerificationToken)
		err := r.db.NewSelect().
			Model(token).
			Where("token_hash = ?", tokenHash).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("email token: %w", ErrNotFound)
			}
			return nil, fmt.Errorf("get email token: %w", err)
		}
		return nil, fmt.Errorf("email token: %w", ErrAlreadyConsumed)
	}
	token := new(models.EmailVerificationToken)
	err = r.db.NewSelect().
		Model(token).
		Where("token_hash = ?", tokenHash).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("get consumed email token: %w", err)
	}
	return token, nil
}

// InvalidateEmailTokens marks all active tokens consumed for a user and
// purpose (email changed again, account deleted).
func (r *BunOTPRepository) InvalidateEmailTokens(ctx context.Context, userSub, purpose string) error {
	_, err := r.db.NewUpdate().
		Model((*models.EmailVerificationToken)(nil)).
		Set("consumed_at = ?", time.Now()).
		Where("user_sub = ?", userSub).
		Where("purpose = ?", purpose).
		Where("consumed_at IS NULL").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("invalidate email tokens: %w", err)
	}
	return nil
}
