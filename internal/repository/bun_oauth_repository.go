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

// BunPendingAuthRepository implements PendingAuthRepository using Bun ORM
type BunPendingAuthRepository struct {
	db *bun.DB
}

// NewBunPendingAuthRepository creates a new Bun-based pending-auth repository
func NewBunPendingAuthRepository(db *bun.DB) *BunPendingAuthRepository {
	return &BunPendingAuthRepository{db: db}
}

// Create inserts a pending authorization
func (r *BunPendingAuthRepository) Create(ctx context.Context, pa *models.PendingAuth) error {
	_, err := r.db.NewInsert().
		Model(pa).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create pending auth: %w", err)
	}
	return nil
}

// GetByID retrieves a pending authorization
func (r *BunPendingAuthRepository) GetByID(ctx context.Context, requestID string) (*models.PendingAuth, error) {
	pa := new(models.PendingAuth)
	err := r.db.NewSelect().
		Model(pa).
		Where("request_id = ?", requestID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("pending auth %s: %w", requestID, ErrNotFound)
		}
		return nil, fmt.Errorf("get pending auth: %w", err)
	}
	return pa, nil
}

// BindUser sets user_sub exactly once. The WHERE clause is the CAS: binding
// succeeds when the slot is empty or already holds the same subject.
func (r *BunPendingAuthRepository) BindUser(ctx context.Context, requestID, userSub string) error {
	res, err := r.db.NewUpdate().
		Model((*models.PendingAuth)(nil)).
		Set("user_sub = ?", userSub).
		Where("request_id = ?", requestID).
		Where("user_sub IS NULL OR user_sub = ?", userSub).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("bind pending auth user: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 1 {
		return nil
	}
	// Distinguish "bound to someone else" from "gone".
	if _, err := r.GetByID(ctx, requestID); err != nil {
		return err
	}
	return fmt.Errorf("pending auth %s bound to another subject: %w", requestID, ErrAlreadyConsumed)
}

// Delete removes a pending authorization
func (r *BunPendingAuthRepository) Delete(ctx context.Context, requestID string) error {
	_, err := r.db.NewDelete().
		Model((*models.PendingAuth)(nil)).
		Where("request_id = ?", requestID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete pending auth: %w", err)
	}
	return nil
}

// DeleteExpired removes pending auths past expiry
func (r *BunPendingAuthRepository) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := r.db.NewDelete().
		Model((*models.PendingAuth)(nil)).
		Where("expires_at < ?", now).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("delete expired pending auths: %w", err)
	}
	affected, _ := res.RowsAffected()
	return int(affected), nil
}

// BunAuthCodeRepository implements AuthCodeRepository using Bun ORM
type BunAuthCodeRepository struct {
	db *bun.DB
}

// NewBunAuthCodeRepository creates a new Bun-based auth-code repository
func NewBunAuthCodeRepository(db *bun.DB) *BunAuthCodeRepository {
	return &BunAuthCodeRepository{db: db}
}

// Create inserts an authorization code
func (r *BunAuthCodeRepository) Create(ctx context.Context, code *models.AuthCode) error {
	_, err := r.db.NewInsert().
		Model(code).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create auth code: %w", err)
	}
	return nil
}

// GetByCode retrieves an authorization code
func (r *BunAuthCodeRepository) GetByCode(ctx context.Context, code string) (*models.AuthCode, error) {
	ac := new(models.AuthCode)
	err := r.db.NewSelect().
		Model(ac).
		Where("code = ?", code).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("auth code: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("get auth code: %w", err)
	}
	return ac, nil
}

// Consume flips consumed false→true. The database UPDATE is the
// linearization point: under N concurrent redemptions exactly one caller
// sees RowsAffected == 1.
func (r *BunAuthCodeRepository) Consume(ctx context.Context, code string) (*models.AuthCode, error) {
	res, err := r.db.NewUpdate().
		Model((*models.AuthCode)(nil)).
		Set("consumed = ?", true).
		Where("code = ?", code).
		Where("consumed = ?", false).
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("consume auth code: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		if _, err := r.GetByCode(ctx, code); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("auth code: %w", ErrAlreadyConsumed)
	}
	return r.GetByCode(ctx, code)
}

// Delete removes an authorization code
func (r *BunAuthCodeRepository) Delete(ctx context.Context, code string) error {
	_, err := r.db.NewDelete().
		Model((*models.AuthCode)(nil)).
		Where("code = ?", code).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete auth code: %w", err)
	}
	return nil
}

// DeleteExpired removes consumed codes and codes past expiry plus grace.
// The grace window keeps the sweeper from racing an in-flight redemption.
func (r *BunAuthCodeRepository) DeleteExpired(ctx context.Context, now time.Time, grace time.Duration) (int, error) {
	res, err := r.db.NewDelete().
		Model((*models.AuthCode)(nil)).
		Where("consumed = ? OR expires_at < ?", true, now.Add(-grace)).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("delete expired auth codes: %w", err)
	}
	affected, _ := res.RowsAffected()
	return int(affected), nil
}

// BunJWKSRepository implements JWKSRepository using Bun ORM
type BunJWKSRepository struct {
	db *bun.DB
}

// NewBunJWKSRepository creates a new Bun-based JWKS repository
func NewBunJWKSRepository(db *bun.DB) *BunJWKSRepository {
	return &BunJWKSRepository{db: db}
}

// Create inserts a signing key
func (r *BunJWKSRepository) Create(ctx context.Context, key *models.JWKSKey) error {
	_, err := r.db.NewInsert().
		Model(key).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create jwks key: %w", err)
	}
	return nil
}

// GetActive returns the current signing key
func (r *BunJWKSRepository) GetActive(ctx context.Context) (*models.JWKSKey, error) {
	key := new(models.JWKSKey)
	err := r.db.NewSelect().
		Model(key).
		Where("active = ?", true).
		Order("created_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("active jwks key: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("get active jwks key: %w", err)
	}
	return key, nil
}

// List returns all keys, newest first
func (r *BunJWKSRepository) List(ctx context.Context) ([]models.JWKSKey, error) {
	var keys []models.JWKSKey
	err := r.db.NewSelect().
		Model(&keys).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list jwks keys: %w", err)
	}
	return keys, nil
}

// Rotate deactivates all keys and inserts the new active key in one
// transaction so readers always observe a complete set.
func (r *BunJWKSRepository) Rotate(ctx context.Context, next *models.JWKSKey) error {
	return r.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		now := time.Now()
		if _, err := tx.NewUpdate().
			Model((*models.JWKSKey)(nil)).
			Set("active = ?", false).
			Set("rotated_at = ?", now).
			Where("active = ?", true).
			Exec(ctx); err != nil {
			return fmt.Errorf("deactivate jwks keys: %w", err)
		}
		next.Active = true
		if _, err := tx.NewInsert().Model(next).Exec(ctx); err != nil {
			return fmt.Errorf("insert jwks key: %w", err)
		}
		return nil
	})
}
