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

// BunSessionRepository implements SessionRepository using Bun ORM
type BunSessionRepository struct {
	db *bun.DB
}

// NewBunSessionRepository creates a new Bun-based session repository
func NewBunSessionRepository(db *bun.DB) *BunSessionRepository {
	return &BunSessionRepository{db: db}
}

// Create inserts a new session
func (r *BunSessionRepository) Create(ctx context.Context, session *models.Session) error {
	_, err := r.db.NewInsert().
		Model(session).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// GetByID retrieves a session by ID
func (r *BunSessionRepository) GetByID(ctx context.Context, id string) (*models.Session, error) {
	session := new(models.Session)
	err := r.db.NewSelect().
		Model(session).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return session, nil
}

// GetByTokenHash retrieves a session by its token hash.
// This is the primary lookup method for cookie authentication.
func (r *BunSessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error) {
	session := new(models.Session)
	err := r.db.NewSelect().
		Model(session).
		Where("token_hash = ?", tokenHash).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("session: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("get session by token: %w", err)
	}
	return session, nil
}

// Update persists session flag changes (OTP verification, last-used).
func (r *BunSessionRepository) Update(ctx context.Context, session *models.Session) error {
	res, err := r.db.NewUpdate().
		Model(session).
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("session %s: %w", session.ID, ErrNotFound)
	}
	return nil
}

// Delete removes a session; the refresh-token chain cascades.
func (r *BunSessionRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.NewDelete().
		Model((*models.Session)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteExpired deletes all sessions past expiry
func (r *BunSessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := r.db.NewDelete().
		Model((*models.Session)(nil)).
		Where("expires_at < ?", now).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	affected, _ := res.RowsAffected()
	return int(affected), nil
}

// List retrieves a page of sessions (admin operation)
func (r *BunSessionRepository) List(ctx context.Context, page, limit int) ([]models.Session, int, error) {
	var sessions []models.Session
	total, err := r.db.NewSelect().
		Model(&sessions).
		Order("created_at DESC").
		Limit(limit).
		Offset(pageOffset(page, limit)).
		ScanAndCount(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, total, nil
}

// ListByUser retrieves all sessions for a user
func (r *BunSessionRepository) ListByUser(ctx context.Context, sub string) ([]models.Session, error) {
	var sessions []models.Session
	err := r.db.NewSelect().
		Model(&sessions).
		Where("user_sub = ?", sub).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list user sessions: %w", err)
	}
	return sessions, nil
}

// DeleteByUser removes all sessions for a user (account deletion, forced logout)
func (r *BunSessionRepository) DeleteByUser(ctx context.Context, sub string) error {
	_, err := r.db.NewDelete().
		Model((*models.Session)(nil)).
		Where("user_sub = ?", sub).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete user sessions: %w", err)
	}
	return nil
}

// CreateRefreshToken inserts a refresh token
func (r *BunSessionRepository) CreateRefreshToken(ctx context.Context, rt *models.RefreshToken) error {
	_, err := r.db.NewInsert().
		Model(rt).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}
	return nil
}

// GetRefreshToken retrieves a refresh token by hash
func (r *BunSessionRepository) GetRefreshToken(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	rt := new(models.RefreshToken)
	err := r.db.NewSelect().
		Model(rt).
		Where("token_hash = ?", tokenHash).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("refresh token: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("get refresh token: %w", err)
	}
	return rt, nil
}

// RotateRefreshToken consumes oldHash and inserts the successor in one
// transaction. The consuming UPDATE carries the single-use predicate; under
// concurrent rotations of the same token exactly one caller wins.
func (r *BunSessionRepository) RotateRefreshToken(ctx context.Context, oldHash string, next *models.RefreshToken) error {
	return r.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		now := time.Now()
		res, err := tx.NewUpdate().
			Model((*models.RefreshToken)(nil)).
			Set("consumed_at = ?", now).
			Where("token_hash = ?", oldHash).
			Where("consumed_at IS NULL").
			Where("expires_at > ?", now).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("consume refresh token: %w", err)
		}
		affected, _ := res.RowsAffected()
		if affected == 0 {
			return fmt.Errorf("refresh token: %w", ErrAlreadyConsumed)
		}
		next.RotatedFromHash = &oldHash
		if _, err := tx.NewInsert().Model(next).Exec(ctx); err != nil {
			return fmt.Errorf("insert rotated refresh token: %w", err)
		}
		return nil
	})
}

// DeleteRefreshTokensBySession removes the whole chain for a session
func (r *BunSessionRepository) DeleteRefreshTokensBySession(ctx context.Context, sessionID string) error {
	_, err := r.db.NewDelete().
		Model((*models.RefreshToken)(nil)).
		Where("session_id = ?", sessionID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete session refresh tokens: %w", err)
	}
	return nil
}

// DeleteExpiredRefreshTokens removes refresh tokens past expiry
func (r *BunSessionRepository) DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int, error) {
	res, err := r.db.NewDelete().
		Model((*models.RefreshToken)(nil)).
		Where("expires_at < ?", now).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh tokens: %w", err)
	}
	affected, _ := res.RowsAffected()
	return int(affected), nil
}
