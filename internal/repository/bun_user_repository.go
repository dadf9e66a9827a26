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

// BunUserRepository implements UserRepository using Bun ORM
type BunUserRepository struct {
	db *bun.DB
}

// NewBunUserRepository creates a new Bun-based user repository
func NewBunUserRepository(db *bun.DB) *BunUserRepository {
	return &BunUserRepository{db: db}
}

// Create inserts a new user
func (r *BunUserRepository) Create(ctx context.Context, user *models.User) error {
	_, err := r.db.NewInsert().
		Model(user).
		Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("user email %s: %w", user.Email, ErrConflict)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// GetBySub retrieves a user by subject
func (r *BunUserRepository) GetBySub(ctx context.Context, sub string) (*models.User, error) {
	user := new(models.User)
	err := r.db.NewSelect().
		Model(user).
		Where("sub = ?", sub).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", sub, ErrNotFound)
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// GetByEmail retrieves a user by (lowercased) email
func (r *BunUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	user := new(models.User)
	err := r.db.NewSelect().
		Model(user).
		Where("email = ?", email).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user by email: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return user, nil
}

// Update persists changes to a user. Sub is immutable.
func (r *BunUserRepository) Update(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now()
	res, err := r.db.NewUpdate().
		Model(user).
		WherePK().
		Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("user email %s: %w", user.Email, ErrConflict)
		}
		return fmt.Errorf("update user: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("user %s: %w", user.Sub, ErrNotFound)
	}
	return nil
}

// Delete removes a user. PAKE records, sessions, memberships, and tokens
// cascade at the schema level.
func (r *BunUserRepository) Delete(ctx context.Context, sub string) error {
	res, err := r.db.NewDelete().
		Model((*models.User)(nil)).
		Where("sub = ?", sub).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("user %s: %w", sub, ErrNotFound)
	}
	return nil
}

// List retrieves a page of users ordered by creation time
func (r *BunUserRepository) List(ctx context.Context, page, limit int) ([]models.User, int, error) {
	var users []models.User
	total, err := r.db.NewSelect().
		Model(&users).
		Order("created_at DESC").
		Limit(limit).
		Offset(pageOffset(page, limit)).
		ScanAndCount(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	return users, total, nil
}

// SetLastLogin records the login timestamp
func (r *BunUserRepository) SetLastLogin(ctx context.Context, sub string, at time.Time) error {
	_, err := r.db.NewUpdate().
		Model((*models.User)(nil)).
		Set("last_login_at = ?", at).
		Where("sub = ?", sub).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("set last login: %w", err)
	}
	return nil
}

// UpsertPakeRecord writes the initial PAKE record at registration finish.
func (r *BunUserRepository) UpsertPakeRecord(ctx context.Context, rec *models.PakeRecord) error {
	_, err := r.db.NewInsert().
		Model(rec).
		On("CONFLICT (sub) DO UPDATE").
		Set("envelope = EXCLUDED.envelope").
		Set("server_pubkey = EXCLUDED.server_pubkey").
		Set("export_key_hash = EXCLUDED.export_key_hash").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert pake record: %w", err)
	}
	return nil
}

// GetPakeRecord loads the PAKE record for a user
func (r *BunUserRepository) GetPakeRecord(ctx context.Context, sub string) (*models.PakeRecord, error) {
	rec := new(models.PakeRecord)
	err := r.db.NewSelect().
		Model(rec).
		Where("sub = ?", sub).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("pake record %s: %w", sub, ErrNotFound)
		}
		return nil, fmt.Errorf("get pake record: %w", err)
	}
	return rec, nil
}

// RotatePakeRecord replaces the PAKE record on password change, preserving
// the outgoing export-key hash in history for the reuse check.
func (r *BunUserRepository) RotatePakeRecord(ctx context.Context, rec *models.PakeRecord) error {
	return r.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		prev := new(models.PakeRecord)
		err := tx.NewSelect().Model(prev).Where("sub = ?", rec.Sub).Scan(ctx)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("load previous pake record: %w", err)
		}
		if err == nil && prev.ExportKeyHash != nil {
			hist := &models.PakeHistory{
				Sub:           rec.Sub,
				ExportKeyHash: *prev.ExportKeyHash,
				ReplacedAt:    time.Now(),
			}
			if _, err := tx.NewInsert().Model(hist).Exec(ctx); err != nil {
				return fmt.Errorf("append pake history: %w", err)
			}
		}
		now := time.Now()
		rec.RotatedAt = &now
		if _, err := tx.NewInsert().
			Model(rec).
			On("CONFLICT (sub) DO UPDATE").
			Set("envelope = EXCLUDED.envelope").
			Set("server_pubkey = EXCLUDED.server_pubkey").
			Set("export_key_hash = EXCLUDED.export_key_hash").
			Set("rotated_at = EXCLUDED.rotated_at").
			Exec(ctx); err != nil {
			return fmt.Errorf("rotate pake record: %w", err)
		}
		return nil
	})
}

// ExportKeyHashSeen reports whether the hash matches the current record or
// any history entry for the user.
func (r *BunUserRepository) ExportKeyHashSeen(ctx context.Context, sub, exportKeyHash string) (bool, error) {
	count, err := r.db.NewSelect().
		Model((*models.PakeRecord)(nil)).
		Where("sub = ?", sub).
		Where("export_key_hash = ?", exportKeyHash).
		Count(ctx)
	if err != nil {
		return false, fmt.Errorf("check export key hash: %w", err)
	}
	if count > 0 {
		return true, nil
	}
	count, err = r.db.NewSelect().
		Model((*models.PakeHistory)(nil)).
		Where("sub = ?", sub).
		Where("export_key_hash = ?", exportKeyHash).
		Count(ctx)
	if err != nil {
		return false, fmt.Errorf("check export key history: %w", err)
	}
	return count > 0, nil
}

// GetWrappedDRK loads the per-user wrapped-DRK blob
func (r *BunUserRepository) GetWrappedDRK(ctx context.Context, sub string) (*models.WrappedDRK, error) {
	wd := new(models.WrappedDRK)
	err := r.db.NewSelect().
		Model(wd).
		Where("sub = ?", sub).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("wrapped drk %s: %w", sub, ErrNotFound)
		}
		return nil, fmt.Errorf("get wrapped drk: %w", err)
	}
	return wd, nil
}

// PutWrappedDRK overwrites the per-user singleton blob
func (r *BunUserRepository) PutWrappedDRK(ctx context.Context, sub string, blob []byte) error {
	wd := &models.WrappedDRK{Sub: sub, Blob: blob, UpdatedAt: time.Now()}
	_, err := r.db.NewInsert().
		Model(wd).
		On("CONFLICT (sub) DO UPDATE").
		Set("blob = EXCLUDED.blob").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("put wrapped drk: %w", err)
	}
	return nil
}
