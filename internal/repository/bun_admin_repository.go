package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/darkauth/darkauth/internal/db/models"
)

// BunAdminRepository implements AdminRepository using Bun ORM
type BunAdminRepository struct {
	db *bun.DB
}

// NewBunAdminRepository creates a new Bun-based admin repository
func NewBunAdminRepository(db *bun.DB) *BunAdminRepository {
	return &BunAdminRepository{db: db}
}

// Create inserts a new admin
func (r *BunAdminRepository) Create(ctx context.Context, admin *models.Admin) error {
	_, err := r.db.NewInsert().
		Model(admin).
		Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("admin email %s: %w", admin.Email, ErrConflict)
		}
		return fmt.Errorf("create admin: %w", err)
	}
	return nil
}

// GetByID retrieves an admin by id
func (r *BunAdminRepository) GetByID(ctx context.Context, id string) (*models.Admin, error) {
	admin := new(models.Admin)
	err := r.db.NewSelect().
		Model(admin).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("admin %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get admin: %w", err)
	}
	return admin, nil
}

// GetByEmail retrieves an admin by email
func (r *BunAdminRepository) GetByEmail(ctx context.Context, email string) (*models.Admin, error) {
	admin := new(models.Admin)
	err := r.db.NewSelect().
		Model(admin).
		Where("email = ?", email).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("admin by email: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("get admin by email: %w", err)
	}
	return admin, nil
}

// Update persists changes to an admin
func (r *BunAdminRepository) Update(ctx context.Context, admin *models.Admin) error {
	res, err := r.db.NewUpdate().
		Model(admin).
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update admin: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("admin %s: %w", admin.ID, ErrNotFound)
	}
	return nil
}

// Delete removes an admin
func (r *BunAdminRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.NewDelete().
		Model((*models.Admin)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete admin: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("admin %s: %w", id, ErrNotFound)
	}
	return nil
}

// List retrieves a page of admins
func (r *BunAdminRepository) List(ctx context.Context, page, limit int) ([]models.Admin, int, error) {
	var admins []models.Admin
	total, err := r.db.NewSelect().
		Model(&admins).
		Order("created_at DESC").
		Limit(limit).
		Offset(pageOffset(page, limit)).
		ScanAndCount(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("list admins: %w", err)
	}
	return admins, total, nil
}

// Count returns the number of admin accounts
func (r *BunAdminRepository) Count(ctx context.Context) (int, error) {
	count, err := r.db.NewSelect().
		Model((*models.Admin)(nil)).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count admins: %w", err)
	}
	return count, nil
}

// UpsertPakeRecord writes the admin's OPAQUE material
func (r *BunAdminRepository) UpsertPakeRecord(ctx context.Context, rec *models.AdminPakeRecord) error {
	_, err := r.db.NewInsert().
		Model(rec).
		On("CONFLICT (admin_id) DO UPDATE").
		Set("envelope = EXCLUDED.envelope").
		Set("server_pubkey = EXCLUDED.server_pubkey").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert admin pake record: %w", err)
	}
	return nil
}

// GetPakeRecord loads the admin's OPAQUE material
func (r *BunAdminRepository) GetPakeRecord(ctx context.Context, adminID string) (*models.AdminPakeRecord, error) {
	rec := new(models.AdminPakeRecord)
	err := r.db.NewSelect().
		Model(rec).
		Where("admin_id = ?", adminID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("admin pake record %s: %w", adminID, ErrNotFound)
		}
		return nil, fmt.Errorf("get admin pake record: %w", err)
	}
	return rec, nil
}
