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

// BunSettingsRepository implements SettingsRepository using Bun ORM
type BunSettingsRepository struct {
	db *bun.DB
}

// NewBunSettingsRepository creates a new Bun-based settings repository
func NewBunSettingsRepository(db *bun.DB) *BunSettingsRepository {
	return &BunSettingsRepository{db: db}
}

// Get retrieves a setting by key
func (r *BunSettingsRepository) Get(ctx context.Context, key string) (*models.Setting, error) {
	setting := new(models.Setting)
	err := r.db.NewSelect().
		Model(setting).
		Where("key = ?", key).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("setting %s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("get setting: %w", err)
	}
	return setting, nil
}

// Put upserts a setting
func (r *BunSettingsRepository) Put(ctx context.Context, setting *models.Setting) error {
	setting.UpdatedAt = time.Now()
	_, err := r.db.NewInsert().
		Model(setting).
		On("CONFLICT (key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("put setting: %w", err)
	}
	return nil
}

// List returns all settings
func (r *BunSettingsRepository) List(ctx context.Context) ([]models.Setting, error) {
	var settings []models.Setting
	err := r.db.NewSelect().
		Model(&settings).
		Order("key ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	return settings, nil
}

// BunAuditRepository implements AuditRepository using Bun ORM
type BunAuditRepository struct {
	db *bun.DB
}

// NewBunAuditRepository creates a new Bun-based audit repository
func NewBunAuditRepository(db *bun.DB) *BunAuditRepository {
	return &BunAuditRepository{db: db}
}

// Insert appends an audit entry
func (r *BunAuditRepository) Insert(ctx context.Context, entry *models.AuditLog) error {
	_, err := r.db.NewInsert().
		Model(entry).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// List retrieves a page of audit entries, newest first
func (r *BunAuditRepository) List(ctx context.Context, page, limit int) ([]models.AuditLog, int, error) {
	var entries []models.AuditLog
	total, err := r.db.NewSelect().
		Model(&entries).
		Order("id DESC").
		Limit(limit).
		Offset(pageOffset(page, limit)).
		ScanAndCount(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("list audit entries: %w", err)
	}
	return entries, total, nil
}
