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

// BunClientRepository implements ClientRepository using Bun ORM
type BunClientRepository struct {
	db *bun.DB
}

// NewBunClientRepository creates a new Bun-based client repository
func NewBunClientRepository(db *bun.DB) *BunClientRepository {
	return &BunClientRepository{db: db}
}

// Create registers a new client
func (r *BunClientRepository) Create(ctx context.Context, client *models.Client) error {
	_, err := r.db.NewInsert().
		Model(client).
		Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("client %s: %w", client.ClientID, ErrConflict)
		}
		return fmt.Errorf("create client: %w", err)
	}
	return nil
}

// GetByID retrieves a client
func (r *BunClientRepository) GetByID(ctx context.Context, clientID string) (*models.Client, error) {
	client := new(models.Client)
	err := r.db.NewSelect().
		Model(client).
		Where("client_id = ?", clientID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("client %s: %w", clientID, ErrNotFound)
		}
		return nil, fmt.Errorf("get client: %w", err)
	}
	return client, nil
}

// Update persists changes to a client
func (r *BunClientRepository) Update(ctx context.Context, client *models.Client) error {
	client.UpdatedAt = time.Now()
	res, err := r.db.NewUpdate().
		Model(client).
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update client: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("client %s: %w", client.ClientID, ErrNotFound)
	}
	return nil
}

// Delete removes a client
func (r *BunClientRepository) Delete(ctx context.Context, clientID string) error {
	res, err := r.db.NewDelete().
		Model((*models.Client)(nil)).
		Where("client_id = ?", clientID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete client: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("client %s: %w", clientID, ErrNotFound)
	}
	return nil
}

// List retrieves a page of clients
func (r *BunClientRepository) List(ctx context.Context, page, limit int) ([]models.Client, int, error) {
	var clients []models.Client
	total, err := r.db.NewSelect().
		Model(&clients).
		Order("created_at DESC").
		Limit(limit).
		Offset(pageOffset(page, limit)).
		ScanAndCount(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("list clients: %w", err)
	}
	return clients, total, nil
}
