package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type gormSourceRepository struct {
	db *gorm.DB
}

func (r *gormSourceRepository) Create(ctx context.Context, s *Source) error {
	if err := r.db.WithContext(ctx).Create(s).Error; err != nil {
		return fmt.Errorf("sources: create: %w", err)
	}
	return nil
}

func (r *gormSourceRepository) GetByID(ctx context.Context, id uuid.UUID) (*Source, error) {
	var s Source
	if err := r.db.WithContext(ctx).First(&s, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("sources: get by id: %w", err)
	}
	return &s, nil
}

func (r *gormSourceRepository) List(ctx context.Context, opts ListOptions) ([]Source, error) {
	var sources []Source
	q := r.db.WithContext(ctx).Order("created_at DESC")
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit).Offset(opts.Offset)
	}
	if err := q.Find(&sources).Error; err != nil {
		return nil, fmt.Errorf("sources: list: %w", err)
	}
	return sources, nil
}

// ListEnabled returns every enabled Source. Called by the Scheduler on each
// tick to decide which sources are due for a sync.
func (r *gormSourceRepository) ListEnabled(ctx context.Context) ([]Source, error) {
	var sources []Source
	if err := r.db.WithContext(ctx).Where("enabled = ?", true).Find(&sources).Error; err != nil {
		return nil, fmt.Errorf("sources: list enabled: %w", err)
	}
	return sources, nil
}

func (r *gormSourceRepository) Update(ctx context.Context, s *Source) error {
	result := r.db.WithContext(ctx).Save(s)
	if result.Error != nil {
		return fmt.Errorf("sources: update: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormSourceRepository) UpdateLastSyncedAt(ctx context.Context, id uuid.UUID, t time.Time) error {
	result := r.db.WithContext(ctx).Model(&Source{}).Where("id = ?", id).Update("last_synced_at", t)
	if result.Error != nil {
		return fmt.Errorf("sources: update last synced at: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormSourceRepository) SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	result := r.db.WithContext(ctx).Model(&Source{}).Where("id = ?", id).Update("enabled", enabled)
	if result.Error != nil {
		return fmt.Errorf("sources: set enabled: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DisableBySecretID disables every Source that references secretID. Called
// when a Secret's refresh-failure count reaches the cascading-expiry threshold.
func (r *gormSourceRepository) DisableBySecretID(ctx context.Context, secretID uuid.UUID) error {
	if err := r.db.WithContext(ctx).Model(&Source{}).
		Where("secret_id = ?", secretID).
		Update("enabled", false).Error; err != nil {
		return fmt.Errorf("sources: disable by secret id: %w", err)
	}
	return nil
}

func (r *gormSourceRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&Source{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("sources: delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
