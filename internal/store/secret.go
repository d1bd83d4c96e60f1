package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type gormSecretRepository struct {
	db *gorm.DB
}

func (r *gormSecretRepository) Create(ctx context.Context, s *Secret) error {
	if err := r.db.WithContext(ctx).Create(s).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("secrets: create: %w", err)
	}
	return nil
}

func (r *gormSecretRepository) GetByID(ctx context.Context, id uuid.UUID) (*Secret, error) {
	var s Secret
	if err := r.db.WithContext(ctx).First(&s, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("secrets: get by id: %w", err)
	}
	return &s, nil
}

func (r *gormSecretRepository) GetByName(ctx context.Context, name string) (*Secret, error) {
	var s Secret
	if err := r.db.WithContext(ctx).First(&s, "name = ?", name).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("secrets: get by name: %w", err)
	}
	return &s, nil
}

// GetDeviceFlowToken returns the Secret flagged as the device-flow token, if
// one exists. Used so a successful device-flow poll updates the existing
// Secret in place instead of creating a second one.
func (r *gormSecretRepository) GetDeviceFlowToken(ctx context.Context) (*Secret, error) {
	var s Secret
	err := r.db.WithContext(ctx).First(&s, "is_device_flow_token = ?", true).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("secrets: get device flow token: %w", err)
	}
	return &s, nil
}

func (r *gormSecretRepository) List(ctx context.Context, opts ListOptions) ([]Secret, error) {
	var secrets []Secret
	q := r.db.WithContext(ctx).Order("created_at DESC")
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit).Offset(opts.Offset)
	}
	if err := q.Find(&secrets).Error; err != nil {
		return nil, fmt.Errorf("secrets: list: %w", err)
	}
	return secrets, nil
}

func (r *gormSecretRepository) Update(ctx context.Context, s *Secret) error {
	result := r.db.WithContext(ctx).Save(s)
	if result.Error != nil {
		return fmt.Errorf("secrets: update: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormSecretRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&Secret{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("secrets: delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ExpireSecret sets expires_at to now, making the Secret immediately expired.
func (r *gormSecretRepository) ExpireSecret(ctx context.Context, id uuid.UUID) error {
	now := time.Now().UTC()
	result := r.db.WithContext(ctx).Model(&Secret{}).Where("id = ?", id).Update("expires_at", now)
	if result.Error != nil {
		return fmt.Errorf("secrets: expire: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetExpiredSecrets returns every Secret whose expires_at is non-null and
// has already elapsed as of asOf. Used by the Scheduler's hourly cleanup task.
func (r *gormSecretRepository) GetExpiredSecrets(ctx context.Context, asOf time.Time) ([]Secret, error) {
	var secrets []Secret
	if err := r.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at <= ?", asOf).
		Find(&secrets).Error; err != nil {
		return nil, fmt.Errorf("secrets: get expired: %w", err)
	}
	return secrets, nil
}

// IncrementRefreshFailureCount atomically bumps the strike counter and
// returns its new value so the caller can decide whether the 3-strike
// cascading-expiry threshold has been crossed.
func (r *gormSecretRepository) IncrementRefreshFailureCount(ctx context.Context, id uuid.UUID) (int, error) {
	var newCount int
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var s Secret
		if err := tx.First(&s, "id = ?", id).Error; err != nil {
			return err
		}
		s.RefreshFailureCount++
		newCount = s.RefreshFailureCount
		return tx.Model(&Secret{}).Where("id = ?", id).Update("refresh_failure_count", s.RefreshFailureCount).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("secrets: increment refresh failure count: %w", err)
	}
	return newCount, nil
}

func (r *gormSecretRepository) ResetRefreshFailureCount(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Model(&Secret{}).Where("id = ?", id).Update("refresh_failure_count", 0)
	if result.Error != nil {
		return fmt.Errorf("secrets: reset refresh failure count: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
