package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type gormCustomViewRepository struct {
	db *gorm.DB
}

func (r *gormCustomViewRepository) Create(ctx context.Context, v *CustomView) error {
	if err := r.db.WithContext(ctx).Create(v).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("custom views: create: %w", err)
	}
	return nil
}

func (r *gormCustomViewRepository) GetByID(ctx context.Context, id uuid.UUID) (*CustomView, error) {
	var v CustomView
	if err := r.db.WithContext(ctx).First(&v, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("custom views: get by id: %w", err)
	}
	return &v, nil
}

func (r *gormCustomViewRepository) List(ctx context.Context) ([]CustomView, error) {
	var views []CustomView
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&views).Error; err != nil {
		return nil, fmt.Errorf("custom views: list: %w", err)
	}
	return views, nil
}

func (r *gormCustomViewRepository) Update(ctx context.Context, v *CustomView) error {
	result := r.db.WithContext(ctx).Save(v)
	if result.Error != nil {
		if isUniqueViolation(result.Error) {
			return ErrConflict
		}
		return fmt.Errorf("custom views: update: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormCustomViewRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&CustomView{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("custom views: delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
