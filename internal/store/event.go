package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type gormEventRepository struct {
	db *gorm.DB
}

func (r *gormEventRepository) Create(ctx context.Context, e *Event) error {
	if err := r.db.WithContext(ctx).Create(e).Error; err != nil {
		return fmt.Errorf("events: create: %w", err)
	}
	return nil
}

func (r *gormEventRepository) ListForItem(ctx context.Context, itemID uuid.UUID) ([]Event, error) {
	var events []Event
	if err := r.db.WithContext(ctx).
		Where("item_id = ?", itemID).
		Order("occurred_at ASC").
		Find(&events).Error; err != nil {
		return nil, fmt.Errorf("events: list for item: %w", err)
	}
	return events, nil
}
