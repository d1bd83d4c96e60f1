package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type gormGroupRepository struct {
	db *gorm.DB
}

func (r *gormGroupRepository) Create(ctx context.Context, g *Group) error {
	if err := r.db.WithContext(ctx).Create(g).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("groups: create: %w", err)
	}
	return nil
}

func (r *gormGroupRepository) List(ctx context.Context) ([]Group, error) {
	var groups []Group
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&groups).Error; err != nil {
		return nil, fmt.Errorf("groups: list: %w", err)
	}
	return groups, nil
}

// Delete removes a Group along with its SourceGroup memberships. It does not
// touch the Sources or Items that referenced it.
func (r *gormGroupRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("group_id = ?", id).Delete(&SourceGroup{}).Error; err != nil {
			return err
		}
		result := tx.Delete(&Group{}, "id = ?", id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// AddSource creates the SourceGroup membership row. Idempotent: adding the
// same pairing twice is treated as success rather than ErrConflict.
func (r *gormGroupRepository) AddSource(ctx context.Context, sourceID, groupID uuid.UUID) error {
	err := r.db.WithContext(ctx).Create(&SourceGroup{SourceID: sourceID, GroupID: groupID}).Error
	if err != nil && !isUniqueViolation(err) {
		return fmt.Errorf("groups: add source: %w", err)
	}
	return nil
}

func (r *gormGroupRepository) RemoveSource(ctx context.Context, sourceID, groupID uuid.UUID) error {
	if err := r.db.WithContext(ctx).
		Where("source_id = ? AND group_id = ?", sourceID, groupID).
		Delete(&SourceGroup{}).Error; err != nil {
		return fmt.Errorf("groups: remove source: %w", err)
	}
	return nil
}

// ListForSource returns every Group a Source belongs to, joined through
// SourceGroup.
func (r *gormGroupRepository) ListForSource(ctx context.Context, sourceID uuid.UUID) ([]Group, error) {
	var groups []Group
	err := r.db.WithContext(ctx).
		Joins("JOIN source_groups ON source_groups.group_id = groups.id").
		Where("source_groups.source_id = ?", sourceID).
		Find(&groups).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return []Group{}, nil
		}
		return nil, fmt.Errorf("groups: list for source: %w", err)
	}
	return groups, nil
}
