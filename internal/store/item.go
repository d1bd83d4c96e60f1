package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type gormItemRepository struct {
	db *gorm.DB
}

// UpsertItem: if a row exists sharing (SourceID, ExternalID), its mutable
// fields are updated and its id returned; otherwise a new row is inserted.
// Either path advances UpdatedAt.
func (r *gormItemRepository) UpsertItem(ctx context.Context, item *Item) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Item
		err := tx.First(&existing, "source_id = ? AND external_id = ?", item.SourceID, item.ExternalID).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := tx.Create(item).Error; err != nil {
				return err
			}
			id = item.ID
			return nil
		case err != nil:
			return err
		default:
			existing.Title = item.Title
			existing.Summary = item.Summary
			existing.URL = item.URL
			existing.Kind = item.Kind
			existing.ImageURL = item.ImageURL
			existing.ContentHTML = item.ContentHTML
			existing.Author = item.Author
			existing.Category = item.Category
			existing.Comments = item.Comments
			existing.ThreadID = item.ThreadID
			existing.UpdatedAt = time.Now().UTC()
			if err := tx.Save(&existing).Error; err != nil {
				return err
			}
			id = existing.ID
			return nil
		}
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("items: upsert: %w", err)
	}
	return id, nil
}

func (r *gormItemRepository) GetByID(ctx context.Context, id uuid.UUID) (*Item, error) {
	var item Item
	if err := r.db.WithContext(ctx).First(&item, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("items: get by id: %w", err)
	}
	return &item, nil
}

// GetItems returns items filtered by state, any-of membership
// on SourceIDs and GroupNames (the latter joined through SourceGroup),
// ordered by created_at descending.
func (r *gormItemRepository) GetItems(ctx context.Context, filter ItemFilter) ([]Item, error) {
	q := r.db.WithContext(ctx).Model(&Item{})

	if filter.State != "" {
		q = q.Where("state = ?", filter.State)
	}
	if len(filter.SourceIDs) > 0 {
		q = q.Where("source_id IN ?", filter.SourceIDs)
	}
	if len(filter.GroupNames) > 0 {
		var groupSourceIDs []uuid.UUID
		if err := r.db.WithContext(ctx).
			Table("source_groups").
			Joins("JOIN groups ON groups.id = source_groups.group_id").
			Where("groups.name IN ?", filter.GroupNames).
			Pluck("source_groups.source_id", &groupSourceIDs).Error; err != nil {
			return nil, fmt.Errorf("items: resolve group names: %w", err)
		}
		if len(groupSourceIDs) == 0 {
			return []Item{}, nil
		}
		q = q.Where("source_id IN ?", groupSourceIDs)
	}

	q = q.Order("created_at DESC")
	if filter.Opts.Limit > 0 {
		q = q.Limit(filter.Opts.Limit).Offset(filter.Opts.Offset)
	}

	var items []Item
	if err := q.Find(&items).Error; err != nil {
		return nil, fmt.Errorf("items: get items: %w", err)
	}
	return items, nil
}

func (r *gormItemRepository) UpdateState(ctx context.Context, id uuid.UUID, state ItemState) error {
	result := r.db.WithContext(ctx).Model(&Item{}).Where("id = ?", id).Update("state", state)
	if result.Error != nil {
		return fmt.Errorf("items: update state: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateExtraction persists the result of an extraction pass onto the
// item's content_status/extracted_content_html/extraction_failed_reason quartet.
func (r *gormItemRepository) UpdateExtraction(ctx context.Context, id uuid.UUID, status ContentStatus, extractedHTML, failedReason string) error {
	result := r.db.WithContext(ctx).Model(&Item{}).Where("id = ?", id).Updates(map[string]any{
		"content_status":           string(status),
		"extracted_content_html":   extractedHTML,
		"extraction_failed_reason": failedReason,
	})
	if result.Error != nil {
		return fmt.Errorf("items: update extraction: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormItemRepository) UpdateCompleteness(ctx context.Context, id uuid.UUID, completeness Completeness) error {
	result := r.db.WithContext(ctx).Model(&Item{}).Where("id = ?", id).Update("content_completeness", string(completeness))
	if result.Error != nil {
		return fmt.Errorf("items: update completeness: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormItemRepository) DeleteForSource(ctx context.Context, sourceID uuid.UUID) error {
	if err := r.db.WithContext(ctx).Where("source_id = ?", sourceID).Delete(&Item{}).Error; err != nil {
		return fmt.Errorf("items: delete for source: %w", err)
	}
	return nil
}

// CleanupOld deletes Items older than olderThan whose state is not archived.
// Archived items are exempt from retention by design, not by a timestamp
// sentinel.
func (r *gormItemRepository) CleanupOld(ctx context.Context, olderThan time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("created_at < ? AND state != ?", olderThan, ItemStateArchived).
		Delete(&Item{})
	if result.Error != nil {
		return 0, fmt.Errorf("items: cleanup old: %w", result.Error)
	}
	return result.RowsAffected, nil
}
