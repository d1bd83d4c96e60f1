package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type gormPreferenceRepository struct {
	db *gorm.DB
}

func (r *gormPreferenceRepository) Get(ctx context.Context, key string) (string, bool, error) {
	var p Preference
	err := r.db.WithContext(ctx).First(&p, "key = ?", key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("preferences: get: %w", err)
	}
	return p.Value, true, nil
}

// Set upserts the key/value pair. Preference has no base embed, so this is a
// plain clause-based upsert rather than a lookup-then-branch.
func (r *gormPreferenceRepository) Set(ctx context.Context, key, value string) error {
	p := Preference{Key: key, Value: value}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&p).Error
	if err != nil {
		return fmt.Errorf("preferences: set: %w", err)
	}
	return nil
}
