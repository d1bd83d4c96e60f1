package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TestHooks exposes database mutations that make sense only from tests —
// never constructed by production code paths. Its sole purpose today is
// backdating Items so retention tests don't need to wait real days for
// CleanupOld to have something to collect.
type TestHooks struct {
	store *Store
}

// NewTestHooks wraps a Store for use from _test.go files only.
func NewTestHooks(s *Store) *TestHooks {
	return &TestHooks{store: s}
}

// MakeItemsLeavingSoon backdates the given Items' created_at so they fall
// outside a retention window of age old, simulating items about to be
// collected by CleanupOld.
func (h *TestHooks) MakeItemsLeavingSoon(ctx context.Context, itemIDs []uuid.UUID, age time.Duration) error {
	backdated := time.Now().UTC().Add(-age)
	result := h.store.db.WithContext(ctx).
		Model(&Item{}).
		Where("id IN ?", itemIDs).
		Update("created_at", backdated)
	if result.Error != nil {
		return fmt.Errorf("test hooks: make items leaving soon: %w", result.Error)
	}
	return nil
}
