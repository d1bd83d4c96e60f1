// Package normalize bridges an ingester's raw batch into the relational
// store: one upsert per item, one audit Event when the source timestamped
// the item.
package normalize

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/umbrarelay/umbrarelay/internal/ingest"
	"github.com/umbrarelay/umbrarelay/internal/store"
)

// Normalize upserts each item under sourceID and records an Event for every
// item whose OccurredAt is non-nil. It returns the ids of every item
// touched, in the same order as the input batch.
func Normalize(ctx context.Context, st *store.Store, sourceID uuid.UUID, items []ingest.IngestedItem) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(items))

	for _, in := range items {
		category, err := json.Marshal(in.Category)
		if err != nil {
			return nil, fmt.Errorf("normalize: marshal category for %q: %w", in.ExternalID, err)
		}

		row := &store.Item{
			SourceID:    sourceID,
			ExternalID:  in.ExternalID,
			Title:       in.Title,
			Summary:     in.Summary,
			URL:         in.URL,
			Kind:        in.Kind,
			State:       store.ItemStateUnread,
			ImageURL:    in.ImageURL,
			ContentHTML: in.ContentHTML,
			Author:      in.Author,
			Category:    string(category),
			Comments:    in.Comments,
			ThreadID:    in.ThreadID,
		}

		id, err := st.Items.UpsertItem(ctx, row)
		if err != nil {
			return nil, fmt.Errorf("normalize: upsert %q: %w", in.ExternalID, err)
		}
		ids = append(ids, id)

		if in.OccurredAt != nil {
			if err := st.Events.Create(ctx, &store.Event{
				ItemID:     id,
				Kind:       "ingested",
				OccurredAt: *in.OccurredAt,
			}); err != nil {
				return nil, fmt.Errorf("normalize: record event for %q: %w", in.ExternalID, err)
			}
		}
	}

	return ids, nil
}
