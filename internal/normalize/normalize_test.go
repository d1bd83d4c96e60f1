package normalize

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"

	"github.com/google/uuid"
	"github.com/umbrarelay/umbrarelay/internal/ingest"
	"github.com/umbrarelay/umbrarelay/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := store.Open(store.Config{
		Driver:   "sqlite",
		DSN:      dsn,
		Logger:   zap.NewNop(),
		LogLevel: gormlogger.Silent,
	})
	require.NoError(t, err)
	return store.New(db)
}

func TestNormalize_UpsertIdempotence(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	src := &store.Source{Kind: store.SourceKindRSS, Name: "feed", Config: "{}"}
	require.NoError(t, st.Sources.Create(ctx, src))

	firstBatch := []ingest.IngestedItem{{ExternalID: "A", Title: "T1", URL: "https://example.com/a", Kind: "rss"}}
	ids1, err := Normalize(ctx, st, src.ID, firstBatch)
	require.NoError(t, err)
	require.Len(t, ids1, 1)

	secondBatch := []ingest.IngestedItem{{ExternalID: "A", Title: "T2", URL: "https://example.com/a", Kind: "rss"}}
	ids2, err := Normalize(ctx, st, src.ID, secondBatch)
	require.NoError(t, err)
	require.Len(t, ids2, 1)
	assert.Equal(t, ids1[0], ids2[0], "upsert of the same natural key must preserve the item id")

	got, err := st.Items.GetByID(ctx, ids2[0])
	require.NoError(t, err)
	assert.Equal(t, "T2", got.Title)

	all, err := st.Items.GetItems(ctx, store.ItemFilter{SourceIDs: []uuid.UUID{src.ID}})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestNormalize_RecordsEventOnlyWhenOccurredAtIsSet(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	src := &store.Source{Kind: store.SourceKindGitHub, Name: "repo", Config: "{}"}
	require.NoError(t, st.Sources.Create(ctx, src))

	now := time.Now().UTC()
	batch := []ingest.IngestedItem{
		{ExternalID: "with-time", Title: "has event", URL: "https://example.com/1", Kind: "commit", OccurredAt: &now},
		{ExternalID: "without-time", Title: "no event", URL: "https://example.com/2", Kind: "commit"},
	}
	ids, err := Normalize(ctx, st, src.ID, batch)
	require.NoError(t, err)
	require.Len(t, ids, 2)

	withEvents, err := st.Events.ListForItem(ctx, ids[0])
	require.NoError(t, err)
	assert.Len(t, withEvents, 1)

	withoutEvents, err := st.Events.ListForItem(ctx, ids[1])
	require.NoError(t, err)
	assert.Empty(t, withoutEvents)
}

func TestNormalize_SerializesCategoryAsJSON(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	src := &store.Source{Kind: store.SourceKindGitHub, Name: "repo", Config: "{}"}
	require.NoError(t, st.Sources.Create(ctx, src))

	batch := []ingest.IngestedItem{{ExternalID: "1", Title: "t", URL: "https://example.com/1", Kind: "commit", Category: []string{"owner/repo"}}}
	ids, err := Normalize(ctx, st, src.ID, batch)
	require.NoError(t, err)

	got, err := st.Items.GetByID(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, `["owner/repo"]`, got.Category)
}
