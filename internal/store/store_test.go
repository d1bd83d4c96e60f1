package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := Open(Config{
		Driver:   "sqlite",
		DSN:      dsn,
		Logger:   zap.NewNop(),
		LogLevel: gormlogger.Silent,
	})
	require.NoError(t, err)
	return New(db)
}

func TestUpsertItem_InsertsThenUpdatesByNaturalKey(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	src := &Source{Kind: SourceKindRSS, Name: "example feed", Config: "{}"}
	require.NoError(t, s.Sources.Create(ctx, src))

	first := &Item{SourceID: src.ID, ExternalID: "guid-1", Title: "first title", URL: "https://example.com/1", Kind: "article", State: ItemStateUnread}
	id1, err := s.Items.UpsertItem(ctx, first)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id1)

	second := &Item{SourceID: src.ID, ExternalID: "guid-1", Title: "updated title", URL: "https://example.com/1-updated", Kind: "article", State: ItemStateUnread}
	id2, err := s.Items.UpsertItem(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, id1, id2, "upsert on the same natural key must return the same id")

	got, err := s.Items.GetByID(ctx, id1)
	require.NoError(t, err)
	assert.Equal(t, "updated title", got.Title)
	assert.Equal(t, "https://example.com/1-updated", got.URL)

	all, err := s.Items.GetItems(ctx, ItemFilter{SourceIDs: []uuid.UUID{src.ID}})
	require.NoError(t, err)
	assert.Len(t, all, 1, "upsert must not create a second row for the same natural key")
}

func TestGetItems_FiltersByGroupName(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	srcA := &Source{Kind: SourceKindRSS, Name: "source a", Config: "{}"}
	srcB := &Source{Kind: SourceKindRSS, Name: "source b", Config: "{}"}
	require.NoError(t, s.Sources.Create(ctx, srcA))
	require.NoError(t, s.Sources.Create(ctx, srcB))

	group := &Group{Name: "reading"}
	require.NoError(t, s.Groups.Create(ctx, group))
	require.NoError(t, s.Groups.AddSource(ctx, srcA.ID, group.ID))

	itemA := &Item{SourceID: srcA.ID, ExternalID: "a-1", Title: "a", URL: "https://a.example/1", Kind: "article"}
	itemB := &Item{SourceID: srcB.ID, ExternalID: "b-1", Title: "b", URL: "https://b.example/1", Kind: "article"}
	_, err := s.Items.UpsertItem(ctx, itemA)
	require.NoError(t, err)
	_, err = s.Items.UpsertItem(ctx, itemB)
	require.NoError(t, err)

	filtered, err := s.Items.GetItems(ctx, ItemFilter{GroupNames: []string{"reading"}})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, srcA.ID, filtered[0].SourceID)

	empty, err := s.Items.GetItems(ctx, ItemFilter{GroupNames: []string{"nonexistent"}})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestCleanupOld_SparesArchivedItems(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	src := &Source{Kind: SourceKindRSS, Name: "source", Config: "{}"}
	require.NoError(t, s.Sources.Create(ctx, src))

	stale := &Item{SourceID: src.ID, ExternalID: "stale", Title: "stale", URL: "https://example.com/stale", Kind: "article", State: ItemStateUnread}
	staleID, err := s.Items.UpsertItem(ctx, stale)
	require.NoError(t, err)

	staleArchived := &Item{SourceID: src.ID, ExternalID: "stale-archived", Title: "stale archived", URL: "https://example.com/stale-archived", Kind: "article", State: ItemStateArchived}
	archivedID, err := s.Items.UpsertItem(ctx, staleArchived)
	require.NoError(t, err)

	hooks := NewTestHooks(s)
	require.NoError(t, hooks.MakeItemsLeavingSoon(ctx, []uuid.UUID{staleID, archivedID}, 30*24*time.Hour))

	cutoff := time.Now().UTC().Add(-7 * 24 * time.Hour)
	removed, err := s.Items.CleanupOld(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, err = s.Items.GetByID(ctx, staleID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Items.GetByID(ctx, archivedID)
	assert.NoError(t, err, "archived items must be exempt from retention")
}

func TestDeleteSourceCascade_RemovesItemsAndEvents(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	src := &Source{Kind: SourceKindRSS, Name: "source", Config: "{}"}
	require.NoError(t, s.Sources.Create(ctx, src))

	item := &Item{SourceID: src.ID, ExternalID: "item-1", Title: "title", URL: "https://example.com/1", Kind: "article"}
	itemID, err := s.Items.UpsertItem(ctx, item)
	require.NoError(t, err)

	require.NoError(t, s.Events.Create(ctx, &Event{ItemID: itemID, Kind: "ingested", OccurredAt: time.Now().UTC()}))

	require.NoError(t, s.DeleteSourceCascade(ctx, src.ID))

	_, err = s.Sources.GetByID(ctx, src.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Items.GetByID(ctx, itemID)
	assert.ErrorIs(t, err, ErrNotFound)

	events, err := s.Events.ListForItem(ctx, itemID)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestSecretRefreshFailure_CascadesToDisablingSources(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	secret := &Secret{Name: "github token", TTLKind: SecretTTLForever}
	require.NoError(t, s.Secrets.Create(ctx, secret))

	src := &Source{Kind: SourceKindGitHub, Name: "repo watch", Config: "{}", SecretID: &secret.ID}
	require.NoError(t, s.Sources.Create(ctx, src))

	var count int
	var err error
	for i := 0; i < 3; i++ {
		count, err = s.Secrets.IncrementRefreshFailureCount(ctx, secret.ID)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, count)

	require.NoError(t, s.Secrets.ExpireSecret(ctx, secret.ID))
	require.NoError(t, s.Sources.DisableBySecretID(ctx, secret.ID))

	expired, err := s.Secrets.GetExpiredSecrets(ctx, time.Now().UTC().Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, secret.ID, expired[0].ID)

	reloaded, err := s.Sources.GetByID(ctx, src.ID)
	require.NoError(t, err)
	assert.False(t, reloaded.Enabled)
}

func TestPreferences_SetIsUpsert(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, ok, err := s.Preferences.Get(ctx, "theme")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Preferences.Set(ctx, "theme", "dark"))
	value, ok, err := s.Preferences.Get(ctx, "theme")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "dark", value)

	require.NoError(t, s.Preferences.Set(ctx, "theme", "light"))
	value, ok, err = s.Preferences.Get(ctx, "theme")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "light", value)
}
