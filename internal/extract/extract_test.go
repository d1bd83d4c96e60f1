package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"

	"github.com/google/uuid"
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

func TestCandidate_RequiresPartialFeedOnlyAndURL(t *testing.T) {
	cases := []struct {
		name string
		item store.Item
		want bool
	}{
		{"eligible", store.Item{URL: "https://x", ContentCompleteness: string(store.CompletenessPartial)}, true},
		{"no url", store.Item{ContentCompleteness: string(store.CompletenessPartial)}, false},
		{"full content", store.Item{URL: "https://x", ContentCompleteness: string(store.CompletenessFull)}, false},
		{"already extracted", store.Item{URL: "https://x", ContentCompleteness: string(store.CompletenessPartial), ContentStatus: string(store.ContentStatusExtracted)}, false},
		{"already failed", store.Item{URL: "https://x", ContentCompleteness: string(store.CompletenessPartial), ContentStatus: string(store.ContentStatusFailed)}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Candidate(&tc.item))
		})
	}
}

func TestGated_DefaultsToDisabledWithoutArticleViewModePreference(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	ok, err := Gated(ctx, st.Preferences)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGated_EnabledWhenModeIsAutoOrAlwaysFetch(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	require.NoError(t, st.Preferences.Set(ctx, "article_view_mode", "auto"))
	ok, err := Gated(ctx, st.Preferences)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, st.Preferences.Set(ctx, "article_view_mode", "always_fetch"))
	ok, err = Gated(ctx, st.Preferences)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGated_DisabledWhenExtractionEnabledIsFalse(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	require.NoError(t, st.Preferences.Set(ctx, "article_view_mode", "auto"))
	require.NoError(t, st.Preferences.Set(ctx, "extraction_enabled", "false"))

	ok, err := Gated(ctx, st.Preferences)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTokenIssuer_RoundTrips(t *testing.T) {
	issuer := NewTokenIssuer([]byte("test-key"))
	itemID := uuid.NewString()

	token, err := issuer.Issue(itemID, uuid.NewString())
	require.NoError(t, err)

	got, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, itemID, got)
}

func TestTokenIssuer_RejectsTamperedToken(t *testing.T) {
	issuer := NewTokenIssuer([]byte("test-key"))
	token, err := issuer.Issue(uuid.NewString(), uuid.NewString())
	require.NoError(t, err)

	otherIssuer := NewTokenIssuer([]byte("different-key"))
	_, err = otherIssuer.Verify(token)
	assert.ErrorIs(t, err, ErrHandoffTokenInvalid)
}
