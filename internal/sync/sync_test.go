package sync

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"

	"github.com/umbrarelay/umbrarelay/internal/extract"
	"github.com/umbrarelay/umbrarelay/internal/oauth"
	"github.com/umbrarelay/umbrarelay/internal/store"
	"github.com/umbrarelay/umbrarelay/internal/vault"
	"github.com/umbrarelay/umbrarelay/internal/workerpool"
)

func newTestOrchestrator(t *testing.T) (*Orchestrator, *store.Store) {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := store.Open(store.Config{
		Driver:   "sqlite",
		DSN:      dsn,
		Logger:   zap.NewNop(),
		LogLevel: gormlogger.Silent,
	})
	require.NoError(t, err)
	st := store.New(db)

	v, err := vault.Open(t.TempDir(), []byte("test-key"), func(string, ...any) {})
	require.NoError(t, err)

	issuer := extract.NewTokenIssuer([]byte("test-key"))
	extractor := extract.NewExtractor(st, issuer)
	oauthEngine := oauth.NewEngine(oauth.NewGitHubOAuth("client-id"), st, v)

	return NewOrchestrator(st, v, oauthEngine, workerpool.New(2), extractor, issuer, zap.NewNop()), st
}

func TestSync_RSSUpsertIdempotence(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(`<?xml version="1.0"?><rss version="2.0"><channel><title>F</title>
			<item><guid>A</guid><title>T1</title><link>http://x/a</link></item>
		</channel></rss>`))
	}))
	defer server.Close()

	orch, st := newTestOrchestrator(t)
	ctx := context.Background()

	source := &store.Source{
		Kind:    store.SourceKindRSS,
		Name:    "test feed",
		Config:  `{"url":"` + server.URL + `"}`,
		Enabled: true,
	}
	require.NoError(t, st.Sources.Create(ctx, source))

	require.NoError(t, orch.Sync(ctx, source))

	items, err := st.Items.GetItems(ctx, store.ItemFilter{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "T1", items[0].Title)
	firstID := items[0].ID

	require.NoError(t, orch.Sync(ctx, source))

	items, err = st.Items.GetItems(ctx, store.ItemFilter{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, firstID, items[0].ID)
}
