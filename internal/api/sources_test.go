package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/umbrarelay/umbrarelay/internal/store"
)

func newSourceTestRouter(t *testing.T) (*chi.Mux, *store.Store) {
	t.Helper()
	st := newTestAPIStore(t)
	h := NewSourceHandler(st, nil, zap.NewNop())

	r := chi.NewRouter()
	r.Get("/sources", h.List)
	r.Post("/sources", h.Add)
	r.Patch("/sources/{id}", h.Update)
	r.Delete("/sources/{id}", h.Remove)
	return r, st
}

func TestSourceHandler_Add_RequiresNameAndKind(t *testing.T) {
	r, _ := newSourceTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/sources", strings.NewReader(`{"name":""}`))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSourceHandler_Add_DefaultsConfigAndEnabled(t *testing.T) {
	r, st := newSourceTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/sources", strings.NewReader(`{"name":"Go Blog","kind":"rss"}`))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code)

	sources, err := st.Sources.List(req.Context(), store.ListOptions{})
	require.NoError(t, err)
	require.Len(t, sources, 1)
	require.Equal(t, "{}", sources[0].Config)
	require.True(t, sources[0].Enabled)
}

func TestSourceHandler_Remove_CascadesItems(t *testing.T) {
	r, st := newSourceTestRouter(t)
	ctx := context.Background()

	src := &store.Source{Kind: store.SourceKindRSS, Name: "feed", Config: "{}"}
	require.NoError(t, st.Sources.Create(ctx, src))
	item := &store.Item{SourceID: src.ID, ExternalID: "a", Title: "item", URL: "https://example.com/a", Kind: "article", State: store.ItemStateUnread}
	itemID, err := st.Items.UpsertItem(ctx, item)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodDelete, "/sources/"+src.ID.String(), nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNoContent, rr.Code)

	_, err = st.Sources.GetByID(ctx, src.ID)
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = st.Items.GetByID(ctx, itemID)
	require.ErrorIs(t, err, store.ErrNotFound)
}
