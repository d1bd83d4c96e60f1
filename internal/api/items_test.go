package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"

	"github.com/umbrarelay/umbrarelay/internal/store"
)

func newTestAPIStore(t *testing.T) *store.Store {
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

func newItemTestRouter(t *testing.T) (*chi.Mux, *store.Store) {
	t.Helper()
	st := newTestAPIStore(t)
	h := NewItemHandler(st, nil, nil, zap.NewNop())

	r := chi.NewRouter()
	r.Get("/items", h.List)
	r.Get("/items/{id}", h.Get)
	r.Patch("/items/{id}/state", h.UpdateState)
	return r, st
}

func decodeEnvelope(t *testing.T, body *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var env map[string]any
	require.NoError(t, json.Unmarshal(body.Body.Bytes(), &env))
	return env
}

func TestItemHandler_List_FiltersByState(t *testing.T) {
	ctx := context.Background()
	r, st := newItemTestRouter(t)

	src := &store.Source{Kind: store.SourceKindRSS, Name: "feed", Config: "{}"}
	require.NoError(t, st.Sources.Create(ctx, src))

	unread := &store.Item{SourceID: src.ID, ExternalID: "a", Title: "unread item", URL: "https://example.com/a", Kind: "article", State: store.ItemStateUnread}
	_, err := st.Items.UpsertItem(ctx, unread)
	require.NoError(t, err)
	archived := &store.Item{SourceID: src.ID, ExternalID: "b", Title: "archived item", URL: "https://example.com/b", Kind: "article", State: store.ItemStateArchived}
	_, err = st.Items.UpsertItem(ctx, archived)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/items?state=unread", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	env := decodeEnvelope(t, rr)
	data := env["data"].([]any)
	require.Len(t, data, 1)
	first := data[0].(map[string]any)
	require.Equal(t, "unread item", first["Title"])
}

func TestItemHandler_Get_NotFound(t *testing.T) {
	r, _ := newItemTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/items/"+uuid.NewString(), nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestItemHandler_UpdateState_RequiresState(t *testing.T) {
	ctx := context.Background()
	r, st := newItemTestRouter(t)

	src := &store.Source{Kind: store.SourceKindRSS, Name: "feed", Config: "{}"}
	require.NoError(t, st.Sources.Create(ctx, src))
	item := &store.Item{SourceID: src.ID, ExternalID: "a", Title: "item", URL: "https://example.com/a", Kind: "article", State: store.ItemStateUnread}
	id, err := st.Items.UpsertItem(ctx, item)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPatch, "/items/"+id.String()+"/state", strings.NewReader(`{"state":""}`))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	req2 := httptest.NewRequest(http.MethodPatch, "/items/"+id.String()+"/state", strings.NewReader(`{"state":"read"}`))
	rr2 := httptest.NewRecorder()
	r.ServeHTTP(rr2, req2)
	require.Equal(t, http.StatusNoContent, rr2.Code)

	updated, err := st.Items.GetByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, store.ItemState("read"), updated.State)
}
