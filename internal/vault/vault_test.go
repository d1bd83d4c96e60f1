package vault

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetThenGet_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	v, err := Open(dir, []byte("test-key"), nil)
	require.NoError(t, err)

	id := uuid.New()
	require.NoError(t, v.Set(id, "access-1"))

	got, err := v.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "access-1", got)

	_, err = v.GetRefresh(id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSet_PreservesExistingRefreshToken(t *testing.T) {
	dir := t.TempDir()
	v, err := Open(dir, []byte("test-key"), nil)
	require.NoError(t, err)

	id := uuid.New()
	require.NoError(t, v.SetTokens(id, "access-1", "refresh-1"))
	require.NoError(t, v.Set(id, "access-2"))

	access, err := v.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "access-2", access)

	refresh, err := v.GetRefresh(id)
	require.NoError(t, err)
	assert.Equal(t, "refresh-1", refresh, "Set must not clobber a previously stored refresh token")
}

func TestDelete_RemovesEntry(t *testing.T) {
	dir := t.TempDir()
	v, err := Open(dir, nil, nil)
	require.NoError(t, err)

	id := uuid.New()
	require.NoError(t, v.Set(id, "access-1"))
	require.NoError(t, v.Delete(id))

	_, err = v.Get(id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGet_AcceptsLegacyPlainStringEntries(t *testing.T) {
	dir := t.TempDir()
	id := uuid.New()

	doc := map[string]string{id.String(): "legacy-access-token"}
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, fileName), data, 0600))

	v, err := Open(dir, nil, nil)
	require.NoError(t, err)

	got, err := v.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "legacy-access-token", got)
}

func TestOpen_PersistsAcrossReopens(t *testing.T) {
	dir := t.TempDir()
	id := uuid.New()

	v1, err := Open(dir, []byte("k"), nil)
	require.NoError(t, err)
	require.NoError(t, v1.SetTokens(id, "access-1", "refresh-1"))

	v2, err := Open(dir, []byte("k"), nil)
	require.NoError(t, err)
	access, err := v2.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "access-1", access)
}
