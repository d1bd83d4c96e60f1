package oauth

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"

	"github.com/umbrarelay/umbrarelay/internal/store"
	"github.com/umbrarelay/umbrarelay/internal/vault"
)

// redirectingTransport rewrites every outgoing request to target, so tests
// can exercise GitHubOAuth's hardcoded endpoint constants against a local
// httptest.Server instead of the real GitHub hosts.
type redirectingTransport struct {
	target *url.URL
}

func (t *redirectingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.URL.Scheme = t.target.Scheme
	req.URL.Host = t.target.Host
	req.Host = t.target.Host
	return http.DefaultTransport.RoundTrip(req)
}

func newTestEngine(t *testing.T, serverURL string) (*Engine, *store.Store, *vault.Vault) {
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

	target, err := url.Parse(serverURL)
	require.NoError(t, err)

	client := NewGitHubOAuth("client-id")
	client.HTTPClient = &http.Client{Transport: &redirectingTransport{target: target}}
	return NewEngine(client, st, v), st, v
}

// tokenEndpointStub serves a sequence of canned responses to successive POSTs
// to the token endpoint, one per call; the last response repeats once the
// sequence is exhausted.
type tokenEndpointStub struct {
	bodies []string
	status []int
	calls  int
}

func (s *tokenEndpointStub) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		i := s.calls
		if i >= len(s.bodies) {
			i = len(s.bodies) - 1
		}
		s.calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(s.status[i])
		fmt.Fprint(w, s.bodies[i])
	}
}

func TestEngine_RefreshAndRetry_RecoversAndResetsStrikeCounter(t *testing.T) {
	ctx := context.Background()
	stub := &tokenEndpointStub{
		bodies: []string{`{"access_token":"new-access","refresh_token":"new-refresh"}`},
		status: []int{http.StatusOK},
	}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	engine, st, v := newTestEngine(t, srv.URL)

	secret := &store.Secret{Name: "github token", TTLKind: store.SecretTTLForever, RefreshFailureCount: 2}
	require.NoError(t, st.Secrets.Create(ctx, secret))
	require.NoError(t, v.SetTokens(secret.ID, "stale-access", "stale-refresh"))

	accessToken, err := engine.RefreshAndRetry(ctx, secret.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "new-access", accessToken)

	stored, err := v.Get(secret.ID)
	require.NoError(t, err)
	assert.Equal(t, "new-access", stored)

	reloaded, err := st.Secrets.GetByID(ctx, secret.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, reloaded.RefreshFailureCount)
}

func TestEngine_RefreshAndRetry_ExhaustsToSecretExpiryAndSourceDisable(t *testing.T) {
	ctx := context.Background()
	stub := &tokenEndpointStub{
		bodies: []string{`{"error":"bad_refresh_token"}`},
		status: []int{http.StatusBadRequest},
	}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	engine, st, v := newTestEngine(t, srv.URL)

	secret := &store.Secret{Name: "github token", TTLKind: store.SecretTTLForever}
	require.NoError(t, st.Secrets.Create(ctx, secret))
	require.NoError(t, v.SetTokens(secret.ID, "access", "refresh"))

	src := &store.Source{Kind: store.SourceKindGitHub, Name: "repo watch", Config: "{}", SecretID: &secret.ID}
	require.NoError(t, st.Sources.Create(ctx, src))

	for i := 0; i < refreshFailureThreshold; i++ {
		_, err := engine.RefreshAndRetry(ctx, secret.ID.String())
		require.Error(t, err)
	}

	reloadedSecret, err := st.Secrets.GetByID(ctx, secret.ID)
	require.NoError(t, err)
	assert.Equal(t, refreshFailureThreshold, reloadedSecret.RefreshFailureCount)
	require.NotNil(t, reloadedSecret.ExpiresAt)

	reloadedSource, err := st.Sources.GetByID(ctx, src.ID)
	require.NoError(t, err)
	assert.False(t, reloadedSource.Enabled)
}

func TestEngine_PollOnce_SlowDownThenSuccess(t *testing.T) {
	ctx := context.Background()
	stub := &tokenEndpointStub{
		bodies: []string{
			`{"error":"slow_down","interval":10}`,
			`{"error":"slow_down","interval":10}`,
			`{"access_token":"device-access","refresh_token":"device-refresh"}`,
		},
		status: []int{http.StatusOK, http.StatusOK, http.StatusOK},
	}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	engine, st, v := newTestEngine(t, srv.URL)

	first, err := engine.PollOnce(ctx, "device-code")
	require.NoError(t, err)
	assert.Equal(t, PollSlowDown, first.Status)
	assert.Equal(t, 15, first.NewInterval)

	second, err := engine.PollOnce(ctx, "device-code")
	require.NoError(t, err)
	assert.Equal(t, PollSlowDown, second.Status)

	third, err := engine.PollOnce(ctx, "device-code")
	require.NoError(t, err)
	require.Equal(t, PollSuccess, third.Status)
	require.NotEqual(t, uuid.Nil, third.SecretID)

	secret, err := st.Secrets.GetByID(ctx, third.SecretID)
	require.NoError(t, err)
	assert.True(t, secret.IsDeviceFlowToken)
	assert.Equal(t, deviceFlowSecretName, secret.Name)

	stored, err := v.Get(third.SecretID)
	require.NoError(t, err)
	assert.Equal(t, "device-access", stored)
}
