package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/umbrarelay/umbrarelay/internal/store"
)

func TestSourceInterval_GitHubUsesFixedFiveMinutes(t *testing.T) {
	src := &store.Source{Kind: store.SourceKindGitHub}
	d, err := sourceInterval(src)
	require.NoError(t, err)
	require.Equal(t, 5*time.Minute, d)
}

func TestSourceInterval_GitHubNotificationsUsesDefault(t *testing.T) {
	src := &store.Source{Kind: store.SourceKindGitHubNotifications}
	d, err := sourceInterval(src)
	require.NoError(t, err)
	require.Equal(t, 10*time.Minute, d)
}

func TestSourceInterval_RSSParsesConfiguredInterval(t *testing.T) {
	src := &store.Source{Kind: store.SourceKindRSS, Config: `{"url":"http://x","poll_interval":"5m"}`}
	d, err := sourceInterval(src)
	require.NoError(t, err)
	require.Equal(t, 5*time.Minute, d)
}

func TestSourceInterval_AtomEmptyConfigUsesDurationxDefault(t *testing.T) {
	src := &store.Source{Kind: store.SourceKindAtom, Config: ""}
	d, err := sourceInterval(src)
	require.NoError(t, err)
	require.Equal(t, 600*time.Second, d)
}

func TestSourceInterval_RSSInvalidConfigReturnsError(t *testing.T) {
	src := &store.Source{Kind: store.SourceKindRSS, Config: `not json`}
	_, err := sourceInterval(src)
	require.Error(t, err)
}

func TestSourceInterval_RSSInvalidIntervalUnitReturnsError(t *testing.T) {
	src := &store.Source{Kind: store.SourceKindRSS, Config: `{"url":"http://x","poll_interval":"5x"}`}
	_, err := sourceInterval(src)
	require.Error(t, err)
}
