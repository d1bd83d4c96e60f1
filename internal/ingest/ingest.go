// Package ingest adapts external sources — RSS/Atom feeds and code-forge
// APIs — into a uniform batch of items the normalizer (internal/normalize)
// can persist. This is a closed set of four adapter kinds, not an open
// plugin system.
package ingest

import (
	"context"
	"time"
)

// Kind is the closed set of source types an Ingester can be built for.
type Kind string

const (
	KindRSS                 Kind = "rss"
	KindAtom                Kind = "atom"
	KindGitHub              Kind = "github"
	KindGitHubNotifications Kind = "github_notifications"
)

// IngestedItem is the uniform shape every adapter produces, regardless of
// origin. Optional fields are left at their zero value when the source
// doesn't supply them.
type IngestedItem struct {
	ExternalID  string
	Title       string
	Summary     string
	URL         string
	Kind        string
	OccurredAt  *time.Time
	ImageURL    string
	ContentHTML string
	Author      string
	Category    []string
	Comments    string
	ThreadID    string
}

// Ingester produces an ordered batch of items from one configured source.
// Implementations are synchronous and blocking; the sync orchestrator
// runs Poll through the bounded worker pool (internal/workerpool), and the
// calling goroutine waits for it to return.
type Ingester interface {
	Poll(ctx context.Context) ([]IngestedItem, error)
}

const defaultHTTPTimeout = 30 * time.Second
