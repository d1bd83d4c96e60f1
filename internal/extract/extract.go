// Package extract fetches an item's canonical URL, runs a readability pass,
// sanitizes the result, and persists it.
package extract

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-shiori/go-readability"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"github.com/umbrarelay/umbrarelay/internal/store"
)

const (
	fetchTimeout = 30 * time.Second
	userAgent    = "UmbraRelay/1.0 (+https://github.com/umbrarelay/umbrarelay)"

	// interExtractionSpacing throttles consecutive extractions so the
	// extractor never hammers an origin.
	interExtractionSpacing = 500 * time.Millisecond
)

// Extractor runs the fetch/readability/sanitize pipeline for one item at a
// time, honoring a minimum spacing between consecutive runs.
type Extractor struct {
	store      *store.Store
	httpClient *http.Client
	policy     *bluemonday.Policy
	issuer     *TokenIssuer

	lastRun time.Time
}

func NewExtractor(st *store.Store, issuer *TokenIssuer) *Extractor {
	return &Extractor{
		store:      st,
		httpClient: &http.Client{Timeout: fetchTimeout},
		policy:     bluemonday.UGCPolicy(),
		issuer:     issuer,
	}
}

// Candidate reports whether an item is eligible for extraction: classified
// partial, not already extracted or mid-flight, and carrying a URL.
func Candidate(item *store.Item) bool {
	if item.URL == "" {
		return false
	}
	if store.Completeness(item.ContentCompleteness) != store.CompletenessPartial {
		return false
	}
	switch store.ContentStatus(item.ContentStatus) {
	case "", store.ContentStatusFeedOnly:
		return true
	default:
		return false
	}
}

// Gated reports whether extraction is enabled at all, per the
// extraction_enabled and article_view_mode preferences.
func Gated(ctx context.Context, prefs store.PreferenceRepository) (bool, error) {
	enabled, _, err := prefs.Get(ctx, "extraction_enabled")
	if err != nil {
		return false, fmt.Errorf("extract: read extraction_enabled: %w", err)
	}
	if enabled == "false" {
		return false, nil
	}

	mode, ok, err := prefs.Get(ctx, "article_view_mode")
	if err != nil {
		return false, fmt.Errorf("extract: read article_view_mode: %w", err)
	}
	if !ok {
		return false, nil
	}
	return mode == "auto" || mode == "always_fetch", nil
}

// Run performs one extraction pass for itemID, authorized by handoffToken.
// It waits out any remaining inter-extraction spacing before doing network
// I/O. Extraction is best-effort: when the fetch or readability pass fails,
// content_status is set to failed, a short reason is recorded, and nil is
// returned; the Item row is otherwise left untouched. Token, wait, and store
// errors are returned without changing content_status.
func (e *Extractor) Run(ctx context.Context, handoffToken string) error {
	itemIDStr, err := e.issuer.Verify(handoffToken)
	if err != nil {
		return err
	}
	itemID, err := uuid.Parse(itemIDStr)
	if err != nil {
		return ErrHandoffTokenInvalid
	}

	if err := e.wait(ctx); err != nil {
		return err
	}

	item, err := e.store.Items.GetByID(ctx, itemID)
	if err != nil {
		return fmt.Errorf("extract: load item: %w", err)
	}

	if err := e.store.Items.UpdateExtraction(ctx, itemID, store.ContentStatusFetching, "", ""); err != nil {
		return fmt.Errorf("extract: mark fetching: %w", err)
	}

	html, err := e.fetchAndExtract(ctx, item.URL)
	if err != nil {
		_ = e.store.Items.UpdateExtraction(ctx, itemID, store.ContentStatusFailed, "", err.Error())
		return nil
	}

	sanitized := e.policy.Sanitize(html)
	return e.store.Items.UpdateExtraction(ctx, itemID, store.ContentStatusExtracted, sanitized, "")
}

// wait enforces interExtractionSpacing between consecutive runs, but gives
// up early if ctx is cancelled so a scheduler shutdown isn't blocked on it.
func (e *Extractor) wait(ctx context.Context) error {
	if e.lastRun.IsZero() {
		e.lastRun = time.Now()
		return nil
	}
	elapsed := time.Since(e.lastRun)
	if remaining := interExtractionSpacing - elapsed; remaining > 0 {
		timer := time.NewTimer(remaining)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	e.lastRun = time.Now()
	return nil
}

func (e *Extractor) fetchAndExtract(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch: unexpected status %d", resp.StatusCode)
	}

	parsed, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	article, err := readability.FromReader(resp.Body, parsed)
	if err != nil {
		return "", fmt.Errorf("readability: %w", err)
	}

	return article.Content, nil
}
