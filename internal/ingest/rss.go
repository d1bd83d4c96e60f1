package ingest

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

var htmlStripRe = regexp.MustCompile(`<[^>]+>`)

// RSSIngester polls a single RSS 2.0 feed URL.
type RSSIngester struct {
	URL        string
	HTTPClient *http.Client
}

// NewRSSIngester builds an RSSIngester whose HTTP client uses timeout,
// or defaultHTTPTimeout when timeout is not positive.
func NewRSSIngester(url string, timeout time.Duration) *RSSIngester {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &RSSIngester{URL: url, HTTPClient: &http.Client{Timeout: timeout}}
}

func (i *RSSIngester) Poll(ctx context.Context) ([]IngestedItem, error) {
	parser := gofeed.NewParser()
	parser.Client = i.HTTPClient

	feed, err := parser.ParseURLWithContext(i.URL, ctx)
	if err != nil {
		return nil, fmt.Errorf("rss: fetch %s: %w", i.URL, err)
	}

	items := make([]IngestedItem, 0, len(feed.Items))
	for _, entry := range feed.Items {
		items = append(items, rssItemFrom(entry))
	}
	return items, nil
}

func rssItemFrom(entry *gofeed.Item) IngestedItem {
	externalID := entry.GUID
	if externalID == "" {
		externalID = entry.Link
	}

	// content:encoded (surfaced by gofeed as Content) supersedes the
	// description when present.
	contentHTML := entry.Description
	if entry.Content != "" {
		contentHTML = entry.Content
	}
	summary := htmlStripRe.ReplaceAllString(entry.Description, "")
	summary = strings.TrimSpace(summary)

	item := IngestedItem{
		ExternalID:  externalID,
		Title:       entry.Title,
		Summary:     summary,
		URL:         entry.Link,
		Kind:        "rss",
		ContentHTML: contentHTML,
	}
	if entry.PublishedParsed != nil {
		item.OccurredAt = entry.PublishedParsed
	}
	if entry.Author != nil {
		item.Author = entry.Author.Name
	}
	item.Category = append(item.Category, entry.Categories...)

	if entry.Image != nil && entry.Image.URL != "" {
		item.ImageURL = entry.Image.URL
	} else {
		for _, enc := range entry.Enclosures {
			if strings.HasPrefix(enc.Type, "image/") {
				item.ImageURL = enc.URL
				break
			}
		}
	}

	return item
}
