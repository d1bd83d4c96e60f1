package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/mmcdole/gofeed/atom"
)

const atomHTTPTimeout = 60 * time.Second

// AtomIngester polls a single Atom 1.0 feed URL. Atom feeds are often slower
// to respond than RSS, so the default timeout is doubled.
type AtomIngester struct {
	URL        string
	HTTPClient *http.Client
}

func NewAtomIngester(url string, timeout time.Duration) *AtomIngester {
	if timeout <= 0 {
		timeout = atomHTTPTimeout
	}
	return &AtomIngester{URL: url, HTTPClient: &http.Client{Timeout: timeout}}
}

func (i *AtomIngester) Poll(ctx context.Context) ([]IngestedItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, i.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("atom: build request for %s: %w", i.URL, err)
	}

	resp, err := i.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("atom: fetch %s: %w", i.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, atomStatusError(resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("atom: read %s: %w", i.URL, err)
	}

	parser := gofeed.NewParser()
	feed, err := parser.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("atom: parse %s: %w", i.URL, err)
	}

	// gofeed's universal Item shape discards each <link>'s rel attribute, so
	// the comments/replies link (identified by rel, not by position) has to
	// be recovered from a second, atom-specific parse of the same bytes.
	commentsByEntryID := atomCommentLinks(body)

	items := make([]IngestedItem, 0, len(feed.Items))
	for _, entry := range feed.Items {
		item := atomItemFrom(entry)
		item.Comments = commentsByEntryID[entry.GUID]
		items = append(items, item)
	}
	return items, nil
}

// atomCommentLinks re-parses body with the atom-specific parser to recover
// each entry's rel="replies"/"comments" link, keyed by entry id (gofeed's
// GUID for an Atom entry is always its <id>).
func atomCommentLinks(body []byte) map[string]string {
	feed, err := (&atom.Parser{}).Parse(bytes.NewReader(body))
	if err != nil {
		return nil
	}
	links := make(map[string]string, len(feed.Entries))
	for _, entry := range feed.Entries {
		for _, l := range entry.Links {
			if l.Rel == "replies" || l.Rel == "comments" {
				links[entry.ID] = l.Href
				break
			}
		}
	}
	return links
}

// atomStatusError maps an HTTP status into a human-actionable message.
func atomStatusError(status int) error {
	switch status {
	case http.StatusGatewayTimeout:
		return errors.New("atom: server timeout")
	case http.StatusNotFound:
		return errors.New("atom: feed not found")
	case http.StatusForbidden:
		return errors.New("atom: access denied / auth required")
	default:
		return fmt.Errorf("atom: unexpected status %d", status)
	}
}

func atomItemFrom(entry *gofeed.Item) IngestedItem {
	url := atomLinkFor(entry)

	item := IngestedItem{
		ExternalID:  entry.GUID,
		Title:       entry.Title,
		Summary:     entry.Description,
		URL:         url,
		Kind:        "atom",
		ContentHTML: entry.Content,
	}
	if entry.UpdatedParsed != nil {
		item.OccurredAt = entry.UpdatedParsed
	} else if entry.PublishedParsed != nil {
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

// atomLinkFor picks the entry's url: alternate link, else self link, else
// the entry id if it looks like a URL.
func atomLinkFor(entry *gofeed.Item) string {
	if entry.Link != "" {
		return entry.Link
	}
	for _, l := range entry.Links {
		if l != "" {
			return l
		}
	}
	if strings.HasPrefix(entry.GUID, "http://") || strings.HasPrefix(entry.GUID, "https://") {
		return entry.GUID
	}
	return ""
}
