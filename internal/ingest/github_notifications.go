package ingest

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-github/v80/github"
)

// GitHubNotificationsIngester polls the authenticated user's notification
// stream. It never marks notifications read upstream.
type GitHubNotificationsIngester struct {
	Token      string
	HTTPClient *http.Client
}

func NewGitHubNotificationsIngester(token string) *GitHubNotificationsIngester {
	return &GitHubNotificationsIngester{
		Token:      token,
		HTTPClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
}

// SetToken replaces the ingester's access token in place. Used by the sync
// orchestrator after a successful refresh-and-retry.
func (i *GitHubNotificationsIngester) SetToken(token string) {
	i.Token = token
}

func (i *GitHubNotificationsIngester) Poll(ctx context.Context) ([]IngestedItem, error) {
	client := github.NewClient(i.HTTPClient).WithAuthToken(i.Token)

	var items []IngestedItem
	opts := &github.NotificationListOptions{
		All:         true,
		ListOptions: github.ListOptions{PerPage: githubPerPage},
	}
	for {
		notifications, resp, err := client.Activity.ListNotifications(ctx, opts)
		if err != nil {
			if resp != nil && resp.StatusCode == http.StatusNotModified {
				break
			}
			if resp != nil && resp.StatusCode == http.StatusUnauthorized {
				return nil, ErrGitHubUnauthorized
			}
			return nil, fmt.Errorf("github notifications: %w", err)
		}
		for _, n := range notifications {
			items = append(items, notificationItemFrom(n))
		}
		if len(notifications) < githubPerPage {
			break
		}
		opts.Page = resp.NextPage
	}
	return items, nil
}

func notificationItemFrom(n *github.Notification) IngestedItem {
	var occurred *time.Time
	if n.UpdatedAt != nil {
		t := n.UpdatedAt.Time
		occurred = &t
	}
	return IngestedItem{
		ExternalID: n.GetID(),
		Title:      n.GetSubject().GetTitle(),
		URL:        notificationWebURL(n),
		Kind:       "notification",
		Category:   []string{n.GetRepository().GetFullName()},
		ThreadID:   n.GetID(),
		OccurredAt: occurred,
	}
}

// notificationWebURL rewrites the API-form subject URL
// ("https://api.github.com/repos/o/r/issues/1") into its web form
// ("https://github.com/o/r/issues/1").
func notificationWebURL(n *github.Notification) string {
	apiURL := n.GetSubject().GetURL()
	webURL := strings.Replace(apiURL, "https://api.github.com/repos/", "https://github.com/", 1)
	if webURL == apiURL && n.GetRepository() != nil {
		return n.GetRepository().GetHTMLURL()
	}
	return webURL
}
