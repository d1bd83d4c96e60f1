// Package oauth implements the OAuth 2.0 device authorization grant against
// GitHub: starting the flow, polling for a token, refreshing, and listing
// the authorized user's repositories.
package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/go-github/v80/github"
	"github.com/google/uuid"
)

const (
	deviceCodeURL = "https://github.com/login/device/code"
	tokenURL      = "https://github.com/login/oauth/access_token"

	// deviceFlowScopes covers every endpoint tag the GitHub ingester supports.
	deviceFlowScopes = "repo read:org read:user read:packages read:project read:discussion"

	defaultHTTPTimeout = 30 * time.Second
	reposPerPage        = 100
)

// DeviceCodeResponse is the result of starting a device flow.
type DeviceCodeResponse struct {
	DeviceCode              string
	UserCode                string
	VerificationURI         string
	VerificationURIComplete string
	ExpiresIn               int
	Interval                int
}

// TokenPair is an access/refresh token pair returned by a successful poll
// or refresh.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// PollStatus is the outcome of one device-flow poll.
type PollStatus string

const (
	PollPending  PollStatus = "pending"
	PollSlowDown PollStatus = "slow_down"
	PollSuccess  PollStatus = "success"
	PollError    PollStatus = "error"
)

// PollResult is the tagged result of PollForToken. Only the field matching
// Status is meaningful. SecretID is set by Engine.PollOnce on PollSuccess —
// PollForToken itself never populates it, since the client layer has no
// notion of a Secret row.
type PollResult struct {
	Status      PollStatus
	NewInterval int // set when Status == PollSlowDown
	Tokens      TokenPair
	Message     string // set when Status == PollError
	SecretID    uuid.UUID
}

// GitHubOAuth drives the device authorization grant against GitHub.
type GitHubOAuth struct {
	ClientID   string
	HTTPClient *http.Client
}

func NewGitHubOAuth(clientID string) *GitHubOAuth {
	return &GitHubOAuth{ClientID: clientID, HTTPClient: &http.Client{Timeout: defaultHTTPTimeout}}
}

func (g *GitHubOAuth) StartDeviceFlow(ctx context.Context) (*DeviceCodeResponse, error) {
	form := url.Values{"client_id": {g.ClientID}, "scope": {deviceFlowScopes}}
	body, status, err := g.postForm(ctx, deviceCodeURL, form)
	if err != nil {
		return nil, fmt.Errorf("oauth: start device flow: %w", err)
	}
	if status == http.StatusNotFound {
		return nil, fmt.Errorf("oauth: device flow not available (404)")
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("oauth: device code request failed: %d - %s", status, body)
	}

	var jsonResp struct {
		DeviceCode              string `json:"device_code"`
		UserCode                string `json:"user_code"`
		VerificationURI         string `json:"verification_uri"`
		VerificationURIComplete string `json:"verification_uri_complete"`
		ExpiresIn               int    `json:"expires_in"`
		Interval                int    `json:"interval"`
	}
	if err := json.Unmarshal([]byte(body), &jsonResp); err == nil && jsonResp.DeviceCode != "" {
		if jsonResp.VerificationURIComplete == "" {
			jsonResp.VerificationURIComplete = jsonResp.VerificationURI + "?user_code=" + jsonResp.UserCode
		}
		return &DeviceCodeResponse{
			DeviceCode:              jsonResp.DeviceCode,
			UserCode:                jsonResp.UserCode,
			VerificationURI:         jsonResp.VerificationURI,
			VerificationURIComplete: jsonResp.VerificationURIComplete,
			ExpiresIn:               jsonResp.ExpiresIn,
			Interval:                jsonResp.Interval,
		}, nil
	}

	// Fall back to form-encoded parsing — GitHub can return either shape.
	fields := parseFormEncoded(body)
	if fields["device_code"] == "" || fields["user_code"] == "" {
		return nil, fmt.Errorf("oauth: missing device_code/user_code in response: %.500s", body)
	}
	expiresIn, _ := strconv.Atoi(fields["expires_in"])
	if expiresIn == 0 {
		expiresIn = 900
	}
	interval, _ := strconv.Atoi(fields["interval"])
	if interval == 0 {
		interval = 5
	}
	verificationURI := fields["verification_uri"]
	if verificationURI == "" {
		verificationURI = "https://github.com/login/device"
	}
	verificationURIComplete := fields["verification_uri_complete"]
	if verificationURIComplete == "" {
		verificationURIComplete = verificationURI + "?user_code=" + fields["user_code"]
	}

	return &DeviceCodeResponse{
		DeviceCode:              fields["device_code"],
		UserCode:                fields["user_code"],
		VerificationURI:         verificationURI,
		VerificationURIComplete: verificationURIComplete,
		ExpiresIn:               expiresIn,
		Interval:                interval,
	}, nil
}

func (g *GitHubOAuth) PollForToken(ctx context.Context, deviceCode string) (*PollResult, error) {
	form := url.Values{
		"client_id":   {g.ClientID},
		"device_code": {deviceCode},
		"grant_type":  {"urn:ietf:params:oauth:grant-type:device_code"},
	}
	body, status, err := g.postForm(ctx, tokenURL, form)
	if err != nil {
		return nil, fmt.Errorf("oauth: poll for token: %w", err)
	}

	if errResult, ok := tryParseTokenError(body); ok {
		return errResult, nil
	}

	if status < 200 || status >= 300 {
		return &PollResult{Status: PollError, Message: fmt.Sprintf("token request failed with status: %d", status)}, nil
	}

	tokens, ok := parseTokenResponse(body)
	if !ok {
		return &PollResult{Status: PollError, Message: fmt.Sprintf("missing access_token in response: %.500s", body)}, nil
	}
	return &PollResult{Status: PollSuccess, Tokens: tokens}, nil
}

// tryParseTokenError looks for GitHub's {error: "..."} shape (JSON or
// form-encoded) and maps known error codes to a PollResult. The second
// return value is false when body is not an error response at all.
func tryParseTokenError(body string) (*PollResult, bool) {
	var jsonErr struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
		Interval         int    `json:"interval"`
	}
	errCode := ""
	interval := 0
	description := ""
	if err := json.Unmarshal([]byte(body), &jsonErr); err == nil && jsonErr.Error != "" {
		errCode = jsonErr.Error
		interval = jsonErr.Interval
		description = jsonErr.ErrorDescription
	} else {
		fields := parseFormEncoded(body)
		errCode = fields["error"]
		if errCode == "" {
			if strings.Contains(body, "authorization_pending") {
				errCode = "authorization_pending"
			} else if strings.Contains(body, "slow_down") {
				errCode = "slow_down"
			} else {
				return nil, false
			}
		}
		interval, _ = strconv.Atoi(fields["interval"])
	}

	switch errCode {
	case "authorization_pending":
		return &PollResult{Status: PollPending}, true
	case "slow_down":
		if interval == 0 {
			interval = 5
		}
		return &PollResult{Status: PollSlowDown, NewInterval: interval + 5}, true
	case "expired_token":
		return &PollResult{Status: PollError, Message: "device code has expired, start a new authorization"}, true
	case "incorrect_device_code":
		return &PollResult{Status: PollError, Message: "invalid device code, start a new authorization"}, true
	case "access_denied":
		return &PollResult{Status: PollError, Message: "authorization was cancelled"}, true
	case "device_flow_disabled":
		return &PollResult{Status: PollError, Message: "device flow is not enabled for this application"}, true
	default:
		if description == "" {
			description = errCode
		}
		return &PollResult{Status: PollError, Message: fmt.Sprintf("token request failed: %s", description)}, true
	}
}

func parseTokenResponse(body string) (TokenPair, bool) {
	var jsonResp struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.Unmarshal([]byte(body), &jsonResp); err == nil && jsonResp.AccessToken != "" {
		return TokenPair{AccessToken: jsonResp.AccessToken, RefreshToken: jsonResp.RefreshToken}, true
	}
	fields := parseFormEncoded(body)
	if fields["access_token"] == "" {
		return TokenPair{}, false
	}
	return TokenPair{AccessToken: fields["access_token"], RefreshToken: fields["refresh_token"]}, true
}

func (g *GitHubOAuth) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	form := url.Values{
		"client_id":     {g.ClientID},
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}
	body, status, err := g.postForm(ctx, tokenURL, form)
	if err != nil {
		return nil, fmt.Errorf("oauth: refresh token: %w", err)
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("oauth: refresh token request failed: %d - %s", status, body)
	}
	tokens, ok := parseTokenResponse(body)
	if !ok {
		return nil, fmt.Errorf("oauth: refresh response missing access_token: %.500s", body)
	}
	return &tokens, nil
}

// ListRepos enumerates the authenticated user's repositories via go-github,
// paginating with per_page=100 until exhausted.
func ListRepos(ctx context.Context, accessToken string) ([]*github.Repository, error) {
	client := github.NewClient(nil).WithAuthToken(accessToken)

	var all []*github.Repository
	opts := &github.RepositoryListByAuthenticatedUserOptions{
		Type:        "all",
		ListOptions: github.ListOptions{PerPage: reposPerPage},
	}
	for {
		repos, resp, err := client.Repositories.ListByAuthenticatedUser(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("oauth: list repositories: %w", err)
		}
		all = append(all, repos...)
		if len(repos) < reposPerPage {
			break
		}
		opts.Page = resp.NextPage
	}
	return all, nil
}

func (g *GitHubOAuth) postForm(ctx context.Context, endpoint string, form url.Values) (body string, status int, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := g.HTTPClient.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)
	for {
		n, rerr := resp.Body.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if rerr != nil {
			break
		}
	}
	return string(buf), resp.StatusCode, nil
}

func parseFormEncoded(body string) map[string]string {
	values, err := url.ParseQuery(body)
	if err != nil {
		return map[string]string{}
	}
	fields := make(map[string]string, len(values))
	for k, v := range values {
		if len(v) > 0 {
			fields[k] = v[0]
		}
	}
	return fields
}
