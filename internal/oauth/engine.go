package oauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/go-github/v80/github"
	"github.com/google/uuid"

	"github.com/umbrarelay/umbrarelay/internal/store"
	"github.com/umbrarelay/umbrarelay/internal/vault"
)

// refreshFailureThreshold is the number of consecutive refresh failures a
// Secret tolerates before cascading to disabling every Source that uses it.
const refreshFailureThreshold = 3

// deviceFlowSecretName is the fixed Name of the single Secret row that
// backs a device-flow-issued GitHub token. A successful poll updates this
// row in place rather than creating a second one.
const deviceFlowSecretName = "github-device-flow"

// Engine drives a device-flow authorization from start to finish and
// performs the refresh-on-401 cascading logic the sync pipeline calls into.
type Engine struct {
	client *GitHubOAuth
	store  *store.Store
	vault  *vault.Vault
}

func NewEngine(client *GitHubOAuth, st *store.Store, v *vault.Vault) *Engine {
	return &Engine{client: client, store: st, vault: v}
}

// StartDeviceFlow begins a new authorization and returns the user-facing
// code/URL the caller should display.
func (e *Engine) StartDeviceFlow(ctx context.Context) (*DeviceCodeResponse, error) {
	return e.client.StartDeviceFlow(ctx)
}

// PollOnce advances one step of an in-flight device flow. On PollSuccess it
// persists the token pair: updating the existing device-flow Secret if one
// exists, or creating it otherwise.
func (e *Engine) PollOnce(ctx context.Context, deviceCode string) (*PollResult, error) {
	result, err := e.client.PollForToken(ctx, deviceCode)
	if err != nil {
		return nil, err
	}
	if result.Status != PollSuccess {
		return result, nil
	}

	secret, err := e.store.Secrets.GetDeviceFlowToken(ctx)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("oauth: load existing device flow secret: %w", err)
	}
	if secret == nil {
		secret = &store.Secret{
			Name:              deviceFlowSecretName,
			TTLKind:           store.SecretTTLForever,
			IsDeviceFlowToken: true,
		}
		if err := e.store.Secrets.Create(ctx, secret); err != nil {
			return nil, fmt.Errorf("oauth: create device flow secret: %w", err)
		}
	} else {
		secret.RefreshFailureCount = 0
		secret.ExpiresAt = nil
		if err := e.store.Secrets.Update(ctx, secret); err != nil {
			return nil, fmt.Errorf("oauth: reset device flow secret: %w", err)
		}
	}

	if err := e.vault.SetTokens(secret.ID, result.Tokens.AccessToken, result.Tokens.RefreshToken); err != nil {
		return nil, fmt.Errorf("oauth: persist device flow tokens: %w", err)
	}
	result.SecretID = secret.ID
	return result, nil
}

// ListRepositoriesFor resolves secretID's access token and lists the
// authorized user's repositories via go-github.
func (e *Engine) ListRepositoriesFor(ctx context.Context, secretID uuid.UUID) ([]*github.Repository, error) {
	if _, err := e.store.Secrets.GetByID(ctx, secretID); err != nil {
		return nil, err
	}
	token, err := e.vault.Get(secretID)
	if err != nil {
		return nil, fmt.Errorf("oauth: resolve token for secret: %w", err)
	}
	return ListRepos(ctx, token)
}

// RefreshAndRetry refreshes secretID's access token in the vault on a 401
// from an ingester. On refresh failure it increments the Secret's strike
// counter; at refreshFailureThreshold it expires the Secret and disables
// every Source that depends on it.
func (e *Engine) RefreshAndRetry(ctx context.Context, secretID string) (accessToken string, err error) {
	id, err := uuid.Parse(secretID)
	if err != nil {
		return "", fmt.Errorf("oauth: invalid secret id: %w", err)
	}

	refreshToken, err := e.vault.GetRefresh(id)
	if err != nil {
		return "", fmt.Errorf("oauth: no refresh token for secret: %w", err)
	}

	tokens, refreshErr := e.client.RefreshToken(ctx, refreshToken)
	if refreshErr != nil {
		count, cerr := e.store.Secrets.IncrementRefreshFailureCount(ctx, id)
		if cerr != nil {
			return "", fmt.Errorf("oauth: refresh failed (%v) and could not record strike: %w", refreshErr, cerr)
		}
		if count >= refreshFailureThreshold {
			if err := e.store.Secrets.ExpireSecret(ctx, id); err != nil {
				return "", fmt.Errorf("oauth: expire secret after exhausted refreshes: %w", err)
			}
			if err := e.store.Sources.DisableBySecretID(ctx, id); err != nil {
				return "", fmt.Errorf("oauth: disable sources after exhausted refreshes: %w", err)
			}
		}
		return "", fmt.Errorf("oauth: refresh token: %w", refreshErr)
	}

	if err := e.vault.SetTokens(id, tokens.AccessToken, tokens.RefreshToken); err != nil {
		return "", fmt.Errorf("oauth: persist refreshed tokens: %w", err)
	}
	if err := e.store.Secrets.ResetRefreshFailureCount(ctx, id); err != nil {
		return "", fmt.Errorf("oauth: reset strike counter: %w", err)
	}
	return tokens.AccessToken, nil
}

// PollInterval is the minimum spacing the caller must honor between
// consecutive PollOnce calls, taken from the device code response's
// Interval (5s when unset). It does not account for later SlowDown
// results; those carry their own increased interval.
func PollInterval(resp *DeviceCodeResponse) time.Duration {
	interval := resp.Interval
	if interval <= 0 {
		interval = 5
	}
	return time.Duration(interval) * time.Second
}
