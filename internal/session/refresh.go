package session

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/desertthunder/sqlgym/internal/models"
	"github.com/desertthunder/sqlgym/internal/shared"
	"golang.org/x/oauth2"
)

// RefreshPath is the renewal endpoint, relative to the API base URL.
const RefreshPath = "/user/auth/refresh"

const refreshFlightKey = "refresh"

// Renewer exchanges a refresh token for a new credential pair.
//
// The returned token's RefreshToken is empty when the server did not rotate it.
type Renewer interface {
	Renew(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// RefreshAccessToken renews the access token and returns it.
//
// At most one renewal runs at a time; concurrent callers wait for and share its result. The renewal
// is not cancelled when a caller's ctx ends, but that caller stops waiting and gets ctx.Err().
// Any failure ends the session through [Manager.Expire].
func (m *Manager) RefreshAccessToken(ctx context.Context) (string, error) {
	ch := m.flight.DoChan(refreshFlightKey, func() (any, error) {
		return m.performRefresh(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (m *Manager) performRefresh(ctx context.Context) (string, error) {
	refresh := m.RefreshToken()
	if refresh == "" {
		m.Expire(shared.ErrNoRefreshToken)
		return "", shared.ErrNoRefreshToken
	}
	if m.renewer == nil {
		err := fmt.Errorf("%w: no renewer configured", shared.ErrRefreshFailed)
		m.Expire(err)
		return "", err
	}

	m.logger.Debug("refreshing access token")
	tok, err := m.renewer.Renew(ctx, refresh)
	if err == nil && (tok == nil || shared.Unquote(tok.AccessToken) == "") {
		err = fmt.Errorf("response missing access token")
	}
	if err == nil {
		err = m.SetTokens(tok.AccessToken, tok.RefreshToken)
	}
	if err != nil {
		err = fmt.Errorf("%w: %w", shared.ErrRefreshFailed, err)
		m.Expire(err)
		return "", err
	}

	m.logger.Info("access token refreshed", "rotated", tok.RefreshToken != "")
	return shared.Unquote(tok.AccessToken), nil
}

// HTTPRenewer is the default [Renewer]. It posts to [RefreshPath] with the refresh token as bearer.
type HTTPRenewer struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPRenewer creates an [HTTPRenewer] against baseURL.
func NewHTTPRenewer(baseURL string, client *http.Client) *HTTPRenewer {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPRenewer{baseURL: strings.TrimRight(baseURL, "/"), httpClient: client}
}

// Renew performs the renewal request. Network errors, non-2xx responses and a missing access token fail.
func (r *HTTPRenewer) Renew(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+RefreshPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	(&oauth2.Token{AccessToken: refreshToken, TokenType: "Bearer"}).SetAuthHeader(req)
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("refresh endpoint returned status %d", resp.StatusCode)
	}

	var payload models.AuthResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if shared.Unquote(payload.AccessToken) == "" {
		return nil, fmt.Errorf("response missing access token")
	}

	return &oauth2.Token{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
		TokenType:    "Bearer",
	}, nil
}
