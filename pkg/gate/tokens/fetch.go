package tokens

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/toolgate/toolgate/pkg/gate"
	"github.com/toolgate/toolgate/pkg/gate/policy"
	"github.com/toolgate/toolgate/pkg/logger"
)

const (
	grantTypeClientCredentials = "client_credentials"

	// maxResponseBodySize caps token endpoint response bodies (1 MiB).
	maxResponseBodySize = 1 << 20
)

// tokenResponse decodes the token endpoint's success body.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope"`
}

// oauthError represents an OAuth 2.0 error response (RFC 6749 section 5.2).
type oauthError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
	ErrorURI         string `json:"error_uri,omitempty"`
	StatusCode       int    `json:"-"`
}

func (e *oauthError) String() string {
	if e.ErrorDescription != "" {
		return fmt.Sprintf("OAuth error %q (status %d): %s", e.Error, e.StatusCode, e.ErrorDescription)
	}
	return fmt.Sprintf("OAuth error %q (status %d)", e.Error, e.StatusCode)
}

// parseOAuthError attempts to parse an OAuth error response body.
// It returns nil when the body is not a recognizable OAuth error.
func parseOAuthError(statusCode int, body []byte) *oauthError {
	var oe oauthError
	if err := json.Unmarshal(body, &oe); err != nil {
		return nil
	}
	if oe.Error == "" {
		return nil
	}
	oe.StatusCode = statusCode
	return &oe
}

// fetch performs a client-credentials token request against the
// destination's token endpoint. Any failure is returned as a
// *gate.FetchError; the caller decides whether to retry on a later request.
func (m *Manager) fetch(ctx context.Context, destinationID string, cfg *policy.OAuth2Config) (*oauth2.Token, error) {
	data := url.Values{}
	data.Set("grant_type", grantTypeClientCredentials)
	data.Set("client_id", cfg.ClientID)
	data.Set("client_secret", cfg.ClientSecret)
	if cfg.Scope != "" {
		data.Set("scope", cfg.Scope)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, &gate.FetchError{Destination: destinationID, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, &gate.FetchError{Destination: destinationID, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return nil, &gate.FetchError{
			Destination: destinationID,
			StatusCode:  resp.StatusCode,
			Err:         fmt.Errorf("failed to read token response: %w", err),
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if oe := parseOAuthError(resp.StatusCode, body); oe != nil {
			logger.Debugw("token endpoint returned OAuth error",
				"destination", destinationID, "error", oe.Error, "status", resp.StatusCode)
			return nil, &gate.FetchError{
				Destination: destinationID,
				StatusCode:  resp.StatusCode,
				Err:         errors.New(oe.String()),
			}
		}
		return nil, &gate.FetchError{
			Destination: destinationID,
			StatusCode:  resp.StatusCode,
			Err:         fmt.Errorf("token endpoint returned status %d", resp.StatusCode),
		}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, &gate.FetchError{
			Destination: destinationID,
			StatusCode:  resp.StatusCode,
			Err:         fmt.Errorf("failed to parse token response: %w", err),
		}
	}
	if tr.AccessToken == "" {
		return nil, &gate.FetchError{
			Destination: destinationID,
			StatusCode:  resp.StatusCode,
			Err:         errors.New("token response missing access_token"),
		}
	}

	ttl := cfg.TTLHint()
	if tr.ExpiresIn > 0 {
		ttl = time.Duration(tr.ExpiresIn) * time.Second
	}

	return &oauth2.Token{
		AccessToken: tr.AccessToken,
		TokenType:   tr.TokenType,
		Expiry:      m.now().Add(ttl),
	}, nil
}
