package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolgate/toolgate/pkg/gate/composer"
	"github.com/toolgate/toolgate/pkg/gate/policy"
	"github.com/toolgate/toolgate/pkg/gate/tokens"
)

// capturedRequest records what the downstream tool server actually saw.
type capturedRequest struct {
	Path          string
	Authorization string
	Cookie        string
	CustomHeader  string
}

func newBackend(t *testing.T) (*httptest.Server, *capturedRequest) {
	t.Helper()
	captured := &capturedRequest{}
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.Path = r.URL.Path
		captured.Authorization = r.Header.Get("Authorization")
		captured.Cookie = r.Header.Get("Cookie")
		captured.CustomHeader = r.Header.Get("X-Env")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	}))
	t.Cleanup(backend.Close)
	return backend, captured
}

func newTokenEndpoint(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			w.WriteHeader(status)
			fmt.Fprint(w, `{"error":"invalid_client"}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-live",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newGate(t *testing.T, targets map[string]*url.URL, policies map[string]*policy.DestinationPolicy) *httptest.Server {
	t.Helper()
	store, err := policy.NewStore(policies, nil)
	require.NoError(t, err)
	mgr := tokens.NewManager(store)
	srv := New("127.0.0.1:0", targets, composer.New(store, mgr))
	front := httptest.NewServer(srv.Handler())
	t.Cleanup(front.Close)
	return front
}

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestServer_ForwardsWithComposedHeaders(t *testing.T) {
	t.Parallel()

	backend, captured := newBackend(t)
	tokenSrv := newTokenEndpoint(t, http.StatusOK)

	front := newGate(t,
		map[string]*url.URL{"github": mustParse(t, backend.URL)},
		map[string]*policy.DestinationPolicy{
			"github": {
				OAuth2: &policy.OAuth2Config{
					TokenURL:     tokenSrv.URL,
					ClientID:     "c1",
					ClientSecret: "s1",
				},
				CookiePassthrough: &policy.CookiePassthroughConfig{
					Enabled:    true,
					AllowNames: []string{"session_id"},
				},
				StaticHeaders: map[string]string{"X-Env": "prod"},
			},
		},
	)

	req, err := http.NewRequest(http.MethodGet, front.URL+"/github/api/v1/tools", nil)
	require.NoError(t, err)
	req.Header.Set("Cookie", "session_id=u1; tracking=t1")
	req.Header.Set("Authorization", "Bearer caller-token")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "/api/v1/tools", captured.Path)
	assert.Equal(t, "Bearer tok-live", captured.Authorization, "caller's Authorization must be replaced")
	assert.Equal(t, "session_id=u1", captured.Cookie, "only allow-listed cookies forwarded")
	assert.Equal(t, "prod", captured.CustomHeader)
}

func TestServer_StripsCallerCredentialsForNoAuthDestination(t *testing.T) {
	t.Parallel()

	backend, captured := newBackend(t)
	front := newGate(t,
		map[string]*url.URL{"internal": mustParse(t, backend.URL)},
		map[string]*policy.DestinationPolicy{"internal": {}},
	)

	req, err := http.NewRequest(http.MethodGet, front.URL+"/internal", nil)
	require.NoError(t, err)
	req.Header.Set("Cookie", "session_id=u1")
	req.Header.Set("Authorization", "Bearer caller-token")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "/", captured.Path)
	assert.Empty(t, captured.Authorization, "raw Authorization never crosses the boundary")
	assert.Empty(t, captured.Cookie, "raw cookies never cross the boundary")
}

func TestServer_UnknownDestination(t *testing.T) {
	t.Parallel()

	backend, _ := newBackend(t)
	front := newGate(t,
		map[string]*url.URL{"known": mustParse(t, backend.URL)},
		map[string]*policy.DestinationPolicy{"known": {}},
	)

	resp, err := http.Get(front.URL + "/unknown/path")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_AuthFailureIsBadGateway(t *testing.T) {
	t.Parallel()

	backend, captured := newBackend(t)
	tokenSrv := newTokenEndpoint(t, http.StatusUnauthorized)

	front := newGate(t,
		map[string]*url.URL{"github": mustParse(t, backend.URL)},
		map[string]*policy.DestinationPolicy{
			"github": {
				OAuth2: &policy.OAuth2Config{
					TokenURL:     tokenSrv.URL,
					ClientID:     "c1",
					ClientSecret: "bad",
				},
			},
		},
	)

	resp, err := http.Get(front.URL + "/github/api")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Empty(t, captured.Path, "request must not reach the backend without auth")
}

func TestServer_Health(t *testing.T) {
	t.Parallel()

	backend, _ := newBackend(t)
	front := newGate(t,
		map[string]*url.URL{"d1": mustParse(t, backend.URL)},
		map[string]*policy.DestinationPolicy{"d1": {}},
	)

	resp, err := http.Get(front.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestServer_RequestIDAssigned(t *testing.T) {
	t.Parallel()

	handler := requestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("X-Request-Id"))
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("assigned when absent", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("preserved when present", func(t *testing.T) {
		t.Parallel()
		inner := requestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "req-42", r.Header.Get("X-Request-Id"))
			w.WriteHeader(http.StatusOK)
		}))
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set("X-Request-Id", "req-42")
		rec := httptest.NewRecorder()
		inner.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestServer_GracefulShutdown(t *testing.T) {
	t.Parallel()

	backend, _ := newBackend(t)
	store, err := policy.NewStore(map[string]*policy.DestinationPolicy{"d1": {}}, nil)
	require.NoError(t, err)
	srv := New("127.0.0.1:0", map[string]*url.URL{"d1": mustParse(t, backend.URL)}, composer.New(store, tokens.NewManager(store)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	cancel()
	require.NoError(t, <-done)
}
