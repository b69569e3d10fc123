// Package server provides the forwarding layer of toolgate: a thin HTTP
// reverse proxy that composes authentication headers per request and
// forwards to the configured destination.
//
// The server carries no authentication logic of its own. It parses the
// caller's cookies once, hands them to the header composer, and attaches
// the composed header set verbatim to the outbound request. Raw caller
// credentials never cross the trust boundary.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/toolgate/toolgate/pkg/gate"
	"github.com/toolgate/toolgate/pkg/logger"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// Server forwards requests under /{destination}/* to the destination's
// target URL with composed authentication headers.
type Server struct {
	composer gate.HeaderComposer
	proxies  map[string]*httputil.ReverseProxy
	srv      *http.Server
}

// New creates a forwarding server listening on addr. targets maps each
// destination id to its base URL; requests for unknown destinations get
// 404.
func New(addr string, targets map[string]*url.URL, composer gate.HeaderComposer) *Server {
	s := &Server{
		composer: composer,
		proxies:  make(map[string]*httputil.ReverseProxy, len(targets)),
	}
	for id, target := range targets {
		s.proxies[id] = httputil.NewSingleHostReverseProxy(target)
	}

	r := chi.NewRouter()
	r.Use(requestLogger)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.HandleFunc("/{destination}", s.forward)
	r.HandleFunc("/{destination}/*", s.forward)

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s
}

// Handler returns the server's HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start runs the server until ctx is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("toolgate listening on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return <-errCh
}

// forward composes authentication headers for the destination and proxies
// the request to its target.
func (s *Server) forward(w http.ResponseWriter, r *http.Request) {
	destinationID := chi.URLParam(r, "destination")
	proxy, ok := s.proxies[destinationID]
	if !ok {
		http.NotFound(w, r)
		return
	}

	caller := gate.CallerContext{Cookies: gate.ParseCookieHeader(r.Header.Get("Cookie"))}
	headers, err := s.composer.Compose(r.Context(), destinationID, caller)
	if err != nil {
		if errors.Is(err, gate.ErrInvalidConfig) {
			http.NotFound(w, r)
			return
		}
		logger.Errorw("header composition failed", "destination", destinationID, "error", err)
		http.Error(w, "upstream authentication unavailable", http.StatusBadGateway)
		return
	}

	// Only composed headers cross the trust boundary.
	r.Header.Del("Cookie")
	r.Header.Del("Authorization")
	headers.Apply(r)

	r.URL.Path = stripDestinationPrefix(r.URL.Path, destinationID)
	r.URL.RawPath = ""

	proxy.ServeHTTP(w, r)
}

func stripDestinationPrefix(path, destinationID string) string {
	stripped := strings.TrimPrefix(path, "/"+destinationID)
	if stripped == "" {
		return "/"
	}
	return stripped
}
