// Package health exposes a lightweight HTTP liveness endpoint guarded by a
// shared-secret key.
package health

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"tg_intake_bot/internal/logging"
)

const (
	readHeaderTimeout  = 2 * time.Second
	healthListenPrefix = ":"

	livenessBody = "It's Alive!"
)

// Server hosts the liveness endpoint and owns the underlying HTTP server.
type Server struct {
	server  *http.Server
	logger  *logrus.Entry
	pingKey string
}

// NewServer constructs a health server that exposes GET /ping on the provided
// port. Requests must carry the shared secret in the key query parameter.
func NewServer(port int, pingKey string, logger *logrus.Entry) *Server {
	if logger == nil {
		logger = logging.Logger()
	}

	srv := &Server{
		logger:  logger,
		pingKey: pingKey,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ping", srv.handlePing)

	srv.server = &http.Server{
		Addr:              fmt.Sprintf("%s%d", healthListenPrefix, port),
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return srv
}

// ListenAndServe starts the health server and blocks until shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.WithFields(logging.Fields{
		"event": "health_listen",
		"addr":  s.server.Addr,
	}).Info("starting health server")

	if err := s.server.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			s.logger.WithField("event", "health_stopped").Info("health server stopped")
			return nil
		}

		return fmt.Errorf("health server listen: %w", err)
	}

	s.logger.WithField("event", "health_stopped").Info("health server stopped")
	return nil
}

// Shutdown gracefully stops the health server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}

	return s.server.Shutdown(ctx)
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	if s.pingKey == "" || r.URL.Query().Get("key") != s.pingKey {
		s.logger.WithFields(logging.Fields{
			"event":  "ping_unauthorized",
			"remote": r.RemoteAddr,
		}).Warn("unauthorized ping attempt")

		http.Error(w, "access denied", http.StatusForbidden)
		return
	}

	s.logger.WithFields(logging.Fields{
		"event":  "ping_ok",
		"remote": r.RemoteAddr,
	}).Info("received authorized ping")

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if _, err := w.Write([]byte(livenessBody)); err != nil {
		s.logger.WithField("event", "ping_write_error").WithError(err).Error("failed to write liveness response")
	}
}
