package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vetting-core/internal/common"
)

// DigestTrigger is invoked by the bearer-authenticated cron endpoint.
type DigestTrigger func(ctx context.Context) error

// Server exposes the alive/ready/healthy signals over plain HTTP, the
// "whatever transport the surrounding shell provides" 4.13 asks for, plus
// the externally-callable daily_digest trigger.
type Server struct {
	health       *Service
	logger       arbor.ILogger
	server       *http.Server
	digest       DigestTrigger
	bearerSecret string
}

func NewServer(healthService *Service, cfg common.ServerConfig, digest DigestTrigger, bearerSecret string, logger arbor.ILogger) *Server {
	s := &Server{health: healthService, logger: logger, digest: digest, bearerSecret: bearerSecret}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz/alive", s.aliveHandler)
	mux.HandleFunc("/healthz/ready", s.readyHandler)
	mux.HandleFunc("/healthz", s.healthyHandler)
	mux.HandleFunc("/cron/daily-digest", s.digestHandler)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Start begins serving health endpoints. Blocks until Shutdown.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.server.Addr).Msg("health server starting")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("health server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the health server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) aliveHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	ready, failures := s.health.Ready(r.Context())
	writeSignal(w, ready, failures)
}

func (s *Server) healthyHandler(w http.ResponseWriter, r *http.Request) {
	healthy, failures := s.health.Healthy(r.Context())
	writeSignal(w, healthy, failures)
}

// digestHandler is the single externally-callable trigger named
// daily_digest in 6.x: bearer-token authenticated, no other endpoint on
// this surface authenticates this way.
func (s *Server) digestHandler(w http.ResponseWriter, r *http.Request) {
	if s.digest == nil {
		http.Error(w, "digest not configured", http.StatusNotImplemented)
		return
	}

	auth := r.Header.Get("Authorization")
	if s.bearerSecret == "" || auth != "Bearer "+s.bearerSecret {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if err := s.digest(r.Context()); err != nil {
		s.logger.Error().Err(err).Msg("daily digest trigger failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeSignal(w http.ResponseWriter, ok bool, failures map[string]error) {
	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}

	body := struct {
		OK     bool              `json:"ok"`
		Errors map[string]string `json:"errors,omitempty"`
	}{OK: ok}

	if len(failures) > 0 {
		body.Errors = make(map[string]string, len(failures))
		for k, err := range failures {
			body.Errors[k] = err.Error()
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
