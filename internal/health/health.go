// Package health serves the liveness endpoint watched by orchestrators.
package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

const shutdownTimeout = 5 * time.Second

// Status is the process-wide failure flag. Once failed it never recovers.
type Status struct {
	failed atomic.Bool

	mu     sync.Mutex
	reason string
}

// Fail sets the flag. The first reason wins.
func (s *Status) Fail(reason string) {
	s.mu.Lock()
	if s.reason == "" {
		s.reason = reason
	}
	s.mu.Unlock()
	s.failed.Store(true)
}

// Failed reports whether Fail has been called.
func (s *Status) Failed() bool {
	return s.failed.Load()
}

// Reason returns the reason given to the first Fail call.
func (s *Status) Reason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// Handler serves GET /ok: 200 "OK", or 500 "FAIL" once status failed.
func Handler(status *Status) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ok", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if status.Failed() {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("FAIL"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	return mux
}

// Server exposes Handler on a TCP address.
type Server struct {
	Addr   string
	Status *Status

	ready chan net.Addr
	once  sync.Once
}

// Ready yields the bound address once the listener is open.
func (s *Server) Ready() <-chan net.Addr {
	s.once.Do(func() { s.ready = make(chan net.Addr, 1) })
	return s.ready
}

// Run listens on Addr and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("listen health %s: %w", s.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	log := slog.With("component", "health")
	srv := &http.Server{
		Handler:           Handler(s.Status),
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.Ready()
	s.ready <- ln.Addr()
	log.Info("Health check API server started.", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve health: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown health: %w", err)
	}
	return nil
}
