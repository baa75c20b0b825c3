package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/specialistvlad/devmgr/internal/ctxlog"
)

// healthHandler answers liveness probes.
func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	a.logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

// treeHandler renders the device tree as YAML.
func (a *App) treeHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	if err := a.tree.WriteYAML(w); err != nil {
		a.logger.Error("Failed to render device tree.", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// eventsHandler returns the recent lifecycle events as JSON.
func (a *App) eventsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(a.recorder.Events()); err != nil {
		a.logger.Error("Failed to encode events.", "error", err)
	}
}

func (a *App) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", a.healthHandler)
	mux.HandleFunc("/tree", a.treeHandler)
	mux.HandleFunc("/events", a.eventsHandler)
	mux.Handle("/metrics", a.metrics.Handler())
	return mux
}

// startHTTPServer starts the health, metrics and tree server when a port is
// configured. The listener is bound before returning.
func (a *App) startHTTPServer(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	if a.config.HTTPPort <= 0 {
		logger.Debug("HTTP server not started: disabled")
		return nil
	}

	addr := fmt.Sprintf(":%d", a.config.HTTPPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	a.httpServer = &http.Server{Handler: a.handler()}

	go func() {
		logger.Info("🩺 HTTP server starting", "address", fmt.Sprintf("http://localhost%s/health", addr))
		// Serve returns ErrServerClosed on graceful shutdown.
		if err := a.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed unexpectedly", "error", err)
		}
	}()
	return nil
}

func (a *App) closeHTTPServer(ctx context.Context) error {
	if a.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	ctxlog.FromContext(ctx).Info("🩺 Shutting down HTTP server...")
	if err := a.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}
