package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hpungsan/snapfood/internal/logging"
	"github.com/hpungsan/snapfood/internal/ops"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// NewServer creates and configures the HTTP server for the Snapfood API.
func NewServer(svc *ops.Service, log *zap.Logger, version, bind string, port int) *http.Server {
	log = logging.OrNop(log).Named("web")
	hub := newHub(svc, log)
	h := &Handlers{
		svc:     svc,
		hub:     hub,
		log:     log,
		version: version,
	}

	mux := http.NewServeMux()

	// Routes using Go 1.22+ pattern syntax
	mux.HandleFunc("GET /healthz", h.HandleHealth)
	mux.HandleFunc("POST /evaluate", h.HandleEvaluate)
	mux.HandleFunc("POST /scans", h.HandleRecordScan)
	mux.HandleFunc("GET /queue", h.HandleListQueue)
	mux.HandleFunc("GET /queue/status", h.HandleQueueStatus)
	mux.HandleFunc("GET /queue/{id}/report", h.HandleReport)
	mux.HandleFunc("DELETE /queue/{id}", h.HandleRemove)
	mux.HandleFunc("POST /sync", h.HandleSync)
	mux.HandleFunc("POST /connectivity", h.HandleConnectivity)
	mux.HandleFunc("GET /offline-mode", h.HandleGetOfflineMode)
	mux.HandleFunc("PUT /offline-mode", h.HandleSetOfflineMode)
	mux.HandleFunc("GET /ws", hub.HandleWebSocket)

	// Wrap with security headers
	handler := securityHeaders(mux)

	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", bind, port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// securityHeaders adds security-related HTTP headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'none'; style-src 'self'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

// Run serves until ctx is done, then shuts down gracefully.
func Run(ctx context.Context, srv *http.Server, log *zap.Logger) error {
	log = logging.OrNop(log).Named("web")

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	log.Info("snapfood API running", zap.String("addr", "http://"+srv.Addr))

	if strings.Contains(srv.Addr, "0.0.0.0") || strings.Contains(srv.Addr, "::") {
		log.Warn("server is binding to all interfaces and may be accessible from the network")
	}

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
