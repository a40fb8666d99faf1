package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/goccy/go-json"

	"ipblacklist/internal/auth"
	"ipblacklist/internal/blacklist"
)

const shutdownTimeout = 10 * time.Second

// Dependencies are the collaborators the HTTP layer needs. Limiter may be nil.
type Dependencies struct {
	Registry  *blacklist.Registry
	Validator *auth.Validator
	Limiter   *RateLimiter
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+auth.HeaderName)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// NewRouter wires every route. The blacklist routes require an API key.
func NewRouter(deps Dependencies) http.Handler {
	router := http.NewServeMux()
	router.HandleFunc("GET /health", health)
	router.HandleFunc("GET /version", getVersion)

	protect := func(h http.HandlerFunc) http.Handler {
		return auth.RequireAPIKey(deps.Validator)(tagClient(deps.Limiter.Middleware(h)))
	}

	entries := &blacklistHandler{registry: deps.Registry}
	router.Handle("POST /blacklist", protect(entries.register))
	router.Handle("GET /blacklist", protect(entries.list))
	router.Handle("GET /blacklist/sync", protect(entries.sync))
	router.Handle("GET /blacklist/{key}", protect(entries.get))
	router.Handle("DELETE /blacklist/{id}", protect(entries.remove))

	log.Debug("Routes opened")
	return requestLogger(enableCORS(router))
}

// Serve runs the API until ctx is cancelled, then drains in-flight requests.
func Serve(ctx context.Context, port int, handler http.Handler) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Starting ipblacklist API on port :%d", port)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	log.Info("Shutting down ipblacklist API")
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}
	return nil
}
