package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

type ServerConfig struct {
	Addr        string
	FrontendUrl string
}

// NewHandler wires every route behind CORS and request logging.
func NewHandler(frontendUrl string, deps Deps) http.Handler {
	r := mux.NewRouter()
	r.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
	r.Use(LoggingMiddleware)
	api(r, deps)
	sse(r, deps.Tracker)
	cors := cors.New(cors.Options{
		AllowedOrigins:   []string{frontendUrl},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowCredentials: true,
	})
	return cors.Handler(r)
}

// Server serves until ctx is cancelled, then shuts down gracefully.
func Server(ctx context.Context, cfg ServerConfig, deps Deps) error {
	slog.Info("Starting web server.", "addr", cfg.Addr)
	srv := &http.Server{
		Handler:      NewHandler(cfg.FrontendUrl, deps),
		Addr:         cfg.Addr,
		WriteTimeout: 30 * time.Second,
		ReadTimeout:  10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		slog.Info("Shutting down web server.")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
