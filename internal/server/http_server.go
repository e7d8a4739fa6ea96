package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// CreateServer creates and configures an HTTP server with the specified port and handler.
// It sets reasonable timeout values for production use.
func CreateServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// StartServer starts the HTTP server and begins listening for connections.
// It returns http.ErrServerClosed after a shutdown.
func StartServer(server *http.Server, log *slog.Logger) error {
	log.Info("Server listening", "addr", server.Addr)
	return server.ListenAndServe()
}

// ShutdownServer gracefully shuts down the HTTP server without interrupting active connections.
// It waits for active connections to close or until ctx is done.
func ShutdownServer(ctx context.Context, server *http.Server, log *slog.Logger) error {
	log.Info("Shutting down HTTP server...")

	if err := server.Shutdown(ctx); err != nil {
		log.Error("HTTP server shutdown error", "error", err)
		return err
	}

	log.Info("HTTP server shutdown completed")
	return nil
}
