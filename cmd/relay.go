package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/desertthunder/jamroom/internal/relay"
	"github.com/desertthunder/jamroom/internal/server"
	"github.com/urfave/cli/v3"
)

// newRelayServer builds the relay HTTP handler over hub.
func (r *Runner) newRelayServer(hub *relay.Hub) http.Handler {
	router := server.NewRouter()
	router.Use(server.RequestLogger(r.logger))
	router.Handler(server.NewRelayHandler(hub, r.logger))
	router.Handler(server.NewHealthHandler(hub))
	return router
}

// RelayServe runs the WebSocket relay until interrupted.
func (r *Runner) RelayServe(ctx context.Context, cmd *cli.Command) error {
	if err := r.load(cmd); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := cmd.String("addr")
	hub := relay.NewHub(r.logger)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           r.newRelayServer(hub),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		r.logger.Info("relay listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
		close(serverErrors)
	}()

	r.writePlain("Relay listening on ws://%s/ws/rooms/{room}\n", addr)

	select {
	case err := <-serverErrors:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	r.logger.Info("shutting down relay", "rooms", hub.Rooms())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Warn("error shutting down server", "error", err)
	}
	return nil
}
