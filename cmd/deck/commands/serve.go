package commands

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dyluth/deck/internal/collab"
	"github.com/dyluth/deck/internal/config"
	"github.com/dyluth/deck/internal/printer"
	"github.com/dyluth/deck/internal/retry"
	"github.com/dyluth/deck/internal/server"
	"github.com/dyluth/deck/internal/session"
	"github.com/dyluth/deck/pkg/deck"
	"github.com/spf13/cobra"
)

var (
	serveAddr            string
	serveShutdownTimeout time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the collaboration server",
	Long: `Run the HTTP and WebSocket server.

Clients connect to /ws and exchange JSON frames of the form
{"event": "...", "data": {...}}. Presentations are created and listed
over /api/presentations, and /healthz reports whether the store is
reachable.

The server stops on SIGINT or SIGTERM, closing every connection and
waiting for in-flight edits to finish.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides server.addr)")
	serveCmd.Flags().DurationVar(&serveShutdownTimeout, "shutdown-timeout", 10*time.Second, "How long to wait for in-flight edits on shutdown")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, redisBackend, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	srv := newServer(cfg, store, redisBackend)
	if err := srv.Start(); err != nil {
		return printer.Error(
			"failed to start server",
			err.Error(),
			[]string{"Choose another address:\n  deck serve --addr=:3002"},
		)
	}

	printer.Success("Serving instance '%s' on %s (%s store)\n", cfg.Instance, srv.Addr(), cfg.Store.Backend)

	<-ctx.Done()
	log.Printf("[Server] Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), serveShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown incomplete: %w", err)
	}

	printer.Info("Server stopped\n")
	return nil
}

// newServer wires the session registry, fanout and handlers for cfg. When
// the Redis backend is in use every broadcast is mirrored to its event
// channel for deck watch.
func newServer(cfg *config.DeckConfig, store *deck.Store, redisBackend *deck.RedisBackend) *server.Server {
	var publisher session.Publisher
	if redisBackend != nil {
		publisher = redisBackend
	}

	fanout := session.NewFanout(session.NewRegistry(), publisher)
	handlers := collab.New(store, fanout, collab.Options{
		InstanceName: cfg.Instance,
		Retry:        retryPolicy(cfg),
		RoleChange:   collab.RoleChangePolicy(cfg.Policy.RoleChange),
	})

	return server.New(store, handlers, server.Options{
		Addr:           cfg.Server.Addr,
		InstanceName:   cfg.Instance,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})
}

func retryPolicy(cfg *config.DeckConfig) retry.Policy {
	return retry.Policy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		Backoff:     retry.Exponential(cfg.Retry.BaseBackoff),
		IsRetryable: deck.IsConflict,
		Notify: func(err error, wait time.Duration) {
			log.Printf("[Collab] Retrying after %s: %v", wait, err)
		},
	}
}
