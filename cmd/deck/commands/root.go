package commands

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/dyluth/deck/internal/config"
	"github.com/dyluth/deck/internal/printer"
	"github.com/dyluth/deck/internal/resolver"
	"github.com/dyluth/deck/pkg/deck"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

var (
	version string
	commit  string
	date    string

	configPath string
	envFile    string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "deck",
	Short: "deck - real-time collaborative slide decks",
	Long: `deck serves presentations that several people edit at once.

Clients join a presentation over a WebSocket, edits are persisted to Redis
or SQLite and broadcast to everyone else in the presentation.`,
	Version: version,
	// Prevent silent success when unknown flags are passed to root command
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	FParseErrWhitelist: cobra.FParseErrWhitelist{},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	// We print formatted colored errors directly in the printer package
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to deck.yml")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file loaded before the config")
}

// loadConfig loads the env file, if present, then deck.yml. A missing
// deck.yml yields the defaults.
func loadConfig() (*config.DeckConfig, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, printer.Error(
				"failed to load environment file",
				fmt.Sprintf("Could not read %s: %v", envFile, err),
				[]string{"Fix the file or pass --env-file=\"\" to skip it"},
			)
		}
	}

	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, printer.Error(
			"invalid configuration",
			err.Error(),
			[]string{fmt.Sprintf("Check %s, or create one with:\n  deck init", configPath)},
		)
	}
	return cfg, nil
}

// openStore connects to the configured backend and checks it is reachable.
// The Redis backend is returned as well when it is in use, for commands that
// need its Pub/Sub channel.
func openStore(ctx context.Context, cfg *config.DeckConfig) (*deck.Store, *deck.RedisBackend, error) {
	var backend deck.Backend
	var redisBackend *deck.RedisBackend

	switch cfg.Store.Backend {
	case config.BackendSQLite:
		b, err := deck.NewSQLiteBackend(cfg.Store.SQLitePath)
		if err != nil {
			return nil, nil, printer.Error(
				"failed to open SQLite store",
				err.Error(),
				[]string{fmt.Sprintf("Check that %s is writable", cfg.Store.SQLitePath)},
			)
		}
		backend = b

	default:
		opts, err := redis.ParseURL(cfg.Store.RedisURL)
		if err != nil {
			return nil, nil, printer.Error("invalid Redis URL", err.Error(), nil)
		}
		b, err := deck.NewRedisBackend(opts, cfg.Instance)
		if err != nil {
			return nil, nil, printer.Error("failed to create Redis client", err.Error(), nil)
		}
		backend = b
		redisBackend = b
	}

	store := deck.NewStore(backend)
	if err := store.Ping(ctx); err != nil {
		store.Close()
		return nil, nil, printer.ErrorWithContext(
			"store unreachable",
			"Could not reach the document store.",
			map[string]string{
				"Backend":  cfg.Store.Backend,
				"Instance": cfg.Instance,
				"Error":    err.Error(),
			},
			[]string{
				"Start Redis, or set REDIS_URL to a reachable server",
				"Use the SQLite backend:\n  DECK_STORE_BACKEND=sqlite deck serve",
			},
		)
	}

	return store, redisBackend, nil
}

// resolveID expands a full or short presentation id, printing a report when
// it matches nothing or several presentations.
func resolveID(ctx context.Context, cfg *config.DeckConfig, store *deck.Store, shortID string) (string, error) {
	scanner, ok := store.Backend().(resolver.Scanner)
	if !ok {
		return "", printer.Error("short ids unsupported", fmt.Sprintf("The %s backend cannot search ids.", cfg.Store.Backend), nil)
	}

	id, err := resolver.ResolveDocumentID(ctx, scanner, shortID)
	if err == nil {
		return id, nil
	}

	var ambiguous *resolver.AmbiguousError
	switch {
	case errors.As(err, &ambiguous):
		return "", printer.Error(
			"ambiguous presentation id",
			fmt.Sprintf("'%s' matches several presentations:\n  %s", shortID, strings.Join(ambiguous.Candidates(), "\n  ")),
			[]string{"Use more characters of the id"},
		)
	case resolver.IsNotFoundError(err):
		return "", printer.Error(
			"presentation not found",
			fmt.Sprintf("No presentation matches '%s' in instance '%s'.", shortID, cfg.Instance),
			[]string{"List presentations with:\n  deck list"},
		)
	default:
		return "", printer.Error("failed to resolve presentation id", err.Error(), nil)
	}
}
