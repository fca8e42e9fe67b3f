package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/dyluth/deck/internal/config"
	"github.com/dyluth/deck/internal/printer"
	"github.com/dyluth/deck/internal/watch"
	"github.com/spf13/cobra"
)

var watchOutput string

var watchCmd = &cobra.Command{
	Use:   "watch [ID]",
	Short: "Stream live presentation events",
	Long: `Stream every broadcast the server sends, as it happens.

With an ID only that presentation's events are shown. Requires the Redis
backend: events are read from the instance's Pub/Sub channel.

Output formats:
  default  One line per event
  jsonl    One JSON event per line`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchOutput, "output", "o", "default", "Output format: default or jsonl")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	format := watch.Format(watchOutput)
	if format != watch.FormatDefault && format != watch.FormatJSONL {
		return printer.Error("invalid output format", "unknown output format: "+watchOutput, []string{"Use --output=default or --output=jsonl"})
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Store.Backend != config.BackendRedis {
		return printer.Error(
			"watch requires the Redis backend",
			"Live events are only published when presentations are stored in Redis.",
			[]string{"Set store.backend: redis in deck.yml"},
		)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, redisBackend, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	documentID := ""
	if len(args) == 1 {
		documentID, err = resolveID(ctx, cfg, store, args[0])
		if err != nil {
			return err
		}
	}

	sub, err := redisBackend.SubscribeEvents(ctx)
	if err != nil {
		return printer.Error("failed to subscribe", err.Error(), nil)
	}
	defer sub.Close()

	if format == watch.FormatDefault {
		printer.Info("Watching instance '%s' (Ctrl+C to stop)\n", cfg.Instance)
	}

	_, err = watch.Stream(ctx, sub, cmd.OutOrStdout(), watch.Options{
		DocumentID: documentID,
		Format:     format,
		OnError: func(err error) {
			printer.Warning("%v\n", err)
		},
	})
	return err
}
