package commands

import (
	"github.com/dyluth/deck/internal/listing"
	"github.com/dyluth/deck/internal/printer"
	"github.com/dyluth/deck/internal/timespec"
	"github.com/spf13/cobra"
)

var (
	listOutput string
	listSince  string
	listUntil  string
	listTitle  string
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List presentations",
	Long: `List every presentation in the store, oldest first.

Output formats:
  default  Table with id, title, slide count and age
  jsonl    One JSON summary per line

Time filters accept durations relative to now (1h30m) or RFC3339
timestamps.

Examples:
  deck list
  deck list --since=24h --title='Q*'
  deck list --output=jsonl | jq .title`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	listCmd.Flags().StringVarP(&listOutput, "output", "o", "default", "Output format: default or jsonl")
	listCmd.Flags().StringVar(&listSince, "since", "", "Only presentations created at or after this time")
	listCmd.Flags().StringVar(&listUntil, "until", "", "Only presentations created before this time")
	listCmd.Flags().StringVar(&listTitle, "title", "", "Case-insensitive glob on the title")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	format, err := listing.ParseOutputFormat(listOutput)
	if err != nil {
		return printer.Error("invalid output format", err.Error(), []string{"Use --output=default or --output=jsonl"})
	}

	window, err := timespec.ParseRange(listSince, listUntil)
	if err != nil {
		return printer.Error(
			"invalid time filter",
			err.Error(),
			[]string{"Use a duration such as 2h or an RFC3339 timestamp such as 2026-01-02T15:04:05Z"},
		)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	store, _, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	filters := &listing.FilterCriteria{Window: window, TitleGlob: listTitle}
	if err := listing.ListDocuments(ctx, store, cfg.Instance, format, filters, cmd.OutOrStdout()); err != nil {
		return printer.Error("failed to list presentations", err.Error(), nil)
	}
	return nil
}
