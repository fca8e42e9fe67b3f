package commands

import (
	"github.com/dyluth/deck/internal/listing"
	"github.com/dyluth/deck/internal/printer"
	"github.com/spf13/cobra"
)

var showJSON bool

var showCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show one presentation",
	Long: `Show a presentation's participants and slides.

ID may be a full id or a unique prefix of at least six characters, as
printed by deck list.`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

func init() {
	showCmd.Flags().BoolVar(&showJSON, "json", false, "Print the stored document as JSON")
	rootCmd.AddCommand(showCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
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

	id, err := resolveID(ctx, cfg, store, args[0])
	if err != nil {
		return err
	}

	if err := listing.ShowDocument(ctx, store, id, showJSON, cmd.OutOrStdout()); err != nil {
		if listing.IsNotFound(err) {
			return printer.Error("presentation not found", err.Error(), nil)
		}
		return printer.Error("failed to show presentation", err.Error(), nil)
	}
	return nil
}
