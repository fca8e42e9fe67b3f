package commands

import (
	"fmt"
	"strings"

	"github.com/dyluth/deck/internal/printer"
	"github.com/spf13/cobra"
)

var (
	createUserID   string
	createNickname string
)

var createCmd = &cobra.Command{
	Use:   "create TITLE",
	Short: "Create a presentation",
	Long: `Create a presentation with one empty slide.

The creator becomes its owner. The new presentation's id is printed on
success.`,
	Args: cobra.ExactArgs(1),
	RunE: runCreate,
}

func init() {
	createCmd.Flags().StringVar(&createUserID, "user", "", "Creator's user id (required)")
	createCmd.Flags().StringVar(&createNickname, "nickname", "", "Creator's display name (defaults to --user)")
	createCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(createCmd)
}

func runCreate(cmd *cobra.Command, args []string) error {
	title := strings.TrimSpace(args[0])
	if title == "" {
		return printer.Error("title required", "A presentation needs a non-empty title.", nil)
	}
	nickname := createNickname
	if nickname == "" {
		nickname = createUserID
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

	doc, err := store.Create(ctx, title, createUserID, nickname)
	if err != nil {
		return printer.Error("failed to create presentation", err.Error(), nil)
	}

	fmt.Fprintln(cmd.OutOrStdout(), doc.ID)
	return nil
}
