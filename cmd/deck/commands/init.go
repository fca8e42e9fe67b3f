package commands

import (
	"fmt"
	"os"

	"github.com/dyluth/deck/internal/config"
	"github.com/dyluth/deck/internal/printer"
	"github.com/dyluth/deck/internal/scaffold"
	"github.com/spf13/cobra"
)

var (
	forceInit    bool
	initDir      string
	initInstance string
	initBackend  string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter deck.yml",
	Long: `Write a starter deck.yml and .env.example into the target directory.

Creates:
  • deck.yml      - Server, store, retry and policy settings
  • .env.example  - Environment overrides for deck.yml

Use --force to overwrite existing files.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "Overwrite existing files")
	initCmd.Flags().StringVar(&initDir, "dir", ".", "Directory to write into")
	initCmd.Flags().StringVar(&initInstance, "instance", "", "Instance name (default \"default\")")
	initCmd.Flags().StringVar(&initBackend, "backend", config.BackendRedis, "Store backend: redis or sqlite")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	if info, err := os.Stat(initDir); err != nil || !info.IsDir() {
		return printer.Error(
			"target directory not found",
			fmt.Sprintf("%s is not a directory.", initDir),
			[]string{"Create it first, or pass --dir with an existing directory"},
		)
	}

	created, err := scaffold.Initialize(initDir, scaffold.Options{
		Instance: initInstance,
		Backend:  initBackend,
	}, forceInit)
	if err != nil {
		return printer.Error(
			"initialization failed",
			err.Error(),
			[]string{"Run with --force to overwrite existing files:\n  deck init --force"},
		)
	}

	printer.Success("Initialized deck configuration\n\n")
	for _, path := range created {
		printer.Println("  " + path)
	}
	printer.Println()
	printer.Info("Next: start the server with\n  deck serve\n")
	return nil
}
