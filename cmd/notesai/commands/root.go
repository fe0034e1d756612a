// Package commands defines all Cobra CLI commands for the notesai binary.
package commands

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/54b3r/notesai-go/internal/audit"
	"github.com/54b3r/notesai-go/internal/config"
	"github.com/54b3r/notesai-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "notesai",
		Short: "Ask questions about your OneNote notebooks",
		Long: `notesai indexes your OneNote pages and answers questions from them.

Pages are fetched through Microsoft Graph, split into overlapping chunks,
embedded and stored in a vector index. Questions are answered by a
generative model that only sees the most similar passages.

Backends are selected with MODEL_PROVIDER, EMBEDDING_PROVIDER and
INDEX_BACKEND, or a YAML config file (~/.notesai/config.yaml).
A .env file in the working directory is loaded first.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// .env must be loaded before the logger reads LOG_LEVEL.
			if err := config.LoadDotEnv(".env"); err != nil {
				return err
			}

			log := logging.New()
			slog.SetDefault(log)

			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}

			ctx := logging.WithLogger(cmd.Context(), log)
			cmd.SetContext(ctx)

			audit.LogCommandStart(ctx, log, cmd.Name(), path)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.notesai/config.yaml)")

	root.AddCommand(
		NewAskCmd(),
		NewIngestCmd(),
		NewServeCmd(),
		NewVersionCmd(),
	)

	return root
}
