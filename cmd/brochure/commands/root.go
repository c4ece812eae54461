package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/SirClappington/brochure-backend/internal/config"
	"github.com/SirClappington/brochure-backend/internal/logger"
)

var (
	configPath string
	verbose    bool

	cfg *config.Config
	log *zap.Logger
)

// NewRootCmd builds the brochure command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "brochure",
		Short:         "Generate company brochures from their websites with an LLM",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(); err != nil {
				return fmt.Errorf("failed to load .env file: %w", err)
			}

			var err error
			cfg, err = config.Load(configPath)
			if err != nil {
				return err
			}

			level := cfg.Logging.Level
			if verbose {
				level = "debug"
			}
			log, err = logger.New(level, true)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if log != nil {
				_ = log.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (default $BROCHURE_CONFIG or brochure.yaml)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(generateCmd(), linksCmd(), chatCmd())
	return root
}

// Execute runs the CLI. Errors are printed to stderr before being returned.
func Execute(ctx context.Context) error {
	root := NewRootCmd()
	err := root.ExecuteContext(ctx)
	if err != nil && ctx.Err() == nil {
		fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
	}
	return err
}
