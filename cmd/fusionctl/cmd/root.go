// Package cmd provides the fusionctl commands.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/fusion-search/internal/app"
	"github.com/Adithya-Monish-Kumar-K/fusion-search/internal/retrieval"
	"github.com/Adithya-Monish-Kumar-K/fusion-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/fusion-search/pkg/logger"
)

type globalOptions struct {
	configPath string
	logLevel   string
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	var opts globalOptions

	cmd := &cobra.Command{
		Use:   "fusionctl",
		Short: "Inspect fused search results against local indexes",
		Long: `fusionctl runs searches, suggestions and clicks directly against the
indexes written by the indexer, without a running search service.

Examples:
  fusionctl search "redis eviction" --syntactic bm25,fulltext --aggregation rank_fusion
  fusionctl suggest red
  fusionctl click "redis cache"`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			slog.SetDefault(logger.New(cmd.ErrOrStderr(), opts.logLevel, "text"))
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "configs/development.yaml", "path to config file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level: debug, info, warn, error")

	cmd.AddCommand(newSearchCmd(&opts))
	cmd.AddCommand(newSuggestCmd(&opts))
	cmd.AddCommand(newClickCmd(&opts))
	cmd.AddCommand(newMethodsCmd(&opts))
	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().ExecuteContext(context.Background())
}

func openComponents(ctx context.Context, opts *globalOptions) (*app.Components, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(cfg.SQLite.Path); err != nil {
		return nil, fmt.Errorf("no corpus database at %s, run the indexer first", cfg.SQLite.Path)
	}
	return app.Open(ctx, cfg, nil)
}

func newMethodsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "methods",
		Short: "List the retrieval methods enabled by the config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			components, err := openComponents(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer components.Close()
			out := cmd.OutOrStdout()
			for _, kind := range []retrieval.Kind{retrieval.Syntactic, retrieval.Semantic} {
				for _, m := range components.Registry.Methods(kind) {
					fmt.Fprintf(out, "%-10s %s\n", kind, m)
				}
			}
			return nil
		},
	}
}
