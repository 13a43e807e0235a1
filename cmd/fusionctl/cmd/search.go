package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/fusion-search/internal/searcher"
)

type searchOptions struct {
	aggregation string
	syntactic   []string
	semantic    []string
	options     []string
	format      string
}

func newSearchCmd(global *globalOptions) *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run a fused search",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			components, err := openComponents(ctx, global)
			if err != nil {
				return err
			}
			defer components.Close()

			docs, err := components.Documents(ctx)
			if err != nil {
				return err
			}
			if err := components.LoadProviders(ctx, docs); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
			}

			svc := searcher.New(components.Registry, components.SearchConfig())
			resp, err := svc.Search(ctx, searcher.Request{
				Query:       strings.Join(args, " "),
				Aggregation: opts.aggregation,
				Syntactic:   opts.syntactic,
				Semantic:    opts.semantic,
				Options:     opts.options,
			})
			if err != nil {
				return err
			}
			return writeResponse(cmd.OutOrStdout(), resp, opts.format)
		},
	}

	cmd.Flags().StringVarP(&opts.aggregation, "aggregation", "a", "", "linear, rank_fusion, cascade or single (default from config)")
	cmd.Flags().StringSliceVar(&opts.syntactic, "syntactic", []string{"bm25"}, "syntactic methods")
	cmd.Flags().StringSliceVar(&opts.semantic, "semantic", nil, "semantic methods")
	cmd.Flags().StringSliceVar(&opts.options, "options", nil, "request options")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "output format: text, json")
	return cmd
}

func writeResponse(w io.Writer, resp *searcher.Response, format string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	if len(resp.Results) == 0 {
		fmt.Fprintln(w, "no results")
		return nil
	}
	for i, r := range resp.Results {
		fmt.Fprintf(w, "%2d. %6.2f  %s (%s)\n", i+1, r.Score, r.Name, r.Path)
		for _, method := range slices.Sorted(maps.Keys(r.Breakdown)) {
			c := r.Breakdown[method]
			fmt.Fprintf(w, "      %-9s rank %d  +%.3f\n", method, c.Rank, c.Contribution)
		}
	}
	if resp.AIResponse != nil {
		fmt.Fprintf(w, "\n%s\n", *resp.AIResponse)
	}
	return nil
}
