package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newSuggestCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "suggest <prefix>",
		Short: "List autocomplete suggestions for a prefix",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			components, err := openComponents(cmd.Context(), global)
			if err != nil {
				return err
			}
			defer components.Close()

			suggestions, err := components.Autocomplete.Suggest(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			for _, s := range suggestions {
				fmt.Fprintln(cmd.OutOrStdout(), s)
			}
			return nil
		},
	}
}

func newClickCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "click <phrase>",
		Short: "Record a suggestion click",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			components, err := openComponents(cmd.Context(), global)
			if err != nil {
				return err
			}
			defer components.Close()

			phrase := strings.Join(args, " ")
			matched, err := components.Autocomplete.RecordClick(cmd.Context(), phrase)
			if err != nil {
				return err
			}
			if !matched {
				fmt.Fprintf(cmd.OutOrStdout(), "%q is not a known suggestion\n", phrase)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "click recorded for %q\n", phrase)
			return nil
		},
	}
}
