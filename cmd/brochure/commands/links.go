package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/SirClappington/brochure-backend/internal/app"
)

// links --url <website>: show the pages a brochure would be written from.
func linksCmd() *cobra.Command {
	var (
		llm  llmFlags
		site string
	)

	cmd := &cobra.Command{
		Use:   "links",
		Short: "Print the brochure-relevant links of a website",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			llm.apply()
			if err := cfg.Validate(); err != nil {
				return err
			}

			a, err := app.New(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			links, err := a.Brochures.SelectLinks(cmd.Context(), site)
			if err != nil {
				return err
			}
			for _, l := range links {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", l.Type, l.URL)
			}
			return nil
		},
	}

	llm.register(cmd)
	cmd.Flags().StringVar(&site, "url", "", "company website")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}
