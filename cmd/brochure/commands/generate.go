package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/SirClappington/brochure-backend/internal/app"
	"github.com/SirClappington/brochure-backend/internal/models"
)

type llmFlags struct {
	model    string
	baseURL  string
	provider string
}

func (f *llmFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.model, "model", "", "model name (default from config, gemma3:latest)")
	cmd.Flags().StringVar(&f.baseURL, "base-url", "", "OpenAI-compatible or Ollama base URL")
	cmd.Flags().StringVar(&f.provider, "provider", "", "LLM provider: openai, ollama or gemini")
}

func (f *llmFlags) apply() {
	if f.model != "" {
		cfg.LLM.Model = f.model
	}
	if f.baseURL != "" {
		cfg.LLM.BaseURL = f.baseURL
	}
	if f.provider != "" {
		cfg.LLM.Provider = f.provider
	}
	cfg.LLM.ResolveProvider()
}

// generate --name <company> --url <website>: write a brochure to --out.
func generateCmd() *cobra.Command {
	var (
		llm      llmFlags
		name     string
		site     string
		out      string
		stream   bool
		render   bool
		maxPages int
		maxLinks int
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Scrape a company website and write a Markdown brochure",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			llm.apply()
			if cmd.Flags().Changed("max-pages") {
				cfg.Scrape.MaxPages = maxPages
			}
			if cmd.Flags().Changed("max-links") {
				cfg.Scrape.MaxLinks = maxLinks
			}
			if cmd.Flags().Changed("timeout") {
				cfg.Scrape.Timeout = timeout
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := app.New(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			stdout := cmd.OutOrStdout()
			var brochure *models.Brochure
			if stream {
				brochure, err = a.Brochures.Stream(ctx, name, site, func(chunk string) error {
					_, err := fmt.Fprint(stdout, chunk)
					return err
				})
				fmt.Fprintln(stdout)
			} else {
				brochure, err = a.Brochures.Generate(ctx, name, site)
			}
			if err != nil {
				return err
			}

			if err := os.WriteFile(out, []byte(brochure.Markdown+"\n"), 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", out, err)
			}

			if !stream {
				if err := printMarkdown(cmd, brochure.Markdown, render); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Saved brochure to %s\n", out)
			return nil
		},
	}

	llm.register(cmd)
	cmd.Flags().StringVar(&name, "name", "", "company name")
	cmd.Flags().StringVar(&site, "url", "", "company website, e.g. https://example.com")
	cmd.Flags().StringVarP(&out, "out", "o", "brochure.md", "output Markdown file")
	cmd.Flags().BoolVar(&stream, "stream", false, "print the brochure as it is generated")
	cmd.Flags().BoolVar(&render, "render", false, "render the Markdown for the terminal")
	cmd.Flags().IntVar(&maxPages, "max-pages", 6, "maximum pages to read, landing page included")
	cmd.Flags().IntVar(&maxLinks, "max-links", 200, "maximum candidate links sent to the model")
	cmd.Flags().DurationVar(&timeout, "timeout", 15*time.Second, "per-request fetch timeout")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}

func printMarkdown(cmd *cobra.Command, markdown string, render bool) error {
	if render {
		renderer, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(80),
		)
		if err != nil {
			return fmt.Errorf("failed to create renderer: %w", err)
		}
		rendered, err := renderer.Render(markdown)
		if err != nil {
			return fmt.Errorf("failed to render brochure: %w", err)
		}
		markdown = rendered
	}
	_, err := fmt.Fprintln(cmd.OutOrStdout(), markdown)
	return err
}
