package commands

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/SirClappington/brochure-backend/internal/services"
)

// chat [question]: one turn against the configured model.
func chatCmd() *cobra.Command {
	var (
		llm         llmFlags
		system      string
		temperature float64
		stream      bool
	)

	cmd := &cobra.Command{
		Use:   "chat [question]",
		Short: "Ask the configured model a single question",
		RunE: func(cmd *cobra.Command, args []string) error {
			llm.apply()
			if err := cfg.Validate(); err != nil {
				return err
			}

			question := strings.TrimSpace(strings.Join(args, " "))
			if question == "" {
				var err error
				question, err = readQuestion(cmd.InOrStdin(), cmd.ErrOrStderr())
				if err != nil {
					return err
				}
			}
			if question == "" {
				return fmt.Errorf("no question given")
			}

			client, err := services.NewLLMClient(cmd.Context(), cfg.LLM, log)
			if err != nil {
				return err
			}

			req := services.ChatRequest{Model: cfg.LLM.Model}
			if system != "" {
				req.Messages = append(req.Messages, services.Message{Role: services.RoleSystem, Content: system})
			}
			req.Messages = append(req.Messages, services.Message{Role: services.RoleUser, Content: question})
			if cmd.Flags().Changed("temperature") {
				req.Temperature = services.Float64Ptr(temperature)
			}

			stdout := cmd.OutOrStdout()
			if stream {
				_, err = client.Stream(cmd.Context(), req, func(chunk string) error {
					_, err := fmt.Fprint(stdout, chunk)
					return err
				})
				fmt.Fprintln(stdout)
				return err
			}

			answer, err := client.Complete(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintln(stdout, strings.TrimSpace(answer))
			return nil
		},
	}

	llm.register(cmd)
	cmd.Flags().StringVar(&system, "system", "", "optional system prompt")
	cmd.Flags().Float64Var(&temperature, "temperature", 0.7, "sampling temperature")
	cmd.Flags().BoolVar(&stream, "stream", false, "print the answer as it is generated")
	return cmd
}

func readQuestion(in io.Reader, prompt io.Writer) (string, error) {
	fmt.Fprint(prompt, "> ")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read question: %w", err)
	}
	return strings.TrimSpace(line), nil
}
