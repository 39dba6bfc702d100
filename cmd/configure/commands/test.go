package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/emeraldgrove/grove-relay/internal/config"
	"github.com/emeraldgrove/grove-relay/internal/models"
	"github.com/emeraldgrove/grove-relay/internal/services/ai"
	"github.com/emeraldgrove/grove-relay/internal/sse"
	"github.com/spf13/cobra"
)

type testOptions struct {
	prompt       string
	systemPrompt string
	model        string
	maxTokens    int
	stream       bool
}

// NewTestCmd creates the test command
func NewTestCmd() *cobra.Command {
	var opts testOptions

	cmd := &cobra.Command{
		Use:   "test",
		Short: "Send one prompt to the upstream",
		Long:  "Send a single prompt to the configured upstream with the relay's credentials and defaults, printing the reply",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(opts.prompt) == "" {
				return fmt.Errorf("--prompt is required")
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			provider := ai.NewOpenRouterClient(ai.Options{
				APIKey:    cfg.OpenRouterKey,
				BaseURL:   cfg.OpenRouterBaseURL,
				SiteURL:   cfg.SiteURL,
				SiteTitle: cfg.SiteTitle,
				Timeout:   cfg.UpstreamTimeout,
			})
			return runTest(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), provider, cfg, opts)
		},
	}

	cmd.Flags().StringVar(&opts.prompt, "prompt", "", "User message to send (required)")
	cmd.Flags().StringVar(&opts.systemPrompt, "system", "", "System prompt to apply")
	cmd.Flags().StringVar(&opts.model, "model", "", "Model to use (defaults to AI_MODEL)")
	cmd.Flags().IntVar(&opts.maxTokens, "max-tokens", 0, "Maximum tokens to generate (defaults to AI_MAX_TOKENS)")
	cmd.Flags().BoolVar(&opts.stream, "stream", false, "Stream the reply as it is generated")

	return cmd
}

func runTest(ctx context.Context, out, errOut io.Writer, provider ai.Provider, cfg *config.Config, opts testOptions) error {
	if !provider.Configured() {
		return ai.ErrNotConfigured
	}

	model := opts.model
	if model == "" {
		model = cfg.AIModel
	}
	maxTokens := opts.maxTokens
	if maxTokens <= 0 {
		maxTokens = cfg.AIMaxTokens
	}
	messages := []models.Message{{Role: models.RoleUser, Content: models.TextContent(opts.prompt)}}
	if opts.systemPrompt != "" {
		messages = ai.ApplySystemPrompt(messages, opts.systemPrompt)
	}

	fmt.Fprintf(errOut, "Sending prompt to %s (model %s, stream %t)\n", cfg.OpenRouterBaseURL, model, opts.stream)

	resp, err := provider.ChatCompletion(ctx, ai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: cfg.AITemperature,
		MaxTokens:   maxTokens,
		Stream:      opts.stream,
	})
	if err != nil {
		var upstreamErr *ai.UpstreamError
		if errors.As(err, &upstreamErr) {
			return fmt.Errorf("upstream returned status %d: %s", upstreamErr.StatusCode, strings.TrimSpace(string(upstreamErr.Body)))
		}
		return fmt.Errorf("upstream request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if opts.stream {
		err := sse.Relay(ctx, resp.Body, func(f sse.Frame) error {
			_, err := io.WriteString(out, f.Content)
			return err
		})
		fmt.Fprintln(out)
		if err != nil {
			return fmt.Errorf("stream interrupted: %w", err)
		}
		return nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read upstream response: %w", err)
	}
	completion := ai.ParseCompletion(body)
	fmt.Fprintln(out, completion.Message)
	if completion.Model != "" {
		fmt.Fprintf(errOut, "Model: %s\n", completion.Model)
	}
	return nil
}
