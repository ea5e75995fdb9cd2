package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/54b3r/docchat-go/internal/provider"
)

// NewModelsCmd constructs the `docchat models` command, which lists the
// models the configured chat backend can serve.
func NewModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models available from the configured chat backend",
		Long: `List the models the configured chat backend can serve.

For Ollama the server is queried live; for hosted backends (and whenever the
backend cannot be reached) the configured model plus MODEL_FALLBACK_MODELS
is printed instead.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			chat, err := provider.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("models: failed to initialise model provider: %w", err)
			}

			for _, m := range chat.AvailableModels(ctx) {
				fmt.Println(m)
			}
			return nil
		},
	}
}
