package commands

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/cloudwego/eino/schema"
	"github.com/spf13/cobra"

	"github.com/54b3r/docchat-go/internal/logging"
	"github.com/54b3r/docchat-go/internal/provider"
	"github.com/54b3r/docchat-go/internal/retrieval"
)

// groundedSystemPrompt frames the model's answer around the retrieved
// context block.
const groundedSystemPrompt = `You are a helpful assistant. Answer the user's question using the
document excerpts below. Each excerpt is numbered and cites its source file
and chunk. Prefer information from the excerpts; when they do not cover the
question, say so before answering from general knowledge.

%s`

// plainSystemPrompt is used when no usable context could be retrieved.
const plainSystemPrompt = `You are a helpful assistant. No document excerpts are available for
this question, so answer from general knowledge and say that no attached
documents were used.`

// NewAskCmd constructs the `docchat ask` command, which retrieves context
// from the conversation's attachments and streams the model's answer.
func NewAskCmd() *cobra.Command {
	var (
		conversation   string
		owner          string
		mode           string
		topK           int
		fetchK         int
		scoreThreshold float32
		debug          bool
		noStream       bool
	)

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question grounded in the conversation's attachments",
		Long: `Ask a natural language question. Completed attachments of the conversation
are searched for relevant chunks, which are assembled into a context block
and handed to the chat model together with the question.

Examples:
  docchat ask --conversation notes "what does the contract say about termination?"
  docchat ask --conversation notes --mode full_file "summarise the attached report"
  docchat ask --conversation notes --top-k 10 --debug "who are the parties involved?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			files, err := openFileStore()
			if err != nil {
				return fmt.Errorf("ask: failed to open file store: %w", err)
			}
			defer files.Close()

			engine, _, closeEngine, err := buildEngine(ctx, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer closeEngine()

			chat, err := provider.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("ask: failed to initialise model provider: %w", err)
			}

			attachments, err := files.ListByConversation(ctx, conversation, owner)
			if err != nil {
				return fmt.Errorf("ask: failed to list attachments: %w", err)
			}

			req := &retrieval.Request{
				Query:  args[0],
				TopK:   topK,
				FetchK: fetchK,
				Files:  attachments,
				Mode:   retrieval.Mode(mode),
				Debug:  debug,
			}
			if cmd.Flags().Changed("score-threshold") {
				req.ScoreThreshold = &scoreThreshold
			}

			outcome, err := engine.Retrieve(ctx, req)
			if err != nil {
				return fmt.Errorf("ask: retrieval failed: %w", err)
			}

			if debug && outcome.Debug != nil {
				enc := json.NewEncoder(os.Stderr)
				enc.SetIndent("", "  ")
				if err := enc.Encode(outcome.Debug); err != nil {
					log.Warn("failed to encode debug record", slog.String("error", err.Error()))
				}
			}

			system := plainSystemPrompt
			if outcome.RAGUsed {
				system = fmt.Sprintf(groundedSystemPrompt, outcome.ContextText)
			}
			messages := []*schema.Message{
				schema.SystemMessage(system),
				schema.UserMessage(args[0]),
			}

			if noStream {
				answer, err := chat.Generate(ctx, messages)
				if err != nil {
					return fmt.Errorf("ask: %w", err)
				}
				fmt.Println(answer)
				return nil
			}

			err = chat.GenerateStream(ctx, messages, func(delta string) error {
				_, werr := fmt.Print(delta)
				return werr
			})
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			fmt.Println()
			return nil
		},
	}

	cmd.Flags().StringVarP(&conversation, "conversation", "c", "", "Conversation the attachments belong to (required)")
	cmd.Flags().StringVarP(&owner, "owner", "o", "local", "Owner of the conversation")
	cmd.Flags().StringVarP(&mode, "mode", "m", getEnvOrDefault("RETRIEVAL_MODE", "hybrid"), "Retrieval mode: hybrid or full_file")
	cmd.Flags().IntVar(&topK, "top-k", getEnvInt("RETRIEVAL_TOP_K", 5), "Number of chunks to retrieve")
	cmd.Flags().IntVar(&fetchK, "fetch-k", getEnvInt("RETRIEVAL_FETCH_K", 0), "Oversampled neighbours per group (default: 4 × top-k)")
	cmd.Flags().Float32Var(&scoreThreshold, "score-threshold", getEnvFloat32("RETRIEVAL_SCORE_THRESHOLD", 0), "Drop chunks scoring below this similarity")
	cmd.Flags().BoolVar(&debug, "debug", false, "Print the retrieval debug record to stderr")
	cmd.Flags().BoolVar(&noStream, "no-stream", false, "Wait for the full answer instead of streaming")
	_ = cmd.MarkFlagRequired("conversation")

	return cmd
}
