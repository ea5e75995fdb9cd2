package commands

import (
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/54b3r/docchat-go/internal/embedder"
	"github.com/54b3r/docchat-go/internal/ingestion"
	"github.com/54b3r/docchat-go/internal/logging"
	"github.com/54b3r/docchat-go/internal/rag"
)

// NewIngestCmd constructs the `docchat ingest` command, which attaches files
// to a conversation and optionally drains the ingestion queue in-process.
func NewIngestCmd() *cobra.Command {
	var (
		conversation string
		owner        string
		wait         bool
	)

	cmd := &cobra.Command{
		Use:   "ingest [file]...",
		Short: "Attach files to a conversation and queue them for indexing",
		Long: `Register one or more files as attachments of a conversation. Each file is
queued in the pending state; the ingestion worker chunks it, embeds it with
the active embedding model, and writes the vectors to the vector store.

With --wait the queue is drained in-process before the command returns, so a
following 'docchat ask' sees the new attachments immediately. Without it a
running 'docchat worker' picks the files up.

Examples:
  docchat ingest --conversation notes contract.txt appendix.txt
  docchat ingest --conversation notes --wait report.md`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			if err := embedder.ValidateEnv(log); err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			files, err := openFileStore()
			if err != nil {
				return fmt.Errorf("ingest: failed to open file store: %w", err)
			}
			defer files.Close()

			for _, path := range args {
				abs, err := filepath.Abs(path)
				if err != nil {
					return fmt.Errorf("ingest: resolve %s: %w", path, err)
				}
				ref := rag.FileRef{
					ID:             uuid.NewString(),
					ConversationID: conversation,
					OwnerID:        owner,
					Filename:       filepath.Base(abs),
					Path:           abs,
				}
				if err := files.Create(ctx, ref); err != nil {
					return fmt.Errorf("ingest: %w", err)
				}
				fmt.Printf("queued %s (%s)\n", ref.Filename, ref.ID)
			}

			if !wait {
				fmt.Println("files queued — run 'docchat worker' to index them")
				return nil
			}

			registry, err := embedder.NewRegistryFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("ingest: failed to initialise embedders: %w", err)
			}
			router, closeRouter, err := buildRouter(ctx, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer closeRouter()

			worker, err := ingestion.NewWorker(&ingestion.Config{
				Files:        files,
				Embedders:    registry,
				Store:        router,
				ChunkSize:    getEnvInt("INGEST_CHUNK_SIZE", 0),
				ChunkOverlap: getEnvInt("INGEST_CHUNK_OVERLAP", 0),
			})
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			for {
				processed, err := worker.RunOnce(ctx)
				if err != nil {
					return fmt.Errorf("ingest: %w", err)
				}
				if !processed {
					break
				}
			}
			fmt.Println("ingestion complete")
			return nil
		},
	}

	cmd.Flags().StringVarP(&conversation, "conversation", "c", "", "Conversation to attach the files to (required)")
	cmd.Flags().StringVarP(&owner, "owner", "o", "local", "Owner of the conversation")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Drain the ingestion queue before returning")
	_ = cmd.MarkFlagRequired("conversation")

	return cmd
}
