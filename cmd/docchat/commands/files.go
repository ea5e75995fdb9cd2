package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/54b3r/docchat-go/internal/embedder"
	"github.com/54b3r/docchat-go/internal/ingestion"
	"github.com/54b3r/docchat-go/internal/logging"
	"github.com/54b3r/docchat-go/internal/rag"
)

// NewFilesCmd constructs the `docchat files` command group for inspecting
// and removing attachments.
func NewFilesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "files",
		Short: "Inspect and manage conversation attachments",
	}
	cmd.AddCommand(newFilesListCmd(), newFilesRemoveCmd())
	return cmd
}

// newFilesListCmd constructs `docchat files list`.
func newFilesListCmd() *cobra.Command {
	var (
		conversation string
		owner        string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the attachments of a conversation",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			files, err := openFileStore()
			if err != nil {
				return fmt.Errorf("files: failed to open file store: %w", err)
			}
			defer files.Close()

			refs, err := files.ListByConversation(ctx, conversation, owner)
			if err != nil {
				return fmt.Errorf("files: %w", err)
			}
			if len(refs) == 0 {
				fmt.Println("no attachments")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tFILENAME\tSTATUS\tMODEL\tCHUNKS")
			for _, ref := range refs {
				status := string(ref.Status)
				if ref.Status == rag.StatusFailed {
					if reason, rerr := files.FailureReason(ctx, ref.ID); rerr == nil && reason != "" {
						status = fmt.Sprintf("failed (%s)", reason)
					}
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n",
					ref.ID, ref.Filename, status, ref.ModelTag, ref.TotalChunks)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&conversation, "conversation", "c", "", "Conversation to list (required)")
	cmd.Flags().StringVarP(&owner, "owner", "o", "local", "Owner of the conversation")
	_ = cmd.MarkFlagRequired("conversation")

	return cmd
}

// newFilesRemoveCmd constructs `docchat files rm`, which removes an
// attachment's vectors from every backend and then its metadata.
func newFilesRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm [file-id]...",
		Short: "Remove attachments and their indexed vectors",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			files, err := openFileStore()
			if err != nil {
				return fmt.Errorf("files: failed to open file store: %w", err)
			}
			defer files.Close()

			registry, err := embedder.NewRegistryFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("files: failed to initialise embedders: %w", err)
			}

			router, closeRouter, err := buildRouter(ctx, log)
			if err != nil {
				return fmt.Errorf("files: %w", err)
			}
			defer closeRouter()

			worker, err := ingestion.NewWorker(&ingestion.Config{
				Files:     files,
				Embedders: registry,
				Store:     router,
			})
			if err != nil {
				return fmt.Errorf("files: %w", err)
			}

			for _, id := range args {
				if err := worker.RemoveFile(ctx, id); err != nil {
					return fmt.Errorf("files: %w", err)
				}
				fmt.Printf("removed %s\n", id)
			}
			return nil
		},
	}
}
