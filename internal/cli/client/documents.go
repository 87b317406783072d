package client

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

// UploadCmd uploads a document for ingestion.
func UploadCmd() *cobra.Command {
	var uploadedBy string

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a document",
		Long:  "Uploads a PDF, DOCX, TXT, Markdown or HTML document. The server extracts, chunks and embeds it before responding.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")

			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			path := args[0]
			stat, err := os.Stat(path)
			if err != nil {
				return fmt.Errorf("failed to stat file: %w", err)
			}

			var onProgress ProgressFunc
			if !outputJSON {
				bar := newTransferBar(cmd.ErrOrStderr(), stat.Size(), "Uploading "+filepath.Base(path))
				onProgress = barProgress(bar)
			}

			doc, err := api.UploadDocument(cmd.Context(), path, uploadedBy, onProgress)
			if err != nil {
				return fmt.Errorf("upload failed: %w", err)
			}

			out := cmd.OutOrStdout()
			if outputJSON {
				return writeJSON(out, doc)
			}

			successColor.Fprintf(out, "✓ Uploaded %s\n", doc.Filename)
			printDocument(out, doc)
			return nil
		},
	}

	cmd.Flags().StringVar(&uploadedBy, "uploaded-by", "", "Name of the person uploading the document")

	return cmd
}

// ListCmd lists the company's documents.
func ListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List documents",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")

			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			docs, err := api.ListDocuments(cmd.Context())
			if err != nil {
				return fmt.Errorf("list failed: %w", err)
			}

			if outputJSON {
				if docs == nil {
					docs = []Document{}
				}
				return writeJSON(cmd.OutOrStdout(), docs)
			}
			return printDocuments(cmd.OutOrStdout(), docs)
		},
	}
}

// GetCmd shows one document's metadata.
func GetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show document metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")

			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			doc, err := api.GetDocument(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("get failed: %w", err)
			}

			if outputJSON {
				return writeJSON(cmd.OutOrStdout(), doc)
			}
			printDocument(cmd.OutOrStdout(), doc)
			return nil
		},
	}
}

// ChunksCmd prints a document's chunks in order.
func ChunksCmd() *cobra.Command {
	var full bool

	cmd := &cobra.Command{
		Use:   "chunks <id>",
		Short: "Show a document's chunks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")

			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			chunks, err := api.ListChunks(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("chunks failed: %w", err)
			}

			if outputJSON {
				if chunks == nil {
					chunks = []Chunk{}
				}
				return writeJSON(cmd.OutOrStdout(), chunks)
			}
			printChunks(cmd.OutOrStdout(), chunks, full)
			return nil
		},
	}

	cmd.Flags().BoolVar(&full, "full", false, "Print full chunk text instead of a snippet")

	return cmd
}

// DownloadCmd saves a document's original file.
func DownloadCmd() *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "download <id>",
		Short: "Download a document's original file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			doc, err := api.GetDocument(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("download failed: %w", err)
			}

			path := outputPath
			if path == "" {
				path = DownloadFilename(doc)
			}

			out, err := os.Create(path)
			if err != nil {
				return fmt.Errorf("failed to create output file: %w", err)
			}

			bar := newTransferBar(cmd.ErrOrStderr(), doc.SizeBytes, "Downloading "+doc.Filename)
			n, err := api.DownloadDocument(cmd.Context(), doc.ID, out, barProgress(bar))
			if closeErr := out.Close(); err == nil {
				err = closeErr
			}
			if err != nil {
				_ = os.Remove(path)
				return fmt.Errorf("download failed: %w", err)
			}

			successColor.Fprintf(cmd.OutOrStdout(), "✓ Saved %s (%s)\n", path, formatBytes(n))
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputPath, "out", "o", "", "Output path (defaults to the original filename)")

	return cmd
}

// DeleteCmd removes a document and its chunks.
func DeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a document",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")

			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			msg, err := api.DeleteDocument(cmd.Context(), args[0])
			if err != nil {
				if IsNotFound(err) {
					return fmt.Errorf("document %s not found", args[0])
				}
				return fmt.Errorf("delete failed: %w", err)
			}

			if outputJSON {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"id": args[0], "message": msg})
			}
			successColor.Fprintf(cmd.OutOrStdout(), "✓ %s\n", msg)
			return nil
		},
	}
}

// QueryCmd asks a question across the company's documents.
func QueryCmd() *cobra.Command {
	var (
		documentIDs []string
		topK        int
	)

	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Ask a question about your documents",
		Long:  "Retrieves the most relevant chunks and answers from them. Multiple words are joined into one question.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")

			question := strings.TrimSpace(strings.Join(args, " "))
			if question == "" {
				return errors.New("question is required")
			}
			if topK < 0 {
				return errors.New("--top-k must not be negative")
			}

			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			result, err := api.Query(cmd.Context(), QueryRequest{
				Question:    question,
				DocumentIDs: documentIDs,
				TopK:        topK,
			})
			if err != nil {
				return fmt.Errorf("query failed: %w", err)
			}

			if outputJSON {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			return printQueryResult(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().StringSliceVar(&documentIDs, "doc", nil, "Restrict to these document IDs (repeatable)")
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of chunks to retrieve (server default when 0)")

	return cmd
}
