package client

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/schollz/progressbar/v3"
)

const snippetLength = 120

var (
	successColor = color.New(color.FgGreen)
	labelColor   = color.New(color.FgCyan)
	warnColor    = color.New(color.FgYellow)
)

func writeJSON(w io.Writer, v any) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(output))
	return err
}

func newTransferBar(w io.Writer, total int64, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(w) }),
	)
}

func barProgress(bar *progressbar.ProgressBar) ProgressFunc {
	return func(current, _ int64) {
		_ = bar.Set64(current)
	}
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func snippet(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "…"
}

func printDocument(w io.Writer, doc *Document) {
	labelColor.Fprint(w, "ID:        ")
	fmt.Fprintln(w, doc.ID)
	labelColor.Fprint(w, "Filename:  ")
	fmt.Fprintln(w, doc.Filename)
	labelColor.Fprint(w, "Type:      ")
	fmt.Fprintln(w, doc.FileType)
	labelColor.Fprint(w, "Size:      ")
	fmt.Fprintln(w, formatBytes(doc.SizeBytes))
	labelColor.Fprint(w, "Chunks:    ")
	fmt.Fprintln(w, doc.ChunkCount)
	if doc.UploadedBy != "" {
		labelColor.Fprint(w, "Uploader:  ")
		fmt.Fprintln(w, doc.UploadedBy)
	}
	labelColor.Fprint(w, "SHA-256:   ")
	fmt.Fprintln(w, doc.SHA256)
	labelColor.Fprint(w, "Uploaded:  ")
	fmt.Fprintln(w, doc.CreatedAt)
	if doc.DownloadURL != "" {
		labelColor.Fprint(w, "Download:  ")
		fmt.Fprintln(w, doc.DownloadURL)
	}
}

func printDocuments(w io.Writer, docs []Document) error {
	if len(docs) == 0 {
		fmt.Fprintln(w, "No documents found")
		return nil
	}

	table := tablewriter.NewWriter(w)
	table.Header("ID", "Filename", "Type", "Size", "Chunks", "Uploaded By", "Created At")
	for _, d := range docs {
		if err := table.Append(
			d.ID,
			d.Filename,
			d.FileType,
			formatBytes(d.SizeBytes),
			fmt.Sprintf("%d", d.ChunkCount),
			d.UploadedBy,
			d.CreatedAt,
		); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\n%d document(s)\n", len(docs))
	return nil
}

func printChunks(w io.Writer, chunks []Chunk, full bool) {
	if len(chunks) == 0 {
		fmt.Fprintln(w, "No chunks found")
		return
	}

	for _, c := range chunks {
		header := labelColor.Sprintf("[%d]", c.ChunkIndex)
		source := c.EmbeddingSource
		if source != "model" {
			source = warnColor.Sprint(source)
		}
		fmt.Fprintf(w, "%s %s (%s)\n", header, c.ID, source)

		text := c.Text
		if !full {
			text = snippet(text, snippetLength)
		}
		fmt.Fprintf(w, "    %s\n", text)
	}
}

func printQueryResult(w io.Writer, result *QueryResult) error {
	fmt.Fprintln(w, result.Answer)
	fmt.Fprintln(w)

	labelColor.Fprint(w, "Confidence: ")
	fmt.Fprintf(w, "%.2f\n", result.Confidence)

	if len(result.Sources) == 0 {
		warnColor.Fprintln(w, "No matching sources")
		return nil
	}

	fmt.Fprintln(w)
	table := tablewriter.NewWriter(w)
	table.Header("Document", "Filename", "Chunk", "Similarity", "Keyword", "Score")
	for _, s := range result.Sources {
		if err := table.Append(
			s.DocumentID,
			s.Filename,
			fmt.Sprintf("%d", s.ChunkIndex),
			fmt.Sprintf("%.3f", s.Similarity),
			fmt.Sprintf("%.3f", s.KeywordScore),
			fmt.Sprintf("%.3f", s.CombinedScore),
		); err != nil {
			return err
		}
	}
	return table.Render()
}
