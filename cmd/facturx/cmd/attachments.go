package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rezonia/facturx/internal/model"
	"github.com/rezonia/facturx/internal/pdfa"
)

var extractDir string

var attachmentsCmd = &cobra.Command{
	Use:   "attachments <pdf-file>",
	Short: "List the files embedded in a PDF",
	Long: `List the embedded files of a PDF together with its PDF/A and Factur-X
XMP identification. With --extract every attachment is written to the
given directory.

Examples:
  facturx attachments hybrid.pdf
  facturx attachments hybrid.pdf --extract ./out --format json`,
	Args: cobra.ExactArgs(1),
	RunE: runAttachments,
}

func init() {
	rootCmd.AddCommand(attachmentsCmd)

	attachmentsCmd.Flags().StringVarP(&extractDir, "extract", "x", "", "Directory to write the attachments to")
}

// AttachmentsResult is the JSON output of the attachments command
type AttachmentsResult struct {
	File     string               `json:"file"`
	Version  string               `json:"version"`
	Files    []model.EmbeddedFile `json:"files"`
	Metadata *pdfa.XMPInfo        `json:"metadata,omitempty"`
}

func runAttachments(cmd *cobra.Command, args []string) error {
	pdf, err := readInput(cmd.InOrStdin(), args[0])
	if err != nil {
		return err
	}

	pipeline := newPipeline()
	files, err := pipeline.ListEmbeddedFiles(pdf)
	if err != nil {
		return err
	}
	meta, err := pipeline.Metadata(pdf)
	if err != nil {
		return err
	}
	version, err := pdfa.Version(pdf)
	if err != nil {
		return err
	}

	if extractDir != "" {
		if err := extract(files, extractDir); err != nil {
			return err
		}
	}

	result := AttachmentsResult{File: args[0], Version: version, Files: files, Metadata: meta}
	if outputFormat == "json" {
		// Content goes to --extract, not to the listing
		for i := range result.Files {
			result.Files[i].Data = nil
		}
		return outputJSON(cmd.OutOrStdout(), result)
	}
	return printAttachments(cmd.OutOrStdout(), result)
}

func extract(files []model.EmbeddedFile, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	for _, f := range files {
		// Attachment names come from the PDF; never let them leave dir
		name := filepath.Base(filepath.Clean("/" + f.Name))
		if name == "/" || name == "." {
			continue
		}
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, f.Data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		printVerbose("Extracted %s (%d bytes)\n", path, f.Size())
	}
	return nil
}

func printAttachments(w io.Writer, r AttachmentsResult) error {
	fmt.Fprintf(w, "File: %s\n", r.File)
	fmt.Fprintf(w, "  PDF version: %s\n", r.Version)
	if r.Metadata != nil {
		if r.Metadata.Part != "" {
			fmt.Fprintf(w, "  PDF/A: %s%s\n", r.Metadata.Part, r.Metadata.Conformance)
		}
		if r.Metadata.ConformanceLevel != "" {
			fmt.Fprintf(w, "  Factur-X: %s (%s)\n", r.Metadata.ConformanceLevel, r.Metadata.DocumentFileName)
		}
	}
	fmt.Fprintln(w)

	if len(r.Files) == 0 {
		fmt.Fprintln(w, "No embedded files")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSIZE\tMIME\tRELATIONSHIP\tMODIFIED")
	fmt.Fprintln(tw, "----\t----\t----\t------------\t--------")
	for _, f := range r.Files {
		modified := ""
		if !f.ModDate.IsZero() {
			modified = f.ModDate.Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", f.Name, f.Size(), f.MimeType, f.Relationship, modified)
	}
	return tw.Flush()
}
