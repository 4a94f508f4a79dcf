package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rezonia/facturx/internal/processor"
	"github.com/rezonia/facturx/internal/render"
)

var (
	embedProfile  string
	embedPDF      string
	embedTemplate string
	embedOutput   string
	embedTimeout  time.Duration
)

var embedCmd = &cobra.Command{
	Use:   "embed <data-file>",
	Short: "Produce a Factur-X PDF/A-3 invoice",
	Long: `Compile invoice data and embed the XML into a PDF/A-3 document.

The visual PDF either comes from --pdf, or is rendered from an HTML
template (--template, looked up in render.templates) by an HTML to PDF
converter. The input PDF is never modified; the result is written to
--output.

Examples:
  facturx embed invoice.yaml --pdf invoice.pdf -o hybrid.pdf
  facturx embed invoice.json --template invoice -o hybrid.pdf`,
	Args: cobra.ExactArgs(1),
	RunE: runEmbed,
}

func init() {
	rootCmd.AddCommand(embedCmd)

	embedCmd.Flags().StringVarP(&embedProfile, "profile", "p", "", "Profile (default from config)")
	embedCmd.Flags().StringVar(&embedPDF, "pdf", "", "Visual PDF to embed the XML into")
	embedCmd.Flags().StringVarP(&embedTemplate, "template", "t", "", "Template key to render when --pdf is not given")
	embedCmd.Flags().StringVarP(&embedOutput, "output", "o", "", "Output PDF file")
	embedCmd.Flags().DurationVar(&embedTimeout, "timeout", 2*time.Minute, "Rendering timeout")
	_ = embedCmd.MarkFlagRequired("output")
}

func runEmbed(cmd *cobra.Command, args []string) error {
	if embedPDF == "" && embedTemplate == "" {
		return fmt.Errorf("either --pdf or --template is required")
	}

	raw, err := readInput(cmd.InOrStdin(), args[0])
	if err != nil {
		return err
	}
	data, err := processor.DecodeInput(raw)
	if err != nil {
		return err
	}

	pipeline := newPipeline()
	doc, err := pipeline.Compile(profileID(embedProfile), data)
	if err != nil {
		return err
	}

	var out []byte
	if embedPDF != "" {
		base, err := readInput(cmd.InOrStdin(), embedPDF)
		if err != nil {
			return err
		}
		out, err = pipeline.EmbedInPDF(doc, base)
		if err != nil {
			return err
		}
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), embedTimeout)
		defer cancel()
		out, err = pipeline.BuildPDF(ctx, doc, embedTemplate)
		if err != nil {
			if errors.Is(err, render.ErrNotConfigured) {
				return fmt.Errorf("%w\n\n%s", err, render.InstallInstructions())
			}
			return err
		}
	}

	printVerbose("Embedded %s XML into %s\n", doc.Profile.Name, embedOutput)
	return writeOutput(cmd.OutOrStdout(), embedOutput, out)
}
