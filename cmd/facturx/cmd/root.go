package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rezonia/facturx/internal/config"
	"github.com/rezonia/facturx/internal/logging"
	"github.com/rezonia/facturx/internal/processor"
	"github.com/rezonia/facturx/internal/render"
)

var (
	version = "1.0.0"

	// Global flags
	cfgFile      string
	envFile      string
	verbose      bool
	outputFormat string

	// Resolved in PersistentPreRunE
	cfg    *config.Config
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "facturx",
	Short: "Compile Factur-X / ZUGFeRD hybrid invoices",
	Long: `facturx turns structured invoice data into Factur-X / ZUGFeRD hybrid
invoices: a CII XML document embedded in a PDF/A-3 file.

Supports:
  - Profiles MINIMUM, BASIC WL, BASIC, EN 16931 and EXTENDED
  - JSON and YAML invoice data
  - Reading embedded XML and XMP metadata back from PDFs

Examples:
  # Validate invoice data against a profile
  facturx validate invoice.yaml --profile en16931

  # Produce the CII XML
  facturx compile invoice.json -o factur-x.xml

  # Embed the XML into an existing PDF
  facturx embed invoice.json --pdf invoice.pdf -o hybrid.pdf

  # List the files attached to a PDF
  facturx attachments hybrid.pdf`,
	Version:           version,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initConfig,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "Environment file loaded before the config")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "f", "table", "Output format (json, table)")
}

// initConfig resolves configuration: defaults, config file, environment,
// then flags set on the command line.
func initConfig(cmd *cobra.Command, _ []string) error {
	if outputFormat != "json" && outputFormat != "table" {
		return fmt.Errorf("unsupported output format: %s", outputFormat)
	}

	resolved, err := config.Resolve(cfgFile, envFile)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("verbose") {
		resolved.Log.Verbose = verbose
	}
	cfg = resolved

	l, err := logging.New(logging.Options{Verbose: cfg.Log.Verbose, JSON: cfg.Log.JSON})
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	logger = l
	return nil
}

// newPipeline builds a pipeline from the resolved configuration
func newPipeline() *processor.Pipeline {
	opts := []processor.Option{
		processor.WithLogger(logger),
		processor.WithProducer(cfg.PDF.Producer),
	}

	if cfg.Render.Templates != "" {
		opts = append(opts, processor.WithRenderer(render.NewTemplateRenderer(os.DirFS(cfg.Render.Templates), nil)))
	}
	var rasterizer *render.CommandRasterizer
	if cfg.Render.Rasterizer != "" {
		rasterizer = render.NewCommandRasterizer(cfg.Render.Rasterizer, cfg.Render.Args...)
	} else {
		rasterizer = render.DetectRasterizer()
	}
	if rasterizer.IsAvailable() {
		opts = append(opts, processor.WithRasterizer(rasterizer))
	}

	return processor.NewPipeline(opts...)
}

// profileID returns the --profile flag if set, else the configured profile
func profileID(flag string) string {
	if flag != "" {
		return flag
	}
	return cfg.Profile
}

func printVerbose(format string, args ...interface{}) {
	if cfg != nil && cfg.Log.Verbose {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}
