package cmd

import (
	"github.com/spf13/cobra"

	"github.com/rezonia/facturx/internal/processor"
	"github.com/rezonia/facturx/internal/xmlout"
)

var (
	compileProfile string
	compileOutput  string
	compileIndent  int
)

var compileCmd = &cobra.Command{
	Use:   "compile <data-file>",
	Short: "Compile invoice data into CII XML",
	Long: `Validate JSON or YAML invoice data against a profile and write the
resulting Cross Industry Invoice XML.

Use "-" to read the data from standard input.

Examples:
  facturx compile invoice.yaml
  facturx compile invoice.json --profile basic -o factur-x.xml
  cat invoice.json | facturx compile - --indent 0`,
	Args: cobra.ExactArgs(1),
	RunE: runCompile,
}

func init() {
	rootCmd.AddCommand(compileCmd)

	compileCmd.Flags().StringVarP(&compileProfile, "profile", "p", "", "Profile (default from config)")
	compileCmd.Flags().StringVarP(&compileOutput, "output", "o", "", "Output file (default: stdout)")
	compileCmd.Flags().IntVar(&compileIndent, "indent", 2, "Indentation width, 0 for compact output")
}

func runCompile(cmd *cobra.Command, args []string) error {
	raw, err := readInput(cmd.InOrStdin(), args[0])
	if err != nil {
		return err
	}
	data, err := processor.DecodeInput(raw)
	if err != nil {
		return err
	}

	pipeline := newPipeline()
	doc, err := pipeline.Compile(profileID(compileProfile), data)
	if err != nil {
		return err
	}

	out, err := pipeline.ToXMLBytes(doc, xmlout.WithIndent(compileIndent))
	if err != nil {
		return err
	}
	printVerbose("Compiled %s against %s\n", args[0], doc.Profile.Name)
	return writeOutput(cmd.OutOrStdout(), compileOutput, out)
}
