package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	xmlparser "github.com/rezonia/facturx/internal/parser/xml"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Summarise an existing invoice",
	Long: `Read a CII or ZUGFeRD 1 invoice XML, or the invoice XML embedded in a
PDF, and print its header: profile, number, date, parties and totals.

Examples:
  facturx inspect factur-x.xml
  facturx inspect hybrid.pdf --format json`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	data, err := readInput(cmd.InOrStdin(), args[0])
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	summary, err := newPipeline().Inspect(ctx, data)
	if err != nil {
		return err
	}

	if outputFormat == "json" {
		return outputJSON(cmd.OutOrStdout(), summary)
	}
	printSummary(cmd.OutOrStdout(), args[0], summary)
	return nil
}

func printSummary(w io.Writer, file string, s *xmlparser.Summary) {
	fmt.Fprintf(w, "File: %s\n", file)
	fmt.Fprintf(w, "  Syntax: %s\n", s.Syntax)
	if s.ProfileName != "" {
		fmt.Fprintf(w, "  Profile: %s\n", s.ProfileName)
	}
	fmt.Fprintf(w, "  Guideline: %s\n", s.Guideline)
	fmt.Fprintf(w, "  Number: %s\n", s.Number)
	if s.TypeCode != "" {
		fmt.Fprintf(w, "  Type: %s\n", s.TypeCode)
	}
	if !s.IssueDate.IsZero() {
		fmt.Fprintf(w, "  Date: %s\n", s.IssueDate.Format("2006-01-02"))
	}
	fmt.Fprintf(w, "  Seller: %s\n", partyLine(s.Seller))
	fmt.Fprintf(w, "  Buyer: %s\n", partyLine(s.Buyer))
	if s.LineCount > 0 {
		fmt.Fprintf(w, "  Lines: %d\n", s.LineCount)
	}
	fmt.Fprintf(w, "  Tax basis: %s %s\n", s.TaxBasisTotal.StringFixed(2), s.Currency)
	fmt.Fprintf(w, "  Tax: %s %s\n", s.TaxTotal.StringFixed(2), s.Currency)
	fmt.Fprintf(w, "  Grand total: %s %s\n", s.GrandTotal.StringFixed(2), s.Currency)
	fmt.Fprintf(w, "  Due: %s %s\n", s.DuePayable.StringFixed(2), s.Currency)
}

func partyLine(p xmlparser.Party) string {
	line := p.Name
	if p.VATID != "" {
		line += " (" + p.VATID + ")"
	}
	if p.Country != "" {
		line += ", " + p.Country
	}
	return line
}
