package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rezonia/facturx/internal/model"
	"github.com/rezonia/facturx/internal/processor"
)

var validateProfile string

var validateCmd = &cobra.Command{
	Use:   "validate [files...]",
	Short: "Validate invoice data files",
	Long: `Validate one or more JSON or YAML invoice data files against a profile.

Every problem in a file is reported, not only the first:
  - Required fields present
  - Numbers, dates and booleans well formed
  - Codes taken from the profile's code lists
  - Field constraints satisfied

Examples:
  facturx validate invoice.yaml
  facturx validate invoices/ --profile extended --format json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVarP(&validateProfile, "profile", "p", "", "Profile (default from config)")
}

func runValidate(cmd *cobra.Command, args []string) error {
	files, err := collectFiles(args, isDataFile)
	if err != nil {
		return err
	}

	if len(files) == 0 {
		return fmt.Errorf("no files found to validate")
	}

	pipeline := newPipeline()
	id := profileID(validateProfile)
	results := make([]*ValidationResult, 0, len(files))
	allValid := true

	for _, file := range files {
		printVerbose("Validating: %s\n", file)
		result := validateFile(pipeline, id, file)
		results = append(results, result)

		if !result.Valid {
			allValid = false
		}
	}

	// Output results
	if outputFormat == "json" {
		if err := outputJSON(cmd.OutOrStdout(), results); err != nil {
			return err
		}
	} else {
		printValidation(cmd.OutOrStdout(), results)
	}

	if !allValid {
		return fmt.Errorf("validation failed for some files")
	}

	return nil
}

func validateFile(pipeline *processor.Pipeline, id, filePath string) *ValidationResult {
	result := &ValidationResult{
		File:    filePath,
		Profile: id,
		Valid:   true,
	}

	raw, err := os.ReadFile(filePath)
	if err != nil {
		result.Valid = false
		result.Error = fmt.Sprintf("failed to read file: %v", err)
		return result
	}
	data, err := processor.DecodeInput(raw)
	if err != nil {
		result.Valid = false
		result.Error = err.Error()
		return result
	}

	if _, err := pipeline.Compile(id, data); err != nil {
		result.Valid = false
		if list, ok := model.AsValidationErrors(err); ok {
			result.Errors = list
		} else {
			result.Error = err.Error()
		}
	}
	return result
}

func printValidation(w io.Writer, results []*ValidationResult) {
	for _, r := range results {
		if r.Valid {
			fmt.Fprintf(w, "✓ %s: VALID (%s)\n", r.File, r.Profile)
			continue
		}
		fmt.Fprintf(w, "✗ %s: INVALID (%s)\n", r.File, r.Profile)
		if r.Error != "" {
			fmt.Fprintf(w, "  - %s\n", r.Error)
		}
		for _, e := range r.Errors {
			fmt.Fprintf(w, "  - %s\n", e.Error())
		}
	}
}

// ValidationResult holds the result of validating a single file
type ValidationResult struct {
	File    string                 `json:"file"`
	Profile string                 `json:"profile"`
	Valid   bool                   `json:"valid"`
	Error   string                 `json:"error,omitempty"`
	Errors  model.ValidationErrors `json:"errors,omitempty"`
}
