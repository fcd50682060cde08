package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rezonia/nfce-processor/internal/accesskey"
	"github.com/rezonia/nfce-processor/internal/decimal"
	"github.com/rezonia/nfce-processor/internal/model"
)

var (
	strictValidation bool
)

var validateCmd = &cobra.Command{
	Use:   "validate [inputs...]",
	Short: "Validate extracted invoice records",
	Long: `Process inputs and check the resulting records for consistency.

Checks performed:
  - At least one item, each with a description and positive quantity
  - Total not above products minus discount when a discount is present
  - Item totals add up to the products total
  - Issuer tax id matches the access key (--strict)

Examples:
  nfce-processor validate nfce.xml
  nfce-processor validate receipts/*.jpg --strict`,
	Args: cobra.MinimumNArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&strictValidation, "strict", false, "Treat warnings as errors")
	validateCmd.Flags().StringVar(&docKey, "key", "", "Access key for saved XML/HTML inputs")
}

// ValidationResult holds the validation outcome for one input
type ValidationResult struct {
	Input    string   `json:"input"`
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func runValidate(cmd *cobra.Command, args []string) error {
	inputs, err := collectInputs(args)
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		return fmt.Errorf("no inputs found to validate")
	}

	var key model.AccessKey
	if docKey != "" {
		if key, err = accesskey.Resolve(docKey); err != nil {
			return err
		}
	}

	pipeline, cleanup, err := newPipeline()
	if err != nil {
		return err
	}
	defer cleanup()

	results := make([]*ValidationResult, 0, len(inputs))
	allValid := true
	for _, in := range inputs {
		processed := processInput(cmd.Context(), pipeline, in, key)
		result := validateResult(processed)
		results = append(results, result)
		if !result.Valid {
			allValid = false
		}
	}

	if outputFormat == "json" {
		if err := outputJSON(os.Stdout, results); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			if r.Valid {
				fmt.Printf("✓ %s: VALID\n", r.Input)
			} else {
				fmt.Printf("✗ %s: INVALID\n", r.Input)
				for _, e := range r.Errors {
					fmt.Printf("  - %s\n", e)
				}
			}
			for _, w := range r.Warnings {
				fmt.Printf("  ⚠ %s\n", w)
			}
		}
	}

	if !allValid {
		return fmt.Errorf("validation failed for some inputs")
	}
	return nil
}

func validateResult(processed *ProcessResult) *ValidationResult {
	result := &ValidationResult{
		Input:    processed.Input,
		Valid:    true,
		Errors:   []string{},
		Warnings: append([]string{}, processed.Warnings...),
	}

	if processed.Error != "" {
		result.Valid = false
		result.Errors = append(result.Errors, processed.Error)
		return result
	}

	rec := processed.Record
	if err := rec.Validate(); err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, err.Error())
	}

	if sum := rec.ItemsCents(); sum != rec.Totals.ProductsCents {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("items add up to %s, products total is %s",
				decimal.FormatBRL(sum), decimal.FormatBRL(rec.Totals.ProductsCents)))
	}

	if !rec.AccessKey.IsZero() && rec.Issuer.TaxID != rec.AccessKey.IssuerTaxID() {
		msg := fmt.Sprintf("issuer tax id %s differs from access key %s", rec.Issuer.TaxID, rec.AccessKey.IssuerTaxID())
		if strictValidation {
			result.Valid = false
			result.Errors = append(result.Errors, msg)
		} else {
			result.Warnings = append(result.Warnings, msg)
		}
	}

	if strictValidation && len(result.Warnings) > 0 {
		result.Valid = false
	}
	return result
}
