package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rezonia/nfce-processor/internal/accesskey"
	"github.com/rezonia/nfce-processor/internal/decimal"
	"github.com/rezonia/nfce-processor/internal/model"
	"github.com/rezonia/nfce-processor/internal/processor"
)

var (
	outputFile string
	docKey     string
	runTimeout time.Duration
)

var processCmd = &cobra.Command{
	Use:   "process [inputs...]",
	Short: "Process receipts into invoice records",
	Long: `Process receipt photos, PDFs, saved portal pages or typed keys.

Inputs:
  - Images (.png, .jpg, .gif, .heic) and PDFs: the QR code is decoded
  - Saved XML/HTML portal bodies: parsed offline, use --key for HTML
  - Anything else: read as an access key or QR URL

Examples:
  nfce-processor process receipt.jpg
  nfce-processor process receipts/ -f csv -o out.csv
  nfce-processor process "https://www.nfce.fazenda.sp.gov.br/qrcode?p=3524...|2|1|1|ABC"
  nfce-processor process nfce.xml`,
	Args: cobra.MinimumNArgs(1),
	RunE: runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)

	processCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")
	processCmd.Flags().StringVar(&docKey, "key", "", "Access key for saved XML/HTML inputs")
	processCmd.Flags().DurationVar(&runTimeout, "deadline", time.Minute, "Overall deadline per input")
}

func runProcess(cmd *cobra.Command, args []string) error {
	inputs, err := collectInputs(args)
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		return fmt.Errorf("no inputs found to process")
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

	printVerbose("Found %d inputs to process\n", len(inputs))

	results := make([]*ProcessResult, 0, len(inputs))
	for _, in := range inputs {
		printVerbose("Processing: %s\n", in.Name)

		result := processInput(cmd.Context(), pipeline, in, key)
		results = append(results, result)

		if result.Error != "" {
			printVerbose("  Error: %s\n", result.Error)
		} else {
			printVerbose("  Method: %s, Items: %d\n", result.Method, len(result.Record.Items))
		}
	}

	return outputResults(results)
}

func processInput(ctx context.Context, pipeline *processor.Pipeline, in input, key model.AccessKey) *ProcessResult {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	result := &ProcessResult{Input: in.Name}

	var r *processor.Result
	if in.File {
		r = pipeline.Process(ctx, in.Data, key)
	} else {
		r = pipeline.ProcessText(ctx, string(in.Data))
	}

	result.Method = string(r.Method)
	result.Warnings = r.Warnings
	if r.Error != nil {
		result.Error = r.Error.Error()
		result.Kind = model.Kind(r.Error)
		return result
	}
	result.Record = r.Record
	return result
}

func outputResults(results []*ProcessResult) error {
	var writer io.Writer = os.Stdout
	if outputFile != "" {
		f, err := os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		writer = f
	}

	switch outputFormat {
	case "json":
		return outputJSON(writer, results)
	case "table":
		return outputTable(writer, results)
	case "csv":
		return outputCSV(writer, results)
	default:
		return fmt.Errorf("unsupported output format: %s", outputFormat)
	}
}

func outputJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func outputTable(w io.Writer, results []*ProcessResult) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "INPUT\tUF\tNUMBER\tDATE\tISSUER\tITEMS\tTOTAL\tSOURCE")
	fmt.Fprintln(tw, "-----\t--\t------\t----\t------\t-----\t-----\t------")

	for _, r := range results {
		if r.Error != "" {
			fmt.Fprintf(tw, "%s\tERROR: %s\t\t\t\t\t\t\n", r.Input, r.Error)
			continue
		}

		rec := r.Record
		date := ""
		if !rec.IssueDate.IsZero() {
			date = rec.IssueDate.Format("2006-01-02")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			r.Input,
			rec.UF,
			rec.DocumentNumber,
			date,
			rec.Issuer.LegalName,
			len(rec.Items),
			decimal.FormatBRL(rec.Totals.TotalCents),
			rec.Source,
		)
	}

	return tw.Flush()
}

func outputCSV(w io.Writer, results []*ProcessResult) error {
	fmt.Fprintln(w, "input,access_key,uf,number,series,date,issuer_name,issuer_tax_id,items,products_cents,discount_cents,total_cents,source,error")

	for _, r := range results {
		if r.Error != "" {
			fmt.Fprintf(w, "%s,,,,,,,,,,,,,%s\n", escapeCSV(r.Input), escapeCSV(r.Error))
			continue
		}

		rec := r.Record
		date := ""
		if !rec.IssueDate.IsZero() {
			date = rec.IssueDate.Format(time.RFC3339)
		}
		discount := ""
		if rec.Totals.DiscountCents != nil {
			discount = fmt.Sprint(*rec.Totals.DiscountCents)
		}
		fmt.Fprintf(w, "%s,%s,%s,%s,%s,%s,%s,%s,%d,%d,%s,%d,%s,\n",
			escapeCSV(r.Input),
			rec.AccessKey,
			rec.UF,
			rec.DocumentNumber,
			rec.Series,
			date,
			escapeCSV(rec.Issuer.LegalName),
			rec.Issuer.TaxID,
			len(rec.Items),
			rec.Totals.ProductsCents,
			discount,
			rec.Totals.TotalCents,
			rec.Source,
		)
	}

	return nil
}

func escapeCSV(s string) string {
	if strings.ContainsAny(s, ",\"\n") {
		return "\"" + strings.ReplaceAll(s, "\"", "\"\"") + "\""
	}
	return s
}

// ProcessResult holds the result of processing a single input
type ProcessResult struct {
	Input    string               `json:"input"`
	Record   *model.InvoiceRecord `json:"record,omitempty"`
	Method   string               `json:"method,omitempty"`
	Warnings []string             `json:"warnings,omitempty"`
	Error    string               `json:"error,omitempty"`
	Kind     string               `json:"error_kind,omitempty"`
}
