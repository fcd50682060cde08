package cmd

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rezonia/nfce-processor/internal/accesskey"
	"github.com/rezonia/nfce-processor/internal/model"
	"github.com/rezonia/nfce-processor/internal/processor"
	"github.com/rezonia/nfce-processor/internal/qr"
	"github.com/rezonia/nfce-processor/internal/sefaz"
)

var infoCmd = &cobra.Command{
	Use:   "info [inputs...]",
	Short: "Show what an input decodes to, without fetching",
	Long: `Display the decoded QR payload, access key fields, issuing state and
portal URLs for each input. No network requests are made.

Examples:
  nfce-processor info receipt.jpg
  nfce-processor info 35240112345678000190650010000123451234567890
  nfce-processor info --states`,
	RunE: runInfo,
}

var listStates bool

func init() {
	rootCmd.AddCommand(infoCmd)

	infoCmd.Flags().StringVar(&docKey, "key", "", "Access key for saved XML/HTML inputs")
	infoCmd.Flags().BoolVar(&listStates, "states", false, "List supported issuing states and their portals")
}

// StateInfo is one supported issuing state
type StateInfo struct {
	UF         model.UF `json:"uf"`
	Code       string   `json:"code"`
	DirectURL  string   `json:"direct_url"`
	ConsultURL string   `json:"consult_url,omitempty"`
}

// KeyInfo describes one input
type KeyInfo struct {
	Input      string   `json:"input"`
	Format     string   `json:"format"`
	RawText    string   `json:"raw_text,omitempty"`
	Key        string   `json:"key,omitempty"`
	UF         model.UF `json:"uf,omitempty"`
	Model      string   `json:"model,omitempty"`
	Series     string   `json:"series,omitempty"`
	Number     string   `json:"number,omitempty"`
	IssuerID   string   `json:"issuer_tax_id,omitempty"`
	IssueMonth string   `json:"issue_month,omitempty"`
	DirectURL  string   `json:"direct_url,omitempty"`
	ConsultURL string   `json:"consult_url,omitempty"`
	Error      string   `json:"error,omitempty"`
}

func runInfo(cmd *cobra.Command, args []string) error {
	if listStates {
		states := supportedStates()
		if outputFormat == "json" {
			return outputJSON(os.Stdout, states)
		}
		return printStates(os.Stdout, states)
	}
	if len(args) == 0 {
		return fmt.Errorf("requires at least 1 input, or --states")
	}

	inputs, err := collectInputs(args)
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		return fmt.Errorf("no inputs found")
	}

	decoder := qr.NewDecoder()
	infos := make([]*KeyInfo, 0, len(inputs))
	for _, in := range inputs {
		infos = append(infos, describe(decoder, in))
	}

	if outputFormat == "json" {
		return outputJSON(os.Stdout, infos)
	}
	for _, info := range infos {
		printInfo(os.Stdout, info)
		fmt.Println()
	}
	return nil
}

func describe(decoder *qr.Decoder, in input) *KeyInfo {
	info := &KeyInfo{Input: in.Name, Format: processor.FormatText.String()}

	text := string(in.Data)
	if in.File {
		format := processor.DetectFormat(in.Data)
		info.Format = format.String()
		switch format {
		case processor.FormatImage, processor.FormatPDF:
			img, err := qr.LoadImage(in.Data, processor.DetectMimeType(in.Data))
			if err != nil {
				info.Error = err.Error()
				return info
			}
			if text, err = decoder.DecodeImage(img); err != nil {
				info.Error = err.Error()
				return info
			}
		case processor.FormatXML, processor.FormatHTML:
			info.Format = fmt.Sprintf("%s (%s)", format, sefaz.Classify(text))
			if docKey == "" {
				return info
			}
			text = docKey
		}
	}

	payload := accesskey.Decode(text)
	info.RawText = payload.RawText
	if payload.AccessKey == nil {
		_, err := accesskey.Resolve(text)
		info.Error = err.Error()
		return info
	}

	key := *payload.AccessKey
	info.Key = key.String()
	info.Model = key.Model()
	info.Series = key.Series()
	info.Number = key.Number()
	info.IssuerID = key.IssuerTaxID()
	if t, err := key.IssueMonth(); err == nil {
		info.IssueMonth = t.Format("2006-01")
	}

	uf, err := accesskey.ResolveUF(key)
	if err != nil {
		info.Error = err.Error()
		return info
	}
	info.UF = uf
	info.DirectURL, info.ConsultURL, _ = sefaz.URLs(uf, key)
	return info
}

// supportedStates lists the UF table in code order with each portal
func supportedStates() []StateInfo {
	var out []StateInfo
	for _, uf := range accesskey.States() {
		code, _ := accesskey.StateCode(uf)
		info := StateInfo{UF: uf, Code: code}
		if ep, err := sefaz.DefaultEndpoints.Lookup(uf); err == nil {
			info.DirectURL = ep.Direct
			info.ConsultURL = ep.Consult
		}
		out = append(out, info)
	}
	return out
}

func printStates(w io.Writer, states []StateInfo) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CODE\tUF\tDIRECT")
	for _, st := range states {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", st.Code, st.UF, st.DirectURL)
	}
	return tw.Flush()
}

func printInfo(w io.Writer, info *KeyInfo) {
	fmt.Fprintf(w, "Input: %s\n", info.Input)
	fmt.Fprintf(w, "  Format: %s\n", info.Format)
	if info.RawText != "" && info.RawText != info.Key {
		fmt.Fprintf(w, "  Payload: %s\n", info.RawText)
	}
	if info.Key != "" {
		fmt.Fprintf(w, "  Key: %s\n", info.Key)
		fmt.Fprintf(w, "  Model: %s  Series: %s  Number: %s\n", info.Model, info.Series, info.Number)
		fmt.Fprintf(w, "  Issuer: %s  Month: %s\n", info.IssuerID, info.IssueMonth)
	}
	if info.UF != "" {
		fmt.Fprintf(w, "  UF: %s\n", info.UF)
		fmt.Fprintf(w, "  Direct: %s\n", info.DirectURL)
		if info.ConsultURL != "" {
			fmt.Fprintf(w, "  Consult: %s\n", info.ConsultURL)
		}
	}
	if info.Error != "" {
		fmt.Fprintf(w, "  Error: %s\n", info.Error)
	}
}
