package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rezonia/nfce-processor/internal/cache"
	"github.com/rezonia/nfce-processor/internal/processor"
	"github.com/rezonia/nfce-processor/internal/sefaz"
)

var (
	version = "1.0.0"

	// Global flags
	verbose      bool
	outputFormat string
	fetchTimeout time.Duration
	userAgent    string
	cachePath    string
)

var rootCmd = &cobra.Command{
	Use:   "nfce-processor",
	Short: "Read Brazilian NFC-e receipts from QR codes",
	Long: `NFC-e Processor turns a photographed consumer receipt into structured data.

The QR code is decoded, the 44-digit access key is resolved, the issuing
state portal is queried and its XML or HTML answer is parsed into items,
totals and payments, with every amount in integer centavos.

Examples:
  # Process a photo of a receipt
  nfce-processor process receipt.jpg

  # Process a typed access key or QR URL
  nfce-processor process 35240112345678000190650010000123451234567890

  # Parse a saved portal page offline
  nfce-processor process page.html --key 3524...7890 -f table

  # Inspect a key without touching the network
  nfce-processor info receipt.heic`,
	Version: version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			logrus.SetLevel(logrus.DebugLevel)
		} else {
			logrus.SetLevel(logrus.WarnLevel)
		}
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "f", "json", "Output format (json, csv, table)")
	rootCmd.PersistentFlags().DurationVar(&fetchTimeout, "timeout", 0, "Per-request portal timeout (env: NFCE_TIMEOUT, default 10s)")
	rootCmd.PersistentFlags().StringVar(&userAgent, "user-agent", "", "User-Agent sent to state portals (env: NFCE_USER_AGENT)")
	rootCmd.PersistentFlags().StringVar(&cachePath, "cache", "", "bbolt file caching fetched documents (env: NFCE_CACHE)")

	// Load from .env and environment variables if not set via flags
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	_ = godotenv.Load()

	if fetchTimeout == 0 {
		if v := os.Getenv("NFCE_TIMEOUT"); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				printVerbose("ignoring NFCE_TIMEOUT=%q: %v\n", v, err)
			} else {
				fetchTimeout = d
			}
		}
	}
	if fetchTimeout == 0 {
		fetchTimeout = sefaz.DefaultTimeout
	}
	if userAgent == "" {
		userAgent = os.Getenv("NFCE_USER_AGENT")
	}
	if cachePath == "" {
		cachePath = os.Getenv("NFCE_CACHE")
	}
}

// newPipeline builds the pipeline from global flags. The returned func
// releases the cache file, if any.
func newPipeline() (*processor.Pipeline, func() error, error) {
	opts := []sefaz.Option{sefaz.WithTimeout(fetchTimeout)}
	if userAgent != "" {
		opts = append(opts, sefaz.WithUserAgent(userAgent))
	}
	var fetcher processor.Fetcher = sefaz.NewClient(opts...)

	cleanup := func() error { return nil }
	if cachePath != "" {
		store, err := cache.NewBoltStore(cachePath)
		if err != nil {
			return nil, nil, err
		}
		fetcher = cache.NewCachingFetcher(store, fetcher)
		cleanup = store.Close
		printVerbose("Caching documents in %s\n", cachePath)
	}

	return processor.NewPipeline(processor.WithFetcher(fetcher)), cleanup, nil
}

func printVerbose(format string, args ...interface{}) {
	if verbose {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}
