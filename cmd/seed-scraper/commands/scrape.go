package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/maltedev/seed-price-scraper/internal/jobs"
	"github.com/spf13/cobra"
)

var jsonOutput bool

var scrapeCmd = &cobra.Command{
	Use:   "scrape [seedbank...]",
	Short: "Scrape seedbanks once and exit",
	Long: `Scrape the named seedbanks, or all registered ones, and record their prices.

Examples:
  seed-scraper scrape                    # every seedbank
  seed-scraper scrape zamnesia           # one seedbank
  seed-scraper scrape --json sensi-seeds # print run results as JSON`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		runs, err := a.manager.RunScrapers(ctx, args, jobs.TriggerCLI)
		if err != nil {
			return err
		}

		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(runs)
		}
		printRuns(os.Stdout, runs)

		for _, run := range runs {
			if run.Status == jobs.RunStatusFailed {
				return fmt.Errorf("%s: %s", run.Seedbank, run.Error)
			}
		}
		return nil
	},
}

func init() {
	scrapeCmd.Flags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
}

func printRuns(out io.Writer, runs []jobs.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SEEDBANK\tSTATUS\tURLS\tSCRAPED\tRECORDED\tSKIPPED\tFAILED\tDURATION")
	for _, run := range runs {
		if run.Stats == nil {
			fmt.Fprintf(w, "%s\t%s\t-\t-\t-\t-\t-\t-\n", run.Seedbank, run.Status)
			continue
		}
		s := run.Stats
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
			run.Seedbank, run.Status, s.URLsDiscovered, s.Scraped, s.Recorded, s.Skipped, s.Failed,
			s.Duration().Round(time.Millisecond))
	}
	w.Flush()
}
