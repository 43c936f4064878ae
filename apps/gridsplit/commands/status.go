package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/PhantomInTheWire/gridsplit/pkg/ledger"
	"github.com/PhantomInTheWire/gridsplit/pkg/pipeline"
)

// StatusCmd shows one job or the most recent ones.
var StatusCmd = &cobra.Command{
	Use:   "status [--job ID]",
	Short: "Show job status",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var (
	statusJobFlag   string
	statusLimitFlag int
	statusJSONFlag  bool
)

func init() {
	StatusCmd.Flags().StringVar(&statusJobFlag, "job", "", "Show a single job")
	StatusCmd.Flags().IntVar(&statusLimitFlag, "limit", 20, "Number of recent jobs to list")
	StatusCmd.Flags().BoolVar(&statusJSONFlag, "json", false, "Print JSON")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	c, err := settings()
	if err != nil {
		return err
	}
	jobs, err := openLedger(c)
	if err != nil {
		return err
	}
	defer jobs.Close()

	var list []*ledger.Job
	if statusJobFlag != "" {
		job, err := jobs.Get(ctx, statusJobFlag)
		if err != nil {
			return err
		}
		list = []*ledger.Job{job}
	} else {
		list, err = jobs.List(ctx, statusLimitFlag)
		if err != nil {
			return err
		}
	}

	if statusJSONFlag {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if statusJobFlag != "" {
			return enc.Encode(list[0])
		}
		return enc.Encode(list)
	}
	return printJobs(cmd.OutOrStdout(), list)
}

func printJobs(out io.Writer, jobs []*ledger.Job) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tPROFILE\tCREATED\tRESULT")
	for _, j := range jobs {
		result := strings.Join(j.ProcessedFiles, ",")
		if j.Error != "" {
			result = j.Error
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", j.ID, statusColor(j.Status), j.Profile, j.CreatedAt.Format(time.RFC3339), result)
	}
	return w.Flush()
}

func statusColor(s pipeline.Status) string {
	switch s {
	case pipeline.StatusCompleted:
		return pterm.Green(s)
	case pipeline.StatusFailed:
		return pterm.Red(s)
	case pipeline.StatusProcessing:
		return pterm.Yellow(s)
	}
	return pterm.Gray(s)
}
