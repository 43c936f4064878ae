package commands

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/PhantomInTheWire/gridsplit/pkg/ledger"
	"github.com/PhantomInTheWire/gridsplit/pkg/logger"
	"github.com/PhantomInTheWire/gridsplit/pkg/pipeline"
)

// RunCmd processes one ledger job against object storage.
var RunCmd = &cobra.Command{
	Use:   "run --job ID",
	Short: "Process a submitted job",
	Long: `Process a job whose inputs were uploaded with submit.

Inputs named after their slot (main, header-tl ... footer-br) are assigned
by name; otherwise the nine recorded inputs are taken in order: main, the
four headers, then the four footers, each set in TL, TR, BL, BR order.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

var (
	runJobFlag     string
	runProfileFlag string
	runForceFlag   bool
)

func init() {
	RunCmd.Flags().StringVar(&runJobFlag, "job", "", "Job id")
	RunCmd.Flags().StringVar(&runProfileFlag, "profile", "", "Grid profile (defaults to the job's)")
	RunCmd.Flags().BoolVar(&runForceFlag, "force", false, "Rerun a job that is still marked processing")
	RunCmd.MarkFlagRequired("job")
}

func runRun(cmd *cobra.Command, args []string) error {
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

	job, err := jobs.Get(ctx, runJobFlag)
	if err != nil {
		return err
	}
	name := runProfileFlag
	if name == "" {
		name = job.Profile
	}
	p, err := loadProfile(c, name)
	if err != nil {
		return err
	}

	if job.Status == pipeline.StatusProcessing {
		if !runForceFlag {
			return errors.Errorf("job %s is already processing (use --force to rerun)", job.ID)
		}
		if err := jobs.SetStatus(ctx, job.ID, pipeline.StatusPending); err != nil {
			return err
		}
	}

	store, err := openStore(ctx, c)
	if err != nil {
		return err
	}
	orch, err := pipeline.New(p, store, store,
		pipeline.WithLedger(jobs),
		pipeline.WithWorkers(c.Pipeline.Workers))
	if err != nil {
		return err
	}

	res, err := execute(cmd, orch, job)
	if err != nil {
		return errors.Wrapf(err, "job %s failed (%s)", job.ID, pipeline.Kind(err))
	}
	for _, loc := range res.Locations {
		fmt.Fprintln(cmd.OutOrStdout(), loc)
	}
	return nil
}

// execute picks the variant from the job's recorded inputs.
func execute(cmd *cobra.Command, orch *pipeline.Orchestrator, job *ledger.Job) (*pipeline.Result, error) {
	log := logger.ComponentLogger("cli").With(logger.FieldJobID, job.ID)
	if a, ok := pipeline.ByName(job.RawFiles); ok {
		log.Debugw("Inputs assigned by name")
		return orch.RunAssigned(cmd.Context(), job.ID, a)
	}
	log.Debugw("Inputs assigned by position", "inputs", len(job.RawFiles))
	return orch.RunPositional(cmd.Context(), job.ID, job.RawFiles)
}
