package commands

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/PhantomInTheWire/gridsplit/pkg/config"
	"github.com/PhantomInTheWire/gridsplit/pkg/kube"
)

// DispatchCmd starts a Kubernetes Job that runs a submitted job.
var DispatchCmd = &cobra.Command{
	Use:   "dispatch --job ID",
	Short: "Run a submitted job on Kubernetes",
	Args:  cobra.NoArgs,
	RunE:  runDispatch,
}

var dispatchJobFlag string

func init() {
	DispatchCmd.Flags().StringVar(&dispatchJobFlag, "job", "", "Job id")
	DispatchCmd.MarkFlagRequired("job")
}

func runDispatch(cmd *cobra.Command, args []string) error {
	c, err := settings()
	if err != nil {
		return err
	}
	jobs, err := openLedger(c)
	if err != nil {
		return err
	}
	job, err := jobs.Get(cmd.Context(), dispatchJobFlag)
	jobs.Close()
	if err != nil {
		return err
	}
	return dispatch(cmd, c, job.ID, job.Profile)
}

func dispatch(cmd *cobra.Command, c *config.Config, runID, profileName string) error {
	client, err := kube.NewClient(c.Kube.Kubeconfig)
	if err != nil {
		return err
	}
	created, err := kube.NewDispatcher(client, nil).Dispatch(cmd.Context(), runSpec(c, runID, profileName))
	if err != nil {
		return err
	}
	pterm.Success.Printf("Dispatched %s as %s/%s\n", runID, created.Namespace, created.Name)
	return nil
}

func runSpec(c *config.Config, runID, profileName string) kube.RunSpec {
	return kube.RunSpec{
		RunID:        runID,
		Profile:      profileName,
		Namespace:    c.Kube.Namespace,
		Image:        c.Kube.Image,
		ConfigMap:    c.Kube.ConfigMap,
		Secret:       c.Kube.Secret,
		LedgerClaim:  c.Kube.LedgerClaim,
		BackoffLimit: c.Kube.BackoffLimit,
	}
}
