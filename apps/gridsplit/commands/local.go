package commands

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/PhantomInTheWire/gridsplit/pkg/ledger"
	"github.com/PhantomInTheWire/gridsplit/pkg/pipeline"
	"github.com/PhantomInTheWire/gridsplit/pkg/split"
	"github.com/PhantomInTheWire/gridsplit/pkg/storage"
)

// LocalCmd runs the pipeline on local files without a ledger database or
// object storage.
var LocalCmd = &cobra.Command{
	Use:   "local --out DIR [main header-tl header-tr header-bl header-br footer-tl footer-tr footer-bl footer-br]",
	Short: "Build the four tiles from local files",
	Long: `Build the four tiles from local files.

Pass the nine inputs either positionally (main, four headers, four
footers, each set in TL, TR, BL, BR order) or with --main, --header-tl
... --footer-br. Tiles are written to DIR/<run id>/result-<tag>.jpg.`,
	RunE: runLocal,
}

var (
	localOutFlag     string
	localProfileFlag string
	localSlotFlags   = map[pipeline.Slot]*string{}
)

func init() {
	LocalCmd.Flags().StringVar(&localOutFlag, "out", ".", "Output directory")
	LocalCmd.Flags().StringVar(&localProfileFlag, "profile", "", "Grid profile")
	for _, s := range pipeline.Slots {
		localSlotFlags[s] = LocalCmd.Flags().String(string(s), "", fmt.Sprintf("Image for the %s slot", s))
	}
}

func runLocal(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	c, err := settings()
	if err != nil {
		return err
	}
	p, err := loadProfile(c, localProfileFlag)
	if err != nil {
		return err
	}

	jobs := ledger.NewMemory()
	job, err := jobs.Create(ctx, p.Name)
	if err != nil {
		return err
	}

	orch, err := pipeline.New(p, storage.DirStore{}, storage.DirStore{Root: localOutFlag},
		pipeline.WithLedger(jobs),
		pipeline.WithWorkers(c.Pipeline.Workers))
	if err != nil {
		return err
	}

	var res *pipeline.Result
	if a := flagAssignment(); len(a) > 0 {
		if len(args) > 0 {
			return errors.New("pass inputs either as arguments or as slot flags, not both")
		}
		res, err = orch.RunAssigned(ctx, job.ID, a)
	} else {
		res, err = orch.RunPositional(ctx, job.ID, args)
	}
	if err != nil {
		return errors.Wrapf(err, "run failed (%s)", pipeline.Kind(err))
	}

	out := cmd.OutOrStdout()
	for i, loc := range res.Locations {
		fmt.Fprintf(out, "%s\t%s\n", split.Tags[i], loc)
	}
	return nil
}

func flagAssignment() pipeline.SlotAssignment {
	a := pipeline.SlotAssignment{}
	for s, v := range localSlotFlags {
		if *v != "" {
			a[s] = *v
		}
	}
	return a
}
