package commands

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/PhantomInTheWire/gridsplit/pkg/logger"
	"github.com/PhantomInTheWire/gridsplit/pkg/pipeline"
	"github.com/PhantomInTheWire/gridsplit/pkg/storage"
)

// SubmitCmd creates a job, uploads its inputs and optionally dispatches it.
var SubmitCmd = &cobra.Command{
	Use:   "submit IMAGE...",
	Short: "Upload nine inputs as a new job",
	Long: `Create a pending job and upload its nine inputs to the raw bucket as
<job id>/<file name>. Name the files main, header-tl ... footer-br to have
them assigned by name; otherwise give them in slot order.`,
	Args: cobra.ExactArgs(len(pipeline.Slots)),
	RunE: runSubmit,
}

var (
	submitProfileFlag  string
	submitDispatchFlag bool
)

func init() {
	SubmitCmd.Flags().StringVar(&submitProfileFlag, "profile", "", "Grid profile")
	SubmitCmd.Flags().BoolVar(&submitDispatchFlag, "dispatch", false, "Dispatch the job to Kubernetes once uploaded")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	c, err := settings()
	if err != nil {
		return err
	}
	p, err := loadProfile(c, submitProfileFlag)
	if err != nil {
		return err
	}

	if err := distinctNames(args); err != nil {
		return err
	}

	store, err := openStore(ctx, c)
	if err != nil {
		return err
	}
	if err := store.EnsureBuckets(ctx); err != nil {
		return err
	}

	jobs, err := openLedger(c)
	if err != nil {
		return err
	}
	defer jobs.Close()

	job, err := jobs.Create(ctx, p.Name)
	if err != nil {
		return err
	}
	log := logger.ComponentLogger("cli").With(logger.FieldJobID, job.ID)

	keys := make([]string, 0, len(args))
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrapf(err, "read %s", path)
		}
		key := storage.RawKey(job.ID, path)
		if err := store.Upload(ctx, key, data, http.DetectContentType(data)); err != nil {
			return err
		}
		log.Debugw("Uploaded input", logger.FieldKey, key, logger.FieldSize, len(data))
		keys = append(keys, key)
	}
	if err := jobs.SetRawFiles(ctx, job.ID, keys); err != nil {
		return err
	}
	log.Infow("Job submitted", logger.FieldProfile, p.Name)
	fmt.Fprintln(cmd.OutOrStdout(), job.ID)

	if submitDispatchFlag {
		return dispatch(cmd, c, job.ID, p.Name)
	}
	return nil
}

// distinctNames rejects inputs that would be uploaded under the same raw
// key, since the later upload would replace the earlier one.
func distinctNames(paths []string) error {
	seen := make(map[string]string, len(paths))
	for _, p := range paths {
		key := storage.RawKey("", p)
		if prev, dup := seen[key]; dup {
			return errors.Errorf("%s and %s would both be uploaded as %q; rename one", prev, p, filepath.Base(p))
		}
		seen[key] = p
	}
	return nil
}
