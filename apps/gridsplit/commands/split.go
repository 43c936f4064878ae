package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/PhantomInTheWire/gridsplit/pkg/split"
)

// SplitCmd writes the four quadrants of an image without composing tiles.
var SplitCmd = &cobra.Command{
	Use:   "split --out DIR IMAGE",
	Short: "Cut an image into its four quadrants",
	Long: `Cut an image into four quadrant JPEGs, <name>-tl.jpg ... <name>-br.jpg.

The profile decides whether the image is first fitted to the fixed grid
or cut at its own size.`,
	Args: cobra.ExactArgs(1),
	RunE: runSplit,
}

var (
	splitOutFlag     string
	splitProfileFlag string
	splitQualityFlag int
)

func init() {
	SplitCmd.Flags().StringVar(&splitOutFlag, "out", ".", "Output directory")
	SplitCmd.Flags().StringVar(&splitProfileFlag, "profile", "", "Grid profile")
	SplitCmd.Flags().IntVar(&splitQualityFlag, "quality", 0, "JPEG quality (defaults to the profile's)")
}

func runSplit(cmd *cobra.Command, args []string) error {
	c, err := settings()
	if err != nil {
		return err
	}
	p, err := loadProfile(c, splitProfileFlag)
	if err != nil {
		return err
	}

	src, err := os.ReadFile(args[0])
	if err != nil {
		return errors.Wrap(err, "failed to read image")
	}
	q, err := split.Split(src, p.Policy())
	if err != nil {
		return errors.Wrapf(err, "split %s", args[0])
	}

	quality := p.Quality
	if splitQualityFlag > 0 {
		quality = splitQualityFlag
	}
	base := filepath.Base(args[0])
	files, err := split.WriteFiles(q, splitOutFlag, strings.TrimSuffix(base, filepath.Ext(base)), quality)
	if err != nil {
		return err
	}
	for _, f := range files {
		fmt.Fprintln(cmd.OutOrStdout(), f)
	}
	return nil
}
