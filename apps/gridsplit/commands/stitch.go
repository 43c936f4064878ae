package commands

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/PhantomInTheWire/gridsplit/pkg/compose"
	"github.com/PhantomInTheWire/gridsplit/pkg/raster"
	"github.com/PhantomInTheWire/gridsplit/pkg/split"
)

// StitchCmd reassembles four tiles into one preview image.
var StitchCmd = &cobra.Command{
	Use:   "stitch --out FILE TL TR BL BR",
	Short: "Preview four tiles as a 2x2 grid",
	Args:  cobra.ExactArgs(len(split.Tags)),
	RunE:  runStitch,
}

var (
	stitchOutFlag     string
	stitchQualityFlag int
)

func init() {
	StitchCmd.Flags().StringVar(&stitchOutFlag, "out", "preview.jpg", "Output JPEG")
	StitchCmd.Flags().IntVar(&stitchQualityFlag, "quality", 90, "JPEG quality")
}

func runStitch(cmd *cobra.Command, args []string) error {
	var tiles [4]image.Image
	for i, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrapf(err, "read %s", path)
		}
		img, err := raster.Decode(data)
		if err != nil {
			return errors.Wrapf(err, "decode %s", path)
		}
		tiles[i] = img
	}

	grid, err := compose.Stitch(tiles, color.White)
	if err != nil {
		return err
	}
	data, err := raster.EncodeJPEG(grid, stitchQualityFlag)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(stitchOutFlag), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(stitchOutFlag, data, 0o644); err != nil {
		return errors.Wrap(err, "write preview")
	}
	fmt.Fprintln(cmd.OutOrStdout(), stitchOutFlag)
	return nil
}
