package compose

import (
	"image"
	"image/color"

	"github.com/pkg/errors"

	"github.com/PhantomInTheWire/gridsplit/pkg/raster"
	"github.com/PhantomInTheWire/gridsplit/pkg/split"
)

// Stitch lays four tiles out as a 2x2 grid, TL and TR on top, to preview
// how they read together. All tiles must have the same size.
func Stitch(tiles [4]image.Image, bg color.Color) (*image.NRGBA, error) {
	if tiles[split.TL] == nil {
		return nil, errors.New("tl tile is missing")
	}
	size := tiles[split.TL].Bounds().Size()

	layers := make([]raster.Layer, 0, len(split.Tags))
	for _, tag := range split.Tags {
		img := tiles[tag]
		if img == nil {
			return nil, errors.Errorf("%s tile is missing", tag)
		}
		if got := img.Bounds().Size(); got != size {
			return nil, errors.Wrapf(raster.ErrBounds, "%s tile is %v, tl is %v", tag, got, size)
		}
		col, row := int(tag)%2, int(tag)/2
		layers = append(layers, raster.Layer{Image: img, Left: col * size.X, Top: row * size.Y})
	}
	return raster.Compose(2*size.X, 2*size.Y, bg, layers...)
}
