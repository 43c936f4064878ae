package compose

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PhantomInTheWire/gridsplit/pkg/profile"
	"github.com/PhantomInTheWire/gridsplit/pkg/raster"
	"github.com/PhantomInTheWire/gridsplit/pkg/raster/rastertest"
	"github.com/PhantomInTheWire/gridsplit/pkg/split"
)

var (
	red   = color.NRGBA{R: 255, A: 255}
	green = color.NRGBA{G: 255, A: 255}
	blue  = color.NRGBA{B: 255, A: 255}
)

func near(t *testing.T, want color.NRGBA, got color.NRGBA) {
	t.Helper()
	d := func(a, b uint8) int {
		if a > b {
			return int(a - b)
		}
		return int(b - a)
	}
	assert.LessOrEqual(t, d(want.R, got.R)+d(want.G, got.G)+d(want.B, got.B), 6, "want %v got %v", want, got)
}

func TestComposeAutoSplit(t *testing.T) {
	tile, err := Compose(split.TR,
		rastertest.Solid(1080, 640, green),
		rastertest.Solid(400, 900, red),
		rastertest.Solid(3000, 100, blue),
		profile.AutoSplit,
	)
	require.NoError(t, err)

	assert.Equal(t, split.TR, tile.Tag)
	assert.Equal(t, 1080, tile.Width)
	assert.Equal(t, 1920, tile.Height)
	assert.Equal(t, 3, tile.Channels)
	assert.Equal(t, image.Rect(0, 0, 1080, 1920), tile.Image.Bounds())

	near(t, red, tile.Image.NRGBAAt(540, 320))
	near(t, green, tile.Image.NRGBAAt(540, 960))
	near(t, blue, tile.Image.NRGBAAt(540, 1600))
	assert.True(t, tile.Image.Opaque())

	decoded, err := jpeg.Decode(bytes.NewReader(tile.JPEG))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 1080, 1920), decoded.Bounds())
	_, isYCbCr := decoded.(*image.YCbCr)
	assert.True(t, isYCbCr, "expected a three component JPEG")
}

func TestComposeAssigned(t *testing.T) {
	tile, err := Compose(split.BL,
		rastertest.Gradient(600, 337),
		rastertest.Gradient(10, 10),
		rastertest.Gradient(1200, 700),
		profile.Assigned,
	)
	require.NoError(t, err)
	assert.Equal(t, 600, tile.Width)
	assert.Equal(t, 1011, tile.Height)
	assert.Equal(t, 4, tile.Channels)
	assert.True(t, tile.Image.Opaque())

	w, h, err := raster.DecodeConfig(tile.JPEG)
	require.NoError(t, err)
	assert.Equal(t, 600, w)
	assert.Equal(t, 1011, h)

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(tile.JPEG))
	require.NoError(t, err)
	assert.Equal(t, color.YCbCrModel, cfg.ColorModel, "encoded with %d components", JPEGChannels)
}

func TestComposeTranslucentStripOnWhite(t *testing.T) {
	transparent := color.NRGBA{}
	tile, err := Compose(split.TL,
		rastertest.Solid(20, 10, transparent),
		rastertest.Solid(20, 10, transparent),
		rastertest.Solid(20, 10, transparent),
		profile.GridProfile{Name: "tiny", StripWidth: 20, StripHeight: 10, Channels: 3, Background: "white", ResizeMode: raster.ModeCover, Quality: 90, Split: profile.SplitFixed},
	)
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{255, 255, 255, 255}, tile.Image.NRGBAAt(5, 15))
}

func TestComposeIsDeterministic(t *testing.T) {
	q := rastertest.Gradient(300, 200)
	a, err := Compose(split.TL, q, q, q, profile.Assigned)
	require.NoError(t, err)
	b, err := Compose(split.TL, q, q, q, profile.Assigned)
	require.NoError(t, err)
	assert.Equal(t, a.JPEG, b.JPEG)
}

func TestComposeErrors(t *testing.T) {
	q := rastertest.Solid(10, 10, red)

	_, err := Compose(split.TL, q, nil, q, profile.AutoSplit)
	assert.Error(t, err)

	bad := profile.AutoSplit
	bad.Quality = 0
	_, err = Compose(split.TL, q, q, q, bad)
	assert.True(t, errors.Is(err, raster.ErrEncode))

	empty := &image.NRGBA{}
	_, err = Compose(split.TL, empty, q, q, profile.AutoSplit)
	assert.True(t, errors.Is(err, raster.ErrBounds))
}

func TestStitch(t *testing.T) {
	tiles := [4]image.Image{
		rastertest.Solid(30, 60, red),
		rastertest.Solid(30, 60, green),
		rastertest.Solid(30, 60, blue),
		rastertest.Solid(30, 60, color.NRGBA{A: 255}),
	}
	grid, err := Stitch(tiles, color.White)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 60, 120), grid.Bounds())
	assert.Equal(t, red, grid.NRGBAAt(10, 10))
	assert.Equal(t, green, grid.NRGBAAt(40, 10))
	assert.Equal(t, blue, grid.NRGBAAt(10, 70))
	assert.Equal(t, color.NRGBA{A: 255}, grid.NRGBAAt(40, 70))
}

func TestStitchErrors(t *testing.T) {
	tcs := map[string][4]image.Image{
		"missing tile": {rastertest.Solid(30, 60, red), nil, rastertest.Solid(30, 60, red), rastertest.Solid(30, 60, red)},
		"size mismatch": {
			rastertest.Solid(30, 60, red),
			rastertest.Solid(30, 60, red),
			rastertest.Solid(31, 60, red),
			rastertest.Solid(30, 60, red),
		},
	}
	for name, tiles := range tcs {
		t.Run(name, func(t *testing.T) {
			_, err := Stitch(tiles, color.White)
			assert.Error(t, err)
		})
	}
}
