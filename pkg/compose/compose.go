// Package compose stacks a header strip, a quadrant strip and a footer strip
// into one composite tile.
package compose

import (
	"image"

	"github.com/pkg/errors"

	"github.com/PhantomInTheWire/gridsplit/pkg/profile"
	"github.com/PhantomInTheWire/gridsplit/pkg/raster"
	"github.com/PhantomInTheWire/gridsplit/pkg/split"
)

// ContentType of encoded tiles.
const ContentType = "image/jpeg"

// JPEGChannels is the component count of every encoded tile. JPEG has no
// alpha, so four-channel profiles lose it on encode.
const JPEGChannels = 3

// Tile is one finished composite. It is not modified after Compose returns.
type Tile struct {
	Tag    split.Tag
	Width  int
	Height int
	// Channels is the profile's channel count, the one Image was composed
	// with. JPEG always holds JPEGChannels components.
	Channels int
	Image    *image.NRGBA
	JPEG     []byte
}

// Compose builds the tile for tag: header on top, quadrant in the middle,
// footer at the bottom, each resized to the profile's strip size.
func Compose(tag split.Tag, quadrant, header, footer image.Image, p profile.GridProfile) (*Tile, error) {
	bg, err := p.BackgroundColor()
	if err != nil {
		return nil, err
	}

	strips := [profile.Strips]struct {
		name string
		img  image.Image
	}{
		{"header", header},
		{"quadrant", quadrant},
		{"footer", footer},
	}

	layers := make([]raster.Layer, 0, len(strips))
	for i, s := range strips {
		if s.img == nil {
			return nil, errors.Errorf("%s %s strip is missing", tag, s.name)
		}
		resized, err := raster.Resize(s.img, p.StripWidth, p.StripHeight, p.ResizeMode)
		if err != nil {
			return nil, errors.Wrapf(err, "resize %s %s", tag, s.name)
		}
		layers = append(layers, raster.Layer{Image: resized, Top: i * p.StripHeight})
	}

	canvas, err := raster.Compose(p.TileWidth(), p.TileHeight(), bg, layers...)
	if err != nil {
		return nil, errors.Wrapf(err, "compose %s", tag)
	}

	data, err := raster.EncodeJPEG(canvas, p.Quality)
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s", tag)
	}

	return &Tile{
		Tag:      tag,
		Width:    p.TileWidth(),
		Height:   p.TileHeight(),
		Channels: p.Channels,
		Image:    canvas,
		JPEG:     data,
	}, nil
}
