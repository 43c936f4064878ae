// Package raster is the pixel layer of gridsplit: decoding uploads, exact
// size resizing, sub-region extraction, canvas composition and JPEG output.
//
// Every operation returns a fresh *image.NRGBA; inputs are never mutated.
package raster

import (
	"bytes"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"

	// WebP is not in the standard decoder set but is a common upload format.
	_ "golang.org/x/image/webp"
)

var (
	// ErrDecode reports bytes that are not a supported, non-empty image.
	ErrDecode = errors.New("decode image")
	// ErrBounds reports a rectangle or size that does not fit its raster.
	ErrBounds = errors.New("out of bounds")
	// ErrEncode reports a failure producing output bytes.
	ErrEncode = errors.New("encode image")
)

// Mode selects how Resize maps a source onto the target box.
type Mode string

const (
	// ModeCover preserves aspect ratio, scales to cover the box and crops
	// the centred overflow.
	ModeCover Mode = "cover"
	// ModeFill scales each axis independently.
	ModeFill Mode = "fill"
)

// ParseMode converts a configuration string into a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeCover, ModeFill:
		return Mode(s), nil
	case "":
		return ModeCover, nil
	}
	return "", errors.Errorf("unknown resize mode %q", s)
}

// Layer is one raster placed on a canvas at an integer offset.
type Layer struct {
	Image image.Image
	Left  int
	Top   int
}

// Decode loads an encoded image, applying any EXIF orientation.
func Decode(b []byte) (*image.NRGBA, error) {
	img, err := imaging.Decode(bytes.NewReader(b), imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrap(ErrDecode, err.Error())
	}
	if img.Bounds().Empty() {
		return nil, errors.Wrap(ErrDecode, "image has zero width or height")
	}
	return imaging.Clone(img), nil
}

// DecodeConfig reads the natural dimensions of an encoded image without
// decoding its pixels.
func DecodeConfig(b []byte) (width, height int, err error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(b))
	if err != nil {
		return 0, 0, errors.Wrap(ErrDecode, err.Error())
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return 0, 0, errors.Wrapf(ErrDecode, "%s metadata reports %dx%d", format, cfg.Width, cfg.Height)
	}
	return cfg.Width, cfg.Height, nil
}

// Resize returns img scaled to exactly width×height.
func Resize(img image.Image, width, height int, mode Mode) (*image.NRGBA, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Wrapf(ErrBounds, "resize target %dx%d", width, height)
	}
	if img.Bounds().Empty() {
		return nil, errors.Wrap(ErrBounds, "resize of empty image")
	}
	switch mode {
	case ModeCover:
		return imaging.Fill(img, width, height, imaging.Center, imaging.Lanczos), nil
	case ModeFill:
		return imaging.Resize(img, width, height, imaging.Lanczos), nil
	}
	return nil, errors.Errorf("unknown resize mode %q", mode)
}

// Extract copies the width×height region at (left, top), measured from the
// top-left pixel of img. The region must lie entirely inside img.
func Extract(img image.Image, left, top, width, height int) (*image.NRGBA, error) {
	b := img.Bounds()
	if width <= 0 || height <= 0 {
		return nil, errors.Wrapf(ErrBounds, "extract %dx%d at (%d,%d)", width, height, left, top)
	}
	r := image.Rect(left, top, left+width, top+height).Add(b.Min)
	if !r.In(b) {
		return nil, errors.Wrapf(ErrBounds, "extract %dx%d at (%d,%d) from %dx%d",
			width, height, left, top, b.Dx(), b.Dy())
	}
	return imaging.Crop(img, r), nil
}

// Compose paints layers, in order, over a width×height canvas filled with
// bg. Later layers are alpha-blended over earlier ones.
func Compose(width, height int, bg color.Color, layers ...Layer) (*image.NRGBA, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Wrapf(ErrBounds, "canvas %dx%d", width, height)
	}
	canvas := imaging.New(width, height, bg)
	for i, l := range layers {
		lb := l.Image.Bounds()
		r := image.Rect(l.Left, l.Top, l.Left+lb.Dx(), l.Top+lb.Dy())
		if lb.Empty() || !r.In(canvas.Bounds()) {
			return nil, errors.Wrapf(ErrBounds, "layer %d (%dx%d at %d,%d) on %dx%d canvas",
				i, lb.Dx(), lb.Dy(), l.Left, l.Top, width, height)
		}
		canvas = imaging.Overlay(canvas, l.Image, image.Pt(l.Left, l.Top), 1.0)
	}
	return canvas, nil
}

// EncodeJPEG encodes img at the given quality in [1,100].
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	if quality < 1 || quality > 100 {
		return nil, errors.Wrapf(ErrEncode, "jpeg quality %d outside [1,100]", quality)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, errors.Wrap(ErrEncode, err.Error())
	}
	return buf.Bytes(), nil
}
