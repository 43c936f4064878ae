// Package split cuts one source image into the four quadrants of a 2×2 grid.
package split

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/PhantomInTheWire/gridsplit/pkg/raster"
)

// Tag identifies a quadrant.
type Tag int

const (
	TL Tag = iota
	TR
	BL
	BR
)

// Tags lists the quadrants in output order.
var Tags = [4]Tag{TL, TR, BL, BR}

var tagNames = [4]string{"tl", "tr", "bl", "br"}

// String returns the lower-case key form used in slot names and output keys.
func (t Tag) String() string {
	if t < TL || t > BR {
		return fmt.Sprintf("Tag(%d)", int(t))
	}
	return tagNames[t]
}

// ParseTag is the inverse of Tag.String.
func ParseTag(s string) (Tag, error) {
	for i, n := range tagNames {
		if n == s {
			return Tag(i), nil
		}
	}
	return 0, errors.Errorf("unknown quadrant tag %q", s)
}

// Quadrants holds one raster per tag, indexed by Tag.
type Quadrants [4]*image.NRGBA

// Rects returns the quadrant rectangles of a w×h grid. The right column and
// bottom row absorb the remainder of odd dimensions, so the four rectangles
// always tile the grid exactly.
func Rects(w, h int) [4]image.Rectangle {
	halfW, halfH := w/2, h/2
	return [4]image.Rectangle{
		TL: image.Rect(0, 0, halfW, halfH),
		TR: image.Rect(halfW, 0, w, halfH),
		BL: image.Rect(0, halfH, halfW, h),
		BR: image.Rect(halfW, halfH, w, h),
	}
}

// Policy decides how a decoded source maps onto the grid before cutting.
type Policy interface {
	Split(img image.Image) (Quadrants, error)
}

// FixedGrid resizes the source to Width×Height before cutting, so every
// quadrant is exactly Width/2 × Height/2.
type FixedGrid struct {
	Width  int
	Height int
	// Mode defaults to raster.ModeCover.
	Mode raster.Mode
}

// Split implements Policy.
func (g FixedGrid) Split(img image.Image) (Quadrants, error) {
	if g.Width <= 0 || g.Height <= 0 || g.Width%2 != 0 || g.Height%2 != 0 {
		return Quadrants{}, errors.Wrapf(raster.ErrBounds, "fixed grid %dx%d must be positive and even", g.Width, g.Height)
	}
	mode := g.Mode
	if mode == "" {
		mode = raster.ModeCover
	}
	resized, err := raster.Resize(img, g.Width, g.Height, mode)
	if err != nil {
		return Quadrants{}, errors.Wrap(err, "resize to grid")
	}
	return cut(resized)
}

// Native cuts the source at its natural size.
type Native struct{}

// Split implements Policy.
func (Native) Split(img image.Image) (Quadrants, error) {
	return cut(img)
}

func cut(img image.Image) (Quadrants, error) {
	b := img.Bounds()
	if b.Dx() < 2 || b.Dy() < 2 {
		return Quadrants{}, errors.Wrapf(raster.ErrBounds, "cannot split %dx%d image into quadrants", b.Dx(), b.Dy())
	}
	rects := Rects(b.Dx(), b.Dy())
	var q Quadrants
	for _, tag := range Tags {
		r := rects[tag]
		sub, err := raster.Extract(img, r.Min.X, r.Min.Y, r.Dx(), r.Dy())
		if err != nil {
			return Quadrants{}, errors.Wrapf(err, "extract %s", tag)
		}
		q[tag] = sub
	}
	return q, nil
}

// Split decodes src and cuts it with p.
func Split(src []byte, p Policy) (Quadrants, error) {
	img, err := raster.Decode(src)
	if err != nil {
		return Quadrants{}, err
	}
	return p.Split(img)
}

// WriteFiles encodes each quadrant as JPEG into outDir and returns the
// written file names in tag order.
func WriteFiles(q Quadrants, outDir, prefix string, quality int) ([]string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}

	files := make([]string, 0, len(Tags))
	for _, tag := range Tags {
		data, err := raster.EncodeJPEG(q[tag], quality)
		if err != nil {
			return nil, errors.Wrapf(err, "encode %s", tag)
		}
		outFile := filepath.Join(outDir, fmt.Sprintf("%s-%s.jpg", prefix, tag))
		if err := os.WriteFile(outFile, data, 0o644); err != nil {
			return nil, err
		}
		files = append(files, outFile)
	}
	return files, nil
}
