package pipeline

import (
	"github.com/pkg/errors"

	"github.com/PhantomInTheWire/gridsplit/pkg/raster"
)

var (
	// ErrNotFound reports a missing input or an incomplete slot assignment.
	ErrNotFound = errors.New("not found")
	// ErrSinkWrite reports a failure persisting a tile.
	ErrSinkWrite = errors.New("sink write")

	// ErrDecode and ErrBounds are re-exported so callers of this package
	// can classify every failure without importing raster.
	ErrDecode = raster.ErrDecode
	ErrBounds = raster.ErrBounds
)

// Kind names the error class of err for status reporting.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrDecode):
		return "decode"
	case errors.Is(err, ErrBounds):
		return "bounds"
	case errors.Is(err, ErrSinkWrite):
		return "sink_write"
	case errors.Is(err, raster.ErrEncode):
		return "encode"
	}
	return "internal"
}
