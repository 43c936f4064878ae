// Package profile describes the output geometry of a grid run.
//
// A GridProfile fixes everything that differs between pipeline variants:
// strip size, channel count, background, resize policy, JPEG quality and
// how the main image is mapped onto the 2×2 grid before it is cut.
package profile

import (
	"bytes"
	"image/color"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"gopkg.in/go-playground/colors.v1"
	"gopkg.in/yaml.v3"

	"github.com/PhantomInTheWire/gridsplit/pkg/raster"
	"github.com/PhantomInTheWire/gridsplit/pkg/split"
)

// SplitKind selects the quadrant policy.
type SplitKind string

const (
	// SplitFixed resizes the main image to twice the strip size first.
	SplitFixed SplitKind = "fixed"
	// SplitNative cuts the main image at its natural size.
	SplitNative SplitKind = "native"
)

// Strips per tile: header, quadrant, footer.
const Strips = 3

// GridProfile is one output geometry.
type GridProfile struct {
	Name        string      `toml:"name" yaml:"name"`
	StripWidth  int         `toml:"strip_width" yaml:"strip_width"`
	StripHeight int         `toml:"strip_height" yaml:"strip_height"`
	Channels    int         `toml:"channels" yaml:"channels"`
	Background  string      `toml:"background" yaml:"background"`
	ResizeMode  raster.Mode `toml:"resize_mode" yaml:"resize_mode"`
	Quality     int         `toml:"quality" yaml:"quality"`
	Split       SplitKind   `toml:"split" yaml:"split"`
}

// Named profiles.
var (
	// AutoSplit is the server-side variant: 1080×1920 tiles, main image
	// covered onto a 2160×1280 grid.
	AutoSplit = GridProfile{
		Name:        "auto",
		StripWidth:  1080,
		StripHeight: 640,
		Channels:    3,
		Background:  "white",
		ResizeMode:  raster.ModeCover,
		Quality:     90,
		Split:       SplitFixed,
	}

	// AutoSplitNative has AutoSplit's geometry but cuts the main image at
	// its natural size and lets each quadrant be resized into its strip.
	AutoSplitNative = GridProfile{
		Name:        "auto-native",
		StripWidth:  1080,
		StripHeight: 640,
		Channels:    3,
		Background:  "white",
		ResizeMode:  raster.ModeCover,
		Quality:     90,
		Split:       SplitNative,
	}

	// Assigned is the slot-assignment variant: 600×1011 tiles with an
	// opaque alpha channel.
	Assigned = GridProfile{
		Name:        "assigned",
		StripWidth:  600,
		StripHeight: 337,
		Channels:    4,
		Background:  "white",
		ResizeMode:  raster.ModeCover,
		Quality:     90,
		Split:       SplitFixed,
	}
)

// TileWidth is the width of a composite tile.
func (p GridProfile) TileWidth() int { return p.StripWidth }

// TileHeight is the height of a composite tile.
func (p GridProfile) TileHeight() int { return Strips * p.StripHeight }

// Policy returns the quadrant policy for the main image.
func (p GridProfile) Policy() split.Policy {
	if p.Split == SplitNative {
		return split.Native{}
	}
	return split.FixedGrid{Width: 2 * p.StripWidth, Height: 2 * p.StripHeight, Mode: p.ResizeMode}
}

// Validate checks that the profile can produce tiles.
func (p GridProfile) Validate() error {
	switch {
	case p.Name == "":
		return errors.New("profile name is empty")
	case p.StripWidth <= 0 || p.StripHeight <= 0:
		return errors.Errorf("profile %s: strip size %dx%d must be positive", p.Name, p.StripWidth, p.StripHeight)
	case p.Channels != 3 && p.Channels != 4:
		return errors.Errorf("profile %s: channels must be 3 or 4, got %d", p.Name, p.Channels)
	case p.Quality < 1 || p.Quality > 100:
		return errors.Errorf("profile %s: quality %d outside [1,100]", p.Name, p.Quality)
	case p.Split != SplitFixed && p.Split != SplitNative:
		return errors.Errorf("profile %s: unknown split %q", p.Name, p.Split)
	}
	if _, err := raster.ParseMode(string(p.ResizeMode)); err != nil {
		return errors.Wrapf(err, "profile %s", p.Name)
	}
	if _, err := p.BackgroundColor(); err != nil {
		return err
	}
	return nil
}

var namedColors = map[string]string{
	"white": "#ffffff",
	"black": "#000000",
}

// BackgroundColor parses Background. Three-channel profiles always get an
// opaque background.
func (p GridProfile) BackgroundColor() (color.NRGBA, error) {
	s := strings.TrimSpace(strings.ToLower(p.Background))
	if s == "" {
		s = "white"
	}
	if hex, ok := namedColors[s]; ok {
		s = hex
	}
	c, err := colors.Parse(s)
	if err != nil {
		return color.NRGBA{}, errors.Wrapf(err, "profile %s: background %q", p.Name, p.Background)
	}
	rgba := c.ToRGBA()
	alpha := uint8(math.Round(rgba.A * 255))
	if p.Channels == 3 {
		alpha = 0xff
	}
	return color.NRGBA{R: rgba.R, G: rgba.G, B: rgba.B, A: alpha}, nil
}

// Registry maps profile names to profiles.
type Registry map[string]GridProfile

// Defaults returns a registry holding the built-in profiles.
func Defaults() Registry {
	r := Registry{}
	for _, p := range []GridProfile{AutoSplit, AutoSplitNative, Assigned} {
		r[p.Name] = p
	}
	return r
}

// Lookup returns the named profile.
func (r Registry) Lookup(name string) (GridProfile, error) {
	p, ok := r[name]
	if !ok {
		return GridProfile{}, errors.Errorf("unknown profile %q (have %s)", name, strings.Join(r.Names(), ", "))
	}
	return p, nil
}

// Names returns the registered profile names, sorted.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for n := range r {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

type profileFile struct {
	Profiles []GridProfile `toml:"profile" yaml:"profile"`
}

// LoadFile registers the profiles declared in a TOML file as [[profile]]
// tables, or in a YAML file (.yaml/.yml) as a "profile" list. Fields left
// out inherit from AutoSplit. A file profile replaces a built-in one of the
// same name. Unknown keys are rejected.
func (r Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read profiles file")
	}
	var f profileFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&f); err != nil && err != io.EOF {
			return errors.Wrapf(err, "parse profiles file %s", path)
		}
	default:
		md, err := toml.Decode(string(data), &f)
		if err != nil {
			return errors.Wrapf(err, "parse profiles file %s", path)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return errors.Errorf("profiles file %s: unknown keys %v", path, undecoded)
		}
	}
	for _, p := range f.Profiles {
		p = withDefaults(p)
		if err := p.Validate(); err != nil {
			return errors.Wrapf(err, "profiles file %s", path)
		}
		r[p.Name] = p
	}
	return nil
}

func withDefaults(p GridProfile) GridProfile {
	d := AutoSplit
	if p.StripWidth == 0 {
		p.StripWidth = d.StripWidth
	}
	if p.StripHeight == 0 {
		p.StripHeight = d.StripHeight
	}
	if p.Channels == 0 {
		p.Channels = d.Channels
	}
	if p.Background == "" {
		p.Background = d.Background
	}
	if p.ResizeMode == "" {
		p.ResizeMode = d.ResizeMode
	}
	if p.Quality == 0 {
		p.Quality = d.Quality
	}
	if p.Split == "" {
		p.Split = d.Split
	}
	return p
}
