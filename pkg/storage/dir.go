package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/PhantomInTheWire/gridsplit/pkg/pipeline"
)

// DirStore is a Resolver and Sink backed by a directory. An empty Root
// resolves references relative to the working directory.
type DirStore struct {
	Root string
}

func (d DirStore) path(ref string) (string, error) {
	if d.Root == "" {
		return filepath.Clean(ref), nil
	}
	clean := filepath.Clean(filepath.FromSlash(ref))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", errors.Errorf("reference %q escapes %s", ref, d.Root)
	}
	return filepath.Join(d.Root, clean), nil
}

// Resolve implements pipeline.Resolver.
func (d DirStore) Resolve(_ context.Context, ref string) ([]byte, error) {
	p, err := d.path(ref)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(pipeline.ErrNotFound, p)
		}
		return nil, errors.Wrapf(err, "read %s", p)
	}
	return data, nil
}

// Store implements pipeline.Sink. The location is the written file path.
func (d DirStore) Store(_ context.Context, key string, data []byte, _ string) (string, error) {
	p, err := d.path(key)
	if err != nil {
		return "", errors.Wrap(pipeline.ErrSinkWrite, err.Error())
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", errors.Wrap(pipeline.ErrSinkWrite, err.Error())
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", errors.Wrap(pipeline.ErrSinkWrite, err.Error())
	}
	return p, nil
}
