// Package commands implements the gridsplit subcommands.
package commands

import (
	"context"

	"github.com/pkg/errors"

	"github.com/PhantomInTheWire/gridsplit/pkg/config"
	"github.com/PhantomInTheWire/gridsplit/pkg/ledger"
	"github.com/PhantomInTheWire/gridsplit/pkg/logger"
	"github.com/PhantomInTheWire/gridsplit/pkg/profile"
	"github.com/PhantomInTheWire/gridsplit/pkg/storage"
)

var cfg *config.Config

// Setup loads configuration and initializes the global logger. The flags
// only ever turn options on.
func Setup(configPath string, jsonLog, debug bool) error {
	c, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg = c
	if err := logger.Initialize(jsonLog || c.Log.JSON, debug || c.Log.Debug); err != nil {
		return errors.Wrap(err, "failed to initialize logger")
	}
	return nil
}

func settings() (*config.Config, error) {
	if cfg == nil {
		return config.Load("")
	}
	return cfg, nil
}

// loadProfile resolves name, or the configured default when empty, against
// the built-in profiles plus any profiles file.
func loadProfile(c *config.Config, name string) (profile.GridProfile, error) {
	reg := profile.Defaults()
	if c.Pipeline.ProfilesFile != "" {
		if err := reg.LoadFile(c.Pipeline.ProfilesFile); err != nil {
			return profile.GridProfile{}, err
		}
	}
	if name == "" {
		name = c.Pipeline.Profile
	}
	return reg.Lookup(name)
}

func openLedger(c *config.Config) (*ledger.SQLite, error) {
	l, err := ledger.Open(c.Ledger.Path, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open ledger")
	}
	return l, nil
}

func openStore(ctx context.Context, c *config.Config) (*storage.S3Store, error) {
	s, err := storage.NewS3Store(ctx, c.Storage)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to object storage")
	}
	return s, nil
}
