package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// FileName is the config file looked up when no path is given.
const FileName = "gridsplit.toml"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "GRIDSPLIT"

// Load reads configuration. With an empty path it looks for gridsplit.toml
// in the working directory and then in ~/.gridsplit; a missing file is not
// an error. Environment variables take precedence over the file.
func Load(path string) (*Config, error) {
	v := newViper()

	if path == "" {
		path = findConfig()
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %s", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	if cfg.Pipeline.Workers < 1 {
		return nil, errors.Errorf("pipeline.workers must be positive, got %d", cfg.Pipeline.Workers)
	}
	return &cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	BindSensitiveEnvVars(v)
	SetDefaults(v)
	return v
}

func findConfig() string {
	candidates := []string{FileName}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".gridsplit", FileName))
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}
