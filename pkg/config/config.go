// Package config loads gridsplit settings from gridsplit.toml and
// GRIDSPLIT_* environment variables.
package config

import (
	"github.com/PhantomInTheWire/gridsplit/pkg/storage"
)

// Config is the full gridsplit configuration.
type Config struct {
	Storage  storage.MinioConfig `mapstructure:"storage"`
	Ledger   LedgerConfig        `mapstructure:"ledger"`
	Kube     KubeConfig          `mapstructure:"kube"`
	Pipeline PipelineConfig      `mapstructure:"pipeline"`
	Log      LogConfig           `mapstructure:"log"`
}

// LedgerConfig locates the SQLite job ledger.
type LedgerConfig struct {
	Path string `mapstructure:"path"`
}

// KubeConfig controls how runs are dispatched to a cluster.
type KubeConfig struct {
	Kubeconfig   string `mapstructure:"kubeconfig"`
	Namespace    string `mapstructure:"namespace"`
	Image        string `mapstructure:"image"`
	ConfigMap    string `mapstructure:"config_map"`
	Secret       string `mapstructure:"secret"`
	LedgerClaim  string `mapstructure:"ledger_claim"`
	BackoffLimit int32  `mapstructure:"backoff_limit"`
}

// PipelineConfig selects the grid profile and concurrency.
type PipelineConfig struct {
	Profile      string `mapstructure:"profile"`
	ProfilesFile string `mapstructure:"profiles_file"`
	Workers      int    `mapstructure:"workers"`
}

// LogConfig controls logger output.
type LogConfig struct {
	JSON  bool `mapstructure:"json"`
	Debug bool `mapstructure:"debug"`
}
