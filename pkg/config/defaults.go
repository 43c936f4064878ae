package config

import (
	"github.com/spf13/viper"

	"github.com/PhantomInTheWire/gridsplit/pkg/profile"
)

// SetDefaults registers every key so environment overrides apply on
// Unmarshal even when no file sets them.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.access_key", "")
	v.SetDefault("storage.secret_key", "")
	v.SetDefault("storage.raw_bucket", "raw-images")
	v.SetDefault("storage.result_bucket", "processed-images")

	v.SetDefault("ledger.path", "gridsplit.db")

	v.SetDefault("kube.kubeconfig", "")
	v.SetDefault("kube.namespace", "default")
	v.SetDefault("kube.image", "ghcr.io/phantominthewire/gridsplit:latest")
	v.SetDefault("kube.config_map", "")
	v.SetDefault("kube.secret", "")
	v.SetDefault("kube.ledger_claim", "")
	v.SetDefault("kube.backoff_limit", 1)

	v.SetDefault("pipeline.profile", profile.AutoSplit.Name)
	v.SetDefault("pipeline.profiles_file", "")
	v.SetDefault("pipeline.workers", 4)

	v.SetDefault("log.json", false)
	v.SetDefault("log.debug", false)
}

// BindSensitiveEnvVars binds the S3 credentials to the conventional AWS
// variables as well as GRIDSPLIT_STORAGE_*.
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("storage.access_key", "GRIDSPLIT_STORAGE_ACCESS_KEY", "AWS_ACCESS_KEY_ID")
	v.BindEnv("storage.secret_key", "GRIDSPLIT_STORAGE_SECRET_KEY", "AWS_SECRET_ACCESS_KEY")
}
