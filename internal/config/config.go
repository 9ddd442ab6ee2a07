// Package config loads the server's TOML configuration file (§6
// "Configuration"). This is one of the collaborators §1(c) places out of
// scope for the core translation layer in internal/fs; it exists only to
// produce a fs.Config the core can be constructed from.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// LocalMirror mirrors the `[local_mirror]` TOML table (§6) field for
// field, using mapstructure tags the way gcsfuse's cfg package binds its
// own TOML tables into typed structs via viper.
type LocalMirror struct {
	Dir                    string  `mapstructure:"dir"`
	MetadataTimeoutSeconds float64 `mapstructure:"metadata_timeout"`
	URingCQPolling         bool    `mapstructure:"uring_cq_polling"`
	URingCQPollingNThreads int     `mapstructure:"uring_cq_polling_nthreads"`
}

// Config is the top-level document; §6 names exactly one table.
type Config struct {
	LocalMirror LocalMirror `mapstructure:"local_mirror"`
}

// MetadataTimeout converts the TOML seconds value to a time.Duration, the
// unit internal/fs.Config/Session actually work in.
func (c Config) MetadataTimeout() time.Duration {
	return time.Duration(c.LocalMirror.MetadataTimeoutSeconds * float64(time.Second))
}

// Load reads and validates the TOML file at path. Every field in §6 is
// required; Load returns an error naming the first missing or invalid one
// rather than silently defaulting, matching §6's CLI contract ("exit
// non-zero with a message on missing/invalid config").
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config %q: %w", path, err)
	}

	for _, key := range []string{
		"local_mirror.dir",
		"local_mirror.metadata_timeout",
		"local_mirror.uring_cq_polling",
		"local_mirror.uring_cq_polling_nthreads",
	} {
		if !v.IsSet(key) {
			return Config{}, fmt.Errorf("invalid config %q: %s is required", path, key)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config %q: %w", path, err)
	}

	if err := validate(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config %q: %w", path, err)
	}
	return cfg, nil
}

func validate(cfg Config) error {
	lm := cfg.LocalMirror
	if lm.Dir == "" {
		return fmt.Errorf("local_mirror.dir is required")
	}
	if lm.MetadataTimeoutSeconds < 0 {
		return fmt.Errorf("local_mirror.metadata_timeout must be >= 0, got %v", lm.MetadataTimeoutSeconds)
	}
	if lm.URingCQPollingNThreads < 1 {
		return fmt.Errorf("local_mirror.uring_cq_polling_nthreads must be >= 1, got %d", lm.URingCQPollingNThreads)
	}
	return nil
}
