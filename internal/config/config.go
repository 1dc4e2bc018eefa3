// Package config is used to load the configuration file
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// roots holds the three filesystem roots and the one URL constant that
// spec.md §6 parameterizes at build/deployment time.
type roots struct {
	UUIDIndex   string `mapstructure:"uuid_index"`
	SymbolIndex string `mapstructure:"symbol_index"`
	CacheRoot   string `mapstructure:"cache_root"`
	SourceURL   string `mapstructure:"source_server_url"`
}

type rendezvous struct {
	// ServiceName is the bootstrap service name the writer and the target
	// agree on out of band. It has no default: spec.md's Open Question (a)
	// requires it be supplied explicitly rather than guessed or randomized.
	ServiceName string        `mapstructure:"service_name"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// Config is the configuration struct for both the dumpwriter and opendump
// binaries.
type Config struct {
	Roots       roots      `mapstructure:"roots"`
	Rendezvous  rendezvous `mapstructure:"rendezvous"`
	MountSource bool       `mapstructure:"mount_source"`
	// BigMode, when set, makes RegionPolicy include every mapped region's
	// body instead of only stacks and thread-pointer-containing regions
	// (spec.md §4.4).
	BigMode bool `mapstructure:"big_mode"`
}

func (c *Config) verify() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("config: failed to get user home directory: %v", err)
	}

	if c.Roots.UUIDIndex == "" {
		c.Roots.UUIDIndex = filepath.Join(home, "uuids")
	}
	if c.Roots.SymbolIndex == "" {
		c.Roots.SymbolIndex = filepath.Join(home, "symbols")
	}
	if c.Roots.CacheRoot == "" {
		c.Roots.CacheRoot = filepath.Join(home, "symbol_cache")
	}
	if c.Rendezvous.ServiceName == "" {
		return fmt.Errorf("config: rendezvous.service_name must be set (see SPEC_FULL.md Open Question (a))")
	}

	return nil
}

// LoadConfig loads the configuration file
func LoadConfig() (*Config, error) {
	var c Config

	if err := viper.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal: %v", err)
	}

	if err := c.verify(); err != nil {
		return nil, fmt.Errorf("config: failed to verify: %v", err)
	}

	return &c, nil
}
