package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// FlagKeys maps command line flag names to configuration keys. Flags set on
// the command line override file and environment values.
var FlagKeys = map[string]string{
	"N":            "sim.nodes",
	"TBS":          "sim.tbs_kib",
	"IAR":          "sim.iar_seconds",
	"AC":           "sim.ack_chains",
	"IAA":          "sim.iaa_seconds",
	"duration":     "sim.duration_minutes",
	"seed":         "sim.seed",
	"batches":      "sim.batches_per_main",
	"out":          "output.dir",
	"trace":        "output.trace",
	"log-level":    "output.log_level",
	"log-json":     "output.log_json",
	"archive":      "archive.backend",
	"archive-path": "archive.path",
}

// LoadConfig loads configuration from multiple sources in priority order:
// 1. Default values
// 2. Configuration file (TOML, YAML or JSON, chosen by extension)
// 3. Environment variables (ACKSIM_ prefix, ACKSIM_SIM_NODES for sim.nodes)
// 4. Command line flags that were explicitly set
func LoadConfig(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	// 1. Set defaults first
	setDefaults(v)

	// 2. Load configuration file, if any
	if path != "" {
		if err := loadMainConfig(v, path); err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	// 3. Set up environment variable support
	v.SetEnvPrefix("ACKSIM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 4. Bind command line flags
	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	config.configPath = path

	if err := ValidateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// loadMainConfig loads the configuration file
func loadMainConfig(v *viper.Viper, configPath string) error {
	v.SetConfigFile(configPath)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return fmt.Errorf("config file does not exist: %s", configPath)
	}

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	return nil
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range FlagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("flag %s: %w", name, err)
		}
	}
	return nil
}

// SaveExampleConfig writes the default configuration to a file.
func SaveExampleConfig(configPath string) error {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(configPath)
	if err := v.WriteConfig(); err != nil {
		return fmt.Errorf("failed to write example config: %w", err)
	}

	return nil
}
