package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	config, err := LoadConfig("", nil)
	require.NoError(t, err)

	assert.Equal(t, 128, config.Sim.Nodes)
	assert.Equal(t, 1024, config.Sim.TBSKiB)
	assert.Equal(t, 600, config.Sim.IARSeconds)
	assert.Equal(t, 32, config.Sim.AckChains)
	assert.Equal(t, 10, config.Sim.IAASeconds)
	assert.Equal(t, 300, config.Sim.DurationMinutes)
	assert.Equal(t, 10, config.Sim.BatchesPerMain)
	assert.False(t, config.Archive.Enabled())
	assert.True(t, config.Output.WriteReport)

	p := config.Params()
	assert.Equal(t, "N_128_TBS_1024_IAR_600_ack_32_IAA_10_duration_300", p.Name())
	assert.Equal(t, 10*time.Millisecond, p.Network.MinLatency)
	assert.Equal(t, 500*time.Millisecond, p.Network.MaxLatency)
	assert.Equal(t, uint64(96*1024), p.Network.QueueingBits)
	assert.Equal(t, ".", config.Output.Dir)
}

func TestLoadConfig(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "acksim_config_test")
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)

	content := `
[sim]
nodes = 16
ack_chains = 4
seed = 42

[network]
queueing_kibit = 0

[output]
dir = "reports"
log_level = "debug"

[archive]
backend = "pebble"
path = "/tmp/acksim/archive"
`
	path := filepath.Join(tempDir, "acksim.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	config, err := LoadConfig(path, nil)
	require.NoError(t, err)

	assert.Equal(t, path, config.GetConfigPath())
	assert.Equal(t, 16, config.Sim.Nodes)
	assert.Equal(t, 4, config.Sim.AckChains)
	assert.Equal(t, int64(42), config.Sim.Seed)
	assert.Equal(t, 600, config.Sim.IARSeconds, "unset keys keep their defaults")
	assert.Equal(t, 0, config.Network.QueueingKibit)
	assert.Equal(t, "reports", config.Output.Dir)
	assert.Equal(t, "debug", config.Output.LogLevel)
	assert.Equal(t, "pebble", config.Archive.Backend)
	assert.Equal(t, "lz4", config.Archive.Compression)
}

func TestLoadConfigFlagsOverrideFile(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, "acksim.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sim:\n  nodes: 16\n  ack_chains: 4\n"), 0644))

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("N", 128, "")
	flags.Int("AC", 32, "")
	flags.Int("IAA", 10, "")
	require.NoError(t, flags.Parse([]string{"--N", "24"}))

	config, err := LoadConfig(path, flags)
	require.NoError(t, err)
	assert.Equal(t, 24, config.Sim.Nodes, "explicit flag wins")
	assert.Equal(t, 4, config.Sim.AckChains, "file wins over flag default")
	assert.Equal(t, 10, config.Sim.IAASeconds)
}

func TestLoadConfigEnv(t *testing.T) {
	t.Setenv("ACKSIM_SIM_DURATION_MINUTES", "7")
	t.Setenv("ACKSIM_OUTPUT_TRACE", "true")

	config, err := LoadConfig("", nil)
	require.NoError(t, err)
	assert.Equal(t, 7, config.Sim.DurationMinutes)
	assert.True(t, config.Output.Trace)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"), nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestConfigValidation(t *testing.T) {
	valid := func() *Config {
		config, err := LoadConfig("", nil)
		require.NoError(t, err)
		return config
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"no nodes", func(c *Config) { c.Sim.Nodes = 0 }, "sim validation failed"},
		{"no ack chains", func(c *Config) { c.Sim.AckChains = 0 }, "ack_chains"},
		{"inverted neighbors", func(c *Config) { c.Network.MaxNeighbors = 2 }, "network validation failed"},
		{"inverted latency", func(c *Config) { c.Network.MinLatencyMS = 600 }, "max_latency_ms"},
		{"bad log level", func(c *Config) { c.Output.LogLevel = "loud" }, "log_level"},
		{"report without dir", func(c *Config) { c.Output.Dir = "" }, "dir is required"},
		{"unknown backend", func(c *Config) { c.Archive.Backend = "nudb" }, "invalid archive backend"},
		{"pebble without path", func(c *Config) { c.Archive.Backend = "pebble" }, "path is required"},
		{"memory without path", func(c *Config) { c.Archive.Backend = "memory" }, ""},
		{"bad compression", func(c *Config) {
			c.Archive.Backend = "memory"
			c.Archive.Compression = "zstd"
		}, "compression"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := valid()
			tt.mutate(config)
			err := ValidateConfig(config)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSaveExampleConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "example.toml")
	require.NoError(t, SaveExampleConfig(path))

	config, err := LoadConfig(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 128, config.Sim.Nodes)
	assert.Equal(t, 96, config.Network.QueueingKibit)
}
