package config

import (
	"time"

	"github.com/LeJamon/ackchain-sim/internal/core/sim"
)

// Config represents the complete acksim configuration.
type Config struct {
	// Sim holds the run parameters.
	Sim SimConfig `toml:"sim" mapstructure:"sim"`

	// Network holds the topology and delay model ranges.
	Network NetworkConfig `toml:"network" mapstructure:"network"`

	// Output controls logging, tracing and the report file.
	Output OutputConfig `toml:"output" mapstructure:"output"`

	// Archive configures where finished reports are stored.
	Archive ArchiveConfig `toml:"archive" mapstructure:"archive"`

	// Internal fields for configuration management
	configPath string `toml:"-" mapstructure:"-"`
}

// SimConfig represents the [sim] section. Units follow the command line:
// KiB, seconds and minutes.
type SimConfig struct {
	Nodes           int   `toml:"nodes" mapstructure:"nodes"`
	TBSKiB          int   `toml:"tbs_kib" mapstructure:"tbs_kib"`
	IARSeconds      int   `toml:"iar_seconds" mapstructure:"iar_seconds"`
	AckChains       int   `toml:"ack_chains" mapstructure:"ack_chains"`
	IAASeconds      int   `toml:"iaa_seconds" mapstructure:"iaa_seconds"`
	DurationMinutes int   `toml:"duration_minutes" mapstructure:"duration_minutes"`
	Seed            int64 `toml:"seed" mapstructure:"seed"`
	BatchesPerMain  int   `toml:"batches_per_main" mapstructure:"batches_per_main"`
}

// NetworkConfig represents the [network] section
type NetworkConfig struct {
	MinNeighbors  int `toml:"min_neighbors" mapstructure:"min_neighbors"`
	MaxNeighbors  int `toml:"max_neighbors" mapstructure:"max_neighbors"`
	MinLatencyMS  int `toml:"min_latency_ms" mapstructure:"min_latency_ms"`
	MaxLatencyMS  int `toml:"max_latency_ms" mapstructure:"max_latency_ms"`
	MinLinkMibps  int `toml:"min_link_mibps" mapstructure:"min_link_mibps"`
	MaxLinkMibps  int `toml:"max_link_mibps" mapstructure:"max_link_mibps"`
	QueueingKibit int `toml:"queueing_kibit" mapstructure:"queueing_kibit"`
}

// OutputConfig represents the [output] section
type OutputConfig struct {
	// Dir is where report files are written.
	Dir string `toml:"dir" mapstructure:"dir"`
	// Trace enables the per-event trace.
	Trace       bool   `toml:"trace" mapstructure:"trace"`
	LogLevel    string `toml:"log_level" mapstructure:"log_level"`
	LogJSON     bool   `toml:"log_json" mapstructure:"log_json"`
	WriteReport bool   `toml:"write_report" mapstructure:"write_report"`
}

// GetConfigPath returns the path of the loaded configuration file, if any.
func (c *Config) GetConfigPath() string {
	return c.configPath
}

// Params converts the configuration into simulation parameters.
func (c *Config) Params() sim.Params {
	return sim.Params{
		Nodes:           c.Sim.Nodes,
		BatchKiB:        c.Sim.TBSKiB,
		MainIntervalSec: c.Sim.IARSeconds,
		AckChains:       c.Sim.AckChains,
		AckIntervalSec:  c.Sim.IAASeconds,
		DurationMin:     c.Sim.DurationMinutes,
		BatchesPerMain:  c.Sim.BatchesPerMain,
		Seed:            c.Sim.Seed,
		Network: sim.NetworkParams{
			MinNeighbors: c.Network.MinNeighbors,
			MaxNeighbors: c.Network.MaxNeighbors,
			MinLatency:   time.Duration(c.Network.MinLatencyMS) * time.Millisecond,
			MaxLatency:   time.Duration(c.Network.MaxLatencyMS) * time.Millisecond,
			MinLinkMibps: c.Network.MinLinkMibps,
			MaxLinkMibps: c.Network.MaxLinkMibps,
			QueueingBits: uint64(c.Network.QueueingKibit) * 1024,
		},
	}
}
