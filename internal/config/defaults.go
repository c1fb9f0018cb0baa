package config

import "github.com/spf13/viper"

// setDefaults sets the reference parameter set
func setDefaults(v *viper.Viper) {
	// Simulation defaults
	v.SetDefault("sim.nodes", 128)
	v.SetDefault("sim.tbs_kib", 1024)
	v.SetDefault("sim.iar_seconds", 600)
	v.SetDefault("sim.ack_chains", 32)
	v.SetDefault("sim.iaa_seconds", 10)
	v.SetDefault("sim.duration_minutes", 300)
	v.SetDefault("sim.seed", 0)
	v.SetDefault("sim.batches_per_main", 10)

	// Network defaults
	v.SetDefault("network.min_neighbors", 6)
	v.SetDefault("network.max_neighbors", 11)
	v.SetDefault("network.min_latency_ms", 10)
	v.SetDefault("network.max_latency_ms", 500)
	v.SetDefault("network.min_link_mibps", 5)
	v.SetDefault("network.max_link_mibps", 100)
	v.SetDefault("network.queueing_kibit", 96)

	// Output defaults
	v.SetDefault("output.dir", ".")
	v.SetDefault("output.trace", false)
	v.SetDefault("output.log_level", "info")
	v.SetDefault("output.log_json", false)
	v.SetDefault("output.write_report", true)

	// Archive defaults (disabled)
	v.SetDefault("archive.backend", "")
	v.SetDefault("archive.path", "")
	v.SetDefault("archive.cache_size", 64)
	v.SetDefault("archive.compression", "lz4")
}
