package config

import (
	"fmt"
	"strings"
)

// ValidateConfig performs validation on the complete configuration
func ValidateConfig(config *Config) error {
	if err := config.Sim.Validate(); err != nil {
		return fmt.Errorf("sim validation failed: %w", err)
	}

	if err := config.Network.Validate(); err != nil {
		return fmt.Errorf("network validation failed: %w", err)
	}

	if err := config.Output.Validate(); err != nil {
		return fmt.Errorf("output validation failed: %w", err)
	}

	if err := config.Archive.Validate(); err != nil {
		return fmt.Errorf("archive validation failed: %w", err)
	}

	// Cross-validation: the simulation re-checks the converted parameters.
	if err := config.Params().Validate(); err != nil {
		return fmt.Errorf("parameter validation failed: %w", err)
	}

	return nil
}

// Validate performs validation on the sim section
func (s *SimConfig) Validate() error {
	if s.Nodes < 1 {
		return fmt.Errorf("nodes must be at least 1, got %d", s.Nodes)
	}
	if s.TBSKiB < 1 {
		return fmt.Errorf("tbs_kib must be at least 1, got %d", s.TBSKiB)
	}
	if s.IARSeconds < 1 {
		return fmt.Errorf("iar_seconds must be at least 1, got %d", s.IARSeconds)
	}
	if s.AckChains < 1 {
		return fmt.Errorf("ack_chains must be at least 1, got %d", s.AckChains)
	}
	if s.IAASeconds < 1 {
		return fmt.Errorf("iaa_seconds must be at least 1, got %d", s.IAASeconds)
	}
	if s.DurationMinutes < 1 {
		return fmt.Errorf("duration_minutes must be at least 1, got %d", s.DurationMinutes)
	}
	if s.BatchesPerMain < 1 {
		return fmt.Errorf("batches_per_main must be at least 1, got %d", s.BatchesPerMain)
	}
	return nil
}

// Validate performs validation on the network section
func (n *NetworkConfig) Validate() error {
	if n.MinNeighbors < 1 {
		return fmt.Errorf("min_neighbors must be at least 1, got %d", n.MinNeighbors)
	}
	if n.MaxNeighbors < n.MinNeighbors {
		return fmt.Errorf("max_neighbors (%d) must not be below min_neighbors (%d)", n.MaxNeighbors, n.MinNeighbors)
	}
	if n.MinLatencyMS < 0 {
		return fmt.Errorf("min_latency_ms must be non-negative, got %d", n.MinLatencyMS)
	}
	if n.MaxLatencyMS < n.MinLatencyMS {
		return fmt.Errorf("max_latency_ms (%d) must not be below min_latency_ms (%d)", n.MaxLatencyMS, n.MinLatencyMS)
	}
	if n.MinLinkMibps < 1 {
		return fmt.Errorf("min_link_mibps must be at least 1, got %d", n.MinLinkMibps)
	}
	if n.MaxLinkMibps < n.MinLinkMibps {
		return fmt.Errorf("max_link_mibps (%d) must not be below min_link_mibps (%d)", n.MaxLinkMibps, n.MinLinkMibps)
	}
	if n.QueueingKibit < 0 {
		return fmt.Errorf("queueing_kibit must be non-negative, got %d", n.QueueingKibit)
	}
	return nil
}

// Validate performs validation on the output section
func (o *OutputConfig) Validate() error {
	validLevels := []string{"trace", "debug", "info", "warn", "error", "disabled"}
	if !containsSlice(validLevels, strings.ToLower(o.LogLevel)) {
		return fmt.Errorf("invalid log_level: %s (valid options: %s)", o.LogLevel, strings.Join(validLevels, ", "))
	}
	if o.WriteReport && o.Dir == "" {
		return fmt.Errorf("dir is required when write_report is enabled")
	}
	return nil
}
