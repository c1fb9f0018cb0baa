package config

import "fmt"

// ArchiveConfig represents the [archive] section
// Configures the store finished reports are written to
type ArchiveConfig struct {
	// Backend is one of memory, pebble, leveldb or sqlite. Empty disables
	// archiving.
	Backend     string `toml:"backend" mapstructure:"backend"`
	Path        string `toml:"path" mapstructure:"path"`
	CacheSize   int    `toml:"cache_size" mapstructure:"cache_size"`
	Compression string `toml:"compression" mapstructure:"compression"`
}

// Enabled returns true if reports should be archived.
func (a *ArchiveConfig) Enabled() bool {
	return a.Backend != ""
}

// Validate performs validation on the archive configuration
func (a *ArchiveConfig) Validate() error {
	if !a.Enabled() {
		return nil
	}

	validBackends := []string{"memory", "pebble", "leveldb", "sqlite"}
	if !containsSlice(validBackends, a.Backend) {
		return fmt.Errorf("invalid archive backend: %s (valid options: memory, pebble, leveldb, sqlite)", a.Backend)
	}

	if a.Backend != "memory" && a.Path == "" {
		return fmt.Errorf("archive path is required for backend %s", a.Backend)
	}

	if a.CacheSize < 0 {
		return fmt.Errorf("cache_size must be non-negative, got %d", a.CacheSize)
	}

	validCompression := []string{"none", "lz4"}
	if a.Compression != "" && !containsSlice(validCompression, a.Compression) {
		return fmt.Errorf("invalid archive compression: %s (valid options: none, lz4)", a.Compression)
	}

	return nil
}

func containsSlice(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
