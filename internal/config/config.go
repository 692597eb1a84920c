// Package config loads the geosnag YAML configuration and applies
// defaults and environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/zheqd/geosnag/internal/constants"
	"github.com/zheqd/geosnag/internal/index"
)

// Write modes for applying GPS data.
const (
	WriteModeExif       = "exif"
	WriteModeXMPSidecar = "xmp_sidecar"
	WriteModeBoth       = "both"
)

type Config struct {
	ScanDirs        []string `yaml:"scan_dirs"`
	Extensions      []string `yaml:"extensions"`
	Recursive       bool     `yaml:"recursive"`
	ExcludePatterns []string `yaml:"exclude_patterns"`
	WriteMode       string   `yaml:"write_mode"`
	DryRun          bool     `yaml:"dry_run"`
	SkipProcessed   bool     `yaml:"skip_processed"`
	UseIndex        bool     `yaml:"use_index"`
	Workers         int      `yaml:"workers"`
	LogLevel        string   `yaml:"log_level"`
	Matching        Matching `yaml:"matching"`

	// Path is the location the config was loaded from; the index file
	// lives in the same directory.
	Path string `yaml:"-"`
}

type Matching struct {
	MaxTimeDeltaMinutes int     `yaml:"max_time_delta_minutes"`
	MinConfidence       float64 `yaml:"min_confidence"`
}

// Default returns the configuration used when a field is absent from
// the YAML file.
func Default() *Config {
	return &Config{
		Recursive:     true,
		WriteMode:     WriteModeExif,
		DryRun:        true,
		SkipProcessed: true,
		UseIndex:      true,
		Workers:       envInt("GEOSNAG_WORKERS", constants.DefaultWorkers),
		LogLevel:      envString("GEOSNAG_LOG_LEVEL", "info"),
		Matching: Matching{
			MaxTimeDeltaMinutes: constants.DefaultMaxTimeDeltaMinutes,
			MinConfidence:       constants.DefaultMinConfidence,
		},
	}
}

// Load reads and validates the YAML config at path, starting from the
// defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	cfg.Path = abs

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.ScanDirs) == 0 {
		return fmt.Errorf("no directories configured, set scan_dirs in %s", c.Path)
	}
	switch c.WriteMode {
	case WriteModeExif, WriteModeXMPSidecar, WriteModeBoth:
	default:
		return fmt.Errorf("invalid write_mode %q (want exif, xmp_sidecar, or both)", c.WriteMode)
	}
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.Matching.MaxTimeDeltaMinutes < 0 {
		return fmt.Errorf("matching.max_time_delta_minutes must be >= 0")
	}
	return nil
}

// IndexPath returns the scan index location, next to the config file.
func (c *Config) IndexPath() string {
	return filepath.Join(filepath.Dir(c.Path), index.Filename)
}

// envString reads an environment variable with a default.
func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}
