// Package config loads cardrefine's tunables: JSON-with-comments via
// hujson, layered defaults -> global -> project, where the project
// layer may be a file path given on the command line.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/natefinch/atomic"
	"github.com/tailscale/hujson"
)

// ConfigFileName is the default project-local config file name.
const ConfigFileName = ".cardrefine.json"

var (
	errConfigFileNotFound = errors.New("config: file not found")
	errConfigFileRead     = errors.New("config: could not read file")
	errConfigInvalid      = errors.New("config: invalid")
	errRegionBytesInvalid = errors.New("config: region_bytes must be positive")
)

// Config holds the process-wide tunables: the flags governing WCQ
// storage/filtering, the deferred-dirtying switch, and the
// controller's tuning knobs.
type Config struct {
	// WrittenCardQueuesEnabled mirrors G1UseWrittenCardQueues.
	WrittenCardQueuesEnabled bool `json:"written_card_queues_enabled"`

	// FilterMode selects the process-wide WCQ filter: "none", "young",
	// or "previous".
	FilterMode string `json:"filter_mode"`

	// DeferredDirtyingEnabled gates whether WCQ overflow may hand
	// buffers to the WCQS instead of dirtying immediately.
	DeferredDirtyingEnabled bool `json:"deferred_dirtying_enabled"`

	// RegionBytes is a heap region's size in bytes, used by the
	// refine-threads-needed controller's allocation-rate math.
	RegionBytes int64 `json:"region_bytes"`

	// UpdatePeriod is how often the controller's Update runs.
	UpdatePeriodMS int64 `json:"update_period_ms"`

	// RetirementWorkers is the parallel worker count for the
	// pre-evacuation retirement task's Java-thread sweep.
	RetirementWorkers int `json:"retirement_workers"`

	// RetirementChunkSize is the claimer's per-worker chunk size;
	// 0 uses the package default (~250).
	RetirementChunkSize int `json:"retirement_chunk_size"`
}

// UpdatePeriod returns UpdatePeriodMS as a time.Duration.
func (c Config) UpdatePeriod() time.Duration {
	return time.Duration(c.UpdatePeriodMS) * time.Millisecond
}

// Default returns the out-of-the-box configuration.
func Default() Config {
	return Config{
		WrittenCardQueuesEnabled: true,
		FilterMode:               "none",
		DeferredDirtyingEnabled:  false,
		RegionBytes:              1 << 20,
		UpdatePeriodMS:           300,
		RetirementWorkers:        4,
	}
}

// Sources records which config files, if any, contributed to a Load.
type Sources struct {
	Global  string
	Project string
}

// Load layers Default() -> global user config -> project config, in
// that precedence order. The project layer is configPath when it is
// non-empty (and must then exist); otherwise it is workDir's
// .cardrefine.json, if present. The two are never both read.
func Load(workDir, configPath string, env []string) (Config, Sources, error) {
	cfg := Default()

	var sources Sources

	globalCfg, globalPath, err := loadGlobalConfig(env)
	if err != nil {
		return Config{}, Sources{}, err
	}

	sources.Global = globalPath
	cfg = merge(cfg, globalCfg)

	projectCfg, projectPath, err := loadProjectConfig(workDir, configPath)
	if err != nil {
		return Config{}, Sources{}, err
	}

	sources.Project = projectPath
	cfg = merge(cfg, projectCfg)

	if err := validate(cfg); err != nil {
		return Config{}, Sources{}, err
	}

	return cfg, sources, nil
}

// fileConfig is Config's on-disk shape: bool fields are pointers so a
// file that explicitly writes `"deferred_dirtying_enabled": false` is
// distinguishable from a file that never mentions the key at all -
// plain bools can't represent "absent" separately from "false", which
// would otherwise make merge unable to ever override a true default
// back to false.
type fileConfig struct {
	WrittenCardQueuesEnabled *bool  `json:"written_card_queues_enabled"`
	FilterMode               string `json:"filter_mode"`
	DeferredDirtyingEnabled  *bool  `json:"deferred_dirtying_enabled"`
	RegionBytes              int64  `json:"region_bytes"`
	UpdatePeriodMS           int64  `json:"update_period_ms"`
	RetirementWorkers        int    `json:"retirement_workers"`
	RetirementChunkSize      int    `json:"retirement_chunk_size"`
}

func globalConfigPath(env []string) string {
	for _, e := range env {
		if after, ok := strings.CutPrefix(e, "XDG_CONFIG_HOME="); ok {
			return filepath.Join(after, "cardrefine", "config.json")
		}
	}

	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "cardrefine", "config.json")
	}

	home, err := os.UserHomeDir()
	if err == nil {
		return filepath.Join(home, ".config", "cardrefine", "config.json")
	}

	return ""
}

func loadGlobalConfig(env []string) (fileConfig, string, error) {
	path := globalConfigPath(env)
	if path == "" {
		return fileConfig{}, "", nil
	}

	cfg, loaded, err := loadConfigFile(path, false)
	if err != nil {
		return fileConfig{}, "", err
	}

	if !loaded {
		return fileConfig{}, "", nil
	}

	return cfg, path, nil
}

func loadProjectConfig(workDir, configPath string) (fileConfig, string, error) {
	var (
		file      string
		mustExist bool
	)

	if configPath != "" {
		file = configPath
		if !filepath.IsAbs(file) {
			file = filepath.Join(workDir, file)
		}

		mustExist = true

		if _, err := os.Stat(file); err != nil {
			return fileConfig{}, "", fmt.Errorf("%w: %s", errConfigFileNotFound, configPath)
		}
	} else {
		file = filepath.Join(workDir, ConfigFileName)
		mustExist = false
	}

	cfg, loaded, err := loadConfigFile(file, mustExist)
	if err != nil {
		return fileConfig{}, "", err
	}

	if !loaded {
		return fileConfig{}, "", nil
	}

	return cfg, file, nil
}

func loadConfigFile(path string, mustExist bool) (fileConfig, bool, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is intentionally user-controlled
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			return fileConfig{}, false, nil
		}

		if mustExist {
			return fileConfig{}, false, fmt.Errorf("%w: %s", errConfigFileRead, path)
		}

		return fileConfig{}, false, nil
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return fileConfig{}, false, fmt.Errorf("%w %s: invalid JSONC: %w", errConfigInvalid, path, err)
	}

	var cfg fileConfig

	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return fileConfig{}, false, fmt.Errorf("%w %s: invalid JSON: %w", errConfigInvalid, path, err)
	}

	return cfg, true, nil
}

// merge overlays any present field of override onto base. Strings and
// ints have no way to distinguish "absent" from their zero value in
// this format, so an override of "" or 0 is treated as absent; bools
// go through fileConfig's pointer fields instead, which can.
func merge(base Config, override fileConfig) Config {
	if override.FilterMode != "" {
		base.FilterMode = override.FilterMode
	}

	if override.RegionBytes != 0 {
		base.RegionBytes = override.RegionBytes
	}

	if override.UpdatePeriodMS != 0 {
		base.UpdatePeriodMS = override.UpdatePeriodMS
	}

	if override.RetirementWorkers != 0 {
		base.RetirementWorkers = override.RetirementWorkers
	}

	if override.RetirementChunkSize != 0 {
		base.RetirementChunkSize = override.RetirementChunkSize
	}

	if override.WrittenCardQueuesEnabled != nil {
		base.WrittenCardQueuesEnabled = *override.WrittenCardQueuesEnabled
	}

	if override.DeferredDirtyingEnabled != nil {
		base.DeferredDirtyingEnabled = *override.DeferredDirtyingEnabled
	}

	return base
}

// Save writes cfg to path as indented JSON, replacing the file
// atomically so a reader (or a concurrently starting cardrefine-sim)
// never observes a half-written config. Used by cardrefine-shell's
// `save-config` command to persist tuning changes made interactively.
func Save(path string, cfg Config) error {
	body, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}

	if err := atomic.WriteFile(path, bytes.NewReader(body)); err != nil {
		return fmt.Errorf("config: atomic write %s: %w", path, err)
	}

	return nil
}

func validate(cfg Config) error {
	if cfg.RegionBytes <= 0 {
		return fmt.Errorf("%w: %w", errConfigInvalid, errRegionBytesInvalid)
	}

	switch cfg.FilterMode {
	case "none", "young", "previous":
	default:
		return fmt.Errorf("%w: unknown filter_mode %q", errConfigInvalid, cfg.FilterMode)
	}

	return nil
}
