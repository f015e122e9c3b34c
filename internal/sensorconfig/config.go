// Package sensorconfig loads the sensor's YAML configuration file and
// converts its keys into the typed configuration each component expects,
// mirroring the env/flag layering the rest of this module's ancestry uses
// but for a single on-disk document instead of flags and environment
// variables.
package sensorconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mardigiorgio/piguard/internal/capture"
	"github.com/mardigiorgio/piguard/internal/capture/hopping"
	"github.com/mardigiorgio/piguard/internal/detect"
)

// Config is the decoded shape of the sensor's YAML document. Unknown keys
// are ignored by yaml.v3's default unmarshal behavior.
type Config struct {
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Capture struct {
		Iface string `yaml:"iface"`
		Hop   struct {
			Enabled      bool     `yaml:"enabled"`
			Mode         string   `yaml:"mode"`
			Bands        []string `yaml:"bands"`
			LockChannel  int      `yaml:"lock_channel"`
			ListChannels []int    `yaml:"list_channels"`
			Channels24   []int    `yaml:"channels_24"`
			Channels5    []int    `yaml:"channels_5"`
			Channels6    []int    `yaml:"channels_6"`
			DwellMs      int      `yaml:"dwell_ms"`
		} `yaml:"hop"`
	} `yaml:"capture"`

	Defense struct {
		SSID            string   `yaml:"ssid"`
		AllowedBSSIDs   []string `yaml:"allowed_bssids"`
		AllowedChannels []int    `yaml:"allowed_channels"`
		AllowedBands    []string `yaml:"allowed_bands"`
	} `yaml:"defense"`

	Thresholds struct {
		Deauth struct {
			WindowSec   int `yaml:"window_sec"`
			PerSrcLimit int `yaml:"per_src_limit"`
			GlobalLimit int `yaml:"global_limit"`
			CooldownSec int `yaml:"cooldown_sec"`
		} `yaml:"deauth"`
		Rogue struct {
			PWRWindow       int     `yaml:"pwr_window"`
			PWRVarThreshold float64 `yaml:"pwr_var_threshold"`
			PWRCooldownSec  int     `yaml:"pwr_cooldown_sec"`
		} `yaml:"rogue"`
	} `yaml:"thresholds"`
}

const defaultDwellMs = 100

// Load reads and decodes path, validates the keys that must be present for
// the sensor to start, and resolves database.path relative to path's
// directory. A missing capture.iface or undecodable document is a fatal
// error at startup; callers polling for hot-reload must not let this
// propagate past logging.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("sensorconfig: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("sensorconfig: parse %s: %w", path, err)
	}

	if cfg.Capture.Iface == "" {
		return nil, fmt.Errorf("sensorconfig: %s: capture.iface is required", path)
	}

	baseDir := filepath.Dir(path)
	cfg.Database.Path = resolvePath(cfg.Database.Path, baseDir)

	for i, b := range cfg.Defense.AllowedBSSIDs {
		cfg.Defense.AllowedBSSIDs[i] = strings.ToLower(b)
	}

	return &cfg, nil
}

// resolvePath expands a leading "~", expands $VAR/${VAR} references, and
// resolves a non-absolute result against baseDir. An empty path is
// returned unchanged.
func resolvePath(p, baseDir string) string {
	if p == "" {
		return p
	}
	p = os.ExpandEnv(p)
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			p = filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(baseDir, p)
	}
	return p
}

// PlanSpec converts capture.hop.* into the channel-hopper's PlanSpec.
// When hopping is disabled the returned spec derives an empty plan, which
// leaves the hopper idle on whatever channel the radio is tuned to.
func (c *Config) PlanSpec() hopping.PlanSpec {
	if !c.Capture.Hop.Enabled {
		return hopping.PlanSpec{}
	}
	bands := make(map[string]bool, len(c.Capture.Hop.Bands))
	for _, b := range c.Capture.Hop.Bands {
		bands[b] = true
	}
	return hopping.PlanSpec{
		Mode:         hopping.HopMode(c.Capture.Hop.Mode),
		Bands:        bands,
		LockChannel:  c.Capture.Hop.LockChannel,
		ListChannels: c.Capture.Hop.ListChannels,
		Channels24:   c.Capture.Hop.Channels24,
		Channels5:    c.Capture.Hop.Channels5,
		Channels6:    c.Capture.Hop.Channels6,
	}
}

// DwellMs returns capture.hop.dwell_ms, defaulting to 100 when unset. The
// hopper itself floors any value below 20ms.
func (c *Config) DwellMs() int {
	if c.Capture.Hop.DwellMs <= 0 {
		return defaultDwellMs
	}
	return c.Capture.Hop.DwellMs
}

// DeauthConfig converts thresholds.deauth.* into the deauth detector's
// config, filling unset (zero) fields with the documented defaults.
func (c *Config) DeauthConfig() detect.DeauthConfig {
	def := detect.DefaultDeauthConfig()
	t := c.Thresholds.Deauth
	return detect.DeauthConfig{
		WindowSec:   orInt(t.WindowSec, def.WindowSec),
		PerSrcLimit: orInt(t.PerSrcLimit, def.PerSrcLimit),
		GlobalLimit: orInt(t.GlobalLimit, def.GlobalLimit),
		CooldownSec: orInt(t.CooldownSec, def.CooldownSec),
	}
}

// RogueConfig converts defense.* and thresholds.rogue.* into the rogue
// detector's config.
func (c *Config) RogueConfig() detect.RogueConfig {
	def := detect.DefaultRogueConfig()
	t := c.Thresholds.Rogue

	bssids := make(map[string]struct{}, len(c.Defense.AllowedBSSIDs))
	for _, b := range c.Defense.AllowedBSSIDs {
		bssids[b] = struct{}{}
	}
	channels := make(map[int]struct{}, len(c.Defense.AllowedChannels))
	for _, ch := range c.Defense.AllowedChannels {
		channels[ch] = struct{}{}
	}
	bands := make(map[string]struct{}, len(c.Defense.AllowedBands))
	for _, b := range c.Defense.AllowedBands {
		bands[b] = struct{}{}
	}

	return detect.RogueConfig{
		DefendedSSID:    c.Defense.SSID,
		AllowedBSSIDs:   bssids,
		AllowedChannels: channels,
		AllowedBands:    bands,
		PWRWindow:       orInt(t.PWRWindow, def.PWRWindow),
		PWRVarThreshold: orFloat(t.PWRVarThreshold, def.PWRVarThreshold),
		PWRCooldownSec:  orInt(t.PWRCooldownSec, def.PWRCooldownSec),
	}
}

// WatcherConfig converts defense.* and thresholds.rogue.pwr_* into the
// capture package's in-line anomaly watcher config.
func (c *Config) WatcherConfig() capture.WatcherConfig {
	t := c.Thresholds.Rogue

	defended := make(map[string]struct{})
	if c.Defense.SSID != "" {
		defended[c.Defense.SSID] = struct{}{}
	}
	allow := make(map[string]struct{}, len(c.Defense.AllowedBSSIDs))
	for _, b := range c.Defense.AllowedBSSIDs {
		allow[b] = struct{}{}
	}

	return capture.WatcherConfig{
		DefendedSSIDs:     defended,
		AllowlistedBSSIDs: allow,
		PWRWindow:         t.PWRWindow,
		PWRVarThreshold:   t.PWRVarThreshold,
	}
}

func orInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func orFloat(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}
