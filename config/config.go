// Package config loads runtime tuning parameters from YAML, generalizing
// the teacher's internal/config.Config (a yaml.v3-backed struct with
// defaulting in Load) to the handful of knobs this protocol runtime
// exposes: discovery cadence, default request TTL, and peer staleness.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// RuntimeConfig tunes the background and per-call timing behavior of a
// runtime.Runtime. Zero-value fields are filled in by Defaults/Load.
type RuntimeConfig struct {
	PeerID            string        `yaml:"peer_id"`
	DiscoveryInterval time.Duration `yaml:"discovery_interval"`
	DefaultTTL        time.Duration `yaml:"default_ttl"`
	StaleAfter        time.Duration `yaml:"stale_after"`
	Debug             bool          `yaml:"debug"`
}

// Defaults returns the spec-mandated defaults: a 5s discovery interval
// (with a 1s floor enforced separately by the announcer), an 8s default
// request TTL, and a 60s peer staleness cutoff.
func Defaults(peerID string) RuntimeConfig {
	return RuntimeConfig{
		PeerID:            peerID,
		DiscoveryInterval: 5 * time.Second,
		DefaultTTL:        8 * time.Second,
		StaleAfter:        60 * time.Second,
	}
}

// Load reads and parses a YAML config file, then fills any zero-valued
// duration fields with Defaults. An empty path is not an error: it returns
// Defaults(peerID) unchanged, mirroring the teacher's
// StandardConfigResolver "no config file found -> use embedded defaults"
// convention (public/agent/config.go).
func Load(path, peerID string) (RuntimeConfig, error) {
	cfg := Defaults(peerID)
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}

	applyDefaults(&cfg, peerID)
	return cfg, nil
}

func applyDefaults(cfg *RuntimeConfig, peerID string) {
	d := Defaults(peerID)
	if cfg.PeerID == "" {
		cfg.PeerID = peerID
	}
	if cfg.DiscoveryInterval <= 0 {
		cfg.DiscoveryInterval = d.DiscoveryInterval
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = d.DefaultTTL
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = d.StaleAfter
	}
}

// Resolve follows the teacher's StandardConfigResolver precedence
// (public/agent/config.go), narrowed to this module's single env var:
// an explicit path, then BAMBOO_CONFIG_PATH, then "./bamboo.yaml" in the
// current directory, then "" (caller falls back to Defaults).
func Resolve(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if p := os.Getenv("BAMBOO_CONFIG_PATH"); p != "" {
		if fileExists(p) {
			return p
		}
	}
	if fileExists("bamboo.yaml") {
		path, err := filepath.Abs("bamboo.yaml")
		if err == nil {
			return path
		}
		return "bamboo.yaml"
	}
	return ""
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
