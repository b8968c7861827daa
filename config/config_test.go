package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	d := Defaults("peer-a")
	if d.PeerID != "peer-a" {
		t.Errorf("peer id = %q", d.PeerID)
	}
	if d.DiscoveryInterval != 5*time.Second {
		t.Errorf("discovery interval = %v", d.DiscoveryInterval)
	}
	if d.DefaultTTL != 8*time.Second {
		t.Errorf("default ttl = %v", d.DefaultTTL)
	}
	if d.StaleAfter != 60*time.Second {
		t.Errorf("stale after = %v", d.StaleAfter)
	}
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("", "peer-b")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg != Defaults("peer-b") {
		t.Errorf("expected defaults, got %+v", cfg)
	}
}

func TestLoadPartialFileFillsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bamboo.yaml")
	if err := os.WriteFile(path, []byte("discovery_interval: 10s\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path, "peer-c")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DiscoveryInterval != 10*time.Second {
		t.Errorf("discovery interval = %v", cfg.DiscoveryInterval)
	}
	if cfg.DefaultTTL != 8*time.Second {
		t.Errorf("default ttl should fall back to default, got %v", cfg.DefaultTTL)
	}
	if cfg.PeerID != "peer-c" {
		t.Errorf("peer id should fall back to default, got %q", cfg.PeerID)
	}
}

func TestLoadMissingFileErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), "peer-d"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestResolveExplicitWins(t *testing.T) {
	if got := Resolve("/explicit/path.yaml"); got != "/explicit/path.yaml" {
		t.Errorf("resolve = %q", got)
	}
}

func TestResolveFallsBackToEmpty(t *testing.T) {
	dir := t.TempDir()
	wd, _ := os.Getwd()
	defer os.Chdir(wd)
	os.Chdir(dir)
	os.Unsetenv("BAMBOO_CONFIG_PATH")

	if got := Resolve(""); got != "" {
		t.Errorf("expected empty resolution, got %q", got)
	}
}
