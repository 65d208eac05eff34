package config

import (
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected default config to validate, got %v", err)
	}
}

func TestValidateRejectsEmptyIdentity(t *testing.T) {
	cfg := Default()
	cfg.Identity.InstanceName = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected empty instance_name to fail validation")
	}
}

func TestValidateRejectsBadListenPort(t *testing.T) {
	cfg := Default()
	cfg.Node.ListenPort = 70000
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected out-of-range listen_port to fail validation")
	}
}

func TestEnsureCreatesDefaultThenLoads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg, created, err := Ensure(path)
	if err != nil {
		t.Fatalf("Ensure (create): %v", err)
	}
	if !created {
		t.Fatal("expected Ensure to report a newly created config")
	}
	if cfg.Node.ListenPort != 0 {
		t.Fatalf("expected default listen_port 0, got %d", cfg.Node.ListenPort)
	}

	reloaded, created, err := Ensure(path)
	if err != nil {
		t.Fatalf("Ensure (reload): %v", err)
	}
	if created {
		t.Fatal("expected second Ensure call to load the existing file")
	}
	if reloaded.Identity.InstanceName != cfg.Identity.InstanceName {
		t.Fatalf("reloaded config mismatch: %+v vs %+v", reloaded, cfg)
	}
}

func TestSaveRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg := Default()
	cfg.Node.ListenPort = -1

	if err := Save(path, cfg); err == nil {
		t.Fatal("expected Save to reject an invalid config")
	}
}

func TestLoadOverridesBootstrapNodes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg := Default()
	cfg.Node.BootstrapNodes = []string{"/ip4/1.2.3.4/tcp/4001/p2p/12D3KooWGRAV2aGbRXzUAxxPQ8o5BA5qTKKEwNpsvZkXzREEsUWL"}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded.Node.BootstrapNodes) != 1 {
		t.Fatalf("expected 1 bootstrap node, got %d", len(loaded.Node.BootstrapNodes))
	}
}
