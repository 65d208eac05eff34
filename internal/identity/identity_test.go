package identity

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadOrCreateGeneratesOnFirstRun(t *testing.T) {
	dir := t.TempDir()

	priv, err := LoadOrCreate(dir, "alice")
	if err != nil {
		t.Fatalf("LoadOrCreate: %v", err)
	}
	if priv == nil {
		t.Fatal("expected a non-nil private key")
	}

	keyFile := Path(dir, "alice")
	if _, err := os.Stat(keyFile); err != nil {
		t.Fatalf("expected identity file to be written: %v", err)
	}
}

func TestLoadOrCreateReloadsSameKey(t *testing.T) {
	dir := t.TempDir()

	first, err := LoadOrCreate(dir, "bob")
	if err != nil {
		t.Fatalf("LoadOrCreate (first): %v", err)
	}

	second, err := LoadOrCreate(dir, "bob")
	if err != nil {
		t.Fatalf("LoadOrCreate (second): %v", err)
	}

	firstBytes, _ := first.Raw()
	secondBytes, _ := second.Raw()
	if string(firstBytes) != string(secondBytes) {
		t.Fatal("expected the same key to be reloaded across runs")
	}
}

func TestLoadOrCreateFallsBackOnCorruptFile(t *testing.T) {
	dir := t.TempDir()
	keyFile := Path(dir, "carol")

	if err := os.MkdirAll(dir, 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyFile, []byte("not a key"), 0o600); err != nil {
		t.Fatal(err)
	}

	priv, err := LoadOrCreate(dir, "carol")
	if err != nil {
		t.Fatalf("LoadOrCreate: %v", err)
	}
	if priv == nil {
		t.Fatal("expected fallback key generation to succeed")
	}

	// A fresh key should have been written over the corrupt file.
	data, err := os.ReadFile(keyFile)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) == 0 || string(data) == "not a key" {
		t.Fatal("expected a non-empty regenerated key file in place of the corrupt one")
	}
}

func TestPathLayout(t *testing.T) {
	got := Path("data", "node1")
	want := filepath.Join("data", "identity_node1.bin")
	if got != want {
		t.Fatalf("Path() = %q, want %q", got, want)
	}
}
