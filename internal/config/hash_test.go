package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestComputeBlake3Hash(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.yaml")
	if err := os.WriteFile(path, []byte("hello"), 0644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	h1, err := ComputeBlake3Hash(path)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if len(h1) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(h1))
	}

	h2, err := ComputeBlake3Hash(path)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if h1 != h2 {
		t.Error("hash not deterministic")
	}

	if err := os.WriteFile(path, []byte("hello!"), 0644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	h3, _ := ComputeBlake3Hash(path)
	if h1 == h3 {
		t.Error("hash unchanged after content change")
	}
}

func TestVerifyFileHash(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.yaml")
	if err := os.WriteFile(path, []byte("content"), 0644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	h, err := ComputeBlake3Hash(path)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	if err := VerifyFileHash(path, h); err != nil {
		t.Errorf("verify with correct hash: %v", err)
	}
	if err := VerifyFileHash(path, "deadbeef"); err == nil {
		t.Error("verify with wrong hash should fail")
	}
}

func TestGenerateAndLoadChecksums(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("state:\n  path: ./db\n"), 0644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	if err := GenerateChecksums(dir, []string{"config.yaml", "missing.yaml"}); err != nil {
		t.Fatalf("generate: %v", err)
	}

	manifest, err := LoadChecksums(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if manifest.Version != 1 {
		t.Errorf("version = %d, want 1", manifest.Version)
	}
	if _, ok := manifest.Hashes["config.yaml"]; !ok {
		t.Error("config.yaml missing from manifest")
	}
	if _, ok := manifest.Hashes["missing.yaml"]; ok {
		t.Error("missing file should not be in manifest")
	}

	info, err := os.Stat(filepath.Join(dir, ".checksums"))
	if err != nil {
		t.Fatalf("stat .checksums: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf(".checksums mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestLoadChecksumsMissing(t *testing.T) {
	if _, err := LoadChecksums(t.TempDir()); err == nil {
		t.Fatal("expected error for missing .checksums")
	}
}
