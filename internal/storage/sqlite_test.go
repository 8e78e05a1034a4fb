package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
)

func TestOpenSQLiteCreatesSchema(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "data", "state.db")

	db, err := OpenSQLite(ctx, dbPath)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()

	var name string
	err = db.QueryRowContext(ctx,
		`SELECT name FROM sqlite_master WHERE type='table' AND name='submission_queue'`).Scan(&name)
	if err != nil {
		t.Fatalf("submission_queue table missing: %v", err)
	}

	// Bootstrap must be idempotent.
	if err := BootstrapSQLite(ctx, db); err != nil {
		t.Fatalf("second bootstrap: %v", err)
	}
}

func TestOpenSQLiteEmptyPath(t *testing.T) {
	if _, err := OpenSQLite(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestValidateSQLiteFilesystem(t *testing.T) {
	tests := []struct {
		name    string
		fsType  string
		wantErr bool
	}{
		{"local ext4", "0xef53", false},
		{"nfs rejected", "nfs", true},
		{"cifs rejected", "cifs", true},
		{"case insensitive", "NFS", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			detector := func(string) (string, error) { return tt.fsType, nil }
			err := validateSQLiteFilesystemWithDetector(filepath.Join(t.TempDir(), "x.db"), detector)
			if tt.wantErr && err == nil {
				t.Fatal("expected error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidateSQLiteFilesystemDetectorFailure(t *testing.T) {
	detector := func(string) (string, error) { return "", fmt.Errorf("unsupported") }
	if err := validateSQLiteFilesystemWithDetector(filepath.Join(t.TempDir(), "x.db"), detector); err != nil {
		t.Fatalf("detector failure should not block open: %v", err)
	}
}
