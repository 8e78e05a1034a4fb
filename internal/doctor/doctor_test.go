package doctor

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"rollcall/internal/config"
)

func validConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Defaults()
	cfg.State.Path = filepath.Join(dir, "data", "state.db")
	cfg.Browser.ScreenshotDir = filepath.Join(dir, "shots")
	cfg.Profiles = map[string]config.Profile{
		"alice": {Enabled: true, Name: "Alice", Phone: "13800138000", Temperature: "36.5"},
	}
	return cfg
}

func TestValidateHealthyConfig(t *testing.T) {
	r := New(validConfig(t)).Validate()
	if !r.Valid {
		t.Fatalf("expected valid, got errors: %+v", r.Errors)
	}
}

func TestValidateNoProfiles(t *testing.T) {
	cfg := validConfig(t)
	cfg.Profiles = nil

	r := New(cfg).Validate()
	if r.Valid {
		t.Fatal("expected invalid result")
	}
	found := false
	for _, e := range r.Errors {
		if e.Category == "profiles" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected profiles error, got %+v", r.Errors)
	}
}

func TestValidateAllProfilesDisabledWarns(t *testing.T) {
	cfg := validConfig(t)
	cfg.Profiles["alice"] = config.Profile{Enabled: false, Name: "Alice", Phone: "13800138000"}

	r := New(cfg).Validate()
	if !r.Valid {
		t.Fatalf("disabled profiles should not be an error: %+v", r.Errors)
	}
	if len(r.Warnings) == 0 {
		t.Fatal("expected a warning for all-disabled profiles")
	}
}

func TestValidateMissingBrowserBin(t *testing.T) {
	cfg := validConfig(t)
	cfg.Browser.Bin = filepath.Join(t.TempDir(), "no-such-chrome")

	r := New(cfg).Validate()
	if r.Valid {
		t.Fatal("expected invalid result for missing browser binary")
	}
}

func TestValidateScheduleDisabledWarns(t *testing.T) {
	cfg := validConfig(t)
	cfg.Schedule.Enabled = false

	r := New(cfg).Validate()
	if !r.Valid {
		t.Fatalf("unexpected errors: %+v", r.Errors)
	}
	found := false
	for _, w := range r.Warnings {
		if strings.Contains(w.Message, "schedule disabled") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected schedule warning, got %+v", r.Warnings)
	}
}

func TestValidateShortRetentionWarns(t *testing.T) {
	cfg := validConfig(t)
	cfg.Service.Retention = 2 * time.Hour

	r := New(cfg).Validate()
	if !r.Valid {
		t.Fatalf("unexpected errors: %+v", r.Errors)
	}
	found := false
	for _, w := range r.Warnings {
		if strings.Contains(w.Message, "retention under 24h") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected retention warning, got %+v", r.Warnings)
	}
}

func TestValidateUnsetEnvVarWarns(t *testing.T) {
	cfg := validConfig(t)
	cfg.Profiles["bob"] = config.Profile{Enabled: true, Name: "Bob", Phone: "${ROLLCALL_DOCTOR_TEST_UNSET}"}

	r := New(cfg).Validate()
	found := false
	for _, w := range r.Warnings {
		if w.Category == "env_vars" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected env_vars warning, got %+v", r.Warnings)
	}
}

func TestFormatHuman(t *testing.T) {
	r := &Result{Valid: false,
		Errors:   []Issue{{Category: "service", Field: "state.path", Message: "state.path is required"}},
		Warnings: []Issue{{Category: "schedule", Message: "schedule disabled"}},
	}
	out := FormatHuman(r)
	if !strings.Contains(out, "Configuration invalid") {
		t.Errorf("missing invalid banner: %s", out)
	}
	if !strings.Contains(out, "ERROR [service] state.path") {
		t.Errorf("missing error line: %s", out)
	}

	ok := &Result{Valid: true}
	if got := FormatHuman(ok); got != "Configuration valid.\n" {
		t.Errorf("valid output = %q", got)
	}
}

func TestFormatJSON(t *testing.T) {
	out, err := FormatJSON(&Result{Valid: true})
	if err != nil {
		t.Fatalf("format json: %v", err)
	}
	if !strings.Contains(out, `"valid": true`) {
		t.Errorf("unexpected json: %s", out)
	}
}
