// Package doctor validates rollcall configuration and the environment the
// daemon needs: a browser binary, writable state, and usable profiles.
package doctor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/go-rod/rod/lib/launcher"

	"rollcall/internal/config"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor validates configuration and host readiness.
type Doctor struct {
	cfg *config.Config
}

// New creates a Doctor from a loaded config.
func New(cfg *config.Config) *Doctor {
	return &Doctor{cfg: cfg}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.validateServiceConfig(r)
	d.validateProfiles(r)
	d.validateBrowser(r)
	d.validateStateDir(r)
	d.warnMissingEnvVars(r)
	d.warnSuspiciousSchedule(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// validateServiceConfig checks required service fields.
func (d *Doctor) validateServiceConfig(r *Result) {
	if d.cfg.State.Path == "" {
		d.addError(r, "service", "state.path", "state.path is required")
	}
	if d.cfg.Service.TickInterval <= 0 {
		d.addError(r, "service", "service.tick_interval", "tick_interval must be positive")
	}
	if d.cfg.Form.URL == "" {
		d.addError(r, "form", "form.url", "form.url is required")
	}
}

// validateProfiles checks that at least one profile can actually run.
func (d *Doctor) validateProfiles(r *Result) {
	if len(d.cfg.Profiles) == 0 {
		d.addError(r, "profiles", "profiles",
			"no profiles configured; nothing will ever be submitted")
		return
	}

	enabled := 0
	for name, p := range d.cfg.Profiles {
		if !p.Enabled {
			continue
		}
		enabled++
		if p.Name == "" {
			d.addError(r, "profiles", fmt.Sprintf("profiles.%s.name", name), "name is required")
		}
		if p.Phone == "" {
			d.addError(r, "profiles", fmt.Sprintf("profiles.%s.phone", name), "phone is required")
		}
	}

	if enabled == 0 {
		d.addWarning(r, "profiles", "profiles",
			"all profiles disabled; the scheduler will fire but enqueue nothing")
	}
}

// validateBrowser checks that a Chrome binary can be found.
func (d *Doctor) validateBrowser(r *Result) {
	if d.cfg.Browser.Bin != "" {
		if _, err := os.Stat(d.cfg.Browser.Bin); err != nil {
			d.addError(r, "browser", "browser.bin",
				fmt.Sprintf("configured browser binary not found: %s", d.cfg.Browser.Bin))
		}
		return
	}

	if bin, found := launcher.LookPath(); found {
		d.addWarning(r, "browser", "", fmt.Sprintf("using system browser at %s", bin))
	} else {
		d.addWarning(r, "browser", "browser.bin",
			"no system browser found; one will be downloaded on first launch")
	}
}

// validateStateDir checks that the state and screenshot directories are
// creatable or writable.
func (d *Doctor) validateStateDir(r *Result) {
	for field, dir := range map[string]string{
		"state.path":             filepath.Dir(d.cfg.State.Path),
		"browser.screenshot_dir": d.cfg.Browser.ScreenshotDir,
	} {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			d.addError(r, "storage", field, fmt.Sprintf("cannot create directory %s: %v", dir, err))
			continue
		}
		probe := filepath.Join(dir, ".rollcall-doctor")
		if err := os.WriteFile(probe, nil, 0o644); err != nil {
			d.addError(r, "storage", field, fmt.Sprintf("directory %s is not writable: %v", dir, err))
			continue
		}
		_ = os.Remove(probe)
	}
}

// warnMissingEnvVars warns about ${VAR} references where VAR is not set.
func (d *Doctor) warnMissingEnvVars(r *Result) {
	envVarRe := regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

	for name, p := range d.cfg.Profiles {
		for field, value := range map[string]string{"phone": p.Phone, "name": p.Name, "unit": p.Unit} {
			for _, m := range envVarRe.FindAllStringSubmatch(value, -1) {
				if os.Getenv(m[1]) == "" {
					d.addWarning(r, "env_vars", fmt.Sprintf("profiles.%s.%s", name, field),
						fmt.Sprintf("environment variable ${%s} not set", m[1]))
				}
			}
		}
	}
}

// warnSuspiciousSchedule flags schedules that are technically valid but
// probably misconfigured.
func (d *Doctor) warnSuspiciousSchedule(r *Result) {
	if !d.cfg.Schedule.Enabled {
		d.addWarning(r, "schedule", "schedule.enabled",
			"daily schedule disabled; only manual check-ins will run")
		return
	}
	if d.cfg.Schedule.CatchUpWindow <= 0 {
		d.addWarning(r, "schedule", "schedule.catch_up_window",
			"catch_up_window is zero; a tick landing after the fire minute will skip the day")
	}
	if d.cfg.Schedule.Hour < 6 {
		d.addWarning(r, "schedule", "schedule.hour",
			fmt.Sprintf("fire time %02d:%02d is in the small hours; double-check the intent",
				d.cfg.Schedule.Hour, d.cfg.Schedule.Minute))
	}
	if d.cfg.Service.Retention > 0 && d.cfg.Service.Retention < 24*time.Hour {
		d.addWarning(r, "schedule", "service.retention",
			"retention under 24h can prune today's terminal row and let the day fire again")
	}
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		return b.String()
	}

	if r.Valid && len(r.Warnings) > 0 {
		b.WriteString("Configuration valid")
		fmt.Fprintf(&b, " (%d warning(s))\n", len(r.Warnings))
	}

	if !r.Valid {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		if e.Field != "" {
			fmt.Fprintf(&b, "  ERROR [%s] %s: %s\n", e.Category, e.Field, e.Message)
		} else {
			fmt.Fprintf(&b, "  ERROR [%s] %s\n", e.Category, e.Message)
		}
	}
	for _, w := range r.Warnings {
		if w.Field != "" {
			fmt.Fprintf(&b, "  WARN  [%s] %s: %s\n", w.Category, w.Field, w.Message)
		} else {
			fmt.Fprintf(&b, "  WARN  [%s] %s\n", w.Category, w.Message)
		}
	}

	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
