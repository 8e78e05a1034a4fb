package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

var phonePattern = regexp.MustCompile(`^\d{11}$`)

// Load reads, interpolates, verifies, and validates configuration from a file.
// A directory path is accepted and resolves to config.yaml inside it.
func Load(configPath string) (*Config, error) {
	// Resolve to absolute path for consistent relative path resolution
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}

	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return nil, fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}

	cfg, err := loadConfigFile(absPath)
	if err != nil {
		return nil, err
	}

	cfg = applyConfigDefaults(cfg)

	if err := verifyConfigHash(absPath); err != nil {
		return nil, err
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// DiscoverConfigDir finds the config location by checking standard locations.
// Priority order: $ROLLCALL_CONFIG_DIR, ~/.config/rollcall, /etc/rollcall, ./config.yaml
func DiscoverConfigDir() (string, error) {
	if dir := os.Getenv("ROLLCALL_CONFIG_DIR"); dir != "" {
		if _, err := os.Stat(dir); err == nil {
			return dir, nil
		}
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		userConfigDir := filepath.Join(homeDir, ".config", "rollcall")
		if _, err := os.Stat(userConfigDir); err == nil {
			return userConfigDir, nil
		}
	}

	systemConfigDir := "/etc/rollcall"
	if _, err := os.Stat(systemConfigDir); err == nil {
		return systemConfigDir, nil
	}

	legacyConfigPath := "./config.yaml"
	if _, err := os.Stat(legacyConfigPath); err == nil {
		return legacyConfigPath, nil
	}

	return "", fmt.Errorf("no config found (checked: $ROLLCALL_CONFIG_DIR, ~/.config/rollcall, /etc/rollcall, ./config.yaml)")
}

// loadConfigFile loads and parses a single config file.
func loadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	interpolated := interpolateEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolated), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return &cfg, nil
}

// verifyConfigHash checks the config file against the .checksums manifest in
// its directory. A missing manifest skips verification; a stale hash fails.
func verifyConfigHash(path string) error {
	dir := filepath.Dir(path)
	checksums, err := LoadChecksums(dir)
	if err != nil {
		return nil
	}

	basename := filepath.Base(path)
	expectedHash, ok := checksums.Hashes[basename]
	if !ok {
		return fmt.Errorf("config file %s has no hash in checksums at %s\n"+
			"Run: rollcall config lock --config %s", basename, dir, path)
	}

	if err := VerifyFileHash(path, expectedHash); err != nil {
		return fmt.Errorf("config verification failed for %s: %w\n"+
			"This indicates tampering or unauthorized modification.\n"+
			"If you edited this file intentionally, run: rollcall config lock --config %s", path, err, path)
	}

	return nil
}

// applyConfigDefaults merges default values into config where not explicitly set.
func applyConfigDefaults(cfg *Config) *Config {
	defaults := Defaults()

	if cfg.Service.Name == "" {
		cfg.Service.Name = defaults.Service.Name
	}
	if cfg.Service.TickInterval == 0 {
		cfg.Service.TickInterval = defaults.Service.TickInterval
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaults.Service.LogLevel
	}
	if cfg.Service.LogFormat == "" {
		cfg.Service.LogFormat = defaults.Service.LogFormat
	}
	if cfg.Service.Retention == 0 {
		cfg.Service.Retention = defaults.Service.Retention
	}

	if cfg.State.Path == "" {
		cfg.State.Path = defaults.State.Path
	}

	if cfg.Schedule.Hour == 0 && cfg.Schedule.Minute == 0 {
		cfg.Schedule.Hour = defaults.Schedule.Hour
		cfg.Schedule.Minute = defaults.Schedule.Minute
	}
	if cfg.Schedule.CatchUpWindow == 0 {
		cfg.Schedule.CatchUpWindow = defaults.Schedule.CatchUpWindow
	}

	if cfg.Browser.WindowWidth == 0 {
		cfg.Browser.WindowWidth = defaults.Browser.WindowWidth
	}
	if cfg.Browser.WindowHeight == 0 {
		cfg.Browser.WindowHeight = defaults.Browser.WindowHeight
	}
	if cfg.Browser.NavTimeout == 0 {
		cfg.Browser.NavTimeout = defaults.Browser.NavTimeout
	}
	if cfg.Browser.SettleDelay == 0 {
		cfg.Browser.SettleDelay = defaults.Browser.SettleDelay
	}
	if cfg.Browser.ScreenshotDir == "" {
		cfg.Browser.ScreenshotDir = defaults.Browser.ScreenshotDir
	}
	if cfg.Browser.Geolocation == (GeoConfig{}) {
		cfg.Browser.Geolocation = defaults.Browser.Geolocation
	}

	applyFormDefaults(&cfg.Form, &defaults.Form)

	if cfg.Profiles == nil {
		cfg.Profiles = make(map[string]Profile)
	}
	for name, p := range cfg.Profiles {
		if p.Temperature == "" {
			p.Temperature = "36.5"
			cfg.Profiles[name] = p
		}
	}

	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = defaults.Retry.MaxAttempts
	}
	if cfg.Retry.Backoff == 0 {
		cfg.Retry.Backoff = defaults.Retry.Backoff
	}

	return cfg
}

func applyFormDefaults(form, defaults *FormConfig) {
	if form.URL == "" {
		form.URL = defaults.URL
	}
	if form.ReadyText == "" {
		form.ReadyText = defaults.ReadyText
	}
	if form.NamePlaceholder == "" {
		form.NamePlaceholder = defaults.NamePlaceholder
	}
	if form.PhonePlaceholder == "" {
		form.PhonePlaceholder = defaults.PhonePlaceholder
	}
	if form.UnitPlaceholder == "" {
		form.UnitPlaceholder = defaults.UnitPlaceholder
	}
	if form.TemperatureLabel == "" {
		form.TemperatureLabel = defaults.TemperatureLabel
	}
	if form.HealthOptionText == "" {
		form.HealthOptionText = defaults.HealthOptionText
	}
	if form.OnDutyOptionText == "" {
		form.OnDutyOptionText = defaults.OnDutyOptionText
	}
	if form.NotAwayOptionText == "" {
		form.NotAwayOptionText = defaults.NotAwayOptionText
	}
	if len(form.LocationButtonTexts) == 0 {
		form.LocationButtonTexts = defaults.LocationButtonTexts
	}
	if form.LocationDoneText == "" {
		form.LocationDoneText = defaults.LocationDoneText
	}
	if len(form.SubmitButtonTexts) == 0 {
		form.SubmitButtonTexts = defaults.SubmitButtonTexts
	}
	if len(form.SuccessTexts) == 0 {
		form.SuccessTexts = defaults.SuccessTexts
	}
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (not expanded).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	if cfg.Service.TickInterval <= 0 {
		return fmt.Errorf("service.tick_interval must be positive")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}

	if cfg.State.Path == "" {
		return fmt.Errorf("state.path is required")
	}

	if cfg.Schedule.Hour < 0 || cfg.Schedule.Hour > 23 {
		return fmt.Errorf("schedule.hour must be 0-23 (got %d)", cfg.Schedule.Hour)
	}
	if cfg.Schedule.Minute < 0 || cfg.Schedule.Minute > 59 {
		return fmt.Errorf("schedule.minute must be 0-59 (got %d)", cfg.Schedule.Minute)
	}

	if cfg.Browser.WindowWidth <= 0 || cfg.Browser.WindowHeight <= 0 {
		return fmt.Errorf("browser.window_width and browser.window_height must be positive")
	}
	if cfg.Browser.NavTimeout <= 0 {
		return fmt.Errorf("browser.nav_timeout must be positive")
	}

	u, err := url.Parse(cfg.Form.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("form.url must be a valid http(s) URL (got %q)", cfg.Form.URL)
	}

	for name, p := range cfg.Profiles {
		if !p.Enabled {
			continue
		}
		if p.Name == "" {
			return fmt.Errorf("profile %q: name is required", name)
		}
		if envVarPattern.MatchString(p.Phone) {
			matches := envVarPattern.FindStringSubmatch(p.Phone)
			return fmt.Errorf("profile %q: environment variable ${%s} is not set", name, matches[1])
		}
		if !phonePattern.MatchString(p.Phone) {
			return fmt.Errorf("profile %q: phone must be exactly 11 digits", name)
		}
		if _, err := strconv.ParseFloat(p.Temperature, 64); err != nil {
			return fmt.Errorf("profile %q: temperature must be numeric (got %q)", name, p.Temperature)
		}
	}

	if cfg.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1")
	}
	if cfg.Retry.Backoff < 0 {
		return fmt.Errorf("retry.backoff must not be negative")
	}

	return nil
}
