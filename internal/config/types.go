package config

import "time"

// Config represents the complete rollcall configuration.
type Config struct {
	Service  ServiceConfig      `yaml:"service"`
	State    StateConfig        `yaml:"state"`
	Schedule ScheduleConfig     `yaml:"schedule"`
	Browser  BrowserConfig      `yaml:"browser"`
	Form     FormConfig         `yaml:"form"`
	Profiles map[string]Profile `yaml:"profiles"`
	Retry    RetryConfig        `yaml:"retry"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name         string        `yaml:"name"`
	TickInterval time.Duration `yaml:"tick_interval"`
	LogLevel     string        `yaml:"log_level"`
	LogFormat    string        `yaml:"log_format"`
	Retention    time.Duration `yaml:"retention"` // how long terminal queue rows linger before pruning
}

// StateConfig defines state storage settings.
type StateConfig struct {
	Path string `yaml:"path"`
}

// ScheduleConfig defines the daily submission time.
type ScheduleConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Hour          int           `yaml:"hour"`
	Minute        int           `yaml:"minute"`
	CatchUpWindow time.Duration `yaml:"catch_up_window"`
}

// BrowserConfig defines how the automation browser is launched.
type BrowserConfig struct {
	Headless      bool          `yaml:"headless"`
	Bin           string        `yaml:"bin,omitempty"`
	WindowWidth   int           `yaml:"window_width"`
	WindowHeight  int           `yaml:"window_height"`
	NavTimeout    time.Duration `yaml:"nav_timeout"`
	SettleDelay   time.Duration `yaml:"settle_delay"`
	ScreenshotDir string        `yaml:"screenshot_dir"`
	Geolocation   GeoConfig     `yaml:"geolocation"`
}

// GeoConfig is the simulated device position reported to the form page.
type GeoConfig struct {
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
	Accuracy  int     `yaml:"accuracy"`
}

// FormConfig describes the report form page: where it lives and the text
// markers used to locate fields, buttons, and outcomes. The page is not under
// our control, so everything here is a heuristic that operators can adjust
// without a rebuild.
type FormConfig struct {
	URL                 string   `yaml:"url"`
	ReadyText           string   `yaml:"ready_text"`
	NamePlaceholder     string   `yaml:"name_placeholder"`
	PhonePlaceholder    string   `yaml:"phone_placeholder"`
	UnitPlaceholder     string   `yaml:"unit_placeholder"`
	TemperatureLabel    string   `yaml:"temperature_label"`
	HealthOptionText    string   `yaml:"health_option_text"`
	OnDutyOptionText    string   `yaml:"on_duty_option_text"`
	NotAwayOptionText   string   `yaml:"not_away_option_text"`
	LocationButtonTexts []string `yaml:"location_button_texts"`
	LocationDoneText    string   `yaml:"location_done_text"`
	SubmitButtonTexts   []string `yaml:"submit_button_texts"`
	SuccessTexts        []string `yaml:"success_texts"`
}

// Profile holds the personal data filled into the form for one volunteer.
type Profile struct {
	Enabled     bool   `yaml:"enabled"`
	Name        string `yaml:"name"`
	Phone       string `yaml:"phone"`
	Unit        string `yaml:"unit"`
	Temperature string `yaml:"temperature"`
}

// RetryConfig defines the bounded retry loop around a submission.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Backoff     time.Duration `yaml:"backoff"`
}

// Defaults returns a Config with working defaults for everything except
// profiles, which the operator must supply.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:         "rollcall",
			TickInterval: 30 * time.Second,
			LogLevel:     "info",
			LogFormat:    "text",
			Retention:    48 * time.Hour,
		},
		State: StateConfig{
			Path: "./data/state.db",
		},
		Schedule: ScheduleConfig{
			Enabled:       true,
			Hour:          10,
			Minute:        30,
			CatchUpWindow: 1 * time.Hour,
		},
		Browser: BrowserConfig{
			Headless:      true,
			WindowWidth:   1280,
			WindowHeight:  800,
			NavTimeout:    30 * time.Second,
			SettleDelay:   500 * time.Millisecond,
			ScreenshotDir: "./data/screenshots",
			Geolocation: GeoConfig{
				Latitude:  39.0238,
				Longitude: 88.1663,
				Accuracy:  100,
			},
		},
		Form: FormConfig{
			URL:                 "https://ding.cjfx.cn/f/vo149oup",
			ReadyText:           "若羌县志愿者每日健康打卡",
			NamePlaceholder:     "请输入姓名",
			PhonePlaceholder:    "请输入手机号",
			UnitPlaceholder:     "请输入内容",
			TemperatureLabel:    "体温",
			HealthOptionText:    "安全健康",
			OnDutyOptionText:    "是",
			NotAwayOptionText:   "无",
			LocationButtonTexts: []string{"获取地理位置"},
			LocationDoneText:    "已获取",
			SubmitButtonTexts:   []string{"提交"},
			SuccessTexts:        []string{"提交成功", "提交完成", "success", "成功"},
		},
		Profiles: make(map[string]Profile),
		Retry: RetryConfig{
			MaxAttempts: 3,
			Backoff:     30 * time.Second,
		},
	}
}
