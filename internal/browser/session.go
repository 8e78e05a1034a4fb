// Package browser owns the Chrome instance used to drive the check-in form.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"

	"rollcall/internal/config"
)

// Session wraps one launched browser and the single page driving the form.
// A fresh Session is created per submission attempt so a wedged renderer
// never outlives the attempt that wedged it.
type Session struct {
	mu      sync.Mutex
	cfg     config.BrowserConfig
	logger  *slog.Logger
	launch  *launcher.Launcher
	browser *rod.Browser
	page    *rod.Page
}

// NewSession creates a session; the browser launches on Start.
func NewSession(cfg config.BrowserConfig, logger *slog.Logger) *Session {
	return &Session{
		cfg:    cfg,
		logger: logger.With("component", "browser"),
	}
}

// Start launches Chrome and connects to it.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.browser != nil {
		if _, err := s.browser.Version(); err == nil {
			return nil
		}
		s.logger.Warn("Stale browser connection detected, relaunching")
		s.closeLocked()
	}

	launch := launcher.New().Headless(s.cfg.Headless)
	if s.cfg.Bin != "" {
		launch = launch.Bin(s.cfg.Bin)
	}
	launch = launch.
		Set(flags.Flag("window-size"), fmt.Sprintf("%d,%d", s.cfg.WindowWidth, s.cfg.WindowHeight)).
		Set(flags.Flag("disable-gpu")).
		Set(flags.NoSandbox).
		Set(flags.Flag("disable-dev-shm-usage")).
		Set(flags.Flag("no-first-run")).
		Set(flags.Flag("disable-extensions"))

	controlURL, err := launch.Launch()
	if err != nil {
		return fmt.Errorf("launch chrome: %w", err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		launch.Kill()
		return fmt.Errorf("connect to chrome: %w", err)
	}

	s.launch = launch
	s.browser = browser
	s.logger.Debug("Browser launched", "headless", s.cfg.Headless)
	return nil
}

// OpenForm creates a page with the configured viewport and geolocation and
// navigates it to the form URL. The page is retained for Screenshot.
func (s *Session) OpenForm(ctx context.Context, url string) (*rod.Page, error) {
	s.mu.Lock()
	browser := s.browser
	s.mu.Unlock()
	if browser == nil {
		return nil, fmt.Errorf("browser not started")
	}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             s.cfg.WindowWidth,
		Height:            s.cfg.WindowHeight,
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page); err != nil {
		s.logger.Warn("Failed to set viewport", "error", err)
	}

	if err := s.grantGeolocation(browser, page, url); err != nil {
		s.logger.Warn("Failed to set geolocation override", "error", err)
	}

	if err := page.Context(ctx).Timeout(s.cfg.NavTimeout).Navigate(url); err != nil {
		_ = page.Close()
		return nil, fmt.Errorf("navigate to form: %w", err)
	}
	if err := page.Context(ctx).Timeout(s.cfg.NavTimeout).WaitLoad(); err != nil {
		_ = page.Close()
		return nil, fmt.Errorf("wait for form load: %w", err)
	}

	s.mu.Lock()
	s.page = page
	s.mu.Unlock()
	return page, nil
}

// grantGeolocation allows the geolocation permission for the form's origin
// and pins the reported position to the configured coordinates.
func (s *Session) grantGeolocation(browser *rod.Browser, page *rod.Page, url string) error {
	err := proto.BrowserGrantPermissions{
		Permissions: []proto.BrowserPermissionType{proto.BrowserPermissionTypeGeolocation},
	}.Call(browser)
	if err != nil {
		return fmt.Errorf("grant geolocation permission: %w", err)
	}

	lat := s.cfg.Geolocation.Latitude
	lon := s.cfg.Geolocation.Longitude
	acc := float64(s.cfg.Geolocation.Accuracy)
	err = proto.EmulationSetGeolocationOverride{
		Latitude:  &lat,
		Longitude: &lon,
		Accuracy:  &acc,
	}.Call(page)
	if err != nil {
		return fmt.Errorf("override geolocation: %w", err)
	}
	return nil
}

// Screenshot writes a full-page capture of the current form page into dir
// and returns the file path.
func (s *Session) Screenshot(ctx context.Context, dir string) (string, error) {
	s.mu.Lock()
	page := s.page
	s.mu.Unlock()
	if page == nil {
		return "", fmt.Errorf("no page open")
	}

	data, err := page.Context(ctx).Screenshot(true, nil)
	if err != nil {
		return "", fmt.Errorf("capture screenshot: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create screenshot directory: %w", err)
	}
	path := filepath.Join(dir, screenshotName(time.Now()))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write screenshot: %w", err)
	}
	return path, nil
}

// Close shuts the page, the browser, and the launched process. Cookies are
// cleared first so nothing carries over into the next attempt's session.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

func (s *Session) closeLocked() {
	if s.page != nil {
		_ = s.page.Close()
		s.page = nil
	}
	if s.browser != nil {
		_ = proto.StorageClearCookies{}.Call(s.browser)
		_ = s.browser.Close()
		s.browser = nil
	}
	if s.launch != nil {
		s.launch.Kill()
		s.launch = nil
	}
}

func screenshotName(now time.Time) string {
	return "error_" + now.Format("20060102_150405") + ".png"
}
