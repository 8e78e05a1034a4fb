// Package submit drives one complete check-in: open the form, fill it for a
// profile, submit, and verify the confirmation.
package submit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"rollcall/internal/browser"
	"rollcall/internal/config"
	"rollcall/internal/form"
)

//go:generate mockgen -destination=mocks/mock_submitter.go -package=mocks rollcall/internal/submit Submitter

// Submitter runs one check-in attempt for a named profile.
type Submitter interface {
	Submit(ctx context.Context, profileName string) error
}

// Runner is the production Submitter. It launches a fresh browser per
// attempt so no state leaks between attempts.
type Runner struct {
	getCfg func() *config.Config
	logger *slog.Logger
}

// NewRunner creates a Runner. getCfg is called at the start of each attempt
// so live config reloads take effect on the next attempt.
func NewRunner(getCfg func() *config.Config, logger *slog.Logger) *Runner {
	return &Runner{
		getCfg: getCfg,
		logger: logger.With("component", "submit"),
	}
}

const locationWait = 10 * time.Second

// Submit performs the fill-submit-verify sequence once. Any error means the
// attempt failed; retry policy lives with the caller.
func (r *Runner) Submit(ctx context.Context, profileName string) error {
	cfg := r.getCfg()
	profile, ok := cfg.Profiles[profileName]
	if !ok {
		return fmt.Errorf("unknown profile %q", profileName)
	}
	if !profile.Enabled {
		return fmt.Errorf("profile %q is disabled", profileName)
	}

	logger := r.logger.With("profile", profileName)
	logger.Info("Starting check-in attempt", "url", cfg.Form.URL)

	session := browser.NewSession(cfg.Browser, logger)
	defer session.Close()

	if err := session.Start(ctx); err != nil {
		return err
	}

	page, err := session.OpenForm(ctx, cfg.Form.URL)
	if err != nil {
		return err
	}

	fail := func(stage string, err error) error {
		if path, shotErr := session.Screenshot(ctx, cfg.Browser.ScreenshotDir); shotErr == nil {
			logger.Error("Check-in attempt failed", "stage", stage, "error", err, "screenshot", path)
		} else {
			logger.Error("Check-in attempt failed", "stage", stage, "error", err)
		}
		return fmt.Errorf("%s: %w", stage, err)
	}

	if err := form.WaitText(ctx, page, cfg.Form.ReadyText, cfg.Browser.NavTimeout); err != nil {
		return fail("wait for form", err)
	}
	settle(ctx, cfg.Browser.SettleDelay)

	if err := form.FillByPlaceholder(ctx, page, cfg.Form.NamePlaceholder, profile.Name); err != nil {
		return fail("fill name", err)
	}
	if err := form.FillByPlaceholder(ctx, page, cfg.Form.PhonePlaceholder, profile.Phone); err != nil {
		return fail("fill phone", err)
	}
	if profile.Unit != "" {
		if err := form.FillByPlaceholder(ctx, page, cfg.Form.UnitPlaceholder, profile.Unit); err != nil {
			return fail("fill unit", err)
		}
	}
	if err := form.FillFollowingInput(ctx, page, cfg.Form.TemperatureLabel, cfg.Form.UnitPlaceholder, profile.Temperature); err != nil {
		return fail("fill temperature", err)
	}

	// The option captions repeat across question rows; index 1 is the "yes"
	// row on the current form layout, and ClickNthText falls back to the
	// first match when the layout shrinks.
	if err := form.ClickNthText(ctx, page, cfg.Form.HealthOptionText, 1); err != nil {
		return fail("select health status", err)
	}
	if err := form.ClickNthText(ctx, page, cfg.Form.OnDutyOptionText, 1); err != nil {
		return fail("select on-duty", err)
	}
	if err := form.ClickNthText(ctx, page, cfg.Form.NotAwayOptionText, 1); err != nil {
		return fail("select not-away", err)
	}

	// Geolocation capture is flaky on slow pages. Proceed without it rather
	// than burning the whole attempt.
	if err := form.ClickAnyText(ctx, page, cfg.Form.LocationButtonTexts); err != nil {
		logger.Warn("Location button not found, submitting without location", "error", err)
	} else if err := form.WaitText(ctx, page, cfg.Form.LocationDoneText, locationWait); err != nil {
		logger.Warn("Location capture not confirmed", "error", err)
	}

	settle(ctx, cfg.Browser.SettleDelay)

	if err := form.ClickAnyText(ctx, page, cfg.Form.SubmitButtonTexts); err != nil {
		return fail("click submit", err)
	}

	if err := waitForSuccess(ctx, page, cfg.Form.SuccessTexts, cfg.Browser.NavTimeout); err != nil {
		return fail("verify submission", err)
	}

	logger.Info("Check-in submitted and verified")
	return nil
}

// waitForSuccess polls the page until any success marker appears.
func waitForSuccess(ctx context.Context, page htmlSource, texts []string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		html, err := page.HTML()
		if err == nil && form.PageContainsAny(html, texts) {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("no success marker appeared within %s", timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
}

type htmlSource interface {
	HTML() (string, error)
}

func settle(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
