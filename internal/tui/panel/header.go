package panel

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"rollcall/internal/config"
	"rollcall/internal/scheduler"
)

// headerState holds the figures the header line is rendered from.
type headerState struct {
	QueuedCount     int
	RunningCount    int
	EnabledProfiles int
	LastTick        time.Time
}

func renderHeader(cfg *config.Config, state headerState, ticker Ticker, spinner Spinner, theme Theme, width int, now time.Time) string {
	innerWidth := width - 4

	// Title line with ticker and clock
	tickerStr := theme.Highlight.Render(ticker.Current())
	clock := theme.Dim.Render(now.Format("15:04:05"))
	titleText := fmt.Sprintf(" ROLLCALL %s", tickerStr)

	titleWidth := lipgloss.Width(titleText)
	clockWidth := lipgloss.Width(clock)
	pad := innerWidth - titleWidth - clockWidth - 4
	if pad < 1 {
		pad = 1
	}
	titleLine := titleText + strings.Repeat(" ", pad) + clock + " "

	statsLine := fmt.Sprintf(" %s  Queued: %d  Running: %d  %s",
		renderScheduleSummary(cfg, theme, now),
		state.QueuedCount,
		state.RunningCount,
		renderBrowserMode(cfg, theme),
	)

	profilesLine := fmt.Sprintf(" Profiles (%d): %s",
		state.EnabledProfiles,
		theme.Dim.Render(profileSummary(cfg)),
	)

	lastTickStr := "never"
	if !state.LastTick.IsZero() {
		lastTickStr = fmt.Sprintf("%s ago", now.Sub(state.LastTick).Round(time.Second))
	}
	lastEventStr := "never"
	if !spinner.LastEvent().IsZero() {
		lastEventStr = fmt.Sprintf("%s ago", time.Since(spinner.LastEvent()).Round(time.Second))
	}
	activityLine := fmt.Sprintf(" Tick: %s  Last event: %s %s",
		lastTickStr,
		lastEventStr,
		spinner.Render(theme),
	)

	content := lipgloss.JoinVertical(lipgloss.Left,
		titleLine,
		statsLine,
		profilesLine,
		activityLine,
	)

	return theme.Border.Width(innerWidth).Render(content)
}

func renderBrowserMode(cfg *config.Config, theme Theme) string {
	if cfg == nil {
		return ""
	}
	if cfg.Browser.Headless {
		return theme.Dim.Render("headless")
	}
	return theme.Highlight.Render("headed")
}

// profileSummary lists enabled profile names in stable order. Phones stay
// out of the panel entirely.
func profileSummary(cfg *config.Config) string {
	if cfg == nil {
		return "none"
	}
	names := make([]string, 0, len(cfg.Profiles))
	for name, p := range cfg.Profiles {
		if p.Enabled {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

func renderScheduleSummary(cfg *config.Config, theme Theme, now time.Time) string {
	if cfg == nil {
		return theme.Dim.Render("schedule unknown")
	}
	if !cfg.Schedule.Enabled {
		return theme.StatusFailed.Render("schedule off") + theme.Dim.Render(" (manual only)")
	}
	next := scheduler.NextRun(now, cfg.Schedule.Hour, cfg.Schedule.Minute)
	return fmt.Sprintf("%s %s",
		theme.StatusOK.Render(fmt.Sprintf("daily %02d:%02d", cfg.Schedule.Hour, cfg.Schedule.Minute)),
		theme.Dim.Render(formatCountdown(next.Sub(now))),
	)
}

func formatCountdown(until time.Duration) string {
	if until <= 0 {
		return "due now"
	}
	until = until.Round(time.Second)
	if until < time.Minute {
		return fmt.Sprintf("in %ds", int(until.Seconds()))
	}
	if until < time.Hour {
		return fmt.Sprintf("in %dm%02ds", int(until.Minutes()), int(until.Seconds())%60)
	}
	return fmt.Sprintf("in %dh%02dm", int(until.Hours()), int(until.Minutes())%60)
}
