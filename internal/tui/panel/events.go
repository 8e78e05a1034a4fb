package panel

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"rollcall/internal/events"
)

func renderEventStream(eventLog []events.Event, theme Theme, width int) string {
	innerWidth := width - 4

	if len(eventLog) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("EVENT STREAM"),
			theme.Dim.Render("  Waiting for events..."),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}

	var lines []string
	for i, e := range eventLog {
		if i >= 10 {
			break
		}
		lines = append(lines, formatEvent(e, theme))
	}

	eventsText := lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n"))
	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("EVENT STREAM"),
		eventsText,
	)

	return theme.Border.Width(innerWidth).Render(content)
}

func formatEvent(e events.Event, theme Theme) string {
	ts := theme.Dim.Render(e.At.Local().Format("15:04:05"))

	var typeStyle lipgloss.Style
	switch {
	case strings.HasSuffix(e.Type, ".succeeded"):
		typeStyle = theme.StatusOK
	case strings.HasSuffix(e.Type, ".failed"), strings.HasSuffix(e.Type, ".retry"):
		typeStyle = theme.StatusFailed
	case strings.HasSuffix(e.Type, ".started"), strings.HasSuffix(e.Type, ".attempt"):
		typeStyle = theme.StatusRunning
	case strings.HasPrefix(e.Type, "scheduler"):
		typeStyle = theme.Highlight
	default:
		typeStyle = theme.Dim
	}

	typeName := typeStyle.Render(fmt.Sprintf("%-21s", e.Type))

	return fmt.Sprintf("%s %s %s", ts, typeName, extractEventDesc(e))
}

// extractEventDesc builds a short one-line description from the event payload.
func extractEventDesc(e events.Event) string {
	data := make(map[string]any)
	_ = json.Unmarshal(e.Data, &data)

	if e.Type == events.TypeLog {
		level, _ := data["level"].(string)
		message, _ := data["message"].(string)
		return strings.TrimSpace(level + " " + message)
	}

	var parts []string

	if id, ok := data["submission_id"].(string); ok {
		if len(id) > 8 {
			id = id[:8]
		}
		parts = append(parts, fmt.Sprintf("[%s]", id))
	}

	if profile, ok := data["profile"].(string); ok && profile != "" {
		parts = append(parts, profile)
	}

	// JSON numbers decode as float64.
	if attempt, ok := data["attempt"].(float64); ok {
		if maxAttempts, ok := data["max_attempts"].(float64); ok {
			parts = append(parts, fmt.Sprintf("attempt %d/%d", int(attempt), int(maxAttempts)))
		} else {
			parts = append(parts, fmt.Sprintf("attempt %d", int(attempt)))
		}
	}

	if reason, ok := data["reason"].(string); ok && reason != "" {
		parts = append(parts, "reason="+reason)
	}

	if errText, ok := data["error"].(string); ok && errText != "" {
		if len(errText) > 48 {
			errText = errText[:48] + "..."
		}
		parts = append(parts, errText)
	}

	if len(parts) == 0 {
		raw := string(e.Data)
		if len(raw) > 60 {
			raw = raw[:60] + "..."
		}
		return raw
	}

	return strings.Join(parts, " ")
}
