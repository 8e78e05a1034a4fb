package panel

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"rollcall/internal/queue"
)

func newSubmissionTable() table.Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "ST", Width: 2},
			{Title: "Profile", Width: 16},
			{Title: "Origin", Width: 10},
			{Title: "Attempt", Width: 8},
			{Title: "Status", Width: 10},
			{Title: "When", Width: 10},
			{Title: "Error", Width: 32},
		}),
		table.WithFocused(true),
		table.WithHeight(8),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return t
}

func submissionRows(subs []*queue.Submission, theme Theme, now time.Time) []table.Row {
	rows := make([]table.Row, 0, len(subs))
	for _, sub := range subs {
		rows = append(rows, submissionRow(sub, theme, now))
	}
	return rows
}

func submissionRow(sub *queue.Submission, theme Theme, now time.Time) table.Row {
	lastError := ""
	if sub.LastError != nil {
		lastError = *sub.LastError
		if len(lastError) > 32 {
			lastError = lastError[:29] + "..."
		}
	}

	return table.Row{
		statusSymbol(sub.Status, theme),
		sub.Profile,
		sub.Origin,
		fmt.Sprintf("%d/%d", sub.Attempt, sub.MaxAttempts),
		theme.StatusStyle(string(sub.Status)).Render(string(sub.Status)),
		submissionWhen(sub, now),
		lastError,
	}
}

func statusSymbol(status queue.Status, theme Theme) string {
	switch status {
	case queue.StatusQueued:
		return theme.StatusQueued.Render("○")
	case queue.StatusRunning:
		return theme.StatusRunning.Render("◉")
	case queue.StatusSucceeded:
		return theme.StatusOK.Render("●")
	case queue.StatusFailed:
		return theme.StatusFailed.Render("∅")
	case queue.StatusDead:
		return theme.StatusDead.Render("◔")
	default:
		return "○"
	}
}

// submissionWhen picks the most informative time for the row: completion time
// for finished rows, run duration for running ones, age otherwise.
func submissionWhen(sub *queue.Submission, now time.Time) string {
	switch {
	case sub.CompletedAt != nil:
		return formatAgo(now.Sub(*sub.CompletedAt))
	case sub.Status == queue.StatusRunning && sub.StartedAt != nil:
		return now.Sub(*sub.StartedAt).Round(time.Second).String()
	case sub.NextRetryAt != nil && sub.NextRetryAt.After(now):
		return "retry " + formatCountdown(sub.NextRetryAt.Sub(now))
	default:
		return formatAgo(now.Sub(sub.CreatedAt))
	}
}

func formatAgo(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	}
	return fmt.Sprintf("%dh ago", int(d.Hours()))
}
