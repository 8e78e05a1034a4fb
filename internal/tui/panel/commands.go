package panel

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"rollcall/internal/events"
	"rollcall/internal/queue"
)

// --- Message types ---

type hubEventMsg events.Event

type tickMsg time.Time

type submissionsMsg []*queue.Submission

type checkinDoneMsg string

type errMsg error

// --- Commands ---

// receiveNextEvent waits for the next event from the hub subscription.
func receiveNextEvent(ch <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return hubEventMsg(ev)
	}
}

func loadSubmissions(ctx context.Context, lister SubmissionLister) tea.Cmd {
	return func() tea.Msg {
		subs, err := lister.ListRecent(ctx, 20)
		if err != nil {
			return errMsg(err)
		}
		return submissionsMsg(subs)
	}
}

func runCheckin(ctx context.Context, checkin CheckinFunc) tea.Cmd {
	return func() tea.Msg {
		summary, err := checkin(ctx)
		if err != nil {
			return errMsg(err)
		}
		return checkinDoneMsg(summary)
	}
}

func scheduleTick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}
