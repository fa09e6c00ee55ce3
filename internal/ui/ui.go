// Package ui implements the terminal chat client on top of tview.
package ui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/MegaGrindStone/stream-chat/internal/chat"
	"github.com/MegaGrindStone/stream-chat/internal/models"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// UI is a two-pane terminal chat: the conversation on top and the input line below.
type UI struct {
	app   *tview.Application
	view  *tview.TextView
	input *tview.InputField

	session *chat.Session
	// running is set while the tview event loop is up; queued draws after Stop would never run.
	running atomic.Bool

	logger *slog.Logger
}

// New builds the terminal client. Replies are fetched through streamer.
func New(streamer chat.Streamer, logger *slog.Logger) *UI {
	u := &UI{
		app:    tview.NewApplication(),
		logger: logger.With(slog.String("module", "ui")),
	}

	// State changes land in the session right away; only drawing goes through the event loop, so a
	// transcript written after Run returns holds every chunk that arrived.
	u.session = chat.NewSession(streamer, logger, chat.WithOnChange(u.queueRedraw))

	u.view = tview.NewTextView().
		SetDynamicColors(true).
		SetWordWrap(true).
		SetScrollable(true)
	u.view.SetTitle("Conversation").SetBorder(true)

	u.input = tview.NewInputField().
		SetLabel("> ").
		SetChangedFunc(u.session.SetInput)
	u.input.SetTitle("Message").SetBorder(true)

	return u
}

// Session returns the conversation state driven by the UI.
func (u *UI) Session() *chat.Session {
	return u.session
}

// Run blocks until the user quits. In-flight replies are bound to ctx.
func (u *UI) Run(ctx context.Context) error {
	u.input.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter {
			return
		}
		switch strings.TrimSpace(u.input.GetText()) {
		case "/quit", "/bye":
			u.app.Stop()
			return
		}

		if _, ok := u.session.Submit(ctx); !ok {
			return
		}
		u.input.SetText(u.session.Input())
		u.redraw()
	})

	u.view.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyEnter || event.Key() == tcell.KeyTab {
			u.app.SetFocus(u.input)
			return nil
		}
		return event
	})
	u.input.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyTab {
			u.app.SetFocus(u.view)
			return nil
		}
		return event
	})

	layout := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(u.view, 0, 1, false).
		AddItem(u.input, 3, 0, true)

	go func() {
		<-ctx.Done()
		u.app.Stop()
	}()

	u.logger.Info("Starting terminal client")
	u.running.Store(true)
	defer u.running.Store(false)
	return u.app.SetRoot(layout, true).SetFocus(u.input).Run()
}

// queueRedraw is called from reply goroutines and from the input handler. QueueUpdateDraw blocks until
// the event loop takes the update, so it is sent from its own goroutine.
func (u *UI) queueRedraw() {
	if !u.running.Load() {
		return
	}
	go u.app.QueueUpdateDraw(u.redraw)
}

// redraw runs on the UI goroutine: either from the input handler or from a queued draw.
func (u *UI) redraw() {
	u.view.SetText(formatMessages(u.session.Messages()))
	u.view.ScrollToEnd()
}

func formatMessages(messages []models.Message) string {
	var sb strings.Builder
	for _, msg := range messages {
		switch msg.Role {
		case models.RoleUser:
			sb.WriteString("[red::]You:[-]\n")
		case models.RoleAI:
			sb.WriteString("[green::]AI:[-]\n")
		}
		sb.WriteString(tview.Escape(msg.Content))
		if msg.StreamingState == models.StreamingStateStreaming {
			sb.WriteString(" …")
		}
		if msg.Err != "" {
			reason := "interrupted"
			if msg.Role == models.RoleUser {
				reason = "no reply"
			}
			fmt.Fprintf(&sb, "\n[red::](%s: %s)[-]", reason, tview.Escape(msg.Err))
		}
		sb.WriteString("\n\n")
	}
	return sb.String()
}
