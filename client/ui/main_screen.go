package ui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

func (a *App) createMainPage() tview.Primitive {
	// Buddy table on the left
	a.buddyTable = tview.NewTable()
	a.buddyTable.SetBorder(true)
	a.buddyTable.SetBorderColor(ColorBorder)
	a.buddyTable.SetBackgroundColor(ColorBg)
	a.buddyTable.SetTitle(" Buddies ")
	a.buddyTable.SetTitleColor(ColorTitle)
	a.buddyTable.SetSelectable(false, false)
	a.updateBuddyTable()

	// Messages and server responses on the right
	a.logView.SetBorder(true)
	a.logView.SetBorderColor(ColorBorder)
	a.logView.SetBackgroundColor(ColorBg)
	a.logView.SetTitle(" Messages ")
	a.logView.SetTitleColor(ColorTitle)
	a.logView.SetTextColor(ColorFg)
	a.logView.SetDynamicColors(true)
	a.logView.SetScrollable(true)

	// Command / chat input
	a.input = tview.NewInputField()
	a.input.SetLabel("> ")
	a.input.SetFieldWidth(0)
	a.input.SetFieldBackgroundColor(ColorBg)
	a.input.SetLabelColor(ColorTitle)
	a.input.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter {
			return
		}
		line := a.input.GetText()
		a.input.SetText("")
		a.handleLine(line)
	})

	// Status bar at bottom
	a.statusBar = tview.NewTextView()
	a.statusBar.SetBackgroundColor(ColorStatus)
	a.statusBar.SetTextColor(ColorTitle)
	a.statusBar.SetTextAlign(tview.AlignCenter)
	a.updateStatusBarText()

	body := tview.NewFlex().
		AddItem(a.buddyTable, 44, 0, false).
		AddItem(a.logView, 0, 1, false)

	// Main layout
	mainFlex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(body, 0, 1, false).
		AddItem(a.input, 1, 0, true).
		AddItem(a.statusBar, 1, 0, false)
	mainFlex.SetBackgroundColor(ColorBg)

	// Handle keyboard
	mainFlex.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyF1:
			a.showHelp()
			return nil
		case tcell.KeyF10:
			a.quit()
			return nil
		case tcell.KeyEsc:
			if a.prompt != nil {
				a.cancelPrompt()
				return nil
			}
		}
		return event
	})

	return mainFlex
}

func (a *App) updateStatusBarText() {
	if a.statusBar == nil {
		return
	}

	user := "not logged in"
	if a.poller != nil && a.poller.Identity() != "" {
		user = a.poller.Identity() + " (" + a.poller.Status().Word() + ")"
	}

	port := 0
	if a.negotiator != nil {
		port = a.negotiator.Port()
	}

	if a.session != nil {
		a.statusBar.SetText(fmt.Sprintf(" %s | chat with %s | q: end chat | F10: Quit ", user, a.session.Peer))
		return
	}
	a.statusBar.SetText(fmt.Sprintf(" %s | chat port %d | F1: Help | F10: Quit ", user, port))
}

// askFor shows label on the input line and hands the next entered line to fn.
func (a *App) askFor(label string, fn func(answer string)) {
	a.prompt = fn
	a.input.SetLabel(label)
}

func (a *App) cancelPrompt() {
	a.prompt = nil
	a.input.SetLabel("> ")
}
