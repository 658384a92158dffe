package ui

import (
	"fmt"

	"buddyim/client/chat"
	"buddyim/client/directory"
	"buddyim/models"

	"github.com/rivo/tview"
)

// App is the terminal front end over the directory client, the presence
// poller and the chat negotiator.
type App struct {
	app        *tview.Application
	pages      *tview.Pages
	directory  *directory.Client
	poller     *directory.Poller
	view       *directory.View
	negotiator *chat.Negotiator

	// owned by the UI goroutine
	session *chat.Session
	prompt  func(answer string)

	buddyTable *tview.Table
	logView    *tview.TextView
	input      *tview.InputField
	statusBar  *tview.TextView
}

func NewApp(dir *directory.Client, view *directory.View) *App {
	a := &App{
		app:       tview.NewApplication(),
		directory: dir,
		view:      view,
	}
	a.logView = tview.NewTextView()
	a.logView.SetChangedFunc(func() { a.app.Draw() })
	return a
}

// LogWriter receives log output so it lands in the message pane instead of
// corrupting the terminal.
func (a *App) LogWriter() *tview.TextView {
	return a.logView
}

// ChatHandlers returns the callbacks the negotiator reports to.
func (a *App) ChatHandlers() chat.Handlers {
	return chat.Handlers{
		Incoming: func(remote string) {
			a.app.QueueUpdateDraw(func() {
				a.printf("[yellow]Incoming chat request from %s. Accept? (Y/N)[-]", remote)
			})
		},
		Message: func(line string) {
			a.app.QueueUpdateDraw(func() {
				a.printf("[#00ffff]B:[-] %s", tview.Escape(line))
			})
		},
		Ended: func(s *chat.Session) {
			a.app.QueueUpdateDraw(func() {
				if a.session == s {
					a.session = nil
				}
				a.printf("[yellow]Chat ended.[-]")
				a.updateStatusBarText()
			})
		},
	}
}

// Attach wires the components that need the chat port before they exist.
func (a *App) Attach(negotiator *chat.Negotiator, poller *directory.Poller) {
	a.negotiator = negotiator
	a.poller = poller
	poller.OnUpdate(func(_ []models.BuddyStatus) {
		a.app.QueueUpdateDraw(a.updateBuddyTable)
	})
}

// Run blocks until the user exits.
func (a *App) Run() error {
	a.pages = tview.NewPages()
	a.pages.AddPage("main", a.createMainPage(), true, true)
	a.printMenu()

	return a.app.SetRoot(a.pages, true).SetFocus(a.input).EnableMouse(false).Run()
}

// quit exits the application. Open chat connections are closed by the
// caller's shutdown, not drained here.
func (a *App) quit() {
	a.app.Stop()
}

// printf appends one line to the message pane. Call from the UI goroutine.
func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.logView, format+"\n", args...)
	a.logView.ScrollToEnd()
}
