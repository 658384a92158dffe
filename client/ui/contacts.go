package ui

import (
	"buddyim/models"
	"buddyim/protocol"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

func (a *App) updateBuddyTable() {
	if a.buddyTable == nil {
		return
	}
	a.buddyTable.Clear()

	headers := []string{"Buddy", "Status", "Address", "Port"}
	for col, h := range headers {
		a.buddyTable.SetCell(0, col, tview.NewTableCell(h).
			SetTextColor(ColorTitle).
			SetAttributes(tcell.AttrBold).
			SetSelectable(false))
	}

	buddies := a.view.Snapshot()
	if len(buddies) == 0 {
		a.buddyTable.SetCell(1, 0, tview.NewTableCell("(no buddies)").SetTextColor(ColorOffline))
		return
	}

	for i, b := range buddies {
		color := statusColor(b)
		a.buddyTable.SetCell(i+1, 0, tview.NewTableCell(tview.Escape(b.ID)).SetTextColor(color))
		a.buddyTable.SetCell(i+1, 1, tview.NewTableCell(b.StatusWord).SetTextColor(color))
		a.buddyTable.SetCell(i+1, 2, tview.NewTableCell(b.Address).SetTextColor(ColorFg))
		a.buddyTable.SetCell(i+1, 3, tview.NewTableCell(b.Port).SetTextColor(ColorFg))
	}
}

func (a *App) register(id string) {
	go func() {
		resp, err := a.directory.Register(id)
		a.app.QueueUpdateDraw(func() {
			if err != nil {
				a.printf("[red]Register failed: %v[-]", err)
				return
			}
			a.printf("Server: %s", tview.Escape(resp))
			if resp == protocol.CodeOK {
				a.login(id)
			}
		})
	}()
}

// login sets the identity the poller publishes. The server is not asked:
// an unregistered id simply never gets a buddy reply.
func (a *App) login(id string) {
	a.poller.SetIdentity(id)
	a.updateBuddyTable()
	a.updateStatusBarText()
	a.printf("Logged in as %s", tview.Escape(id))
}

func (a *App) editBuddy(add bool, buddy string) {
	owner := a.poller.Identity()
	if owner == "" {
		a.printf("[red]Log in first (L)[-]")
		return
	}

	go func() {
		var (
			resp string
			err  error
		)
		if add {
			resp, err = a.directory.AddBuddy(owner, buddy)
		} else {
			resp, err = a.directory.DeleteBuddy(owner, buddy)
		}
		a.app.QueueUpdateDraw(func() {
			if err != nil {
				a.printf("[red]Request failed: %v[-]", err)
				return
			}
			a.printf("Server: %s", tview.Escape(resp))
		})
	}()
}

func (a *App) showStatuses() {
	buddies := a.view.Snapshot()
	if len(buddies) == 0 {
		a.printf("No buddy statuses yet.")
		return
	}
	for _, b := range buddies {
		a.printf("%s", tview.Escape(b.String()))
	}
}

func (a *App) toggleAway() {
	if a.poller.Identity() == "" {
		a.printf("[red]Log in first (L)[-]")
		return
	}
	next := models.StatusAway
	if a.poller.Status() == models.StatusAway {
		next = models.StatusOnline
	}
	a.poller.SetStatus(next)
	a.updateStatusBarText()
	a.printf("Status set to %s", next.Word())
}
