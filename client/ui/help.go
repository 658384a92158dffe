package ui

import (
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

const menuText = `[yellow]Commands[-] (an id may follow the letter, e.g. "A bob")
  [white]R[-] register   [white]L[-] login   [white]A[-] add buddy   [white]D[-] delete buddy
  [white]S[-] statuses   [white]M[-] chat    [white]Y[-]/[white]N[-] accept/reject chat
  [white]W[-] away on/off   [white]H[-] menu   [white]X[-] exit`

func (a *App) printMenu() {
	a.printf("%s", menuText)
}

func (a *App) showHelp() {
	helpText := `
 [yellow]Menu Commands[-]
 ───────────────────────────────────────────────────────────────
   [white]R <id>[-]   Register a new account and log in as it
   [white]L <id>[-]   Log in as an existing account
   [white]A <id>[-]   Add a buddy to your list
   [white]D <id>[-]   Delete a buddy from your list
   [white]S[-]        Print the latest buddy statuses
   [white]M <id>[-]   Start a chat with an online buddy
   [white]Y[-]        Accept the pending chat request
   [white]N[-]        Reject the pending chat request
   [white]W[-]        Toggle between ONLINE and AWAY
   [white]H[-]        Print the command menu
   [white]X[-]        Exit

 [yellow]During a Chat[-]
 ───────────────────────────────────────────────────────────────
   [white]Enter[-]    Send the typed line
   [white]q[-]        End the chat

 [yellow]Keys[-]
 ───────────────────────────────────────────────────────────────
   [white]F1[-]       Show this help
   [white]Esc[-]      Cancel an id prompt
   [white]F10[-]      Quit application

 [yellow]Status Colors[-]
 ───────────────────────────────────────────────────────────────
   [green]●[-] ONLINE   Buddy can be called
   [yellow]●[-] AWAY     Buddy is present but not taking chats
   [gray]○[-] OFFLINE  No presence published since the server started

 [yellow]Presence[-]
 ───────────────────────────────────────────────────────────────
   Your status is published and the buddy list refreshed every 800 ms.
   Only one chat runs at a time. Further requests are rejected
   while one is pending or in progress.
`

	helpView := tview.NewTextView()
	helpView.SetText(helpText)
	helpView.SetBackgroundColor(ColorBg)
	helpView.SetTextColor(ColorFg)
	helpView.SetDynamicColors(true)
	helpView.SetBorder(true)
	helpView.SetBorderColor(ColorBorder)
	helpView.SetTitle(" Help ")
	helpView.SetTitleColor(ColorTitle)
	helpView.SetScrollable(true)

	statusBar := tview.NewTextView()
	statusBar.SetBackgroundColor(ColorStatus)
	statusBar.SetTextColor(ColorTitle)
	statusBar.SetTextAlign(tview.AlignCenter)
	statusBar.SetText(" ↑↓/PgUp/PgDn: Scroll | Esc/Enter/F1: Close ")

	flex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(helpView, 0, 1, true).
		AddItem(statusBar, 1, 0, false)
	flex.SetBackgroundColor(ColorBg)

	flex.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyEsc, tcell.KeyEnter, tcell.KeyF1:
			a.pages.RemovePage("help")
			a.app.SetFocus(a.input)
			return nil
		case tcell.KeyUp:
			row, col := helpView.GetScrollOffset()
			helpView.ScrollTo(row-1, col)
			return nil
		case tcell.KeyDown:
			row, col := helpView.GetScrollOffset()
			helpView.ScrollTo(row+1, col)
			return nil
		case tcell.KeyPgUp:
			row, col := helpView.GetScrollOffset()
			helpView.ScrollTo(row-10, col)
			return nil
		case tcell.KeyPgDn:
			row, col := helpView.GetScrollOffset()
			helpView.ScrollTo(row+10, col)
			return nil
		}
		return event
	})

	a.pages.AddPage("help", flex, true, true)
	a.app.SetFocus(flex)
}
