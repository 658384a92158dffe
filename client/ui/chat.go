package ui

import (
	"context"
	"errors"

	"buddyim/client/chat"

	"github.com/rivo/tview"
)

// handleLine routes one entered line: to a pending prompt first, then to the
// active chat, otherwise to the menu.
func (a *App) handleLine(line string) {
	if fn := a.prompt; fn != nil {
		a.cancelPrompt()
		fn(line)
		return
	}

	if a.session != nil {
		a.sendChat(line)
		return
	}

	cmd, arg := parseCommand(line)
	switch cmd {
	case "":
	case "R":
		a.withID("Register as: ", arg, a.register)
	case "L":
		a.withID("Login as: ", arg, a.login)
	case "A":
		a.withID("Add buddy: ", arg, func(id string) { a.editBuddy(true, id) })
	case "D":
		a.withID("Delete buddy: ", arg, func(id string) { a.editBuddy(false, id) })
	case "S":
		a.showStatuses()
	case "M":
		a.withID("Chat with: ", arg, a.dial)
	case "Y":
		a.acceptChat()
	case "N":
		a.rejectChat()
	case "W":
		a.toggleAway()
	case "H", "?":
		a.printMenu()
	case "X", "Q":
		a.quit()
	default:
		a.printf("[red]Unknown command %q[-]", tview.Escape(cmd))
	}
}

// withID runs fn with arg, or prompts for it when arg is empty.
func (a *App) withID(label, arg string, fn func(id string)) {
	if arg != "" {
		fn(arg)
		return
	}
	a.askFor(label, func(answer string) {
		_, id := parseCommand("_ " + answer)
		if id == "" {
			a.printf("[red]No id entered[-]")
			return
		}
		fn(id)
	})
}

func (a *App) sendChat(line string) {
	s := a.session
	if line == "q" {
		a.printf("Ending chat...")
		go s.Quit()
		return
	}
	if err := s.Send(line); err != nil {
		a.printf("[red]Send failed: %v[-]", err)
		return
	}
	a.printf("[green]A:[-] %s", tview.Escape(line))
}

func (a *App) dial(buddy string) {
	a.printf("Calling %s...", tview.Escape(buddy))
	go func() {
		s, err := a.negotiator.Dial(context.Background(), buddy, a.view)
		a.app.QueueUpdateDraw(func() {
			if err != nil {
				a.printf("[red]%s[-]", dialError(buddy, err))
				return
			}
			a.startChat(s)
		})
	}()
}

func dialError(buddy string, err error) string {
	switch {
	case errors.Is(err, chat.ErrNotFound):
		return tview.Escape(buddy) + " is not in your buddy list"
	case errors.Is(err, chat.ErrOffline):
		return tview.Escape(buddy) + " is offline"
	case errors.Is(err, chat.ErrRejected):
		return tview.Escape(buddy) + " rejected the chat"
	case errors.Is(err, chat.ErrUnreachable):
		return "Chat rejected: " + tview.Escape(buddy) + " could not be reached"
	}
	return tview.Escape(err.Error())
}

func (a *App) acceptChat() {
	s, err := a.negotiator.AcceptIncoming()
	if err != nil {
		a.printf("[red]%v[-]", err)
		return
	}
	a.startChat(s)
}

func (a *App) rejectChat() {
	if err := a.negotiator.RejectIncoming(); err != nil {
		a.printf("[red]%v[-]", err)
		return
	}
	a.printf("Chat request rejected.")
}

func (a *App) startChat(s *chat.Session) {
	// The session may already be over if the peer hung up right away.
	select {
	case <-s.Done():
		return
	default:
	}
	a.session = s
	a.printf("[yellow]Chatting with %s. Type q to end.[-]", s.Peer)
	a.updateStatusBarText()

	go func() {
		<-s.Done()
		a.app.QueueUpdateDraw(func() {
			if a.session == s {
				a.session = nil
				a.updateStatusBarText()
			}
		})
	}()
}
