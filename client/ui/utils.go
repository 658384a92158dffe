package ui

import (
	"strings"
	"unicode/utf8"

	"buddyim/models"

	"github.com/gdamore/tcell/v2"
)

// parseCommand returns the upper-cased first letter of a menu line and its
// optional argument, e.g. "add bob" -> ("A", "bob").
func parseCommand(line string) (cmd, arg string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", ""
	}
	first, _ := utf8.DecodeRuneInString(fields[0])
	cmd = strings.ToUpper(string(first))
	if len(fields) > 1 {
		arg = fields[1]
	}
	return cmd, arg
}

func statusColor(b models.BuddyStatus) tcell.Color {
	switch b.StatusCode {
	case models.StatusOnline.Code():
		return ColorOnline
	case models.StatusAway.Code():
		return ColorAway
	}
	return ColorOffline
}
