package ui

import "github.com/gdamore/tcell/v2"

// Colors - Midnight Commander style
var (
	ColorBg       = tcell.NewRGBColor(0, 0, 128)     // Dark blue background
	ColorFg       = tcell.NewRGBColor(192, 192, 192) // Light gray text
	ColorBorder   = tcell.NewRGBColor(0, 255, 255)   // Cyan borders
	ColorTitle    = tcell.NewRGBColor(255, 255, 255) // White titles
	ColorStatus   = tcell.NewRGBColor(0, 128, 128)   // Teal status bar
	ColorOnline   = tcell.NewRGBColor(0, 255, 0)     // Green for online
	ColorAway     = tcell.NewRGBColor(255, 255, 0)   // Yellow for away
	ColorOffline  = tcell.NewRGBColor(128, 128, 128) // Gray for offline
)
