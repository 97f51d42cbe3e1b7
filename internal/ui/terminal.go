package ui

import (
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ColorMode is the user's colour preference from ICAM_COLOR.
type ColorMode int

const (
	ColorAuto ColorMode = iota
	ColorAlways
	ColorNever
)

// colorMode reads ICAM_COLOR, then the NO_COLOR convention
// (https://no-color.org), then CLICOLOR_FORCE and CLICOLOR.
func colorMode() ColorMode {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("ICAM_COLOR"))) {
	case "always":
		return ColorAlways
	case "never":
		return ColorNever
	}
	if os.Getenv("NO_COLOR") != "" {
		return ColorNever
	}
	if strings.TrimSpace(os.Getenv("CLICOLOR_FORCE")) == "1" {
		return ColorAlways
	}
	if strings.TrimSpace(os.Getenv("CLICOLOR")) == "0" {
		return ColorNever
	}
	return ColorAuto
}

// ShouldUseColor reports whether output written to w should carry ANSI
// colours. In auto mode only a terminal gets them, so piped `icam watch`
// output stays plain.
func ShouldUseColor(w io.Writer) bool {
	switch colorMode() {
	case ColorAlways:
		return true
	case ColorNever:
		return false
	}
	f, ok := w.(interface{ Fd() uintptr })
	return ok && term.IsTerminal(int(f.Fd()))
}
