//go:build windows

package config

import (
	"os"
	"strings"

	"golang.org/x/sys/windows"
	"golang.org/x/term"
)

var reservedNames = map[string]struct{}{
	"CON": {}, "PRN": {}, "AUX": {}, "NUL": {},
	"COM1": {}, "COM2": {}, "COM3": {}, "COM4": {}, "COM5": {}, "COM6": {}, "COM7": {}, "COM8": {}, "COM9": {},
	"LPT1": {}, "LPT2": {}, "LPT3": {}, "LPT4": {}, "LPT5": {}, "LPT6": {}, "LPT7": {}, "LPT8": {}, "LPT9": {},
}

// CleanFileName removes characters Windows does not allow in file names,
// trailing dots and spaces. Device names get underscore prefix. Empty result
// means nothing usable was left.
func CleanFileName(in string) string {
	out := strings.Map(func(sym rune) rune {
		if sym < 0x20 || strings.ContainsRune(`<>":/\|?*`, sym) {
			return -1
		}
		return sym
	}, strings.TrimSpace(in))
	out = strings.TrimRight(out, ". ")
	if len(out) == 0 {
		return ""
	}
	stem, _, _ := strings.Cut(out, ".")
	if _, bad := reservedNames[strings.ToUpper(stem)]; bad {
		out = "_" + out
	}
	return limitName(out)
}

// EnableColorOutput checks if colorized output is possible and turns on VT
// sequence processing in console. Consoles older than Windows 10 refuse it.
func EnableColorOutput(stream *os.File) bool {
	if colorDisabled() || !term.IsTerminal(int(stream.Fd())) {
		return false
	}
	h := windows.Handle(stream.Fd())

	var mode uint32
	if err := windows.GetConsoleMode(h, &mode); err != nil {
		return false
	}
	return windows.SetConsoleMode(h, mode|windows.ENABLE_VIRTUAL_TERMINAL_PROCESSING) == nil
}
