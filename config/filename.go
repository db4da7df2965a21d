package config

import (
	"os"
	"strings"
	"unicode/utf8"
)

// most file systems limit single name to 255 bytes, callers may still
// append an extension
const maxNameBytes = 240

// limitName cuts name to fit maxNameBytes keeping extension and never
// splitting multibyte characters (book titles are mostly Japanese).
func limitName(name string) string {
	if len(name) <= maxNameBytes {
		return name
	}
	ext := ""
	if i := strings.LastIndexByte(name, '.'); i > 0 && len(name)-i <= 16 {
		name, ext = name[:i], name[i:]
	}
	room := maxNameBytes - len(ext)
	for room > 0 && !utf8.RuneStart(name[room]) {
		room--
	}
	return name[:room] + ext
}

// colorDisabled honors NO_COLOR convention.
func colorDisabled() bool {
	_, set := os.LookupEnv("NO_COLOR")
	return set
}
