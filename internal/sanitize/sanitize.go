// Package sanitize normalizes and validates untrusted input that arrives
// over the wire: player names, room codes, session IDs, and scores.
//
// Implemented on the standard library only. See DESIGN.md for why no
// third-party library in the corpus was a better fit than
// strings/regexp/math for this kind of bounded text scrubbing.
package sanitize

import (
	"math"
	"regexp"
	"strings"
)

const (
	// MaxNameRunes caps a sanitized player name.
	MaxNameRunes = 50
	// DefaultName is substituted when a name sanitizes to empty.
	DefaultName = "Spieler"
	// SessionIDPrefix anchors the format check for session tokens.
	SessionIDPrefix = "sess-"
	// MaxSessionIDLen bounds a well-formed session token.
	MaxSessionIDLen = 80
	// RoomCodeLen is the fixed length of a room code.
	RoomCodeLen = 4
)

var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

// Name trims, strips HTML tags and control characters (U+0000–U+001F and
// U+007F), caps length,
// and falls back to DefaultName when the result is empty.
func Name(raw string) string {
	s := strings.TrimSpace(raw)
	s = htmlTagPattern.ReplaceAllString(s, "")
	s = stripControl(s)
	s = strings.TrimSpace(s)

	runes := []rune(s)
	if len(runes) > MaxNameRunes {
		runes = runes[:MaxNameRunes]
	}
	s = string(runes)

	if s == "" {
		return DefaultName
	}
	return s
}

func stripControl(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= 0x00 && r <= 0x1F) || r == 0x7F {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SessionID reports whether id matches the server's mint format: the
// well-known prefix followed by a bounded-length suffix. Anything else is
// treated as absent by the caller.
func SessionID(id string) (string, bool) {
	if !strings.HasPrefix(id, SessionIDPrefix) {
		return "", false
	}
	if len(id) <= len(SessionIDPrefix) || len(id) > MaxSessionIDLen {
		return "", false
	}
	return id, true
}

// Score reports whether v is a valid player score: finite and non-negative.
func Score(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

// RoomCode uppercases and strips whitespace from a client-supplied room
// code, returning ok=false if the result isn't exactly RoomCodeLen
// alphanumeric characters.
func RoomCode(raw string) (string, bool) {
	s := strings.ToUpper(strings.ReplaceAll(raw, " ", ""))
	if len(s) != RoomCodeLen {
		return "", false
	}
	for _, r := range s {
		if !(r >= 'A' && r <= 'Z') && !(r >= '0' && r <= '9') {
			return "", false
		}
	}
	return s, true
}
