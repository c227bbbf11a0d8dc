package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode/utf8"
)

// ContentHash returns a stable hex digest over parts. Parts are length
// prefixed so ("ab", "c") and ("a", "bc") hash differently.
func ContentHash(parts ...string) string {
	h := sha256.New()
	var buf [8]byte
	for _, p := range parts {
		n := len(p)
		for i := range buf {
			buf[i] = byte(n >> (8 * i))
		}
		h.Write(buf[:])
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// TruncateRunes cuts s to at most max runes without splitting a UTF-8 sequence.
func TruncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	var b strings.Builder
	n := 0
	for _, r := range s {
		if n == max {
			break
		}
		b.WriteRune(r)
		n++
	}
	return b.String()
}
