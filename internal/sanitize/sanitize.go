// Package sanitize prepares untrusted message text for the persona pipeline.
//
// Normalize strips control characters and collapses whitespace so the
// analysis stages see uniform text. Identifier maps free-form session and
// user ids onto the ^[a-z0-9_]{1,64}$ alphabet shared by store keys and
// event subjects. Scrubber masks secrets before anything is analyzed or
// persisted.
package sanitize

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MaxIdentifierLength is the maximum length for sanitized identifiers.
	// Identifiers appear in store record keys and event subject tokens,
	// both of which are kept to 64 characters.
	MaxIdentifierLength = 64

	// HashSuffixLength is the length of the hash suffix added to truncated
	// identifiers. Format: _<8-char-hash> = 9 characters total.
	HashSuffixLength = 9

	// DefaultIdentifier is used when sanitization produces an empty result.
	DefaultIdentifier = "default"

	// DefaultMaxMessageBytes caps normalized message length when the
	// caller does not supply a limit.
	DefaultMaxMessageBytes = 64 * 1024
)

// Normalize cleans raw message text for analysis: control characters are
// dropped, whitespace runs collapse to single spaces, and the result is
// trimmed and capped at maxBytes (DefaultMaxMessageBytes when maxBytes
// <= 0). Truncation never splits a UTF-8 sequence.
func Normalize(text string, maxBytes int) string {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxMessageBytes
	}

	var b strings.Builder
	b.Grow(len(text))
	pendingSpace := false
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			// Leading whitespace never becomes a separator.
			pendingSpace = b.Len() > 0
		case unicode.IsControl(r) || r == utf8.RuneError:
			// Dropped without acting as a separator.
		default:
			if pendingSpace {
				b.WriteByte(' ')
				pendingSpace = false
			}
			b.WriteRune(r)
		}
	}

	out := b.String()
	if len(out) <= maxBytes {
		return out
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(out[cut]) {
		cut--
	}
	return strings.TrimRight(out[:cut], " ")
}

// Identifier sanitizes a free-form session or user id for use in store
// keys and event subjects.
//
// Rules applied:
//   - Converts to lowercase
//   - Replaces runs of invalid characters with a single underscore
//   - Trims leading/trailing underscores
//   - Truncates to MaxIdentifierLength with hash suffix if too long
//   - Returns DefaultIdentifier if result would be empty
//
// Examples:
//
//	"github.com/user" -> "github_com_user"
//	"My Session!"     -> "my_session"
//	"" or "!!!"       -> "default"
func Identifier(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	pendingSep := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}

	id := b.String()
	if id == "" {
		return DefaultIdentifier
	}
	if len(id) > MaxIdentifierLength {
		id = truncateWithHash(id)
	}
	return id
}

// truncateWithHash truncates a string to fit within MaxIdentifierLength,
// appending a hash suffix to preserve uniqueness.
//
// Format: <truncated>_<8-char-hash>
// Example: "very_long_identifier..." -> "very_long_iden_a1b2c3d4"
func truncateWithHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	suffix := "_" + hex.EncodeToString(sum[:])[:HashSuffixLength-1]

	truncated := s[:MaxIdentifierLength-HashSuffixLength]
	truncated = strings.TrimRight(truncated, "_")

	return truncated + suffix
}
