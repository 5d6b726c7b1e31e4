package shared

import (
	"strconv"
	"strings"
	"unicode"
)

// NormalizeText lowercases s, strips punctuation, and collapses runs of
// whitespace to a single space. Used for fingerprinting and track matching so
// that cosmetic differences ("Amazing  Song!" vs "amazing song") compare equal.
func NormalizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	lastSpace := true
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}

	return strings.TrimSpace(b.String())
}

// NormalizeCountry trims and uppercases an ISO 3166-1 alpha-2 country code.
func NormalizeCountry(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// NormalizeTrackKey builds a matching key from a track title and position.
func NormalizeTrackKey(title string, position int) string {
	return NormalizeText(title) + "|" + strconv.Itoa(position)
}
