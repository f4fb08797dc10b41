// Package email derives presentable profile fields from an address when
// registration omits them.
package email

import (
	"strings"
	"unicode"
)

const fallback = "User"

// DeriveNameFromEmail splits the local part of an address on common
// separators and returns (first, last) name guesses. "ada.lovelace@x.test"
// yields ("Ada", "Lovelace"); an unsplittable local part falls back to "User".
func DeriveNameFromEmail(address string) (string, string) {
	local := address
	if at := strings.IndexByte(address, '@'); at > 0 {
		local = address[:at]
	}

	words := strings.FieldsFunc(local, isSeparator)
	switch len(words) {
	case 0:
		return fallback, fallback
	case 1:
		return title(words[0]), fallback
	default:
		return title(words[0]), title(words[len(words)-1])
	}
}

func isSeparator(r rune) bool {
	return r == '.' || r == '_' || r == '-' || r == '+'
}

func title(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
