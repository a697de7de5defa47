package tables

import (
	"strings"
	"unicode"
)

// NormalizeCreditCode uppercases an identifier and drops any whitespace
// inside it. Used for credit codes, tax numbers and ID card numbers, which
// spreadsheets often store with stray spaces or a lowercase check letter.
func NormalizeCreditCode(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToUpper(r)
	}, s)
}

// NormalizePhone strips separators from a phone number and the ".0" suffix
// left when a spreadsheet stored it as a number.
func NormalizePhone(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, ".0")
	return strings.Map(func(r rune) rune {
		switch {
		case unicode.IsSpace(r), r == '-', r == '－':
			return -1
		}
		return r
	}, s)
}

// NormalizeAccountNumber drops whitespace inside bank account numbers.
func NormalizeAccountNumber(s string) string {
	return strings.Join(strings.Fields(s), "")
}

// NormalizeName collapses runs of whitespace (including full-width spaces)
// to one space.
func NormalizeName(s string) string {
	return strings.Join(strings.Fields(strings.ReplaceAll(s, "　", " ")), " ")
}

// NonNegative rejects negative numbers.
func NonNegative(v any) string {
	if f, ok := v.(float64); ok && f < 0 {
		return "must not be negative"
	}
	return ""
}
