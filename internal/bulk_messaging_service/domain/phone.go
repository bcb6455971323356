package domain

import (
	"strings"
	"unicode"
)

// DefaultCountryCode is prefixed to numbers that do not already carry it.
const DefaultCountryCode = "55"

// NormalizePhone reduces raw to digits only, drops leading zeros (trunk prefix)
// and prepends countryCode unless the number already starts with it.
// An empty string is returned when raw holds no digits.
func NormalizePhone(raw, countryCode string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	phone := strings.TrimLeft(b.String(), "0")
	if phone == "" {
		return ""
	}

	cc := strings.TrimLeft(strings.TrimSpace(countryCode), "+")
	if cc == "" {
		cc = DefaultCountryCode
	}
	if strings.HasPrefix(phone, cc) {
		return phone
	}
	return cc + phone
}
