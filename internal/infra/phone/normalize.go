// Package phone canonicalises phone numbers so accounts, leads and funnel
// registrations captured in different formats can be matched.
package phone

import (
	"strings"
	"unicode"

	"github.com/nyaruka/phonenumbers"
)

// DefaultRegion is used when a number carries no country prefix.
const DefaultRegion = "KR"

// Normalizer formats numbers to E.164 for a default region.
type Normalizer struct {
	region string
}

// NewNormalizer returns a Normalizer for region, or DefaultRegion when empty.
func NewNormalizer(region string) *Normalizer {
	region = strings.ToUpper(strings.TrimSpace(region))
	if region == "" {
		region = DefaultRegion
	}
	return &Normalizer{region: region}
}

// Normalize formats input to E.164. Numbers that do not parse as valid
// fall back to their digits so "010-1" and "0101" still compare equal.
func (n *Normalizer) Normalize(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return ""
	}

	number, err := phonenumbers.Parse(trimmed, n.region)
	if err == nil && phonenumbers.IsValidNumber(number) {
		return phonenumbers.Format(number, phonenumbers.E164)
	}

	return Digits(trimmed)
}

// Digits strips everything but decimal digits.
func Digits(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}
