// Package phone provides phone number utilities.
// This is part of the platform layer and contains no business logic.
package phone

import (
	"fmt"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

const defaultRegion = "SG"

// NormalizeKey reduces a phone string to the canonical matching key used for
// lead/borrower lookups: country code 65 followed by the 8 local digits.
// Accepted inputs are a bare 8-digit Singapore number or one prefixed with
// 65 / +65; all non-digit characters are stripped first. The same function is
// applied to stored and incoming values, so matching is exact on the key.
func NormalizeKey(input string) (string, error) {
	digits := digitsOnly(input)

	switch {
	case len(digits) == 8:
		return "65" + digits, nil
	case len(digits) == 10 && strings.HasPrefix(digits, "65"):
		return digits, nil
	default:
		return "", fmt.Errorf("not a usable Singapore number: %q", input)
	}
}

// NormalizeE164 formats a phone number to E.164. If parsing fails, it returns
// the trimmed input. Used for outbound payloads, not for matching.
func NormalizeE164(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return trimmed
	}

	number, err := phonenumbers.Parse(trimmed, defaultRegion)
	if err != nil {
		return trimmed
	}

	if !phonenumbers.IsValidNumber(number) {
		return trimmed
	}

	return phonenumbers.Format(number, phonenumbers.E164)
}

func digitsOnly(input string) string {
	var b strings.Builder
	for _, r := range input {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
