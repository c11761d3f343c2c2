package card

import "strings"

// Display formatters for raw card input. Both are idempotent and purely
// cosmetic: validation always runs on digit-stripped values, never on
// formatted ones.

const maxPanDisplayDigits = 16

func digitsOnly(value string) string {
	var b strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// FormatCardNumber strips non-digits, truncates to 16 digits and groups
// them by four: "4532015112830366abc" -> "4532 0151 1283 0366".
func FormatCardNumber(value string) string {
	digits := digitsOnly(value)
	if len(digits) > maxPanDisplayDigits {
		digits = digits[:maxPanDisplayDigits]
	}

	var groups []string
	for i := 0; i < len(digits); i += 4 {
		end := i + 4
		if end > len(digits) {
			end = len(digits)
		}
		groups = append(groups, digits[i:end])
	}
	return strings.Join(groups, " ")
}

// FormatExpiry strips non-digits, truncates to 4 digits and inserts a
// separator after the month once a third digit appears:
// "1225" -> "12 / 25", "1" -> "1".
func FormatExpiry(value string) string {
	digits := digitsOnly(value)
	if len(digits) > 4 {
		digits = digits[:4]
	}
	if len(digits) <= 2 {
		return digits
	}
	return digits[:2] + " / " + digits[2:]
}
