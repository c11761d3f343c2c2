package card

import "strings"

// CheckResult classifies the outcome of a Luhn check.
type CheckResult string

const (
	CheckOK             CheckResult = ""
	CheckInvalidFormat  CheckResult = "INVALID_FORMAT"
	CheckFailedChecksum CheckResult = "FAILED_CHECKSUM"
)

// Luhn validates a candidate card number. Whitespace is stripped first;
// an empty remainder is treated as valid-absent so that the required
// check stays a separate concern. Any non-digit fails with
// CheckInvalidFormat, a bad checksum with CheckFailedChecksum.
func Luhn(value string) CheckResult {
	stripped := strings.Join(strings.Fields(value), "")
	if stripped == "" {
		return CheckOK
	}

	for _, r := range stripped {
		if r < '0' || r > '9' {
			return CheckInvalidFormat
		}
	}

	sum := 0
	for i := 0; i < len(stripped); i++ {
		digit := int(stripped[len(stripped)-1-i] - '0')
		if i%2 == 1 {
			digit *= 2
			if digit > 9 {
				digit -= 9
			}
		}
		sum += digit
	}

	if sum%10 != 0 {
		return CheckFailedChecksum
	}
	return CheckOK
}
