package card

import (
	"regexp"
	"strings"
)

// Form carries the raw values of the payment form. Number and Expiry may
// arrive formatted for display; validation strips them back to digits.
type Form struct {
	Number     string `json:"number"`
	Expiry     string `json:"expiry"`
	CVC        string `json:"cvc"`
	HolderName string `json:"holderName"`
}

const (
	FieldNumber     = "number"
	FieldExpiry     = "expiry"
	FieldCVC        = "cvc"
	FieldHolderName = "holderName"
)

const (
	minPanDigits       = 16
	maxPanDigits       = 19
	minHolderNameChars = 3
	minSearchLength    = 5
)

// month 01-12 followed by a two-digit year starting 2-9
var expiryPattern = regexp.MustCompile(`^(0[1-9]|1[0-2])([2-9][0-9])$`)

var cvcPattern = regexp.MustCompile(`^[0-9]{3,4}$`)

// FieldErrors maps form field names to human-readable messages. An empty
// map means the form passed local validation.
type FieldErrors map[string]string

// ValidateForm runs all local checks. Nothing here has side effects; the
// checkout machine refuses to submit while the map is non-empty.
func ValidateForm(form Form) FieldErrors {
	errs := FieldErrors{}

	number := digitsOnly(form.Number)
	switch {
	case number == "":
		errs[FieldNumber] = "Card number is required"
	case len(number) < minPanDigits || len(number) > maxPanDigits:
		errs[FieldNumber] = "Card number must be 16 to 19 digits"
	default:
		switch Luhn(number) {
		case CheckInvalidFormat:
			errs[FieldNumber] = "Card number may contain only digits"
		case CheckFailedChecksum:
			errs[FieldNumber] = "Card number is invalid"
		}
	}

	expiry := digitsOnly(form.Expiry)
	if expiry == "" {
		errs[FieldExpiry] = "Expiry date is required"
	} else if !expiryPattern.MatchString(expiry) {
		errs[FieldExpiry] = "Expiry date must be a valid MM / YY"
	}

	if form.CVC == "" {
		errs[FieldCVC] = "CVC is required"
	} else if !cvcPattern.MatchString(form.CVC) {
		errs[FieldCVC] = "CVC must be 3 or 4 digits"
	}

	if len(strings.TrimSpace(form.HolderName)) < minHolderNameChars {
		errs[FieldHolderName] = "Cardholder name must be at least 3 characters"
	}

	return errs
}

// ValidateSearch checks a payment-link search input: required, minimum
// length 5 after trimming.
func ValidateSearch(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "Payment link ID is required"
	}
	if len(trimmed) < minSearchLength {
		return "Payment link ID must be at least 5 characters"
	}
	return ""
}
