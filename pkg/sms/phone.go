package sms

import "strings"

// FormatE164 normalises a raw phone number into E.164 form.
// Numbers without a country code are assumed to be Indian (+91).
func FormatE164(raw string) string {
	if raw == "" {
		return ""
	}

	digits := digitsOnly(raw)
	digits = strings.TrimPrefix(digits, "0")

	switch {
	case len(digits) == 10:
		return "+91" + digits
	case len(digits) == 12 && strings.HasPrefix(digits, "91"):
		return "+" + digits
	case strings.HasPrefix(raw, "+"):
		return "+" + digits
	default:
		return "+" + digits
	}
}

// NormalizeForMatching reduces a phone number to its last ten digits so
// numbers stored with or without a country code compare equal.
func NormalizeForMatching(raw string) string {
	digits := digitsOnly(raw)
	if len(digits) >= 10 {
		return digits[len(digits)-10:]
	}
	return digits
}

func digitsOnly(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
