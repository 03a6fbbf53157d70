package campaign

import "strings"

// NormalizePhone coerces raw to E.164. Bare 10-digit numbers (optionally with
// a trunk 0) get countryCode prepended.
func NormalizePhone(raw, countryCode string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	plus := strings.HasPrefix(raw, "+")
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if !plus && strings.HasPrefix(digits, "00") {
		plus, digits = true, digits[2:]
	}
	cc := strings.TrimPrefix(strings.TrimSpace(countryCode), "+")

	switch {
	case plus:
	case len(digits) == 10:
		digits = cc + digits
	case len(digits) == 11 && digits[0] == '0':
		digits = cc + digits[1:]
	case cc != "" && len(digits) == len(cc)+10 && strings.HasPrefix(digits, cc):
	default:
		return "", false
	}
	if len(digits) < 8 || len(digits) > 15 || digits[0] == '0' {
		return "", false
	}
	return "+" + digits, true
}
