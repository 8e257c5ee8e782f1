// Package phone normalizes free-form phone number text into the
// international format the SMS provider expects.
package phone

import "strings"

// Normalize converts raw phone text to E.164 on a best-effort basis.
//
// Text already starting with "+" is returned unchanged. Otherwise all
// non-digits are stripped: eleven digits with a leading 1 gain a "+", ten
// digits gain "+1". Anything else is returned as given; the provider
// rejects it and the send is recorded as failed.
func Normalize(raw string) string {
	if strings.HasPrefix(strings.TrimSpace(raw), "+") {
		return raw
	}

	digits := Digits(raw)
	switch {
	case len(digits) == 11 && digits[0] == '1':
		return "+" + digits
	case len(digits) == 10:
		return "+1" + digits
	}
	return raw
}

// Digits returns only the ASCII digits of s.
func Digits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
