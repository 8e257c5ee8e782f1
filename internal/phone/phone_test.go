package phone

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "formatted ten digit", raw: "(555) 123-4567", want: "+15551234567"},
		{name: "eleven digit with country code", raw: "15551234567", want: "+15551234567"},
		{name: "already international", raw: "+15551234567", want: "+15551234567"},
		{name: "international with spaces kept verbatim", raw: "+44 20 7946 0958", want: "+44 20 7946 0958"},
		{name: "plain ten digit", raw: "5551234567", want: "+15551234567"},
		{name: "dotted", raw: "555.123.4567", want: "+15551234567"},
		{name: "eleven digit not starting with one", raw: "25551234567", want: "25551234567"},
		{name: "too short", raw: "12345", want: "12345"},
		{name: "empty", raw: "", want: ""},
		{name: "letters only", raw: "call me", want: "call me"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.raw))
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	for _, raw := range []string{"(555) 123-4567", "15551234567", "+15551234567", "12345"} {
		once := Normalize(raw)
		assert.Equal(t, once, Normalize(once), "raw=%q", raw)
	}
}

func TestDigits(t *testing.T) {
	assert.Equal(t, "5551234567", Digits("(555) 123-4567"))
	assert.Equal(t, "", Digits("abc"))
	assert.Equal(t, "44", Digits("+4-4"))
}
