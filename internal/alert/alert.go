// Package alert builds the text of the emergency message sent to contacts.
package alert

import (
	"fmt"
	"strings"
	"time"
)

const (
	// Marker opens every alert so it stands out in a message list.
	Marker = "🚨 EMERGENCY SOS"
	// ShortLimit bounds the push body, in runes, before the ellipsis.
	ShortLimit = 100

	timeLayout  = "Jan 2, 2006 at 3:04 PM MST"
	mapsBaseURL = "https://www.google.com/maps?q="
)

// Details is everything the formatter needs about one trigger.
type Details struct {
	Name      string
	Latitude  float64
	Longitude float64
	At        time.Time
	Callback  string // optional number the sender can be reached on
}

// Format renders the full alert text sent over SMS.
func Format(d Details) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s needs help!\n", Marker, displayName(d.Name))
	fmt.Fprintf(&b, "Time: %s\n", FormatTime(d.At))
	fmt.Fprintf(&b, "Location: %s\n", FormatCoordinates(d.Latitude, d.Longitude))
	fmt.Fprintf(&b, "Map: %s", MapsLink(d.Latitude, d.Longitude))
	if cb := strings.TrimSpace(d.Callback); cb != "" {
		fmt.Fprintf(&b, "\nCall them: %s", cb)
	}
	return b.String()
}

// Title is the push notification title.
func Title(d Details) string {
	return fmt.Sprintf("SOS from %s", displayName(d.Name))
}

// Short renders the bounded push body.
func Short(d Details) string {
	text := fmt.Sprintf("%s needs help at %s. Open the map: %s",
		displayName(d.Name), FormatCoordinates(d.Latitude, d.Longitude), MapsLink(d.Latitude, d.Longitude))
	return Truncate(text, ShortLimit)
}

// MapsLink returns a map URL centred on the coordinates.
func MapsLink(lat, lng float64) string {
	return mapsBaseURL + fmt.Sprintf("%.6f,%.6f", lat, lng)
}

// FormatCoordinates renders a coordinate pair to six decimal places.
func FormatCoordinates(lat, lng float64) string {
	return fmt.Sprintf("%.6f, %.6f", lat, lng)
}

// FormatTime renders t in UTC.
func FormatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// Truncate cuts text to max runes, adding "..." if it was cut.
func Truncate(text string, max int) string {
	r := []rune(text)
	if len(r) <= max {
		return text
	}
	return string(r[:max]) + "..."
}

func displayName(name string) string {
	if n := strings.TrimSpace(name); n != "" {
		return n
	}
	return "Someone"
}
