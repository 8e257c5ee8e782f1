package relay

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/zulandar/lifeline/internal/alert"
	"github.com/zulandar/lifeline/internal/models"
)

// Color constants for notice severity.
const (
	ColorSuccess = "#36a64f"
	ColorInfo    = "#2196f3"
	ColorWarning = "#ff9800"
	ColorError   = "#e53935"
)

// severityColor maps a severity string to a sidebar color.
func severityColor(severity string) string {
	switch severity {
	case "success":
		return ColorSuccess
	case "info":
		return ColorInfo
	case "warning":
		return ColorWarning
	case "error":
		return ColorError
	default:
		return ColorInfo
	}
}

// statusSeverity maps an event status to a notice severity.
func statusSeverity(status models.EventStatus) string {
	switch status {
	case models.StatusSent:
		return "warning"
	case models.StatusPartiallySent, models.StatusFailed, models.StatusActive:
		return "error"
	case models.StatusResolved:
		return "success"
	default:
		return "info"
	}
}

// statusVerb describes how far the alert got.
func statusVerb(status models.EventStatus) string {
	switch status {
	case models.StatusSent:
		return "alert delivered to every reachable contact"
	case models.StatusPartiallySent:
		return "alert partially delivered"
	case models.StatusFailed:
		return "alert delivery failed"
	case models.StatusResolved:
		return "resolved"
	default:
		return string(status)
	}
}

// Triggered formats a completed trigger.
func Triggered(ev *models.SOSEvent, userName string) Notice {
	title := fmt.Sprintf("SOS from %s", displayName(userName, ev.UserID))

	body := []string{statusVerb(ev.Status)}
	if ev.FailureDetail != "" {
		body = append(body, ev.FailureDetail)
	}

	fields := []Field{
		{Name: "Status", Value: string(ev.Status), Short: true},
		{Name: "Contacts", Value: tally(ev), Short: true},
		{Name: "Location", Value: alert.FormatCoordinates(ev.Latitude, ev.Longitude), Short: true},
		{Name: "Map", Value: alert.MapsLink(ev.Latitude, ev.Longitude)},
		{Name: "Event", Value: ev.ID, Short: true},
	}
	return build(KindTriggered, ev, title, strings.Join(body, "\n"), statusSeverity(ev.Status), fields)
}

// Resolved formats a resolution.
func Resolved(ev *models.SOSEvent) Notice {
	title := fmt.Sprintf("SOS %s resolved", shortID(ev.ID))
	fields := []Field{
		{Name: "User", Value: ev.UserID, Short: true},
		{Name: "Event", Value: ev.ID, Short: true},
	}
	return build(KindResolved, ev, title, "The user marked the emergency resolved.", "success", fields)
}

// Swept formats an event the stale sweep gave up on.
func Swept(ev *models.SOSEvent) Notice {
	title := fmt.Sprintf("SOS %s marked failed", shortID(ev.ID))
	fields := []Field{
		{Name: "User", Value: ev.UserID, Short: true},
		{Name: "Event", Value: ev.ID, Short: true},
		{Name: "Map", Value: alert.MapsLink(ev.Latitude, ev.Longitude)},
	}
	return build(KindSwept, ev, title, ev.FailureDetail, "error", fields)
}

func build(kind string, ev *models.SOSEvent, title, body, severity string, fields []Field) Notice {
	return Notice{
		Kind:     kind,
		EventID:  ev.ID,
		UserID:   ev.UserID,
		Status:   string(ev.Status),
		Title:    title,
		Body:     body,
		Severity: severity,
		Color:    severityColor(severity),
		Fields:   fields,
	}
}

func tally(ev *models.SOSEvent) string {
	return strconv.Itoa(ev.Successful) + " sent, " +
		strconv.Itoa(ev.Failed) + " failed, " +
		strconv.Itoa(ev.Skipped) + " skipped of " +
		strconv.Itoa(ev.TotalContacts)
}

func displayName(name, fallback string) string {
	if strings.TrimSpace(name) != "" {
		return name
	}
	return fallback
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
