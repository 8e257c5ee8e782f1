package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/zulandar/lifeline/internal/models"
)

func sampleEvent(status models.EventStatus) *models.SOSEvent {
	return &models.SOSEvent{
		ID:            "3f2c9a1e-0000-4000-8000-000000000001",
		UserID:        "u1",
		Latitude:      37.774929,
		Longitude:     -122.419416,
		Status:        status,
		TotalContacts: 4,
		Successful:    2,
		Failed:        1,
		Skipped:       1,
	}
}

func TestSeverityColor(t *testing.T) {
	assert.Equal(t, ColorSuccess, severityColor("success"))
	assert.Equal(t, ColorWarning, severityColor("warning"))
	assert.Equal(t, ColorError, severityColor("error"))
	assert.Equal(t, ColorInfo, severityColor("info"))
	assert.Equal(t, ColorInfo, severityColor("unknown"))
}

func TestTriggered(t *testing.T) {
	n := Triggered(sampleEvent(models.StatusPartiallySent), "Ada")

	assert.Equal(t, KindTriggered, n.Kind)
	assert.Equal(t, "SOS from Ada", n.Title)
	assert.Equal(t, "partially_sent", n.Status)
	assert.Equal(t, "error", n.Severity)
	assert.Equal(t, ColorError, n.Color)
	assert.Contains(t, n.Body, "partially delivered")

	values := map[string]string{}
	for _, f := range n.Fields {
		values[f.Name] = f.Value
	}
	assert.Equal(t, "2 sent, 1 failed, 1 skipped of 4", values["Contacts"])
	assert.Equal(t, "https://www.google.com/maps?q=37.774929,-122.419416", values["Map"])
	assert.Equal(t, "3f2c9a1e-0000-4000-8000-000000000001", values["Event"])
}

func TestTriggered_FallsBackToUserID(t *testing.T) {
	n := Triggered(sampleEvent(models.StatusSent), " ")
	assert.Equal(t, "SOS from u1", n.Title)
	assert.Equal(t, "warning", n.Severity)
}

func TestTriggered_IncludesFailureDetail(t *testing.T) {
	ev := sampleEvent(models.StatusFailed)
	ev.FailureDetail = "dispatch: no sms client"
	n := Triggered(ev, "Ada")
	assert.Contains(t, n.Body, "dispatch: no sms client")
}

func TestResolvedAndSwept(t *testing.T) {
	r := Resolved(sampleEvent(models.StatusResolved))
	assert.Equal(t, KindResolved, r.Kind)
	assert.Equal(t, "SOS 3f2c9a1e resolved", r.Title)
	assert.Equal(t, ColorSuccess, r.Color)

	ev := sampleEvent(models.StatusFailed)
	ev.FailureDetail = "dispatch interrupted before completion"
	s := Swept(ev)
	assert.Equal(t, KindSwept, s.Kind)
	assert.Equal(t, "dispatch interrupted before completion", s.Body)
	assert.Equal(t, "error", s.Severity)
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "abc", shortID("abc"))
	assert.Equal(t, "12345678", shortID("123456789"))
}
