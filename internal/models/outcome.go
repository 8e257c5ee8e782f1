package models

// Channel names an outbound messaging mechanism.
type Channel string

const (
	ChannelSMS  Channel = "sms"
	ChannelPush Channel = "push"
)

// OutcomeStatus is the result of one send attempt.
type OutcomeStatus string

const (
	OutcomeSent    OutcomeStatus = "sent"
	OutcomeFailed  OutcomeStatus = "failed"
	OutcomeSkipped OutcomeStatus = "skipped"
)

// DispatchOutcome is the per-recipient, per-channel result of one send attempt.
// ProviderMessageID is set iff Status is sent, ErrorDetail iff failed, and
// SkipReason iff skipped.
type DispatchOutcome struct {
	ContactID         uint          `json:"contactId"`
	ContactName       string        `json:"contactName,omitempty"`
	Channel           Channel       `json:"channel"`
	Status            OutcomeStatus `json:"status"`
	ProviderMessageID string        `json:"providerMessageId,omitempty"`
	ErrorDetail       string        `json:"errorDetail,omitempty"`
	SkipReason        string        `json:"skipReason,omitempty"`
}

// SentOutcome builds a successful outcome.
func SentOutcome(contactID uint, name string, ch Channel, providerID string) DispatchOutcome {
	return DispatchOutcome{ContactID: contactID, ContactName: name, Channel: ch, Status: OutcomeSent, ProviderMessageID: providerID}
}

// FailedOutcome builds a failed outcome.
func FailedOutcome(contactID uint, name string, ch Channel, detail string) DispatchOutcome {
	return DispatchOutcome{ContactID: contactID, ContactName: name, Channel: ch, Status: OutcomeFailed, ErrorDetail: detail}
}

// SkippedOutcome builds a skipped outcome.
func SkippedOutcome(contactID uint, name string, ch Channel, reason string) DispatchOutcome {
	return DispatchOutcome{ContactID: contactID, ContactName: name, Channel: ch, Status: OutcomeSkipped, SkipReason: reason}
}
