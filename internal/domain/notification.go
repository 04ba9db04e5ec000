package domain

import "time"

// SendStatus is the terminal state of a single dispatch attempt.
type SendStatus string

const (
	SendStatusSent   SendStatus = "sent"
	SendStatusFailed SendStatus = "failed"
)

// SendRecord is the audit row written for every dispatch attempt, success or
// failure. At most one record exists per (item, subscriber, channel) per run.
type SendRecord struct {
	ItemID          string
	SubscriberID    string
	Channel         ChannelKind
	Status          SendStatus
	Message         string
	MatchedKeywords []string
	SentAt          time.Time
}

// Button is an inline action offered alongside a notification. Token encodes
// action, item and attachment so inbound callbacks can be correlated back.
type Button struct {
	Label string
	Token string
}

// Message is the channel-independent notification payload. Each channel
// adapter maps it onto its own wire format.
type Message struct {
	Recipient string
	Text      string
	Buttons   []Button
}

// SendOutcome is what a channel adapter reports back: a success flag plus a
// human-readable message from the third-party API.
type SendOutcome struct {
	Success bool
	Message string
}
