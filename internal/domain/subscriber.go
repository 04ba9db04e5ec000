package domain

// ChannelKind enumerates the supported notification delivery mechanisms.
type ChannelKind string

const (
	ChannelTelegram ChannelKind = "telegram"
	ChannelEmail    ChannelKind = "email"
)

// Valid reports whether the kind belongs to the closed channel set.
func (k ChannelKind) Valid() bool {
	return k == ChannelTelegram || k == ChannelEmail
}

// Subscriber exposes the capabilities the matcher and dispatcher need.
// Implementations differ per channel kind; everything downstream of the
// admin screens treats subscribers as read-only.
type Subscriber interface {
	// ID is the stable subscriber identity used in send records.
	ID() string
	// RecipientID is the channel-specific delivery address
	// (Telegram chat id, email address).
	RecipientID() string
	// Channel names the delivery mechanism for this subscriber.
	Channel() ChannelKind
	// Keywords returns the normalized keyword set; empty for notify-all
	// subscribers.
	Keywords() []string
	// NotifyAll reports whether the subscriber receives every item without
	// keyword evaluation.
	NotifyAll() bool
	// CompanyProfile is optional free text used only for compatibility
	// scoring requests.
	CompanyProfile() string
}
