// internal/models/notification.go
package models

const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"

	NotificationSent     = "sent"
	NotificationFailed   = "failed"
	NotificationDisabled = "disabled"
)

// Notification records the outcome of one decision notice on one channel.
type Notification struct {
	ID            string `json:"id"`
	ApplicationID string `json:"applicationId"`
	Recipient     string `json:"recipient"`
	Channel       string `json:"channel"`
	Status        string `json:"status"`
	ProviderID    string `json:"providerId,omitempty"`
	SentAt        string `json:"sentAt"`
}
