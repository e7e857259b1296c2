package amqp

import (
	"encoding/json"
	"time"

	"subtrack/internal/notify"
)

// ReminderMessage is published once per fired renewal reminder.
type ReminderMessage struct {
	NotificationID string    `json:"notification_id"`
	SubscriptionID string    `json:"subscription_id,omitempty"`
	Title          string    `json:"title"`
	Body           string    `json:"body"`
	ChannelID      string    `json:"channel_id,omitempty"`
	Trigger        time.Time `json:"trigger"`
	FiredAt        time.Time `json:"fired_at"`
}

// NewReminderMessage captures a fired notification.
func NewReminderMessage(n notify.Notification) *ReminderMessage {
	return &ReminderMessage{
		NotificationID: n.Identifier,
		SubscriptionID: n.SubscriptionID(),
		Title:          n.Content.Title,
		Body:           n.Content.Body,
		ChannelID:      n.Content.ChannelID,
		Trigger:        n.Trigger,
		FiredAt:        time.Now(),
	}
}

func (m *ReminderMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ReminderMessageFromJSON(data []byte) (*ReminderMessage, error) {
	var msg ReminderMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Notification rebuilds the fired notification the message was published for.
func (m *ReminderMessage) Notification() notify.Notification {
	n := notify.Notification{
		Identifier: m.NotificationID,
		Content: notify.Content{
			Title:     m.Title,
			Body:      m.Body,
			ChannelID: m.ChannelID,
		},
		Trigger: m.Trigger,
	}
	if m.SubscriptionID != "" {
		n.Content.Data = map[string]string{notify.DataSubscriptionID: m.SubscriptionID}
	}
	return n
}
