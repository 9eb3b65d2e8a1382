package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Message is a single chat message as delivered by the history endpoint and
// by conversation topics.
type Message struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversationId"`
	Content        string    `json:"content"`
	SenderID       int64     `json:"senderId"`
	CreatedAt      Timestamp `json:"createdAt"`
}

// Conversation is the summary row returned by the conversation list endpoint.
type Conversation struct {
	ID                     int64     `json:"id"`
	CounterpartUserID      int64     `json:"otherUserId"`
	CounterpartDisplayName string    `json:"otherUsername"`
	CounterpartAvatarRef   string    `json:"otherAvatar"`
	LastMessagePreview     string    `json:"lastMessage"`
	LastMessageTimestamp   Timestamp `json:"lastMessageAt"`
}

// MessagePage is one page of history. Content is ordered newest-first.
type MessagePage struct {
	Content []Message `json:"content"`
}

// SendCommand is the body published to the application send destination.
type SendCommand struct {
	ConversationID int64  `json:"conversationId"`
	Content        string `json:"content"`
}

// timestampLayouts are tried in order when decoding. The backend serializes
// zone-less local date-times, older builds emitted RFC 3339.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Timestamp is a time.Time that tolerates the backend's date-time formats and
// null.
type Timestamp struct {
	time.Time
}

// NewTimestamp wraps t.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t}
}

// MarshalJSON encodes the timestamp as RFC 3339, or null when zero.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Format(time.RFC3339Nano))
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}

	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	if raw == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("timestamp: unsupported format %q", raw)
}
