package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTimestampAcceptsBackendFormats(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw  string
		want time.Time
	}{
		{`"2024-05-01T10:15:30"`, time.Date(2024, 5, 1, 10, 15, 30, 0, time.UTC)},
		{`"2024-05-01T10:15:30.123456"`, time.Date(2024, 5, 1, 10, 15, 30, 123456000, time.UTC)},
		{`"2024-05-01T10:15:30Z"`, time.Date(2024, 5, 1, 10, 15, 30, 0, time.UTC)},
		{`null`, time.Time{}},
		{`""`, time.Time{}},
	}
	for _, tc := range cases {
		var ts Timestamp
		require.NoError(t, json.Unmarshal([]byte(tc.raw), &ts), tc.raw)
		require.True(t, tc.want.Equal(ts.Time), "%s: got %v", tc.raw, ts.Time)
	}

	var ts Timestamp
	require.Error(t, json.Unmarshal([]byte(`"yesterday"`), &ts))
}

func TestMessageDecodesWireShape(t *testing.T) {
	t.Parallel()

	raw := `{"id":6,"conversationId":42,"content":"hi","senderId":7,"createdAt":"2024-05-01T10:15:30"}`
	var msg Message
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))
	require.Equal(t, int64(6), msg.ID)
	require.Equal(t, int64(42), msg.ConversationID)
	require.Equal(t, int64(7), msg.SenderID)
	require.Equal(t, "hi", msg.Content)
	require.Equal(t, 2024, msg.CreatedAt.Year())
}

func TestConversationDecodesWireShape(t *testing.T) {
	t.Parallel()

	raw := `{"id":42,"otherUserId":9,"otherUsername":"shop","otherAvatar":"a.png","lastMessage":"ok","lastMessageAt":null}`
	var convo Conversation
	require.NoError(t, json.Unmarshal([]byte(raw), &convo))
	require.Equal(t, int64(42), convo.ID)
	require.Equal(t, int64(9), convo.CounterpartUserID)
	require.Equal(t, "shop", convo.CounterpartDisplayName)
	require.Equal(t, "a.png", convo.CounterpartAvatarRef)
	require.Equal(t, "ok", convo.LastMessagePreview)
	require.True(t, convo.LastMessageTimestamp.IsZero())
}
