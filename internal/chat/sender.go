package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/primeshop/chat/internal/websocket"
	"github.com/primeshop/chat/pkg/logger"
	"github.com/primeshop/chat/pkg/types"
)

// SendDestination is the application destination accepting send commands.
const SendDestination = "/app/chat.sendMessage"

// Publisher is the transport surface used by Sender.
type Publisher interface {
	IsConnected() bool
	Publish(destination string, body []byte) error
}

// Sender publishes send-message commands. Delivery is best effort: there is
// no acknowledgement, retry or local echo. A message counts as sent only once
// it comes back on the conversation topic.
type Sender struct {
	pub Publisher
}

// NewSender returns a Sender publishing through pub.
func NewSender(pub Publisher) *Sender {
	return &Sender{pub: pub}
}

// validateSend checks the preconditions shared by the reducer and Sender.
func validateSend(conversationID int64, content string, connected bool) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyContent
	}
	if conversationID == 0 {
		return ErrNoConversation
	}
	if !connected {
		return ErrNotConnected
	}
	return nil
}

// Send validates and publishes one command. Content is sent as typed; only
// the emptiness check trims it.
func (s *Sender) Send(conversationID int64, content string) error {
	if err := validateSend(conversationID, content, s.pub.IsConnected()); err != nil {
		logger.Warnf("Send rejected for conversation %d: %v", conversationID, err)
		return err
	}

	body, err := json.Marshal(types.SendCommand{ConversationID: conversationID, Content: content})
	if err != nil {
		return fmt.Errorf("encode send command: %w", err)
	}
	if err := s.pub.Publish(SendDestination, body); err != nil {
		logger.Warnf("Send to conversation %d failed: %v", conversationID, err)
		if errors.Is(err, websocket.ErrNotConnected) {
			return ErrNotConnected
		}
		return err
	}
	logger.Debugf("Published message to conversation %d (%d bytes)", conversationID, len(content))
	return nil
}
