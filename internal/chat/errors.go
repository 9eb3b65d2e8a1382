package chat

import (
	"errors"
	"fmt"

	"github.com/primeshop/chat/internal/websocket"
)

var (
	// ErrEmptyContent rejects a send whose content is blank after trimming.
	ErrEmptyContent = errors.New("message content is empty")
	// ErrNoConversation rejects a send without a target conversation.
	ErrNoConversation = errors.New("no conversation selected")
	// ErrNotConnected rejects a send while the broker connection is down.
	// Nothing is queued; the caller keeps its input.
	ErrNotConnected = fmt.Errorf("chat: %w", websocket.ErrNotConnected)
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("chat client closed")
)
