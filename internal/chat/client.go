// Package chat is the real-time conversation client: it keeps the message
// list of the open conversation in sync with backfilled history and the live
// broker stream, and keeps the conversation list fresh.
package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"

	"github.com/primeshop/chat/internal/actor"
	"github.com/primeshop/chat/internal/api"
	"github.com/primeshop/chat/internal/websocket"
	"github.com/primeshop/chat/pkg/logger"
)

// stopTimeout bounds how long Close waits for the event loop to exit.
const stopTimeout = 5 * time.Second

// Options configure a Client.
type Options struct {
	// BrokerURL is the STOMP-over-WebSocket endpoint.
	BrokerURL string
	// APIURL is the REST base URL. Ignored when API is set.
	APIURL string
	// Token returns the bearer credential for the handshake and REST calls.
	Token func() (string, error)
	// LocalUserID is the local user's sender id.
	LocalUserID int64
	// ReconnectDelay is the flat delay between reconnect attempts.
	ReconnectDelay time.Duration

	// OnView, when set, receives a snapshot after every state transition. It
	// runs on the event loop and must not block or call back into Client.
	OnView func(View)

	// API overrides the REST client.
	API HistoryAPI

	// MailboxSize bounds the event loop's input queue. Zero keeps the
	// default.
	MailboxSize int
}

// Client is one logical chat session: a single broker connection shared by
// the subscription registry and the sender, plus the event loop owning the
// message store. Create it with NewClient, Start it once and Close it when
// done. Messages sent while disconnected are rejected, never queued.
type Client struct {
	transport *websocket.Client
	registry  *websocket.Registry
	actor     *actor.Actor[State]

	startOnce sync.Once
	started   atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// NewClient wires a client. Nothing connects until Start.
func NewClient(opts Options) *Client {
	transport := websocket.NewClient(websocket.Options{
		URL:            opts.BrokerURL,
		Token:          opts.Token,
		ReconnectDelay: opts.ReconnectDelay,
	})
	registry := websocket.NewRegistry(transport)

	history := opts.API
	if history == nil {
		history = api.NewClient(opts.APIURL, opts.Token)
	}
	runtime := NewRuntime(history, registry, NewSender(transport))

	var hooks actor.Hooks[State]
	if opts.OnView != nil {
		onView := opts.OnView
		hooks.OnTransition = func(_ State, next State, in actor.Input) {
			if _, ok := in.(cmdSnapshot); ok {
				return
			}
			onView(next.View())
		}
	}

	a := actor.New(
		State{LocalUserID: opts.LocalUserID},
		Reduce,
		runtime,
		actor.WithHooks(hooks),
		actor.WithMailboxSize[State](opts.MailboxSize),
	)
	runtime.Bind(a.Enqueue)

	return &Client{
		transport: transport,
		registry:  registry,
		actor:     a,
	}
}

// Start launches the event loop, connects to the broker and loads the
// conversation list. It is idempotent.
func (c *Client) Start() error {
	var err error
	c.startOnce.Do(func() {
		c.started.Store(true)
		c.actor.Start()
		if err = c.enqueue(cmdRefreshConversations{}); err != nil {
			return
		}
		err = c.transport.Connect(websocket.Handlers{
			OnConnected: func() {
				_ = c.actor.Enqueue(evConnected{})
			},
			OnDisconnected: func(cause error) {
				c.registry.Detach()
				reason := ""
				if cause != nil {
					reason = cause.Error()
				}
				_ = c.actor.Enqueue(evDisconnected{Reason: reason})
			},
			OnMessage: c.registry.Dispatch,
		})
		if errors.Is(err, websocket.ErrClosed) {
			err = ErrClosed
		}
	})
	return err
}

// OpenConversation makes conversationID the active conversation: the store
// is reset, page 0 is fetched and the topic is subscribed. Any previous
// conversation is unsubscribed first.
func (c *Client) OpenConversation(conversationID int64) error {
	return c.enqueue(cmdOpenConversation{ConversationID: conversationID})
}

// CloseConversation unsubscribes the active conversation and clears the store.
func (c *Client) CloseConversation() error {
	return c.enqueue(cmdCloseConversation{})
}

// LoadMore is the boundary signal for backward pagination. It is ignored
// while a page is loading or when no older page exists.
func (c *Client) LoadMore() error {
	return c.enqueue(cmdLoadMore{})
}

// RefreshConversations refetches the conversation list.
func (c *Client) RefreshConversations() error {
	return c.enqueue(cmdRefreshConversations{})
}

// Send publishes content to conversationID. A nil error means the command
// was handed to the broker and the caller may clear its input; delivery is
// confirmed only when the message arrives on the conversation topic. On
// error the caller keeps its input.
func (c *Client) Send(ctx context.Context, conversationID int64, content string) error {
	reply := make(chan error, 1)
	if err := c.enqueue(cmdSend{ConversationID: conversationID, Content: content, Reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.actor.Done():
		return ErrClosed
	}
}

// Snapshot returns the current View.
func (c *Client) Snapshot(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if err := c.enqueue(cmdSnapshot{Reply: reply}); err != nil {
		return View{}, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return View{}, ctx.Err()
	case <-c.actor.Done():
		return View{}, ErrClosed
	}
}

// Connected reports whether the broker connection is established.
func (c *Client) Connected() bool {
	return c.transport.IsConnected()
}

// Close disconnects from the broker and stops the event loop. It is safe to
// call multiple times.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		err := c.transport.Disconnect()
		c.actor.Stop()
		if !c.started.Load() {
			c.closeErr = err
			return
		}

		timer := time.NewTimer(stopTimeout)
		defer timer.Stop()
		select {
		case <-c.actor.Done():
		case <-timer.C:
			err = multierr.Append(err, fmt.Errorf("event loop did not stop within %s", stopTimeout))
		}
		c.closeErr = err
		logger.Debugf("chat: client closed")
	})
	return c.closeErr
}

func (c *Client) enqueue(in actor.Input) error {
	if err := c.actor.Enqueue(in); err != nil {
		if errors.Is(err, actor.ErrStopped) {
			return ErrClosed
		}
		return err
	}
	return nil
}
