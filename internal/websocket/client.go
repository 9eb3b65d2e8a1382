package websocket

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/primeshop/chat/internal/stomp"
	"github.com/primeshop/chat/pkg/logger"
)

const (
	// DefaultReconnectDelay is the flat delay before every reconnect attempt.
	DefaultReconnectDelay = 5 * time.Second
)

var (
	// ErrNotConnected is returned by subscribe and publish while the
	// connection is not in the Connected state. Nothing is queued.
	ErrNotConnected = errors.New("not connected")
	// ErrClosed is returned once the client has been disconnected for good.
	ErrClosed = errors.New("connection closed")
)

// State is the connection lifecycle state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Inbound is a MESSAGE frame delivered by the broker.
type Inbound struct {
	// Subscription is the subscription id the broker matched.
	Subscription string
	// Destination is the topic the message was published to.
	Destination string
	// MessageID is the broker-assigned message id.
	MessageID string
	// Body is the raw payload.
	Body []byte
}

// Handlers receive connection lifecycle callbacks. All callbacks run on the
// connection's read goroutine and must not block.
type Handlers struct {
	// OnConnected is called after every successful handshake.
	OnConnected func()
	// OnDisconnected is called when an established session ends.
	OnDisconnected func(err error)
	// OnMessage is called for every inbound MESSAGE frame.
	OnMessage func(Inbound)
}

// Options configure a Client.
type Options struct {
	// URL is the STOMP-over-WebSocket endpoint.
	URL string
	// Token returns the bearer credential. It is called before every
	// handshake so a replaced credential is picked up on reconnect.
	Token func() (string, error)
	// ReconnectDelay is the flat delay between attempts. Defaults to 5s.
	ReconnectDelay time.Duration
	// HandshakeTimeout bounds a single handshake.
	HandshakeTimeout time.Duration
}

// session is the socket abstraction used by Client. *stomp.Conn satisfies it.
type session interface {
	Read() (*stomp.Frame, error)
	Subscribe(id, destination string) error
	Unsubscribe(id string) error
	Send(destination, contentType string, body []byte) error
	Close() error
}

// Client owns the single physical connection to the broker.
//
// Connect starts a background loop that dials, serves the session until it
// drops, waits ReconnectDelay and dials again, with no backoff growth and no
// retry cap. Each socket is terminal: a handshake failure or a mid-session
// drop always leads to a fresh full handshake. Subscriptions do not survive a
// socket replacement; the owner re-subscribes from OnConnected.
type Client struct {
	opts Options

	state atomic.Int32

	mu      sync.Mutex
	conn    session
	started bool
	closed  bool
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}

	// dial is swapped by tests.
	dial func(ctx context.Context, token string) (session, error)
}

// NewClient creates a disconnected client.
func NewClient(opts Options) *Client {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	c.dial = func(ctx context.Context, token string) (session, error) {
		return stomp.Dial(ctx, c.opts.URL, stomp.DialOptions{
			Token:            token,
			HandshakeTimeout: c.opts.HandshakeTimeout,
		})
	}
	return c
}

// Connect starts the connection loop. It is idempotent: calling it while a
// loop is already running is a no-op. It returns ErrClosed after Disconnect.
func (c *Client) Connect(h Handlers) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		logger.Warnf("WebSocket: connect ignored, client closed")
		return ErrClosed
	}
	if c.started {
		return nil
	}
	c.started = true
	go c.run(h)
	return nil
}

// IsConnected reports whether a session is currently established.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// Subscribe sends SUBSCRIBE on the current session.
func (c *Client) Subscribe(id, destination string) error {
	conn, err := c.current()
	if err != nil {
		logger.Warnf("WebSocket: cannot subscribe to %s: %v", destination, err)
		return err
	}
	return conn.Subscribe(id, destination)
}

// Unsubscribe sends UNSUBSCRIBE on the current session.
func (c *Client) Unsubscribe(id string) error {
	conn, err := c.current()
	if err != nil {
		return err
	}
	return conn.Unsubscribe(id)
}

// Publish sends a JSON body to destination. Delivery is fire-and-forget.
func (c *Client) Publish(destination string, body []byte) error {
	conn, err := c.current()
	if err != nil {
		logger.Warnf("WebSocket: cannot publish to %s: %v", destination, err)
		return err
	}
	return conn.Send(destination, "application/json", body)
}

// Disconnect stops the loop and releases the socket. Subsequent operations
// fail fast with ErrClosed. It is safe to call multiple times.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	started := c.started
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	c.cancel()
	var err error
	if conn != nil {
		err = conn.Close()
	}
	if started {
		<-c.done
	}
	c.state.Store(int32(StateDisconnected))
	return err
}

func (c *Client) current() (session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if c.conn == nil || c.State() != StateConnected {
		return nil, ErrNotConnected
	}
	return c.conn, nil
}

func (c *Client) run(h Handlers) {
	defer close(c.done)

	for {
		if c.ctx.Err() != nil {
			return
		}
		if err := c.serveOnce(h); err != nil && c.ctx.Err() == nil {
			logger.Infof("WebSocket: reconnecting in %s (%v)", c.opts.ReconnectDelay, err)
		}

		timer := time.NewTimer(c.opts.ReconnectDelay)
		select {
		case <-c.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// serveOnce runs one full handshake plus read loop and returns why it ended.
func (c *Client) serveOnce(h Handlers) error {
	c.state.Store(int32(StateConnecting))

	token := ""
	if c.opts.Token != nil {
		t, err := c.opts.Token()
		if err != nil {
			c.state.Store(int32(StateDisconnected))
			logger.Warnf("WebSocket: no credential for handshake: %v", err)
			return err
		}
		token = t
	}

	conn, err := c.dial(c.ctx, token)
	if err != nil {
		c.state.Store(int32(StateDisconnected))
		logger.Warnf("WebSocket: handshake failed: %v", err)
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return ErrClosed
	}
	c.conn = conn
	c.state.Store(int32(StateConnected))
	c.mu.Unlock()

	logger.Infof("WebSocket: connected")
	if h.OnConnected != nil {
		h.OnConnected()
	}

	readErr := c.readLoop(conn, h)

	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.state.Store(int32(StateDisconnected))
	c.mu.Unlock()
	_ = conn.Close()

	if c.ctx.Err() != nil {
		return nil
	}
	logger.Warnf("WebSocket: connection lost: %v", readErr)
	if h.OnDisconnected != nil {
		h.OnDisconnected(readErr)
	}
	return readErr
}

func (c *Client) readLoop(conn session, h Handlers) error {
	for {
		f, err := conn.Read()
		if err != nil {
			return err
		}
		if f.Command != stomp.CmdMessage {
			logger.Debugf("WebSocket: ignoring %s frame", f.Command)
			continue
		}
		if h.OnMessage == nil {
			continue
		}
		h.OnMessage(Inbound{
			Subscription: f.Header.Get(stomp.HdrSubscription),
			Destination:  f.Header.Get(stomp.HdrDestination),
			MessageID:    f.Header.Get(stomp.HdrMessageID),
			Body:         f.Body,
		})
	}
}
