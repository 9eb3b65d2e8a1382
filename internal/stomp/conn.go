package stomp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/primeshop/chat/pkg/logger"
)

const (
	// defaultHandshakeTimeout bounds WebSocket upgrade plus CONNECT/CONNECTED.
	defaultHandshakeTimeout = 10 * time.Second
	// defaultWriteTimeout bounds a single frame write.
	defaultWriteTimeout = 10 * time.Second
	// acceptVersions is the version list offered in CONNECT.
	acceptVersions = "1.2,1.1,1.0"
)

// ErrConnClosed is returned by writes on a closed connection.
var ErrConnClosed = errors.New("stomp connection closed")

// DialOptions configures the handshake.
type DialOptions struct {
	// Token is sent as "Authorization: Bearer <token>" in the CONNECT frame.
	Token string
	// Host overrides the CONNECT host header. Defaults to the URL host.
	Host string
	// HandshakeTimeout bounds the whole handshake. Defaults to 10s.
	HandshakeTimeout time.Duration
	// Dialer overrides the WebSocket dialer.
	Dialer *websocket.Dialer
}

// Conn is one STOMP session on one WebSocket. It is terminal: once Read
// returns an error the connection is unusable and a new Dial is required.
type Conn struct {
	ws      *websocket.Conn
	version string
	server  string

	// pending holds frames decoded from a message but not yet returned. Only
	// the reading goroutine touches it.
	pending []*Frame

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

// Dial opens the WebSocket and performs the CONNECT/CONNECTED handshake. A
// broker ERROR reply is returned as *ErrorFrame.
func Dial(ctx context.Context, rawURL string, opts DialOptions) (*Conn, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid broker url: %w", err)
	}
	timeout := opts.HandshakeTimeout
	if timeout <= 0 {
		timeout = defaultHandshakeTimeout
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: timeout,
		}
	}

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ws, _, err := dialer.DialContext(dialCtx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	// Abort a handshake blocked on the CONNECTED read when ctx is canceled.
	stop := context.AfterFunc(dialCtx, func() { _ = ws.Close() })
	defer stop()

	c := &Conn{ws: ws, closed: make(chan struct{})}

	host := opts.Host
	if host == "" {
		host = u.Hostname()
	}
	connect := NewFrame(CmdConnect,
		HdrAcceptVersion, acceptVersions,
		HdrHost, host,
		HdrHeartBeat, "0,0",
	)
	if opts.Token != "" {
		connect.Header.Set(HdrAuthorization, "Bearer "+opts.Token)
	}
	if err := c.write(connect); err != nil {
		c.closeSocket()
		return nil, fmt.Errorf("send connect: %w", err)
	}

	deadline := time.Now().Add(timeout)
	if d, ok := dialCtx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = ws.SetReadDeadline(deadline)
	reply, err := c.Read()
	if err != nil {
		c.closeSocket()
		return nil, fmt.Errorf("handshake: %w", err)
	}
	if reply.Command != CmdConnected {
		c.closeSocket()
		return nil, fmt.Errorf("handshake: unexpected %s frame", reply.Command)
	}
	_ = ws.SetReadDeadline(time.Time{})

	c.version = reply.Header.Get(HdrVersion)
	c.server = reply.Header.Get(HdrServer)
	logger.Debugf("STOMP connected to %s (version=%s server=%s)", u.Host, c.version, c.server)
	return c, nil
}

// Version returns the negotiated protocol version.
func (c *Conn) Version() string { return c.version }

// Read blocks for the next non-heart-beat frame. Frames sharing one
// WebSocket message are returned by successive calls. An ERROR frame is
// returned as *ErrorFrame and ends the session.
func (c *Conn) Read() (*Frame, error) {
	for len(c.pending) == 0 {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return nil, err
		}
		frames, err := Decode(data)
		if err != nil {
			return nil, err
		}
		c.pending = frames
	}

	f := c.pending[0]
	c.pending[0] = nil
	c.pending = c.pending[1:]
	logger.Tracef("STOMP <- %s %s", f.Command, f.Header.Get(HdrDestination))
	if f.Command == CmdError {
		c.pending = nil
		return nil, AsError(f)
	}
	return f, nil
}

// Subscribe sends SUBSCRIBE for destination under the given subscription id.
func (c *Conn) Subscribe(id, destination string) error {
	return c.write(NewFrame(CmdSubscribe,
		HdrID, id,
		HdrDestination, destination,
		HdrAck, "auto",
	))
}

// Unsubscribe sends UNSUBSCRIBE for the subscription id.
func (c *Conn) Unsubscribe(id string) error {
	return c.write(NewFrame(CmdUnsubscribe, HdrID, id))
}

// Send publishes body to destination.
func (c *Conn) Send(destination, contentType string, body []byte) error {
	f := WithBody(NewFrame(CmdSend, HdrDestination, destination), contentType, body)
	return c.write(f)
}

// Close sends a best-effort DISCONNECT and closes the socket.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		_ = c.writeLocked(NewFrame(CmdDisconnect))
		close(c.closed)
		err = c.ws.Close()
	})
	return err
}

func (c *Conn) closeSocket() {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.ws.Close()
	})
}

func (c *Conn) write(f *Frame) error {
	select {
	case <-c.closed:
		return ErrConnClosed
	default:
	}
	return c.writeLocked(f)
}

func (c *Conn) writeLocked(f *Frame) error {
	data, err := Encode(f)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(defaultWriteTimeout))
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write %s: %w", f.Command, err)
	}
	logger.Tracef("STOMP -> %s %s", f.Command, f.Header.Get(HdrDestination))
	return nil
}
