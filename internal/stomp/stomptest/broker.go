// Package stomptest runs an in-process STOMP-over-WebSocket broker for tests.
package stomptest

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/primeshop/chat/internal/stomp"
)

// Sent is a SEND frame received by the broker.
type Sent struct {
	Destination string
	ContentType string
	Body        []byte
}

// Broker is a minimal broker: it accepts CONNECT, tracks subscriptions per
// session, records SEND frames and fans Publish out to matching subscribers.
type Broker struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu        sync.Mutex
	sessions  map[*session]struct{}
	sent      []Sent
	tokens    []string
	connects  int
	rejecting string
	nextMsgID int
}

type session struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
	subs    map[string]string
}

// NewBroker starts a broker on a loopback httptest server.
func NewBroker() *Broker {
	b := &Broker{
		sessions: make(map[*session]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	b.srv = httptest.NewServer(http.HandlerFunc(b.serve))
	return b
}

// URL returns the ws:// endpoint.
func (b *Broker) URL() string {
	return "ws" + strings.TrimPrefix(b.srv.URL, "http") + "/ws/websocket"
}

// Close drops every session and stops the server.
func (b *Broker) Close() {
	b.DropAll()
	b.srv.Close()
}

// Reject makes subsequent handshakes fail with an ERROR frame carrying msg.
// An empty msg accepts handshakes again.
func (b *Broker) Reject(msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rejecting = msg
}

// DropAll closes every live socket without a DISCONNECT, simulating a
// network drop.
func (b *Broker) DropAll() {
	b.mu.Lock()
	sessions := make([]*session, 0, len(b.sessions))
	for s := range b.sessions {
		sessions = append(sessions, s)
	}
	b.sessions = make(map[*session]struct{})
	b.mu.Unlock()

	for _, s := range sessions {
		_ = s.ws.Close()
	}
}

// Connects returns the number of successful handshakes.
func (b *Broker) Connects() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connects
}

// Tokens returns the bearer tokens presented in CONNECT frames, in order.
func (b *Broker) Tokens() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.tokens...)
}

// Sent returns the SEND frames received so far.
func (b *Broker) Sent() []Sent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Sent(nil), b.sent...)
}

// Subscribers counts live subscriptions to destination across sessions.
func (b *Broker) Subscribers(destination string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for s := range b.sessions {
		for _, dest := range s.subs {
			if dest == destination {
				n++
			}
		}
	}
	return n
}

// Publish delivers body as a MESSAGE frame to every subscription on
// destination and returns how many were reached.
func (b *Broker) Publish(destination string, body []byte) int {
	return b.PublishBatch(destination, body)
}

// PublishBatch delivers one MESSAGE frame per body to every subscription on
// destination, packing all frames for a subscription into a single WebSocket
// message. It returns how many subscriptions were reached.
func (b *Broker) PublishBatch(destination string, bodies ...[]byte) int {
	type target struct {
		s  *session
		id string
	}

	b.mu.Lock()
	var targets []target
	for s := range b.sessions {
		for id, dest := range s.subs {
			if dest == destination {
				targets = append(targets, target{s: s, id: id})
			}
		}
	}
	b.mu.Unlock()

	delivered := 0
	for _, tgt := range targets {
		frames := make([]*stomp.Frame, 0, len(bodies))
		for _, body := range bodies {
			b.mu.Lock()
			b.nextMsgID++
			msgID := strconv.Itoa(b.nextMsgID)
			b.mu.Unlock()

			frames = append(frames, stomp.WithBody(stomp.NewFrame(stomp.CmdMessage,
				stomp.HdrDestination, destination,
				stomp.HdrSubscription, tgt.id,
				stomp.HdrMessageID, msgID,
			), "application/json", body))
		}
		if err := tgt.s.write(frames...); err == nil {
			delivered++
		}
	}
	return delivered
}

func (b *Broker) serve(w http.ResponseWriter, r *http.Request) {
	ws, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s := &session{ws: ws, subs: make(map[string]string)}
	defer func() {
		b.mu.Lock()
		delete(b.sessions, s)
		b.mu.Unlock()
		_ = ws.Close()
	}()

	connect, err := s.read()
	if err != nil || (connect.Command != stomp.CmdConnect && connect.Command != stomp.CmdStomp) {
		return
	}
	token := strings.TrimPrefix(connect.Header.Get(stomp.HdrAuthorization), "Bearer ")

	b.mu.Lock()
	b.tokens = append(b.tokens, token)
	reject := b.rejecting
	b.mu.Unlock()

	if reject != "" {
		_ = s.write(stomp.NewFrame(stomp.CmdError, stomp.HdrMessage, reject))
		return
	}
	if err := s.write(stomp.NewFrame(stomp.CmdConnected,
		stomp.HdrVersion, "1.2",
		stomp.HdrServer, "stomptest",
		stomp.HdrHeartBeat, "0,0",
	)); err != nil {
		return
	}

	b.mu.Lock()
	b.connects++
	b.sessions[s] = struct{}{}
	b.mu.Unlock()

	for {
		f, err := s.read()
		if err != nil {
			return
		}
		switch f.Command {
		case stomp.CmdSubscribe:
			b.mu.Lock()
			s.subs[f.Header.Get(stomp.HdrID)] = f.Header.Get(stomp.HdrDestination)
			b.mu.Unlock()
		case stomp.CmdUnsubscribe:
			b.mu.Lock()
			delete(s.subs, f.Header.Get(stomp.HdrID))
			b.mu.Unlock()
		case stomp.CmdSend:
			b.mu.Lock()
			b.sent = append(b.sent, Sent{
				Destination: f.Header.Get(stomp.HdrDestination),
				ContentType: f.Header.Get(stomp.HdrContentType),
				Body:        append([]byte(nil), f.Body...),
			})
			b.mu.Unlock()
		case stomp.CmdDisconnect:
			return
		}
	}
}

func (s *session) read() (*stomp.Frame, error) {
	for {
		_, data, err := s.ws.ReadMessage()
		if err != nil {
			return nil, err
		}
		frames, err := stomp.Decode(data)
		if err != nil {
			return nil, err
		}
		if len(frames) == 0 {
			continue
		}
		return frames[0], nil
	}
}

func (s *session) write(frames ...*stomp.Frame) error {
	var data []byte
	for _, f := range frames {
		b, err := stomp.Encode(f)
		if err != nil {
			return err
		}
		data = append(data, b...)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.ws.WriteMessage(websocket.TextMessage, data)
}
