// Package stomp speaks STOMP 1.2 over a WebSocket, one frame per WebSocket
// text message, the way SockJS-enabled message brokers expect it.
//
// Frame encoding and decoding is delegated to the go-stomp frame codec; this
// package only adds the WebSocket carriage and the client handshake.
package stomp

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/go-stomp/stomp/v3/frame"
)

// Frame is a decoded STOMP frame.
type Frame = frame.Frame

// Client and server commands.
const (
	CmdConnect     = "CONNECT"
	CmdStomp       = "STOMP"
	CmdConnected   = "CONNECTED"
	CmdSend        = "SEND"
	CmdSubscribe   = "SUBSCRIBE"
	CmdUnsubscribe = "UNSUBSCRIBE"
	CmdDisconnect  = "DISCONNECT"
	CmdMessage     = "MESSAGE"
	CmdReceipt     = "RECEIPT"
	CmdError       = "ERROR"
)

// Header names.
const (
	HdrAcceptVersion = "accept-version"
	HdrVersion       = "version"
	HdrHost          = "host"
	HdrHeartBeat     = "heart-beat"
	HdrAuthorization = "Authorization"
	HdrDestination   = "destination"
	HdrID            = "id"
	HdrAck           = "ack"
	HdrSubscription  = "subscription"
	HdrMessageID     = "message-id"
	HdrContentType   = "content-type"
	HdrContentLength = "content-length"
	HdrMessage       = "message"
	HdrServer        = "server"
	HdrReceipt       = "receipt"
	HdrReceiptID     = "receipt-id"
)

// ErrorFrame is a broker ERROR frame surfaced as a Go error.
type ErrorFrame struct {
	Message string
	Body    string
}

func (e *ErrorFrame) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("stomp error: %s", e.Message)
	}
	return fmt.Sprintf("stomp error: %s: %s", e.Message, e.Body)
}

// NewFrame builds a frame from header key/value pairs.
func NewFrame(command string, headers ...string) *Frame {
	return frame.New(command, headers...)
}

// WithBody attaches body to f and sets content-type and content-length.
func WithBody(f *Frame, contentType string, body []byte) *Frame {
	f.Body = body
	if contentType != "" {
		f.Header.Set(HdrContentType, contentType)
	}
	f.Header.Set(HdrContentLength, strconv.Itoa(len(body)))
	return f
}

// Encode serializes a single frame.
func Encode(f *Frame) ([]byte, error) {
	var buf bytes.Buffer
	if err := frame.NewWriter(&buf).Write(f); err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", f.Command, err)
	}
	return buf.Bytes(), nil
}

// Decode parses every frame carried by one WebSocket message. Heart-beat
// end-of-lines are skipped, so an empty result is valid.
func Decode(data []byte) ([]*Frame, error) {
	r := frame.NewReader(bytes.NewReader(data))
	var frames []*Frame
	for {
		f, err := r.Read()
		if errors.Is(err, io.EOF) {
			return frames, nil
		}
		if err != nil {
			return frames, fmt.Errorf("decode frame: %w", err)
		}
		if f == nil {
			continue
		}
		frames = append(frames, f)
	}
}

// AsError converts an ERROR frame into an *ErrorFrame.
func AsError(f *Frame) *ErrorFrame {
	return &ErrorFrame{
		Message: f.Header.Get(HdrMessage),
		Body:    string(f.Body),
	}
}
