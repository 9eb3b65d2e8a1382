package main

import (
	"bytes"
	"errors"
	"flag"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/primeshop/chat/internal/chat"
	"github.com/primeshop/chat/internal/config"
	"github.com/primeshop/chat/pkg/types"
	"github.com/stretchr/testify/require"
)

func TestParseFlagsOverridesConfig(t *testing.T) {
	cfg := &config.Config{BrokerURL: config.DefaultBrokerURL, LogLevel: "info"}
	args, err := parseFlags(cfg, []string{
		"-broker", "ws://chat.example/ws", "-user", "7", "-log-level", "debug", "-reconnect", "2s",
		"chat", "-conversation", "42",
	})
	require.NoError(t, err)
	require.Equal(t, []string{"chat", "-conversation", "42"}, args)
	require.Equal(t, "ws://chat.example/ws", cfg.BrokerURL)
	require.Equal(t, int64(7), cfg.UserID)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, 2*time.Second, cfg.ReconnectDelay)
}

func TestParseFlagsRejectsBadValues(t *testing.T) {
	_, err := parseFlags(&config.Config{}, []string{"-log-level", "loud"})
	require.Error(t, err)

	_, err = parseFlags(&config.Config{}, []string{"-user", "-3"})
	require.Error(t, err)

	_, err = parseFlags(&config.Config{}, []string{"-h"})
	require.True(t, errors.Is(err, flag.ErrHelp))
}

func TestParseChatLine(t *testing.T) {
	tests := []struct {
		in      string
		want    chatLine
		wantErr bool
	}{
		{in: "", want: chatLine{kind: lineEmpty}},
		{in: "  hello there ", want: chatLine{kind: lineText, text: "  hello there "}},
		{in: "/open 42", want: chatLine{kind: lineOpen, id: 42}},
		{in: "/open", wantErr: true},
		{in: "/open abc", wantErr: true},
		{in: "/more", want: chatLine{kind: lineMore}},
		{in: "/list", want: chatLine{kind: lineList}},
		{in: "/close", want: chatLine{kind: lineClose}},
		{in: " /quit ", want: chatLine{kind: lineQuit}},
		{in: "/dance", wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseChatLine(tt.in)
		if tt.wantErr {
			require.Error(t, err, "input %q", tt.in)
			continue
		}
		require.NoError(t, err, "input %q", tt.in)
		require.Equal(t, tt.want, got, "input %q", tt.in)
	}
}

func TestSendFailureHidesTransportErrors(t *testing.T) {
	require.Equal(t, "offline, message not sent", sendFailure(chat.ErrNotConnected))
	require.Equal(t, "message is empty", sendFailure(chat.ErrEmptyContent))
	require.Equal(t, "message not sent", sendFailure(errors.New("write tcp: broken pipe")))
}

func TestResolveUserID(t *testing.T) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":    "buyer@example.com",
		"userId": 17,
		"exp":    time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	require.Equal(t, int64(17), resolveUserID(&config.Config{}, signed))
	require.Equal(t, int64(3), resolveUserID(&config.Config{UserID: 3}, signed))
	require.Zero(t, resolveUserID(&config.Config{}, "not-a-jwt"))
}

func TestPrinterWritesOnlyNewMessages(t *testing.T) {
	var buf bytes.Buffer
	p := newPrinter(&buf, 1)

	m := func(id, sender int64, text string) types.Message {
		return types.Message{ID: id, ConversationID: 42, SenderID: sender, Content: text}
	}

	p.update(chat.View{Connected: true, ActiveConversationID: 42, Messages: []types.Message{m(3, 2, "hi"), m(4, 1, "hello")}})
	p.update(chat.View{Connected: true, ActiveConversationID: 42, Messages: []types.Message{m(3, 2, "hi"), m(4, 1, "hello")}})
	p.update(chat.View{Connected: true, ActiveConversationID: 42, Messages: []types.Message{m(2, 2, "old"), m(3, 2, "hi"), m(4, 1, "hello"), m(5, 2, "new")}})

	out := buf.String()
	require.Equal(t, 1, strings.Count(out, "* connected"))
	require.Equal(t, 1, strings.Count(out, "* conversation 42"))
	require.Equal(t, 1, strings.Count(out, ": hi"))
	require.Contains(t, out, "you: hello")
	require.Contains(t, out, "(earlier) [-] user 2: old")
	require.Contains(t, out, "[-] user 2: new")
	require.NotContains(t, out, "(earlier) [-] user 2: new")
}

func TestPrinterHeaderNamesCounterpart(t *testing.T) {
	var buf bytes.Buffer
	p := newPrinter(&buf, 1)

	p.update(chat.View{ActiveConversationID: 42, ActiveSummary: types.Conversation{ID: 42, CounterpartDisplayName: "shop"}})
	p.update(chat.View{ActiveConversationID: 7})

	out := buf.String()
	require.Contains(t, out, "* conversation 42 with shop\n")
	require.Contains(t, out, "* conversation 7\n")
}

func TestPrinterFlagsStaleConversationList(t *testing.T) {
	var buf bytes.Buffer
	p := newPrinter(&buf, 1)

	convs := []types.Conversation{{ID: 42, CounterpartDisplayName: "shop", LastMessagePreview: "hi"}}
	p.conversations(convs, false)
	require.NotContains(t, buf.String(), "could not refresh")

	buf.Reset()
	p.conversations(convs, true)
	out := buf.String()
	require.Contains(t, out, "! could not refresh conversations")
	require.Contains(t, out, "42  shop")
}
