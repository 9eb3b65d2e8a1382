package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/primeshop/chat/internal/chat"
	"github.com/primeshop/chat/internal/config"
	"github.com/primeshop/chat/internal/storage"
	"github.com/primeshop/chat/pkg/types"
)

type lineKind int

const (
	lineText lineKind = iota
	lineOpen
	lineMore
	lineList
	lineClose
	lineQuit
	lineEmpty
)

type chatLine struct {
	kind lineKind
	text string
	id   int64
}

// parseChatLine interprets one line of interactive input.
func parseChatLine(raw string) (chatLine, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return chatLine{kind: lineEmpty}, nil
	}
	if !strings.HasPrefix(trimmed, "/") {
		return chatLine{kind: lineText, text: raw}, nil
	}

	fields := strings.Fields(trimmed)
	switch fields[0] {
	case "/quit", "/exit":
		return chatLine{kind: lineQuit}, nil
	case "/more":
		return chatLine{kind: lineMore}, nil
	case "/list":
		return chatLine{kind: lineList}, nil
	case "/close":
		return chatLine{kind: lineClose}, nil
	case "/open":
		if len(fields) != 2 {
			return chatLine{}, fmt.Errorf("usage: /open <conversation id>")
		}
		id, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil || id <= 0 {
			return chatLine{}, fmt.Errorf("invalid conversation id %q", fields[1])
		}
		return chatLine{kind: lineOpen, id: id}, nil
	default:
		return chatLine{}, fmt.Errorf("unknown command %s", fields[0])
	}
}

// sendFailure maps a send rejection to a line for the user. Transport
// errors are never echoed verbatim.
func sendFailure(err error) string {
	switch {
	case errors.Is(err, chat.ErrEmptyContent):
		return "message is empty"
	case errors.Is(err, chat.ErrNoConversation):
		return "open a conversation first (/open <id>)"
	case errors.Is(err, chat.ErrNotConnected):
		return "offline, message not sent"
	default:
		return "message not sent"
	}
}

func chatCommand(ctx context.Context, cfg *config.Config, args []string, in io.Reader, out io.Writer) error {
	fs := flag.NewFlagSet("chat", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	conversationID := fs.Int64("conversation", 0, "Conversation to open")
	if err := fs.Parse(args); err != nil {
		return err
	}

	token, err := storage.LoadAccessToken(cfg.TokenFile)
	if err != nil {
		return fmt.Errorf("%w (run: primechat login -token <token>)", err)
	}
	userID := resolveUserID(cfg, token)

	p := newPrinter(out, userID)
	client := chat.NewClient(chat.Options{
		BrokerURL:      cfg.BrokerURL,
		APIURL:         cfg.APIURL,
		Token:          storage.TokenSource(cfg.TokenFile),
		LocalUserID:    userID,
		ReconnectDelay: cfg.ReconnectDelay,
		OnView:         p.update,
	})
	defer client.Close()

	if err := client.Start(); err != nil {
		return fmt.Errorf("failed to start chat: %w", err)
	}
	if *conversationID > 0 {
		if err := client.OpenConversation(*conversationID); err != nil {
			return err
		}
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		var raw string
		select {
		case <-ctx.Done():
			return nil
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			raw = l
		}

		line, err := parseChatLine(raw)
		if err != nil {
			p.notice(err.Error())
			continue
		}

		switch line.kind {
		case lineEmpty:
		case lineQuit:
			return nil
		case lineMore:
			err = client.LoadMore()
		case lineClose:
			err = client.CloseConversation()
		case lineOpen:
			err = client.OpenConversation(line.id)
		case lineList:
			var v chat.View
			if v, err = snapshot(ctx, client); err == nil {
				p.conversations(v.Conversations, v.ConversationsFailed)
			}
		case lineText:
			var v chat.View
			if v, err = snapshot(ctx, client); err != nil {
				break
			}
			if sendErr := client.Send(ctx, v.ActiveConversationID, line.text); sendErr != nil {
				p.notice(sendFailure(sendErr))
			}
		}
		if errors.Is(err, chat.ErrClosed) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func snapshot(ctx context.Context, c *chat.Client) (chat.View, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return c.Snapshot(ctx)
}

// printer renders views incrementally: only messages not printed yet for the
// active conversation are written.
type printer struct {
	mu     sync.Mutex
	out    io.Writer
	userID int64

	active    int64
	printed   map[int64]struct{}
	connected bool
	loading   bool
}

func newPrinter(out io.Writer, userID int64) *printer {
	return &printer{out: out, userID: userID, printed: make(map[int64]struct{})}
}

func (p *printer) update(v chat.View) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if v.Connected != p.connected {
		p.connected = v.Connected
		if v.Connected {
			fmt.Fprintln(p.out, "* connected")
		} else {
			fmt.Fprintln(p.out, "* disconnected, retrying")
		}
	}

	if v.ActiveConversationID != p.active {
		p.active = v.ActiveConversationID
		p.printed = make(map[int64]struct{})
		switch {
		case p.active == 0:
		case v.ActiveSummary.CounterpartDisplayName != "":
			fmt.Fprintf(p.out, "* conversation %d with %s\n", p.active, v.ActiveSummary.CounterpartDisplayName)
		default:
			fmt.Fprintf(p.out, "* conversation %d\n", p.active)
		}
	}

	if v.LoadFailed && p.loading {
		fmt.Fprintln(p.out, "* failed to load messages")
	}
	if v.LoadMoreFailed && p.loading {
		fmt.Fprintln(p.out, "* failed to load older messages")
	}
	p.loading = v.Loading || v.LoadingMore

	// Older pages land in front of what was printed; mark them as history.
	hadPrinted := len(p.printed) > 0
	pastPrinted := false
	for _, m := range v.Messages {
		if _, ok := p.printed[m.ID]; ok {
			pastPrinted = true
			continue
		}
		p.printed[m.ID] = struct{}{}
		p.message(m, hadPrinted && !pastPrinted)
	}
}

func (p *printer) message(m types.Message, earlier bool) {
	who := fmt.Sprintf("user %d", m.SenderID)
	if p.userID != 0 && m.SenderID == p.userID {
		who = "you"
	}
	prefix := ""
	if earlier {
		prefix = "(earlier) "
	}
	fmt.Fprintf(p.out, "%s[%s] %s: %s\n", prefix, formatTime(m.CreatedAt.Time), who, m.Content)
}

func (p *printer) notice(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "! %s\n", msg)
}

func (p *printer) conversations(convs []types.Conversation, stale bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if stale {
		fmt.Fprintln(p.out, "! could not refresh conversations, showing the last list")
	}
	if len(convs) == 0 {
		fmt.Fprintln(p.out, "* no conversations")
		return
	}
	for _, c := range convs {
		fmt.Fprintf(p.out, "  %d  %s  %s\n", c.ID, c.CounterpartDisplayName, preview(c.LastMessagePreview, 40))
	}
}
