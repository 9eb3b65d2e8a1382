package chat

import (
	"context"
	"encoding/json"
	"sync"

	framework "github.com/primeshop/chat/internal/actor"
	"github.com/primeshop/chat/internal/websocket"
	"github.com/primeshop/chat/pkg/logger"
	"github.com/primeshop/chat/pkg/types"
)

// HistoryAPI is the REST boundary used to backfill history and the
// conversation list. *api.Client satisfies it.
type HistoryAPI interface {
	ListConversations(ctx context.Context) ([]types.Conversation, error)
	ListMessages(ctx context.Context, conversationID int64, page, size int) ([]types.Message, error)
}

// Subscriptions is the registry surface used by Runtime.
// *websocket.Registry satisfies it.
type Subscriptions interface {
	SubscribePersonal(h websocket.Handler) (websocket.Subscription, error)
	SubscribeConversation(conversationID int64, tag uint64, h websocket.Handler) (websocket.Subscription, error)
	UnsubscribeConversation(conversationID int64)
	Conversation(conversationID int64) (websocket.Subscription, bool)
	Replay() error
}

// Runtime interprets chat effects.
//
// Runtime never touches State. Fetches run on their own goroutines and
// subscription handlers run on the transport read goroutine; both report back
// through the mailbox bound with Bind. Subscribe, unsubscribe and publish are
// synchronous with respect to the current transport session.
type Runtime struct {
	api    HistoryAPI
	subs   Subscriptions
	sender *Sender

	// enqueue blocks until the mailbox accepts the input, so inputs posted
	// from one goroutine are reduced in the order they were posted.
	enqueue func(framework.Input) error

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

// NewRuntime returns a Runtime using the given collaborators.
func NewRuntime(api HistoryAPI, subs Subscriptions, sender *Sender) *Runtime {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runtime{api: api, subs: subs, sender: sender, ctx: ctx, cancel: cancel}
}

var _ framework.Runtime = (*Runtime)(nil)

// Bind sets the mailbox used by work that runs off the event loop. It must be
// called before the first effect is handled. Without it such work falls back
// to the emit passed to HandleEffects.
func (r *Runtime) Bind(enqueue func(framework.Input) error) {
	r.enqueue = enqueue
}

// post returns the delivery function for goroutines other than the loop.
func (r *Runtime) post(emit func(framework.Input)) func(framework.Input) {
	enqueue := r.enqueue
	if enqueue == nil {
		return emit
	}
	return func(in framework.Input) {
		if err := enqueue(in); err != nil {
			logger.Debugf("chat: dropping %T: %v", in, err)
		}
	}
}

// HandleEffects implements actor.Runtime.
func (r *Runtime) HandleEffects(ctx context.Context, effects []framework.Effect, emit func(framework.Input)) {
	for _, eff := range effects {
		select {
		case <-ctx.Done():
			return
		default:
		}

		switch e := eff.(type) {
		case effFetchPage:
			r.fetchPage(e, emit)
		case effFetchConversations:
			r.fetchConversations(e, emit)
		case effSubscribeConversation:
			r.subscribeConversation(e.Tag, emit)
		case effUnsubscribeConversation:
			r.subs.UnsubscribeConversation(e.ConversationID)
		case effResubscribe:
			r.resubscribe(e, emit)
		case effPublish:
			r.publish(e, emit)
		default:
			logger.Debugf("chat: ignoring unknown effect %T", eff)
		}
	}
}

// Stop cancels in-flight fetches and waits for them to return.
func (r *Runtime) Stop() {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
}

// spawn runs fn on a tracked goroutine unless the runtime is stopped.
func (r *Runtime) spawn(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		fn()
	}()
}

func (r *Runtime) fetchPage(eff effFetchPage, emit func(framework.Input)) {
	post := r.post(emit)
	r.spawn(func() {
		msgs, err := r.api.ListMessages(r.ctx, eff.Tag.ConversationID, eff.Page, eff.Size)
		if r.ctx.Err() != nil {
			return
		}
		if err != nil {
			logger.Warnf("chat: loading page %d of conversation %d failed: %v", eff.Page, eff.Tag.ConversationID, err)
		}
		post(evPageLoaded{Tag: eff.Tag, Page: eff.Page, Messages: msgs, Err: err})
	})
}

func (r *Runtime) fetchConversations(eff effFetchConversations, emit func(framework.Input)) {
	post := r.post(emit)
	r.spawn(func() {
		items, err := r.api.ListConversations(r.ctx)
		if r.ctx.Err() != nil {
			return
		}
		if err != nil {
			logger.Warnf("chat: loading conversations failed: %v", err)
		}
		post(evConversationsLoaded{Seq: eff.Seq, Items: items, Err: err})
	})
}

// subscribeConversation (re)subscribes to the topic of tag. A transport that
// is not connected is not an error here: the connected event replays it.
func (r *Runtime) subscribeConversation(tag RequestTag, emit func(framework.Input)) {
	_, err := r.subs.SubscribeConversation(tag.ConversationID, tag.Gen, conversationHandler(r.post(emit)))
	if err != nil {
		logger.Debugf("chat: subscribe conversation %d deferred: %v", tag.ConversationID, err)
	}
}

func (r *Runtime) resubscribe(eff effResubscribe, emit func(framework.Input)) {
	if err := r.subs.Replay(); err != nil {
		logger.Warnf("chat: replaying subscriptions failed: %v", err)
	}
	if _, err := r.subs.SubscribePersonal(personalHandler(r.post(emit))); err != nil {
		logger.Warnf("chat: subscribe personal channel failed: %v", err)
	}
	if eff.Active.ConversationID == 0 {
		return
	}
	sub, live := r.subs.Conversation(eff.Active.ConversationID)
	if live && sub.Tag == eff.Active.Gen {
		return
	}
	r.subscribeConversation(eff.Active, emit)
}

func (r *Runtime) publish(eff effPublish, emit func(framework.Input)) {
	err := r.sender.Send(eff.ConversationID, eff.Content)
	if err != nil {
		emit(evPublishFailed{ConversationID: eff.ConversationID, Err: err})
	}
	replyErr(eff.Reply, err)
}

// personalHandler turns any personal-channel message into a refresh signal.
// The payload is not inspected.
func personalHandler(post func(framework.Input)) websocket.Handler {
	return func(_ websocket.Subscription, _ websocket.Inbound) {
		post(evPersonalEvent{})
	}
}

// conversationHandler decodes live messages. Malformed payloads are dropped
// without affecting the subscription.
func conversationHandler(post func(framework.Input)) websocket.Handler {
	return func(sub websocket.Subscription, in websocket.Inbound) {
		var msg types.Message
		if err := json.Unmarshal(in.Body, &msg); err != nil {
			logger.Warnf("chat: dropping malformed message on %s: %v", in.Destination, err)
			return
		}
		if msg.ID == 0 {
			logger.Warnf("chat: dropping message without id on %s", in.Destination)
			return
		}
		post(evConversationMessage{
			Tag:     RequestTag{ConversationID: sub.ConversationID, Gen: sub.Tag},
			Message: msg,
		})
	}
}
