package websocket

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/primeshop/chat/pkg/logger"
)

const (
	// PersonalDestination is the per-user change-notification queue.
	PersonalDestination = "/user/queue/messages"
	// conversationTopicPrefix prefixes a conversation id to form its topic.
	conversationTopicPrefix = "/topic/conversation/"
)

// ConversationTopic returns the topic a conversation's messages are pushed to.
func ConversationTopic(conversationID int64) string {
	return fmt.Sprintf("%s%d", conversationTopicPrefix, conversationID)
}

// Kind distinguishes the two subscription flavours.
type Kind int

const (
	KindPersonal Kind = iota
	KindConversation
)

func (k Kind) String() string {
	if k == KindPersonal {
		return "personal"
	}
	return "conversation"
}

// Subscription is the per-subscription context held by the Registry. Handlers
// receive it with every message, so conversation-scoped state is looked up by
// ConversationID rather than captured in a closure.
type Subscription struct {
	// ID is the STOMP subscription id of the current session.
	ID string
	// Kind is personal or conversation.
	Kind Kind
	// ConversationID is set for conversation subscriptions.
	ConversationID int64
	// Destination is the broker destination.
	Destination string
	// Tag is an opaque owner value (e.g. an open-conversation generation)
	// that is handed back with every message.
	Tag uint64
}

// Handler consumes inbound messages for one subscription.
type Handler func(sub Subscription, in Inbound)

// Transport is the subset of Client used by the Registry.
type Transport interface {
	IsConnected() bool
	Subscribe(id, destination string) error
	Unsubscribe(id string) error
}

type entry struct {
	sub     Subscription
	handler Handler
	// live is false once the socket that carried the SUBSCRIBE is gone.
	live bool
}

// Registry tracks the logical subscriptions of one client: at most one
// personal subscription and at most one subscription per conversation id.
//
// Entries survive a socket replacement. Detach marks them stale when the
// socket drops, and Replay re-issues SUBSCRIBE for each of them with the same
// handler once the owner observes a new connection.
type Registry struct {
	transport Transport

	mu            sync.Mutex
	personal      *entry
	conversations map[int64]*entry
	byID          map[string]*entry

	newID func() string
}

// NewRegistry creates an empty registry on top of transport.
func NewRegistry(transport Transport) *Registry {
	return &Registry{
		transport:     transport,
		conversations: make(map[int64]*entry),
		byID:          make(map[string]*entry),
		newID:         func() string { return "sub-" + uuid.NewString() },
	}
}

// SubscribePersonal creates the personal subscription if it does not exist
// for the current connection and returns the existing one otherwise.
func (r *Registry) SubscribePersonal(h Handler) (Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.personal != nil && r.personal.live {
		return r.personal.sub, nil
	}
	if !r.transport.IsConnected() {
		return Subscription{}, ErrNotConnected
	}

	e := &entry{
		sub:     Subscription{Kind: KindPersonal, Destination: PersonalDestination},
		handler: h,
	}
	if r.personal != nil {
		delete(r.byID, r.personal.sub.ID)
	}
	if err := r.activateLocked(e); err != nil {
		return Subscription{}, err
	}
	r.personal = e
	logger.Debugf("Subscribed personal channel (%s)", e.sub.ID)
	return e.sub, nil
}

// SubscribeConversation subscribes to the conversation's topic. An existing
// subscription for the same id is torn down first, within the same critical
// section, so there is never more than one listener per conversation.
func (r *Registry) SubscribeConversation(conversationID int64, tag uint64, h Handler) (Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.transport.IsConnected() {
		return Subscription{}, ErrNotConnected
	}
	if prev, ok := r.conversations[conversationID]; ok {
		logger.Debugf("Replacing subscription for conversation %d", conversationID)
		r.removeLocked(prev)
	}

	e := &entry{
		sub: Subscription{
			Kind:           KindConversation,
			ConversationID: conversationID,
			Destination:    ConversationTopic(conversationID),
			Tag:            tag,
		},
		handler: h,
	}
	if err := r.activateLocked(e); err != nil {
		return Subscription{}, err
	}
	r.conversations[conversationID] = e
	logger.Debugf("Subscribed conversation %d (%s)", conversationID, e.sub.ID)
	return e.sub, nil
}

// UnsubscribeConversation removes the conversation's subscription. It is a
// no-op when none exists.
func (r *Registry) UnsubscribeConversation(conversationID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.conversations[conversationID]; ok {
		r.removeLocked(e)
		logger.Debugf("Unsubscribed conversation %d", conversationID)
	}
}

// Dispatch routes an inbound message to the handler of the subscription it
// was delivered for. Messages for unknown or stale ids are dropped. The
// handler runs outside the registry lock so it may subscribe or unsubscribe.
func (r *Registry) Dispatch(in Inbound) {
	r.mu.Lock()
	e, ok := r.byID[in.Subscription]
	var (
		sub Subscription
		h   Handler
	)
	if ok && e.live {
		sub, h = e.sub, e.handler
	}
	r.mu.Unlock()

	if h == nil {
		logger.Debugf("Dropping message for unknown subscription %q (%s)", in.Subscription, in.Destination)
		return
	}
	h(sub, in)
}

// Detach marks every subscription stale after the socket dropped. Entries
// are kept so Replay can restore them.
func (r *Registry) Detach() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, e := range r.byID {
		e.live = false
		delete(r.byID, id)
	}
}

// Replay re-subscribes every known subscription on the current connection
// using the original handlers. Per-entry failures are logged and the first
// one is returned.
func (r *Registry) Replay() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.transport.IsConnected() {
		return ErrNotConnected
	}

	var firstErr error
	replay := func(e *entry) {
		if e.live {
			return
		}
		if err := r.activateLocked(e); err != nil {
			logger.Warnf("Replay of %s subscription %s failed: %v", e.sub.Kind, e.sub.Destination, err)
			if firstErr == nil {
				firstErr = err
			}
			return
		}
		logger.Debugf("Replayed %s subscription %s (%s)", e.sub.Kind, e.sub.Destination, e.sub.ID)
	}
	if r.personal != nil {
		replay(r.personal)
	}
	for _, e := range r.conversations {
		replay(e)
	}
	return firstErr
}

// Conversation returns the active subscription for conversationID.
func (r *Registry) Conversation(conversationID int64) (Subscription, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conversations[conversationID]
	if !ok {
		return Subscription{}, false
	}
	return e.sub, e.live
}

// Len returns the number of live subscriptions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

func (r *Registry) activateLocked(e *entry) error {
	e.sub.ID = r.newID()
	if err := r.transport.Subscribe(e.sub.ID, e.sub.Destination); err != nil {
		return err
	}
	e.live = true
	r.byID[e.sub.ID] = e
	return nil
}

func (r *Registry) removeLocked(e *entry) {
	if e.live {
		if err := r.transport.Unsubscribe(e.sub.ID); err != nil {
			logger.Debugf("Unsubscribe %s: %v", e.sub.ID, err)
		}
	}
	delete(r.byID, e.sub.ID)
	if e.sub.Kind == KindConversation {
		if cur, ok := r.conversations[e.sub.ConversationID]; ok && cur == e {
			delete(r.conversations, e.sub.ConversationID)
		}
	}
	e.live = false
}
