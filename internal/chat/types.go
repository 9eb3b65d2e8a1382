package chat

import (
	"github.com/primeshop/chat/internal/actor"
	"github.com/primeshop/chat/pkg/types"
)

// RequestTag identifies the open-conversation episode an asynchronous result
// belongs to. Gen increments on every open and close, so a result is stale
// as soon as its tag differs from the state's current tag.
type RequestTag struct {
	ConversationID int64
	Gen            uint64
}

// State is the loop-owned state of the chat client.
type State struct {
	// Connected mirrors the transport state. It gates sends.
	Connected bool
	// ConnectedBefore is set after the first connected event.
	ConnectedBefore bool

	// LocalUserID is the sender id of the local user. Zero disables the
	// sending indicator.
	LocalUserID int64

	// Active is the open conversation id, 0 when none is open.
	Active int64
	// Gen increments on every conversation switch.
	Gen uint64

	Store  MessageStore
	Cursor Cursor

	// LoadFailed is set when page 0 could not be fetched.
	LoadFailed bool
	// LoadMoreFailed is set when the last older page could not be fetched.
	LoadMoreFailed bool

	// Sending is set after a publish to the active conversation and cleared
	// when a message from LocalUserID arrives on its topic.
	Sending bool

	Conversations ConversationCache
}

// Tag returns the tag of the currently open conversation.
func (s State) Tag() RequestTag {
	return RequestTag{ConversationID: s.Active, Gen: s.Gen}
}

// View is a read-only snapshot of State for presentation. All slices are
// owned by the caller.
type View struct {
	Connected            bool
	ActiveConversationID int64
	Messages             []types.Message
	HasMore              bool
	Loading              bool
	LoadingMore          bool
	LoadFailed           bool
	LoadMoreFailed       bool
	Sending              bool
	// CanSend drives the enabled state of the send control.
	CanSend bool

	// ActiveSummary is the list entry of the active conversation, zero until
	// the list contains it.
	ActiveSummary        types.Conversation
	Conversations        []types.Conversation
	LoadingConversations bool
	// ConversationsFailed is set when the newest list refresh failed.
	// Conversations then still holds the previous list.
	ConversationsFailed  bool
}

// View returns a snapshot of the state.
func (s State) View() View {
	summary, _ := s.Conversations.Find(s.Active)
	return View{
		Connected:            s.Connected,
		ActiveConversationID: s.Active,
		Messages:             s.Store.Messages(),
		HasMore:              s.Active != 0 && s.Cursor.HasMore,
		Loading:              s.Cursor.Loading,
		LoadingMore:          s.Cursor.LoadingMore,
		LoadFailed:           s.LoadFailed,
		LoadMoreFailed:       s.LoadMoreFailed,
		Sending:              s.Sending,
		CanSend:              s.Connected && s.Active != 0,
		ActiveSummary:        summary,
		Conversations:        s.Conversations.Items(),
		LoadingConversations: s.Conversations.Loading,
		ConversationsFailed:  s.Conversations.Failed,
	}
}

// Commands

// cmdOpenConversation makes ConversationID the active conversation.
type cmdOpenConversation struct {
	actor.InputBase
	ConversationID int64
}

// cmdCloseConversation clears the active conversation.
type cmdCloseConversation struct {
	actor.InputBase
}

// cmdLoadMore is the boundary signal: the viewer reached the oldest loaded
// message.
type cmdLoadMore struct {
	actor.InputBase
}

// cmdSend requests publishing Content to ConversationID.
type cmdSend struct {
	actor.InputBase
	ConversationID int64
	Content        string
	Reply          chan error
}

// cmdRefreshConversations requests a conversation list refresh.
type cmdRefreshConversations struct {
	actor.InputBase
}

// cmdSnapshot requests the current View.
type cmdSnapshot struct {
	actor.InputBase
	Reply chan View
}

// Events emitted by the transport and runtime.

type evConnected struct {
	actor.InputBase
}

type evDisconnected struct {
	actor.InputBase
	Reason string
}

// evPageLoaded carries the result of a history page fetch.
type evPageLoaded struct {
	actor.InputBase
	Tag      RequestTag
	Page     int
	Messages []types.Message
	Err      error
}

// evConversationsLoaded carries the result of a conversation list fetch.
type evConversationsLoaded struct {
	actor.InputBase
	Seq   uint64
	Items []types.Conversation
	Err   error
}

// evConversationMessage is a live message pushed on a conversation topic.
// Tag is the tag the subscription was created with.
type evConversationMessage struct {
	actor.InputBase
	Tag     RequestTag
	Message types.Message
}

// evPersonalEvent is any message on the personal channel.
type evPersonalEvent struct {
	actor.InputBase
}

// evPublishFailed reports a publish accepted by the reducer that the
// transport then refused.
type evPublishFailed struct {
	actor.InputBase
	ConversationID int64
	Err            error
}

// Effects

// effFetchPage fetches one history page.
type effFetchPage struct {
	actor.EffectBase
	Tag  RequestTag
	Page int
	Size int
}

// effFetchConversations fetches the conversation list.
type effFetchConversations struct {
	actor.EffectBase
	Seq uint64
}

// effSubscribeConversation subscribes to the conversation topic of Tag,
// replacing any previous subscription for the same id.
type effSubscribeConversation struct {
	actor.EffectBase
	Tag RequestTag
}

// effUnsubscribeConversation drops the subscription of ConversationID.
type effUnsubscribeConversation struct {
	actor.EffectBase
	ConversationID int64
}

// effResubscribe re-establishes the personal subscription and, when Active
// is non-zero, the subscription of the open conversation.
type effResubscribe struct {
	actor.EffectBase
	Active RequestTag
}

// effPublish publishes a send command and completes Reply.
type effPublish struct {
	actor.EffectBase
	ConversationID int64
	Content        string
	Reply          chan error
}
