package chat

import (
	"github.com/primeshop/chat/internal/actor"
)

// Reduce is the chat client reducer.
func Reduce(state State, input actor.Input) (State, []actor.Effect) {
	switch in := input.(type) {
	case cmdOpenConversation:
		return reduceOpenConversation(state, in)
	case cmdCloseConversation:
		return reduceCloseConversation(state)
	case cmdLoadMore:
		return reduceLoadMore(state)
	case cmdSend:
		return reduceSend(state, in)
	case cmdRefreshConversations:
		return beginRefresh(state)
	case cmdSnapshot:
		replyView(in.Reply, state.View())
		return state, nil

	case evConnected:
		return reduceConnected(state)
	case evDisconnected:
		state.Connected = false
		// The echo of an in-flight send may never arrive on this socket.
		state.Sending = false
		return state, nil
	case evPageLoaded:
		return reducePageLoaded(state, in)
	case evConversationsLoaded:
		state.Conversations, _ = state.Conversations.Apply(in.Seq, in.Items, in.Err)
		return state, nil
	case evConversationMessage:
		return reduceConversationMessage(state, in)
	case evPersonalEvent:
		return beginRefresh(state)
	case evPublishFailed:
		if in.ConversationID == state.Active {
			state.Sending = false
		}
		return state, nil
	default:
		return state, nil
	}
}

func reduceOpenConversation(state State, cmd cmdOpenConversation) (State, []actor.Effect) {
	if cmd.ConversationID == 0 {
		return reduceCloseConversation(state)
	}

	var effects []actor.Effect
	// Interest in the previous topic ends before the new conversation starts
	// loading, so none of its messages can reach the new store.
	if state.Active != 0 && state.Active != cmd.ConversationID {
		effects = append(effects, effUnsubscribeConversation{ConversationID: state.Active})
	}

	state.Active = cmd.ConversationID
	state.Gen++
	state.Store = MessageStore{}
	state.Cursor = newCursor(cmd.ConversationID)
	state.LoadFailed = false
	state.LoadMoreFailed = false
	state.Sending = false

	tag := state.Tag()
	effects = append(effects, effFetchPage{Tag: tag, Page: 0, Size: PageSize})
	if state.Connected {
		effects = append(effects, effSubscribeConversation{Tag: tag})
	}
	return state, effects
}

func reduceCloseConversation(state State) (State, []actor.Effect) {
	if state.Active == 0 {
		return state, nil
	}
	prev := state.Active
	state.Active = 0
	state.Gen++
	state.Store = MessageStore{}
	state.Cursor = Cursor{}
	state.LoadFailed = false
	state.LoadMoreFailed = false
	state.Sending = false
	return state, []actor.Effect{effUnsubscribeConversation{ConversationID: prev}}
}

func reduceLoadMore(state State) (State, []actor.Effect) {
	if state.Active == 0 || !state.Cursor.CanLoadMore() {
		return state, nil
	}
	state.Cursor.LoadingMore = true
	state.LoadMoreFailed = false
	return state, []actor.Effect{
		effFetchPage{Tag: state.Tag(), Page: state.Cursor.NextPage, Size: PageSize},
	}
}

func reduceSend(state State, cmd cmdSend) (State, []actor.Effect) {
	if err := validateSend(cmd.ConversationID, cmd.Content, state.Connected); err != nil {
		replyErr(cmd.Reply, err)
		return state, nil
	}
	if cmd.ConversationID == state.Active && state.LocalUserID != 0 {
		state.Sending = true
	}
	return state, []actor.Effect{
		effPublish{ConversationID: cmd.ConversationID, Content: cmd.Content, Reply: cmd.Reply},
	}
}

func reduceConnected(state State) (State, []actor.Effect) {
	reconnect := state.ConnectedBefore
	state.Connected = true
	state.ConnectedBefore = true

	effects := []actor.Effect{effResubscribe{Active: state.Tag()}}
	if reconnect {
		// A personal event may have been missed while offline.
		var seq uint64
		state.Conversations, seq = state.Conversations.Begin()
		effects = append(effects, effFetchConversations{Seq: seq})
	}
	return state, effects
}

func reducePageLoaded(state State, ev evPageLoaded) (State, []actor.Effect) {
	if ev.Tag != state.Tag() || state.Active == 0 {
		return state, nil
	}

	if ev.Page == 0 {
		if !state.Cursor.Loading {
			return state, nil
		}
		state.Cursor.Loading = false
		if ev.Err != nil {
			state.LoadFailed = true
			state.Cursor.HasMore = false
			return state, nil
		}
		state.Store = state.Store.ReplaceWithPage(ev.Messages)
		state.Cursor.NextPage = 1
		state.Cursor.HasMore = len(ev.Messages) == PageSize
		return state, nil
	}

	if !state.Cursor.LoadingMore || ev.Page != state.Cursor.NextPage {
		return state, nil
	}
	state.Cursor.LoadingMore = false
	if ev.Err != nil {
		state.LoadMoreFailed = true
		return state, nil
	}
	state.Store = state.Store.PrependPage(ev.Messages)
	state.Cursor.NextPage++
	state.Cursor.HasMore = len(ev.Messages) == PageSize
	return state, nil
}

func reduceConversationMessage(state State, ev evConversationMessage) (State, []actor.Effect) {
	if ev.Tag != state.Tag() || state.Active == 0 {
		return state, nil
	}
	msg := ev.Message
	if msg.ConversationID != 0 && msg.ConversationID != state.Active {
		return state, nil
	}

	state.Store, _ = state.Store.Append(msg)
	if state.LocalUserID != 0 && msg.SenderID == state.LocalUserID {
		state.Sending = false
	}
	return state, nil
}

func beginRefresh(state State) (State, []actor.Effect) {
	var seq uint64
	state.Conversations, seq = state.Conversations.Begin()
	return state, []actor.Effect{effFetchConversations{Seq: seq}}
}

func replyErr(ch chan error, err error) {
	if ch == nil {
		return
	}
	select {
	case ch <- err:
	default:
	}
}

func replyView(ch chan View, v View) {
	if ch == nil {
		return
	}
	select {
	case ch <- v:
	default:
	}
}
