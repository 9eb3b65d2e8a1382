package chat

import (
	"errors"
	"testing"

	"github.com/primeshop/chat/internal/actor"
	"github.com/primeshop/chat/pkg/types"
	"github.com/stretchr/testify/require"
)

const localUser = 1

func connectedState() State {
	return State{Connected: true, ConnectedBefore: true, LocalUserID: localUser}
}

func step(t *testing.T, s State, in actor.Input) (State, []actor.Effect) {
	t.Helper()
	return actor.Step(s, in, Reduce)
}

func open(t *testing.T, s State, id int64) State {
	t.Helper()
	s, _ = step(t, s, cmdOpenConversation{ConversationID: id})
	return s
}

func live(s State, m types.Message) evConversationMessage {
	return evConversationMessage{Tag: s.Tag(), Message: m}
}

func TestReduce_OpenFetchesPageZeroAndSubscribes(t *testing.T) {
	t.Parallel()

	s, effects := step(t, connectedState(), cmdOpenConversation{ConversationID: 42})
	require.Equal(t, int64(42), s.Active)
	require.True(t, s.Cursor.Loading)
	require.True(t, s.Cursor.HasMore)

	tag := RequestTag{ConversationID: 42, Gen: 1}
	require.Equal(t, []actor.Effect{
		effFetchPage{Tag: tag, Page: 0, Size: PageSize},
		effSubscribeConversation{Tag: tag},
	}, effects)
}

func TestReduce_SwitchUnsubscribesPreviousFirst(t *testing.T) {
	t.Parallel()

	s := open(t, connectedState(), 42)
	s, effects := step(t, s, cmdOpenConversation{ConversationID: 7})
	require.NotEmpty(t, effects)
	require.Equal(t, effUnsubscribeConversation{ConversationID: 42}, effects[0])
	require.Equal(t, int64(7), s.Active)
	require.Zero(t, s.Store.Len())
}

func TestReduce_ReopenSameConversationResubscribesWithoutUnsubscribe(t *testing.T) {
	t.Parallel()

	s := open(t, connectedState(), 42)
	_, effects := step(t, s, cmdOpenConversation{ConversationID: 42})
	for _, eff := range effects {
		_, isUnsub := eff.(effUnsubscribeConversation)
		require.False(t, isUnsub)
	}
	require.Contains(t, effects, actor.Effect(effSubscribeConversation{Tag: RequestTag{ConversationID: 42, Gen: 2}}))
}

func TestReduce_PageThenLiveScenario(t *testing.T) {
	t.Parallel()

	s := open(t, connectedState(), 42)
	s, _ = step(t, s, evPageLoaded{Tag: s.Tag(), Page: 0, Messages: page(5, 3)})
	require.Equal(t, []int64{3, 4, 5}, s.Store.IDs())
	require.False(t, s.Cursor.HasMore, "short page")

	s, _ = step(t, s, live(s, msg(6)))
	require.Equal(t, []int64{3, 4, 5, 6}, s.Store.IDs())

	s, _ = step(t, s, live(s, msg(5)))
	require.Equal(t, []int64{3, 4, 5, 6}, s.Store.IDs())
}

func TestReduce_LiveBeforePageZeroIsOrderIndependent(t *testing.T) {
	t.Parallel()

	s := open(t, connectedState(), 42)
	s, _ = step(t, s, live(s, msg(5)))
	s, _ = step(t, s, live(s, msg(6)))
	s, _ = step(t, s, evPageLoaded{Tag: s.Tag(), Page: 0, Messages: page(5, 3)})

	require.Equal(t, []int64{3, 4, 5, 6}, s.Store.IDs())
}

func TestReduce_StalePageIsDiscarded(t *testing.T) {
	t.Parallel()

	s := open(t, connectedState(), 1)
	tagA := s.Tag()
	s = open(t, s, 2)

	s, effects := step(t, s, evPageLoaded{Tag: tagA, Page: 0, Messages: page(9, 7)})
	require.Empty(t, effects)
	require.Zero(t, s.Store.Len())
	require.True(t, s.Cursor.Loading, "B's own page is still outstanding")

	// Reopening A creates a new episode; the first episode's page is still stale.
	s = open(t, s, 1)
	s, _ = step(t, s, evPageLoaded{Tag: tagA, Page: 0, Messages: page(9, 7)})
	require.Zero(t, s.Store.Len())
}

func TestReduce_StaleLiveMessageIsDiscarded(t *testing.T) {
	t.Parallel()

	s := open(t, connectedState(), 1)
	old := s.Tag()
	s = open(t, s, 2)
	s, _ = step(t, s, evPageLoaded{Tag: s.Tag(), Page: 0, Messages: nil})

	m := msg(50)
	m.ConversationID = 1
	s, _ = step(t, s, evConversationMessage{Tag: old, Message: m})
	require.Zero(t, s.Store.Len())

	// A payload naming another conversation is not merged either.
	s, _ = step(t, s, live(s, m))
	require.Zero(t, s.Store.Len())
}

func TestReduce_HasMoreGatesLoadMore(t *testing.T) {
	t.Parallel()

	s := open(t, connectedState(), 42)

	// Boundary signal before page 0 resolves does nothing.
	s, effects := step(t, s, cmdLoadMore{})
	require.Empty(t, effects)

	s, _ = step(t, s, evPageLoaded{Tag: s.Tag(), Page: 0, Messages: page(100, 71)})
	require.True(t, s.Cursor.HasMore)

	s, effects = step(t, s, cmdLoadMore{})
	require.Equal(t, []actor.Effect{effFetchPage{Tag: s.Tag(), Page: 1, Size: PageSize}}, effects)
	require.True(t, s.Cursor.LoadingMore)

	// A second signal while loading does not start a duplicate fetch.
	s, effects = step(t, s, cmdLoadMore{})
	require.Empty(t, effects)

	s, _ = step(t, s, evPageLoaded{Tag: s.Tag(), Page: 1, Messages: page(70, 61)})
	require.False(t, s.Cursor.HasMore)
	require.False(t, s.Cursor.LoadingMore)
	require.Equal(t, 2, s.Cursor.NextPage)
	require.Equal(t, 40, s.Store.Len())
	require.Equal(t, int64(61), s.Store.IDs()[0])
	require.Equal(t, int64(100), s.Store.IDs()[39])

	_, effects = step(t, s, cmdLoadMore{})
	require.Empty(t, effects)
}

func TestReduce_OlderPagesPrecedeNewerOnes(t *testing.T) {
	t.Parallel()

	s := open(t, connectedState(), 42)
	s, _ = step(t, s, evPageLoaded{Tag: s.Tag(), Page: 0, Messages: page(90, 61)})
	s, _ = step(t, s, live(s, msg(91)))
	s, _ = step(t, s, cmdLoadMore{})
	s, _ = step(t, s, evPageLoaded{Tag: s.Tag(), Page: 1, Messages: page(60, 31)})
	s, _ = step(t, s, cmdLoadMore{})
	s, _ = step(t, s, evPageLoaded{Tag: s.Tag(), Page: 2, Messages: page(30, 1)})

	ids := s.Store.IDs()
	require.Len(t, ids, 91)
	for i, id := range ids {
		require.Equal(t, int64(i+1), id)
	}
}

func TestReduce_LateLoadMoreAfterSwitchIsDiscarded(t *testing.T) {
	t.Parallel()

	s := open(t, connectedState(), 42)
	s, _ = step(t, s, evPageLoaded{Tag: s.Tag(), Page: 0, Messages: page(100, 71)})
	s, _ = step(t, s, cmdLoadMore{})
	tag42 := s.Tag()

	s = open(t, s, 7)
	s, _ = step(t, s, evPageLoaded{Tag: s.Tag(), Page: 0, Messages: page(3, 1)})
	s, _ = step(t, s, evPageLoaded{Tag: tag42, Page: 1, Messages: page(70, 41)})

	require.Equal(t, []int64{1, 2, 3}, s.Store.IDs())
	require.False(t, s.Cursor.LoadingMore)
}

func TestReduce_PageZeroFailureMarksLoadFailed(t *testing.T) {
	t.Parallel()

	s := open(t, connectedState(), 42)
	s, _ = step(t, s, evPageLoaded{Tag: s.Tag(), Page: 0, Err: errors.New("500")})

	require.True(t, s.LoadFailed)
	require.False(t, s.Cursor.Loading)
	v := s.View()
	require.True(t, v.LoadFailed)
	require.False(t, v.HasMore)
	require.Empty(t, v.Messages)

	_, effects := step(t, s, cmdLoadMore{})
	require.Empty(t, effects, "no automatic retry")
}

func TestReduce_LoadMoreFailureKeepsStore(t *testing.T) {
	t.Parallel()

	s := open(t, connectedState(), 42)
	s, _ = step(t, s, evPageLoaded{Tag: s.Tag(), Page: 0, Messages: page(60, 31)})
	s, _ = step(t, s, cmdLoadMore{})
	s, _ = step(t, s, evPageLoaded{Tag: s.Tag(), Page: 1, Err: errors.New("timeout")})

	require.True(t, s.LoadMoreFailed)
	require.Equal(t, 30, s.Store.Len())
	require.True(t, s.Cursor.CanLoadMore(), "next boundary signal may retry")
}

func TestReduce_SendValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		state State
		id    int64
		text  string
		want  error
	}{
		{name: "blank", state: connectedState(), id: 42, text: "  \t", want: ErrEmptyContent},
		{name: "no conversation", state: connectedState(), id: 0, text: "hi", want: ErrNoConversation},
		{name: "disconnected", state: State{LocalUserID: localUser}, id: 42, text: "hi", want: ErrNotConnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply := make(chan error, 1)
			s, effects := step(t, tt.state, cmdSend{ConversationID: tt.id, Content: tt.text, Reply: reply})
			require.Empty(t, effects)
			require.False(t, s.Sending)
			require.ErrorIs(t, <-reply, tt.want)
		})
	}
}

func TestReduce_SendingClearedByOwnEcho(t *testing.T) {
	t.Parallel()

	s := open(t, connectedState(), 42)
	s, _ = step(t, s, evPageLoaded{Tag: s.Tag(), Page: 0, Messages: page(3, 1)})

	reply := make(chan error, 1)
	s, effects := step(t, s, cmdSend{ConversationID: 42, Content: " hello ", Reply: reply})
	require.Equal(t, []actor.Effect{effPublish{ConversationID: 42, Content: " hello ", Reply: reply}}, effects)
	require.True(t, s.Sending)
	require.True(t, s.View().CanSend)

	// Someone else's message does not clear the indicator.
	s, _ = step(t, s, live(s, msg(4)))
	require.True(t, s.Sending)

	own := msg(5)
	own.SenderID = localUser
	s, _ = step(t, s, live(s, own))
	require.False(t, s.Sending)
	require.Equal(t, []int64{1, 2, 3, 4, 5}, s.Store.IDs())
}

func TestReduce_PublishFailureClearsSending(t *testing.T) {
	t.Parallel()

	s := open(t, connectedState(), 42)
	s, _ = step(t, s, cmdSend{ConversationID: 42, Content: "x"})
	require.True(t, s.Sending)

	s, _ = step(t, s, evPublishFailed{ConversationID: 42, Err: ErrNotConnected})
	require.False(t, s.Sending)
}

func TestReduce_DisconnectDisablesSend(t *testing.T) {
	t.Parallel()

	s := open(t, connectedState(), 42)
	s, _ = step(t, s, cmdSend{ConversationID: 42, Content: "x"})
	s, _ = step(t, s, evDisconnected{Reason: "eof"})

	require.False(t, s.Connected)
	require.False(t, s.Sending)
	require.False(t, s.View().CanSend)
}

func TestReduce_ConnectedResubscribesOpenConversation(t *testing.T) {
	t.Parallel()

	s := open(t, State{LocalUserID: localUser}, 42)

	s, effects := step(t, s, evConnected{})
	require.True(t, s.Connected)
	require.Equal(t, []actor.Effect{effResubscribe{Active: s.Tag()}}, effects)

	s, _ = step(t, s, evDisconnected{})
	s, effects = step(t, s, evConnected{})
	require.Len(t, effects, 2)
	require.Equal(t, effResubscribe{Active: s.Tag()}, effects[0])
	require.Equal(t, effFetchConversations{Seq: s.Conversations.Seq}, effects[1])
}

func TestReduce_OpenWhileDisconnectedDefersSubscribe(t *testing.T) {
	t.Parallel()

	_, effects := step(t, State{}, cmdOpenConversation{ConversationID: 42})
	require.Equal(t, []actor.Effect{
		effFetchPage{Tag: RequestTag{ConversationID: 42, Gen: 1}, Page: 0, Size: PageSize},
	}, effects)
}

func TestReduce_CloseConversation(t *testing.T) {
	t.Parallel()

	s := open(t, connectedState(), 42)
	tag := s.Tag()
	s, effects := step(t, s, cmdCloseConversation{})
	require.Equal(t, []actor.Effect{effUnsubscribeConversation{ConversationID: 42}}, effects)
	require.Zero(t, s.Active)

	s, _ = step(t, s, evPageLoaded{Tag: tag, Page: 0, Messages: page(3, 1)})
	require.Zero(t, s.Store.Len())

	_, effects = step(t, s, cmdCloseConversation{})
	require.Empty(t, effects)
}

func TestReduce_PersonalEventRefreshesConversations(t *testing.T) {
	t.Parallel()

	s := connectedState()
	s, effects := step(t, s, evPersonalEvent{})
	require.Equal(t, []actor.Effect{effFetchConversations{Seq: 1}}, effects)
	s, effects = step(t, s, evPersonalEvent{})
	require.Equal(t, []actor.Effect{effFetchConversations{Seq: 2}}, effects)
	require.True(t, s.View().LoadingConversations)

	s, _ = step(t, s, evConversationsLoaded{Seq: 1, Items: []types.Conversation{{ID: 1}}})
	require.Empty(t, s.View().Conversations)

	s, _ = step(t, s, evConversationsLoaded{Seq: 2, Items: []types.Conversation{{ID: 2}}})
	v := s.View()
	require.False(t, v.LoadingConversations)
	require.Equal(t, []types.Conversation{{ID: 2}}, v.Conversations)
}

func TestReduce_FailedRefreshKeepsListAndIsVisible(t *testing.T) {
	t.Parallel()

	s, _ := step(t, connectedState(), cmdRefreshConversations{})
	s, _ = step(t, s, evConversationsLoaded{Seq: 1, Items: []types.Conversation{{ID: 42}}})
	require.False(t, s.View().ConversationsFailed)

	s, _ = step(t, s, cmdRefreshConversations{})
	s, _ = step(t, s, evConversationsLoaded{Seq: 2, Err: errors.New("503")})
	v := s.View()
	require.True(t, v.ConversationsFailed)
	require.False(t, v.LoadingConversations)
	require.Equal(t, []types.Conversation{{ID: 42}}, v.Conversations)

	s, _ = step(t, s, cmdRefreshConversations{})
	s, _ = step(t, s, evConversationsLoaded{Seq: 3, Items: []types.Conversation{{ID: 7}}})
	require.False(t, s.View().ConversationsFailed)
}

func TestView_ActiveSummaryComesFromConversationList(t *testing.T) {
	t.Parallel()

	s, _ := step(t, connectedState(), cmdRefreshConversations{})
	s, _ = step(t, s, evConversationsLoaded{Seq: 1, Items: []types.Conversation{
		{ID: 7, CounterpartDisplayName: "bob"},
		{ID: 42, CounterpartDisplayName: "shop"},
	}})
	require.Zero(t, s.View().ActiveSummary)

	s = open(t, s, 42)
	require.Equal(t, "shop", s.View().ActiveSummary.CounterpartDisplayName)

	s = open(t, s, 99)
	require.Zero(t, s.View().ActiveSummary)
}

func TestReduce_SnapshotRepliesWithView(t *testing.T) {
	t.Parallel()

	s := open(t, connectedState(), 42)
	s, _ = step(t, s, evPageLoaded{Tag: s.Tag(), Page: 0, Messages: page(2, 1)})

	reply := make(chan View, 1)
	_, effects := step(t, s, cmdSnapshot{Reply: reply})
	require.Empty(t, effects)

	v := <-reply
	require.Equal(t, int64(42), v.ActiveConversationID)
	require.Len(t, v.Messages, 2)
}
