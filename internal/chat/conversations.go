package chat

import "github.com/primeshop/chat/pkg/types"

// ConversationCache holds the conversation summaries of the local user. It
// is replaced wholesale on every refresh; entries are never patched.
type ConversationCache struct {
	items []types.Conversation

	// Seq identifies the newest refresh issued. Responses carrying an older
	// sequence are discarded.
	Seq uint64
	// Loading is set while the newest refresh is in flight.
	Loading bool
	// Failed is set when the newest refresh failed; the previous list is kept.
	Failed bool
}

// Begin starts a refresh and returns the updated cache plus the sequence the
// response must carry.
func (c ConversationCache) Begin() (ConversationCache, uint64) {
	c.Seq++
	c.Loading = true
	return c, c.Seq
}

// Apply installs the response of refresh seq. Stale responses leave the cache
// untouched and report false.
func (c ConversationCache) Apply(seq uint64, items []types.Conversation, err error) (ConversationCache, bool) {
	if seq != c.Seq {
		return c, false
	}
	c.Loading = false
	if err != nil {
		c.Failed = true
		return c, true
	}
	c.Failed = false
	c.items = append([]types.Conversation(nil), items...)
	return c, true
}

// Items returns a copy of the cached summaries in server order.
func (c ConversationCache) Items() []types.Conversation {
	if len(c.items) == 0 {
		return nil
	}
	return append([]types.Conversation(nil), c.items...)
}

// Find returns the summary of conversationID.
func (c ConversationCache) Find(conversationID int64) (types.Conversation, bool) {
	for _, conv := range c.items {
		if conv.ID == conversationID {
			return conv, true
		}
	}
	return types.Conversation{}, false
}
