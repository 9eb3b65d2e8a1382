package chat

import "github.com/primeshop/chat/pkg/types"

// PageSize is the number of messages requested per history page.
const PageSize = 30

// MessageStore is the ordered, deduplicated message list of one conversation.
// Messages are kept oldest-first and no id appears twice.
//
// A MessageStore is immutable: every operation returns a new store and never
// writes through to the receiver's backing array. Reducer states can therefore
// be shared with observers without copying.
type MessageStore struct {
	msgs []types.Message
}

// Len returns the number of stored messages.
func (s MessageStore) Len() int { return len(s.msgs) }

// Contains reports whether a message with id is stored.
func (s MessageStore) Contains(id int64) bool {
	for i := range s.msgs {
		if s.msgs[i].ID == id {
			return true
		}
	}
	return false
}

// Messages returns a copy of the stored messages, oldest first.
func (s MessageStore) Messages() []types.Message {
	if len(s.msgs) == 0 {
		return nil
	}
	out := make([]types.Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

// IDs returns the stored message ids, oldest first.
func (s MessageStore) IDs() []int64 {
	ids := make([]int64, len(s.msgs))
	for i := range s.msgs {
		ids[i] = s.msgs[i].ID
	}
	return ids
}

// Append adds a live message at the end if its id is not stored yet. The
// second result reports whether the store changed.
func (s MessageStore) Append(m types.Message) (MessageStore, bool) {
	if s.Contains(m.ID) {
		return s, false
	}
	out := make([]types.Message, len(s.msgs), len(s.msgs)+1)
	copy(out, s.msgs)
	return MessageStore{msgs: append(out, m)}, true
}

// ReplaceWithPage installs page 0. page is newest-first as served by the
// backend and is reversed. Messages already held (live pushes that won the
// race against the page fetch) are re-appended after it unless the page
// already contains them.
func (s MessageStore) ReplaceWithPage(page []types.Message) MessageStore {
	out := make([]types.Message, 0, len(page)+len(s.msgs))
	seen := make(map[int64]struct{}, len(page)+len(s.msgs))
	for i := len(page) - 1; i >= 0; i-- {
		if _, dup := seen[page[i].ID]; dup {
			continue
		}
		seen[page[i].ID] = struct{}{}
		out = append(out, page[i])
	}
	for _, m := range s.msgs {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		out = append(out, m)
	}
	return MessageStore{msgs: out}
}

// PrependPage merges an older page in front of the stored messages. page is
// newest-first and is reversed; ids already stored are skipped.
func (s MessageStore) PrependPage(page []types.Message) MessageStore {
	seen := make(map[int64]struct{}, len(page)+len(s.msgs))
	for _, m := range s.msgs {
		seen[m.ID] = struct{}{}
	}
	out := make([]types.Message, 0, len(page)+len(s.msgs))
	for i := len(page) - 1; i >= 0; i-- {
		if _, dup := seen[page[i].ID]; dup {
			continue
		}
		seen[page[i].ID] = struct{}{}
		out = append(out, page[i])
	}
	return MessageStore{msgs: append(out, s.msgs...)}
}

// Cursor is the backward pagination position of the active conversation.
type Cursor struct {
	ConversationID int64
	// NextPage is the index the next load-more request asks for. It is 0
	// until page 0 has been applied.
	NextPage int
	// HasMore is false once a page shorter than PageSize was returned.
	HasMore bool
	// Loading is set while page 0 is in flight.
	Loading bool
	// LoadingMore is set while a page > 0 is in flight.
	LoadingMore bool
}

// newCursor returns the cursor of a freshly opened conversation.
func newCursor(conversationID int64) Cursor {
	return Cursor{ConversationID: conversationID, HasMore: true, Loading: true}
}

// CanLoadMore reports whether a boundary signal may start a fetch.
func (c Cursor) CanLoadMore() bool {
	return c.ConversationID != 0 && c.NextPage > 0 && c.HasMore && !c.Loading && !c.LoadingMore
}
