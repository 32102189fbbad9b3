// Package conversation keeps a local, persisted view of each conversation in
// step with the server. Optimistic sends appear immediately as provisional
// messages and are replaced by the server's copy once acknowledged; history
// pages are merged into the cache without losing local-only entries.
package conversation

import (
	"strings"
	"time"

	"github.com/NeboLoop/chat-go-sdk/wire"
)

// Message is a cached chat message. A provisional message has a TempID, no
// ID and IsPending set until the server acknowledges it.
type Message struct {
	ID           string    `json:"id,omitempty"`
	TempID       string    `json:"tempId,omitempty"`
	SenderID     string    `json:"senderId"`
	RecipientID  string    `json:"recipientId,omitempty"`
	GroupID      string    `json:"groupId,omitempty"`
	Content      string    `json:"content"`
	CreatedAt    time.Time `json:"createdAt"`
	IsPending    bool      `json:"isPending,omitempty"`
	IsFromServer bool      `json:"isFromServer,omitempty"`
}

// FromWire converts a server message.
func FromWire(m wire.Message) Message {
	return Message{
		ID:           m.ID,
		TempID:       m.TempID,
		SenderID:     m.SenderID,
		RecipientID:  m.RecipientID,
		GroupID:      m.GroupID,
		Content:      m.Content,
		CreatedAt:    m.CreatedAt,
		IsFromServer: true,
	}
}

// FromWireAll converts a history page.
func FromWireAll(ms []wire.Message) []Message {
	out := make([]Message, len(ms))
	for i, m := range ms {
		out[i] = FromWire(m)
	}
	return out
}

// Key identifies a conversation: "direct:<partnerID>" or "group:<groupID>".
type Key string

const (
	directPrefix = "direct:"
	groupPrefix  = "group:"
)

// DirectKey is the key of the direct conversation with partnerID.
func DirectKey(partnerID string) Key { return Key(directPrefix + partnerID) }

// GroupKey is the key of groupID's conversation.
func GroupKey(groupID string) Key { return Key(groupPrefix + groupID) }

// IsGroup reports whether k names a group conversation.
func (k Key) IsGroup() bool { return strings.HasPrefix(string(k), groupPrefix) }

// ID returns the partner or group id.
func (k Key) ID() string {
	s := string(k)
	if after, ok := strings.CutPrefix(s, groupPrefix); ok {
		return after
	}
	return strings.TrimPrefix(s, directPrefix)
}

func (k Key) String() string { return string(k) }

// KeyFor returns the conversation m belongs to from selfID's point of view.
func KeyFor(m wire.Message, selfID string) Key {
	if m.GroupID != "" {
		return GroupKey(m.GroupID)
	}
	if m.SenderID == selfID {
		return DirectKey(m.RecipientID)
	}
	return DirectKey(m.SenderID)
}
