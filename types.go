package chat

import (
	"time"

	"github.com/NeboLoop/chat-go-sdk/wire"
)

// --------------------------------------------------------------------------
// REST Types
// --------------------------------------------------------------------------

// Partner is a user the caller has a direct conversation with
// (GET /chat/partners).
type Partner struct {
	UserID      string        `json:"userId"`
	DisplayName string        `json:"displayName,omitempty"`
	AvatarURL   string        `json:"avatarUrl,omitempty"`
	Online      bool          `json:"online,omitempty"`
	UnreadCount int           `json:"unreadCount,omitempty"`
	LastMessage *wire.Message `json:"lastMessage,omitempty"`
	UpdatedAt   time.Time     `json:"updatedAt,omitempty"`
}

// GroupSummary is a group the caller belongs to (GET /chat/groups).
type GroupSummary struct {
	wire.Group
	UnreadCount int           `json:"unreadCount,omitempty"`
	LastMessage *wire.Message `json:"lastMessage,omitempty"`
}
