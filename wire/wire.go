// Package wire defines the JSON payload types carried by chat frames. Field
// names match the backend's camelCase protocol; the envelope fields (type,
// requestId) are added by package frame.
package wire

import "time"

// Message is a persisted chat message as the server reports it. Exactly one
// of RecipientID and GroupID is set.
type Message struct {
	ID          string    `json:"id"`
	TempID      string    `json:"tempId,omitempty"`
	SenderID    string    `json:"senderId"`
	RecipientID string    `json:"recipientId,omitempty"`
	GroupID     string    `json:"groupId,omitempty"`
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"createdAt"`
}

// IsGroup reports whether m belongs to a group conversation.
func (m Message) IsGroup() bool { return m.GroupID != "" }

// Page selects a window of message history. Zero values mean server defaults.
type Page struct {
	Limit  int    `json:"limit,omitempty"`
	Before string `json:"before,omitempty"` // message id; fetch strictly older messages
}

// --------------------------------------------------------------------------
// Authentication
// --------------------------------------------------------------------------

// AuthPayload is the payload of an auth frame (client -> server).
type AuthPayload struct {
	Token string `json:"token"`
}

// AuthSuccessPayload is the payload of auth_success (server -> client).
type AuthSuccessPayload struct {
	UserID string `json:"userId"`
}

// ErrorPayload is the payload of auth_error and error frames.
type ErrorPayload struct {
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

// --------------------------------------------------------------------------
// Direct messages
// --------------------------------------------------------------------------

// DirectMessagePayload is the payload of direct_message (client -> server).
type DirectMessagePayload struct {
	RecipientID string `json:"recipientId"`
	Content     string `json:"content"`
	TempID      string `json:"tempId"`
}

// DirectHistoryRequest is the payload of get_direct_message_history.
type DirectHistoryRequest struct {
	PartnerID string `json:"partnerId"`
	Page
}

// PartnerPayload carries a single partner id (mark_direct_read).
type PartnerPayload struct {
	PartnerID string `json:"partnerId"`
}

// MessageRead is the payload of message_read (server -> client).
type MessageRead struct {
	PartnerID string    `json:"partnerId"`
	ReaderID  string    `json:"readerId,omitempty"`
	ReadAt    time.Time `json:"readAt,omitempty"`
}

// --------------------------------------------------------------------------
// Group messages
// --------------------------------------------------------------------------

// GroupMessagePayload is the payload of group_chat_message (client -> server).
type GroupMessagePayload struct {
	GroupID string `json:"groupId"`
	Content string `json:"content"`
	TempID  string `json:"tempId"`
}

// GroupHistoryRequest is the payload of get_group_message_history.
type GroupHistoryRequest struct {
	GroupID string `json:"groupId"`
	Page
}

// GroupPayload carries a single group id (mark_group_read, leave_group,
// delete_group, marked_group_read_success).
type GroupPayload struct {
	GroupID string `json:"groupId"`
}

// --------------------------------------------------------------------------
// Shared server -> client payloads
// --------------------------------------------------------------------------

// MessageAck confirms an optimistic send (message_ack, group_message_sent).
type MessageAck struct {
	TempID  string  `json:"tempId"`
	Message Message `json:"message"`
}

// MessagePush carries an unsolicited incoming message (chat_message,
// group_chat_message).
type MessagePush struct {
	Message Message `json:"message"`
}

// History is the payload of direct_message_history and group_message_history.
type History struct {
	PartnerID string    `json:"partnerId,omitempty"`
	GroupID   string    `json:"groupId,omitempty"`
	Messages  []Message `json:"messages"`
}

// UserStatus is the payload of user_status presence pushes.
type UserStatus struct {
	UserID string `json:"userId"`
	Status string `json:"status"` // "online", "offline", "away"
}

// --------------------------------------------------------------------------
// Group management
// --------------------------------------------------------------------------

// Group describes a group chat.
type Group struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"ownerId,omitempty"`
	MemberIDs []string  `json:"memberIds,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// CreateGroupPayload is the payload of create_group.
type CreateGroupPayload struct {
	Name      string   `json:"name"`
	MemberIDs []string `json:"memberIds,omitempty"`
}

// UpdateGroupPayload is the payload of update_group.
type UpdateGroupPayload struct {
	GroupID string `json:"groupId"`
	Name    string `json:"name"`
}

// GroupMemberPayload is the payload of add_group_member and
// remove_group_member.
type GroupMemberPayload struct {
	GroupID string `json:"groupId"`
	UserID  string `json:"userId"`
}

// GroupResult is the response to a group management call. Group is nil when
// the server reports no group (leave, delete).
type GroupResult struct {
	Group *Group `json:"group,omitempty"`
}
