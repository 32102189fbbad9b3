// Package event delivers client lifecycle events and unsolicited server
// pushes to application listeners.
package event

import "github.com/NeboLoop/chat-go-sdk/wire"

// Name identifies an event. Values are stable and may be shown to users.
type Name string

// Lifecycle events emitted by the connection state machine.
const (
	NameStatusChange     Name = "status:change"
	NameConnected        Name = "connected"
	NameAuthError        Name = "auth:error"
	NameError            Name = "error"
	NameConnectionFailed Name = "connection:failed"
	NameAbnormalClosure  Name = "abnormal:closure"
)

// Push events routed from unsolicited server frames.
const (
	NameDirectMessage        Name = "direct:message"
	NameDirectMessageAck     Name = "direct:message:ack"
	NameDirectMessageHistory Name = "direct:message:history"
	NameGroupMessage         Name = "group:message"
	NameGroupMessageAck      Name = "group:message:ack"
	NameGroupMessageHistory  Name = "group:message:history"
	NameMessageRead          Name = "message:read"
	NameGroupRead            Name = "group:read"
	NameUserStatus           Name = "user:status"
)

// Event is the tagged union of every payload the dispatcher carries. The
// concrete type is determined by EventName.
type Event interface {
	EventName() Name
}

// --- Lifecycle ---

// StatusChanged reports a connection state transition. Status renders as
// "connected", "reconnecting:3" and so on.
type StatusChanged struct {
	Status   string
	Previous string
	Attempt  int
}

// Connected is emitted once authentication succeeds.
type Connected struct {
	UserID string
}

// AuthFailed carries the server's rejection message.
type AuthFailed struct {
	Message string
}

// Error reports a non-fatal channel or server error.
type Error struct {
	Err error
}

// ConnectionFailed is emitted when automatic reconnection gives up.
type ConnectionFailed struct {
	Attempts int
}

// AbnormalClosure is emitted when the channel closes with a code other than
// normal closure.
type AbnormalClosure struct {
	Code   int
	Reason string
}

// --- Pushes ---

// DirectMessage is an incoming direct message.
type DirectMessage struct {
	Message wire.Message
}

// DirectMessageAck is a delivery acknowledgement for a direct send that no
// pending call claimed.
type DirectMessageAck struct {
	Ack wire.MessageAck
}

// DirectMessageHistory is an unsolicited direct history page.
type DirectMessageHistory struct {
	History wire.History
}

// GroupMessage is an incoming group message.
type GroupMessage struct {
	Message wire.Message
}

// GroupMessageAck is a delivery acknowledgement for a group send.
type GroupMessageAck struct {
	Ack wire.MessageAck
}

// GroupMessageHistory is an unsolicited group history page.
type GroupMessageHistory struct {
	History wire.History
}

// MessageRead is a read receipt for a direct conversation.
type MessageRead struct {
	Read wire.MessageRead
}

// GroupRead confirms that a group conversation was marked read.
type GroupRead struct {
	GroupID string
}

// UserStatus is a presence change.
type UserStatus struct {
	Status wire.UserStatus
}

func (StatusChanged) EventName() Name        { return NameStatusChange }
func (Connected) EventName() Name            { return NameConnected }
func (AuthFailed) EventName() Name           { return NameAuthError }
func (Error) EventName() Name                { return NameError }
func (ConnectionFailed) EventName() Name     { return NameConnectionFailed }
func (AbnormalClosure) EventName() Name      { return NameAbnormalClosure }
func (DirectMessage) EventName() Name        { return NameDirectMessage }
func (DirectMessageAck) EventName() Name     { return NameDirectMessageAck }
func (DirectMessageHistory) EventName() Name { return NameDirectMessageHistory }
func (GroupMessage) EventName() Name         { return NameGroupMessage }
func (GroupMessageAck) EventName() Name      { return NameGroupMessageAck }
func (GroupMessageHistory) EventName() Name  { return NameGroupMessageHistory }
func (MessageRead) EventName() Name          { return NameMessageRead }
func (GroupRead) EventName() Name            { return NameGroupRead }
func (UserStatus) EventName() Name           { return NameUserStatus }
