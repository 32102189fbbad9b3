// Package frame implements the JSON frame codec for the chat duplex protocol.
//
// Every frame is a single JSON object carrying a string "type" tag. Responses
// echo the caller's "requestId"; optimistic sends carry a client-assigned
// "tempId". Payload fields sit beside these envelope fields:
//
//	{"type":"direct_message","requestId":"01J...","recipientId":"u2","content":"hi","tempId":"temp-..."}
package frame

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// MaxFrameLen bounds a single inbound frame.
const MaxFrameLen = 1 << 20

// Client -> server frame types.
const (
	TypeAuth              = "auth"
	TypePing              = "ping"
	TypePong              = "pong"
	TypeGetDirectHistory  = "get_direct_message_history"
	TypeDirectMessage     = "direct_message"
	TypeMarkDirectRead    = "mark_direct_read"
	TypeGetGroupHistory   = "get_group_message_history"
	TypeGroupChatMessage  = "group_chat_message"
	TypeMarkGroupRead     = "mark_group_read"
	TypeCreateGroup       = "create_group"
	TypeUpdateGroup       = "update_group"
	TypeAddGroupMember    = "add_group_member"
	TypeRemoveGroupMember = "remove_group_member"
	TypeLeaveGroup        = "leave_group"
	TypeDeleteGroup       = "delete_group"
)

// Server -> client frame types. TypePing, TypePong and TypeGroupChatMessage
// are shared with the client direction.
const (
	TypeAuthSuccess      = "auth_success"
	TypeAuthError        = "auth_error"
	TypeChatMessage      = "chat_message"
	TypeMessageAck       = "message_ack"
	TypeGroupMessageSent = "group_message_sent"
	TypeDirectHistory    = "direct_message_history"
	TypeGroupHistory     = "group_message_history"
	TypeMessageRead      = "message_read"
	TypeMarkedGroupRead  = "marked_group_read_success"
	TypeUserStatus       = "user_status"
	TypeError            = "error"
)

var (
	ErrMalformed     = errors.New("frame: malformed json object")
	ErrMissingType   = errors.New("frame: missing type")
	ErrFrameTooLarge = errors.New("frame: exceeds maximum size")
)

// Frame is a decoded inbound frame. Raw holds the full JSON object so the
// payload can be decoded into whichever wire type matches Type.
type Frame struct {
	Type      string
	RequestID string
	TempID    string
	Raw       []byte
}

// Encode serialises payload as a frame of the given type. payload must
// marshal to a JSON object or be nil.
func Encode(typ string, payload any) ([]byte, error) {
	if typ == "" {
		return nil, ErrMissingType
	}
	body := []byte("{}")
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", typ, err)
		}
		if !gjson.ParseBytes(b).IsObject() {
			return nil, fmt.Errorf("%w: %s payload is not an object", ErrMalformed, typ)
		}
		body = b
	}
	return sjson.SetBytes(body, "type", typ)
}

// WithRequestID stamps requestId into an encoded frame.
func WithRequestID(data []byte, id string) ([]byte, error) {
	return sjson.SetBytes(data, "requestId", id)
}

// Decode parses one inbound frame.
func Decode(data []byte) (Frame, error) {
	if len(data) > MaxFrameLen {
		return Frame{}, ErrFrameTooLarge
	}
	if !gjson.ValidBytes(data) {
		return Frame{}, ErrMalformed
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return Frame{}, ErrMalformed
	}
	res := root.Get("type")
	if res.Type != gjson.String || res.Str == "" {
		return Frame{}, ErrMissingType
	}
	return Frame{
		Type:      res.Str,
		RequestID: root.Get("requestId").String(),
		TempID:    root.Get("tempId").String(),
		Raw:       data,
	}, nil
}

// Unmarshal decodes the frame's payload fields into v.
func (f Frame) Unmarshal(v any) error {
	if err := json.Unmarshal(f.Raw, v); err != nil {
		return fmt.Errorf("decode %s: %w", f.Type, err)
	}
	return nil
}

// Message returns the "message" field, used by error and auth_error frames.
func (f Frame) Message() string {
	return gjson.GetBytes(f.Raw, "message").String()
}

// IsError reports whether the frame is an error response.
func (f Frame) IsError() bool { return f.Type == TypeError || f.Type == TypeAuthError }
