package chat

import (
	"context"
	"fmt"

	"github.com/NeboLoop/chat-go-sdk/frame"
	"github.com/NeboLoop/chat-go-sdk/wire"
)

// --------------------------------------------------------------------------
// Messages
// --------------------------------------------------------------------------

// SendDirectMessage sends content to recipientID and waits for the server's
// message_ack. An empty tempID is replaced with a fresh one.
func (c *Client) SendDirectMessage(ctx context.Context, recipientID, content, tempID string) (wire.MessageAck, error) {
	if tempID == "" {
		tempID = frame.NewTempID()
	}
	return callAs[wire.MessageAck](ctx, c, frame.TypeDirectMessage, wire.DirectMessagePayload{
		RecipientID: recipientID,
		Content:     content,
		TempID:      tempID,
	})
}

// SendGroupMessage sends content to groupID and waits for group_message_sent.
func (c *Client) SendGroupMessage(ctx context.Context, groupID, content, tempID string) (wire.MessageAck, error) {
	if tempID == "" {
		tempID = frame.NewTempID()
	}
	return callAs[wire.MessageAck](ctx, c, frame.TypeGroupChatMessage, wire.GroupMessagePayload{
		GroupID: groupID,
		Content: content,
		TempID:  tempID,
	})
}

// DirectMessageHistory fetches a page of the conversation with partnerID.
func (c *Client) DirectMessageHistory(ctx context.Context, partnerID string, page wire.Page) (wire.History, error) {
	h, err := callAs[wire.History](ctx, c, frame.TypeGetDirectHistory, wire.DirectHistoryRequest{
		PartnerID: partnerID,
		Page:      page,
	})
	if err == nil && h.PartnerID == "" {
		h.PartnerID = partnerID
	}
	return h, err
}

// GroupMessageHistory fetches a page of groupID's conversation.
func (c *Client) GroupMessageHistory(ctx context.Context, groupID string, page wire.Page) (wire.History, error) {
	h, err := callAs[wire.History](ctx, c, frame.TypeGetGroupHistory, wire.GroupHistoryRequest{
		GroupID: groupID,
		Page:    page,
	})
	if err == nil && h.GroupID == "" {
		h.GroupID = groupID
	}
	return h, err
}

// MarkDirectRead marks the conversation with partnerID as read.
func (c *Client) MarkDirectRead(ctx context.Context, partnerID string) error {
	_, err := c.Call(ctx, frame.TypeMarkDirectRead, wire.PartnerPayload{PartnerID: partnerID}, 0)
	return err
}

// MarkGroupRead marks groupID as read.
func (c *Client) MarkGroupRead(ctx context.Context, groupID string) error {
	_, err := c.Call(ctx, frame.TypeMarkGroupRead, wire.GroupPayload{GroupID: groupID}, 0)
	return err
}

// --------------------------------------------------------------------------
// Group management
// --------------------------------------------------------------------------

// CreateGroup creates a group with the given members.
func (c *Client) CreateGroup(ctx context.Context, name string, memberIDs []string) (*wire.Group, error) {
	return c.groupCall(ctx, frame.TypeCreateGroup, wire.CreateGroupPayload{Name: name, MemberIDs: memberIDs})
}

// UpdateGroup renames a group.
func (c *Client) UpdateGroup(ctx context.Context, groupID, name string) (*wire.Group, error) {
	return c.groupCall(ctx, frame.TypeUpdateGroup, wire.UpdateGroupPayload{GroupID: groupID, Name: name})
}

// AddGroupMember adds userID to a group.
func (c *Client) AddGroupMember(ctx context.Context, groupID, userID string) (*wire.Group, error) {
	return c.groupCall(ctx, frame.TypeAddGroupMember, wire.GroupMemberPayload{GroupID: groupID, UserID: userID})
}

// RemoveGroupMember removes userID from a group.
func (c *Client) RemoveGroupMember(ctx context.Context, groupID, userID string) (*wire.Group, error) {
	return c.groupCall(ctx, frame.TypeRemoveGroupMember, wire.GroupMemberPayload{GroupID: groupID, UserID: userID})
}

// LeaveGroup removes the current user from a group.
func (c *Client) LeaveGroup(ctx context.Context, groupID string) error {
	_, err := c.groupCall(ctx, frame.TypeLeaveGroup, wire.GroupPayload{GroupID: groupID})
	return err
}

// DeleteGroup deletes a group the current user owns.
func (c *Client) DeleteGroup(ctx context.Context, groupID string) error {
	_, err := c.groupCall(ctx, frame.TypeDeleteGroup, wire.GroupPayload{GroupID: groupID})
	return err
}

func (c *Client) groupCall(ctx context.Context, typ string, payload any) (*wire.Group, error) {
	res, err := callAs[wire.GroupResult](ctx, c, typ, payload)
	if err != nil {
		return nil, err
	}
	return res.Group, nil
}

// callAs issues a correlated call with the default timeout and decodes the
// response payload into T.
func callAs[T any](ctx context.Context, c *Client, typ string, payload any) (T, error) {
	var v T
	f, err := c.Call(ctx, typ, payload, 0)
	if err != nil {
		return v, err
	}
	if err := f.Unmarshal(&v); err != nil {
		return v, fmt.Errorf("%s: %w", typ, err)
	}
	return v, nil
}
