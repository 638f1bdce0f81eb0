package client

import (
	"context"
	"net/http"
	"net/url"
)

// ListChatRooms returns the rooms the current user takes part in.
func (c *Client) ListChatRooms(ctx context.Context) ([]ChatRoom, error) {
	var out []ChatRoom
	if err := c.getJSON(ctx, "/chat/rooms", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListRoomMessages returns the history of a room, oldest first.
func (c *Client) ListRoomMessages(ctx context.Context, roomID string) ([]ChatMessage, error) {
	var out []ChatMessage
	if err := c.getJSON(ctx, roomPath(roomID)+"/messages", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MarkRoomRead clears the unread counter of a room.
func (c *Client) MarkRoomRead(ctx context.Context, roomID string) error {
	return c.sendJSON(ctx, http.MethodPut, roomPath(roomID)+"/read", nil, nil)
}

// IncrementUnread bumps the unread counter of a room for the given participant.
func (c *Client) IncrementUnread(ctx context.Context, roomID, userID string) error {
	return c.sendJSON(ctx, http.MethodPut, roomPath(roomID)+"/unread", map[string]string{"userId": userID}, nil)
}

func roomPath(roomID string) string {
	return "/chat/rooms/" + url.PathEscape(roomID)
}
