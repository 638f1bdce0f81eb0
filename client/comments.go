package client

import (
	"context"
	"fmt"
	"net/http"
)

type commentRequest struct {
	Text string `json:"text"`
}

func (c *Client) ListComments(ctx context.Context, boardID int64) ([]Comment, error) {
	var out []Comment
	if err := c.getJSON(ctx, boardPath(boardID)+"/comments", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) AddComment(ctx context.Context, boardID int64, text string) (*Comment, error) {
	var out Comment
	if err := c.sendJSON(ctx, http.MethodPost, boardPath(boardID)+"/comments", commentRequest{Text: text}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateComment(ctx context.Context, boardID, commentID int64, text string) (*Comment, error) {
	var out Comment
	if err := c.sendJSON(ctx, http.MethodPut, commentPath(boardID, commentID), commentRequest{Text: text}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteComment(ctx context.Context, boardID, commentID int64) error {
	return c.sendJSON(ctx, http.MethodDelete, commentPath(boardID, commentID), nil, nil)
}

func commentPath(boardID, commentID int64) string {
	return fmt.Sprintf("/boards/%d/comments/%d", boardID, commentID)
}
