package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

const (
	SortLatest  = "latest"
	SortPopular = "popular"
)

// ListBoards fetches one page of posts. page is zero-based.
func (c *Client) ListBoards(ctx context.Context, sortType string, page, size int) (*BoardPage, error) {
	if sortType == "" {
		sortType = SortLatest
	}
	query := url.Values{
		"sortType": {sortType},
		"page":     {strconv.Itoa(page)},
		"size":     {strconv.Itoa(size)},
	}
	var out BoardPage
	if err := c.getJSON(ctx, "/boards", query, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetBoard fetches a single post.
func (c *Client) GetBoard(ctx context.Context, id int64) (*Board, error) {
	var out Board
	if err := c.getJSON(ctx, boardPath(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateBoard publishes a post with optional file attachments.
func (c *Client) CreateBoard(ctx context.Context, req BoardRequest, files []string) (*Board, error) {
	var out Board
	if err := c.sendMultipart(ctx, http.MethodPost, "/boards", "board", req, files, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateBoard edits a post. Attachments listed in req.DeleteFileIDs are removed, files are added.
func (c *Client) UpdateBoard(ctx context.Context, id int64, req BoardRequest, files []string) (*Board, error) {
	var out Board
	if err := c.sendMultipart(ctx, http.MethodPatch, boardPath(id), "board", req, files, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteBoard removes a post.
func (c *Client) DeleteBoard(ctx context.Context, id int64) error {
	return c.sendJSON(ctx, http.MethodDelete, boardPath(id), nil, nil)
}

func boardPath(id int64) string {
	return fmt.Sprintf("/boards/%d", id)
}
