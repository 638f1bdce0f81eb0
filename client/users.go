package client

import (
	"context"
	"fmt"
	"net/http"
)

// GetUserProfile fetches the public profile of a user.
func (c *Client) GetUserProfile(ctx context.Context, userID int64) (*UserProfile, error) {
	var out UserProfile
	if err := c.getJSON(ctx, fmt.Sprintf("/users/%d", userID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateUserProfile edits a profile. image, when set, is uploaded as the new profile picture.
func (c *Client) UpdateUserProfile(ctx context.Context, userID int64, update ProfileUpdate, image string) (*UserProfile, error) {
	var files []string
	if image != "" {
		files = []string{image}
	}
	var out UserProfile
	if err := c.sendMultipart(ctx, http.MethodPatch, fmt.Sprintf("/users/%d/profile", userID), "profile", update, files, &out); err != nil {
		return nil, err
	}
	if out.ID == 0 {
		out.ID = userID
	}
	return &out, nil
}

// RegisterAdmin grants the admin role to a user. Only admins may call it.
func (c *Client) RegisterAdmin(ctx context.Context, userID int64) error {
	return c.sendJSON(ctx, http.MethodPut, fmt.Sprintf("/admin/users/%d/admin_registration", userID), nil, nil)
}
