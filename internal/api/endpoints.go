package api

import (
	"context"
	"fmt"
	"net/url"

	"github.com/mverhagen/memberhub/internal/model"
)

// Session fetches the current session. An anonymous visitor yields a
// session with a nil user, not an error.
func (c *Client) Session(ctx context.Context) (*model.Session, error) {
	var session model.Session
	if err := c.Get(ctx, "/api/v1/session", &session); err != nil {
		return nil, fmt.Errorf("fetching session: %w", err)
	}
	return &session, nil
}

// Activities fetches one page of the member activity feed. Page indices
// start at 0; the server reports the total count on every page.
func (c *Client) Activities(
	ctx context.Context,
	page, pageSize int,
) (*model.ActivityPage, error) {
	path := fmt.Sprintf(
		"/api/v1/activities?page=%d&page_size=%d", page, pageSize,
	)

	var result model.ActivityPage
	if err := c.Get(ctx, path, &result); err != nil {
		return nil, fmt.Errorf("fetching activities page %d: %w", page, err)
	}

	// The server echoes the page size only implicitly; record what we
	// asked for so end-of-feed detection compares against it.
	result.PageSize = pageSize
	return &result, nil
}

// UnreadCount fetches the number of unread activities for the member.
func (c *Client) UnreadCount(ctx context.Context) (int, error) {
	var result struct {
		UnreadActivityCount int `json:"unreadActivityCount"`
	}
	if err := c.Get(ctx, "/api/v1/activities/unread-count", &result); err != nil {
		return 0, fmt.Errorf("fetching unread count: %w", err)
	}
	return result.UnreadActivityCount, nil
}

// AnnouncementBySlug fetches a single announcement. A missing announcement
// is reported as a NotFoundError, which callers treat as a suppression
// signal rather than a failure.
func (c *Client) AnnouncementBySlug(
	ctx context.Context,
	slug string,
) (*model.Announcement, error) {
	path := "/api/v1/announcements/" + url.PathEscape(slug)

	var result model.Announcement
	if err := c.Get(ctx, path, &result); err != nil {
		if IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("fetching announcement %q: %w", slug, err)
	}
	return &result, nil
}

// MarkActivityInteracted confirms that the member interacted with the given
// activity (e.g., dismissed its announcement). The endpoint is idempotent.
func (c *Client) MarkActivityInteracted(
	ctx context.Context,
	activityID string,
) error {
	path := "/api/v1/activities/" + url.PathEscape(activityID) + "/interacted"
	if err := c.Post(ctx, path, nil, nil); err != nil {
		return fmt.Errorf("marking activity %s interacted: %w", activityID, err)
	}
	return nil
}

// RegisterDevice registers a device token for push delivery. Push
// subscription management lives server-side; this is the only call the
// client makes into it.
func (c *Client) RegisterDevice(ctx context.Context, deviceToken string) error {
	payload := map[string]string{"device_token": deviceToken}
	if err := c.Post(ctx, "/api/v1/devices", payload, nil); err != nil {
		return fmt.Errorf("registering device: %w", err)
	}
	return nil
}
