package xgraph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

const (
	// maxPageSize is the most entries the relationship timelines return per page.
	maxPageSize     = 50
	defaultPageSize = 20
)

// FollowingPage fetches one page of the accounts userID follows.
// An empty cursor requests the first page. A count <= 0 requests the default
// page size of 20 and counts above 50 are clamped to 50.
func (c *Client) FollowingPage(ctx context.Context, userID string, count int, cursor string) (*Page, error) {
	return c.fetchRelationshipPage(ctx, opFollowing, userID, count, cursor)
}

// FollowersPage fetches one page of userID's followers.
//
// Unless ClientConfig.SeparateFollowersTimeline is set this reads the same
// timeline as FollowingPage. Count and cursor behave as in FollowingPage.
func (c *Client) FollowersPage(ctx context.Context, userID string, count int, cursor string) (*Page, error) {
	op := opFollowing
	if c.cfg.SeparateFollowersTimeline {
		op = opFollowers
	}
	return c.fetchRelationshipPage(ctx, op, userID, count, cursor)
}

// Following returns one page of followed accounts and the cursor of the next page.
func (c *Client) Following(ctx context.Context, userID string, count int, cursor string) ([]Profile, string, error) {
	return unpack(c.FollowingPage(ctx, userID, count, cursor))
}

// Followers returns one page of followers and the cursor of the next page.
func (c *Client) Followers(ctx context.Context, userID string, count int, cursor string) ([]Profile, string, error) {
	return unpack(c.FollowersPage(ctx, userID, count, cursor))
}

// CollectFollowing pages through followed accounts until maxCount profiles,
// the last page, or a repeated cursor. Profiles gathered before an error are
// returned with it.
func (c *Client) CollectFollowing(ctx context.Context, userID string, maxCount int) ([]Profile, error) {
	return collectPages(ctx, c.FollowingPage, userID, maxCount)
}

// CollectFollowers is CollectFollowing for followers.
func (c *Client) CollectFollowers(ctx context.Context, userID string, maxCount int) ([]Profile, error) {
	return collectPages(ctx, c.FollowersPage, userID, maxCount)
}

// Follow follows the account with the given handle.
func (c *Client) Follow(ctx context.Context, handle string) error {
	return c.mutateFriendship(ctx, opFriendshipCreate, handle)
}

// Unfollow unfollows the account with the given handle.
func (c *Client) Unfollow(ctx context.Context, handle string) error {
	return c.mutateFriendship(ctx, opFriendshipDestroy, handle)
}

// fetchRelationshipPage is the single fetch path behind both relationship timelines.
func (c *Client) fetchRelationshipPage(ctx context.Context, operation, userID string, count int, cursor string) (*Page, error) {
	url, err := graphQLURL(operation, relationshipVariables(userID, count, cursor))
	if err != nil {
		return nil, err
	}

	var tree relationshipTimeline
	req := &Request{Endpoint: operation, Method: http.MethodGet, URL: url}
	if _, err := c.transport.Send(ctx, req, &tree); err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}
	page := decodeRelationshipTimeline(&tree)
	return &page, nil
}

func relationshipVariables(userID string, count int, cursor string) map[string]any {
	variables := map[string]any{
		"userId":                 userID,
		"count":                  clampPageSize(count),
		"includePromotedContent": false,
	}
	if cursor != "" {
		variables["cursor"] = cursor
	}
	return variables
}

// clampPageSize maps count into [1, maxPageSize]; non-positive means defaultPageSize.
func clampPageSize(count int) int {
	if count <= 0 {
		return defaultPageSize
	}
	return min(count, maxPageSize)
}

func unpack(page *Page, err error) ([]Profile, string, error) {
	if err != nil {
		return nil, "", err
	}
	return page.Profiles, page.Next, nil
}

type pageFetcher func(ctx context.Context, userID string, count int, cursor string) (*Page, error)

func collectPages(ctx context.Context, fetch pageFetcher, userID string, maxCount int) ([]Profile, error) {
	var profiles []Profile
	var cursor string
	seen := make(map[string]bool)

	for len(profiles) < maxCount {
		if err := ctx.Err(); err != nil {
			return profiles, err
		}
		page, err := fetch(ctx, userID, maxCount-len(profiles), cursor)
		if err != nil {
			return profiles, err
		}
		profiles = append(profiles, page.Profiles...)

		if !page.HasNext() || seen[page.Next] {
			break
		}
		seen[page.Next] = true
		cursor = page.Next
	}
	if len(profiles) > maxCount {
		profiles = profiles[:maxCount]
	}
	return profiles, nil
}

// friendshipForm is the body of friendships/create and friendships/destroy.
func friendshipForm(userID string) FormBody {
	return FormBody{
		{Key: "include_profile_interstitial_type", Value: "1"},
		{Key: "skip_status", Value: "true"},
		{Key: "user_id", Value: userID},
	}
}

func (c *Client) mutateFriendship(ctx context.Context, operation, handle string) error {
	userID, err := c.lookup.UserID(ctx, handle)
	if err != nil {
		return fmt.Errorf("%s %s: %w", operation, handle, err)
	}

	var body json.RawMessage
	req := &Request{
		Endpoint: operation,
		Method:   http.MethodPost,
		URL:      legacyURL(operation),
		Body:     friendshipForm(userID),
		Account:  c.cfg.Actor,
	}
	if _, err := c.transport.Send(ctx, req, &body); err != nil {
		return fmt.Errorf("%s %s: %w", operation, handle, err)
	}
	if c.cfg.StrictMutations {
		if err := responseError(operation, body); err != nil {
			return err
		}
	}
	return nil
}
