package xgraph

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// UserLookup resolves a handle to its account id.
type UserLookup interface {
	UserID(ctx context.Context, handle string) (string, error)
}

type userByScreenNameResponse struct {
	Data *struct {
		User *struct {
			Result *userResult `json:"result"`
		} `json:"user"`
	} `json:"data"`
	apiErrors
}

// GetUserByScreenName fetches a profile by handle. A leading "@" is ignored.
// Unknown, suspended and unavailable accounts yield ErrUserNotFound.
func (c *Client) GetUserByScreenName(ctx context.Context, handle string) (*Profile, error) {
	handle = normalizeHandle(handle)
	url, err := graphQLURL(opUserByScreenName, map[string]any{
		"screen_name":              handle,
		"withSafetyModeUserFields": true,
	})
	if err != nil {
		return nil, err
	}

	var resp userByScreenNameResponse
	req := &Request{Endpoint: opUserByScreenName, Method: http.MethodGet, URL: url}
	if _, err := c.transport.Send(ctx, req, &resp); err != nil {
		return nil, fmt.Errorf("%s: %w", opUserByScreenName, err)
	}
	return resp.profile(handle)
}

// UserID implements UserLookup.
func (c *Client) UserID(ctx context.Context, handle string) (string, error) {
	p, err := c.GetUserByScreenName(ctx, handle)
	if err != nil {
		return "", err
	}
	return p.ID, nil
}

func (r *userByScreenNameResponse) profile(handle string) (*Profile, error) {
	if r.Data == nil || r.Data.User == nil || r.Data.User.Result == nil {
		if len(r.Errors) > 0 {
			return nil, fmt.Errorf("%w: %s: %s", ErrUserNotFound, handle, r.Errors[0].Message)
		}
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, handle)
	}
	result := r.Data.User.Result
	if result.TypeName == "UserUnavailable" || deref(result.RestID) == "" {
		return nil, fmt.Errorf("%w: %s unavailable", ErrUserNotFound, handle)
	}
	p := newProfile(result)
	return &p, nil
}

func normalizeHandle(handle string) string {
	return strings.TrimPrefix(strings.TrimSpace(handle), "@")
}
