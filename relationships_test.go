package xgraph

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeTransport records requests and answers them with canned bodies in order;
// the last body repeats.
type fakeTransport struct {
	requests []*Request
	bodies   []string
	err      error
}

func (f *fakeTransport) Send(_ context.Context, req *Request, out any) (map[string]string, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	body := f.bodies[min(len(f.requests), len(f.bodies))-1]
	return map[string]string{}, decodePayload(req.Endpoint, []byte(body), out)
}

type fakeLookup map[string]string

func (l fakeLookup) UserID(_ context.Context, handle string) (string, error) {
	if id, ok := l[handle]; ok {
		return id, nil
	}
	return "", ErrUserNotFound
}

func newTestClient(t *testing.T, tr *fakeTransport, cfg ClientConfig) *Client {
	t.Helper()
	cfg.Transport = tr
	if cfg.Lookup == nil {
		cfg.Lookup = fakeLookup{"bob": "999"}
	}
	c, err := NewClient(cfg)
	require.NoError(t, err)
	return c
}

// requestVariables decodes the variables query parameter of a GraphQL GET.
func requestVariables(t *testing.T, req *Request) map[string]any {
	t.Helper()
	u, err := url.Parse(req.URL)
	require.NoError(t, err)
	var v map[string]any
	require.NoError(t, json.Unmarshal([]byte(u.Query().Get("variables")), &v))
	return v
}

func TestFollowingPageRequest(t *testing.T) {
	tr := &fakeTransport{bodies: []string{aliceTimeline}}
	c := newTestClient(t, tr, ClientConfig{})

	page, err := c.FollowingPage(context.Background(), "42", 10, "")
	require.NoError(t, err)
	require.Equal(t, []string{"alice"}, handles(page.Profiles))
	require.Equal(t, "CURSOR1", page.Next)

	require.Len(t, tr.requests, 1)
	req := tr.requests[0]
	require.Equal(t, "GET", req.Method)
	require.Equal(t, opFollowing, req.Endpoint)
	require.Nil(t, req.Body)
	require.True(t, strings.HasPrefix(req.URL, "https://x.com/i/api/graphql/"+Endpoints[opFollowing].ID+"/Following?variables="), req.URL)

	u, err := url.Parse(req.URL)
	require.NoError(t, err)
	var features map[string]any
	require.NoError(t, json.Unmarshal([]byte(u.Query().Get("features")), &features))
	require.Equal(t, relationshipFeatures(), features)

	require.Equal(t, map[string]any{
		"userId":                 "42",
		"count":                  float64(10),
		"includePromotedContent": false,
	}, requestVariables(t, req))
}

func TestFollowingPageCount(t *testing.T) {
	tests := []struct {
		count int
		want  float64
	}{
		{200, 50},
		{50, 50},
		{51, 50},
		{1, 1},
		{0, 20},
		{-3, 20},
	}
	for _, tt := range tests {
		tr := &fakeTransport{bodies: []string{`{"data":null}`}}
		c := newTestClient(t, tr, ClientConfig{})

		_, err := c.FollowingPage(context.Background(), "42", tt.count, "")
		require.NoError(t, err)
		require.Equal(t, tt.want, requestVariables(t, tr.requests[0])["count"], "count=%d", tt.count)
	}
}

func TestFollowingPageCursor(t *testing.T) {
	tr := &fakeTransport{bodies: []string{`{"data":null}`}}
	c := newTestClient(t, tr, ClientConfig{})

	_, err := c.FollowingPage(context.Background(), "42", 20, "")
	require.NoError(t, err)
	require.NotContains(t, requestVariables(t, tr.requests[0]), "cursor")

	_, err = c.FollowingPage(context.Background(), "42", 20, "DAABCgABGc+&x=1")
	require.NoError(t, err)
	require.Equal(t, "DAABCgABGc+&x=1", requestVariables(t, tr.requests[1])["cursor"])
}

func TestFollowersRouting(t *testing.T) {
	tr := &fakeTransport{bodies: []string{aliceTimeline}}
	c := newTestClient(t, tr, ClientConfig{})

	profiles, next, err := c.Followers(context.Background(), "42", 20, "")
	require.NoError(t, err)
	require.Equal(t, []string{"alice"}, handles(profiles))
	require.Equal(t, "CURSOR1", next)
	require.Equal(t, opFollowing, tr.requests[0].Endpoint)
	require.Contains(t, tr.requests[0].URL, "/Following?")

	tr = &fakeTransport{bodies: []string{aliceTimeline}}
	c = newTestClient(t, tr, ClientConfig{SeparateFollowersTimeline: true})

	_, _, err = c.Followers(context.Background(), "42", 20, "")
	require.NoError(t, err)
	require.Equal(t, opFollowers, tr.requests[0].Endpoint)
	require.Contains(t, tr.requests[0].URL, "/"+Endpoints[opFollowers].ID+"/Followers?")
}

func TestFollowingEmptyPage(t *testing.T) {
	tr := &fakeTransport{bodies: []string{`{"data":null}`}}
	c := newTestClient(t, tr, ClientConfig{})

	profiles, next, err := c.Following(context.Background(), "42", 20, "")
	require.NoError(t, err)
	require.Empty(t, profiles)
	require.Empty(t, next)
}

func TestFollowingErrors(t *testing.T) {
	apiErr := &APIError{Endpoint: opFollowing, Status: 404, Body: "not found"}
	c := newTestClient(t, &fakeTransport{err: apiErr}, ClientConfig{})

	profiles, next, err := c.Following(context.Background(), "42", 20, "")
	require.Nil(t, profiles)
	require.Empty(t, next)
	var gotAPI *APIError
	require.ErrorAs(t, err, &gotAPI)
	require.Equal(t, 404, gotAPI.Status)

	c = newTestClient(t, &fakeTransport{bodies: []string{`not json`}}, ClientConfig{})
	_, err = c.FollowingPage(context.Background(), "42", 20, "")
	var gotDecode *DecodeError
	require.ErrorAs(t, err, &gotDecode)
}

func TestCollectFollowing(t *testing.T) {
	tr := &fakeTransport{bodies: []string{
		timelineBody(`{"type":"TimelineAddEntries","entries":[` + userEntry("1", "a") + `,` + userEntry("2", "b") + `,` + cursorEntry("Bottom", "P2") + `]}`),
		timelineBody(`{"type":"TimelineAddEntries","entries":[` + cursorEntry("Bottom", "P3") + `]}`),
		timelineBody(`{"type":"TimelineAddEntries","entries":[` + userEntry("3", "c") + `,` + cursorEntry("Bottom", "P4") + `]}`),
		timelineBody(`{"type":"TimelineAddEntries","entries":[` + userEntry("4", "d") + `]}`),
	}}
	c := newTestClient(t, tr, ClientConfig{})

	profiles, err := c.CollectFollowing(context.Background(), "42", 100)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c", "d"}, handles(profiles))
	require.Len(t, tr.requests, 4)
	require.NotContains(t, requestVariables(t, tr.requests[0]), "cursor")
	require.Equal(t, "P2", requestVariables(t, tr.requests[1])["cursor"])
	require.Equal(t, "P4", requestVariables(t, tr.requests[3])["cursor"])
}

func TestCollectFollowersStops(t *testing.T) {
	page := timelineBody(`{"type":"TimelineAddEntries","entries":[` + userEntry("1", "a") + `,` + userEntry("2", "b") + `,` + cursorEntry("Bottom", "SAME") + `]}`)

	t.Run("max reached", func(t *testing.T) {
		tr := &fakeTransport{bodies: []string{page}}
		c := newTestClient(t, tr, ClientConfig{})
		profiles, err := c.CollectFollowers(context.Background(), "42", 3)
		require.NoError(t, err)
		require.Len(t, profiles, 3)
		require.Len(t, tr.requests, 2)
		require.Equal(t, float64(1), requestVariables(t, tr.requests[1])["count"])
	})

	t.Run("repeated cursor", func(t *testing.T) {
		tr := &fakeTransport{bodies: []string{page}}
		c := newTestClient(t, tr, ClientConfig{})
		profiles, err := c.CollectFollowers(context.Background(), "42", 100)
		require.NoError(t, err)
		require.Len(t, profiles, 4)
		require.Len(t, tr.requests, 2)
	})

	t.Run("canceled context", func(t *testing.T) {
		tr := &fakeTransport{bodies: []string{page}}
		c := newTestClient(t, tr, ClientConfig{})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		profiles, err := c.CollectFollowers(ctx, "42", 100)
		require.ErrorIs(t, err, context.Canceled)
		require.Empty(t, profiles)
		require.Empty(t, tr.requests)
	})
}

func TestFollow(t *testing.T) {
	tr := &fakeTransport{bodies: []string{`{"id_str":"999","screen_name":"bob","following":true}`}}
	c := newTestClient(t, tr, ClientConfig{Actor: "alice"})

	require.NoError(t, c.Follow(context.Background(), "bob"))

	require.Len(t, tr.requests, 1)
	req := tr.requests[0]
	require.Equal(t, "POST", req.Method)
	require.Equal(t, "https://api.twitter.com/1.1/friendships/create.json", req.URL)
	require.Equal(t, opFriendshipCreate, req.Endpoint)
	require.Equal(t, "alice", req.Account)

	payload, contentType, err := req.Body.encode()
	require.NoError(t, err)
	require.Equal(t, "application/x-www-form-urlencoded", contentType)
	require.Contains(t, string(payload), "user_id=999")
	require.Equal(t, "include_profile_interstitial_type=1&skip_status=true&user_id=999", string(payload))
}

func TestUnfollow(t *testing.T) {
	tr := &fakeTransport{bodies: []string{`{}`}}
	c := newTestClient(t, tr, ClientConfig{})

	require.NoError(t, c.Unfollow(context.Background(), "bob"))
	require.Equal(t, "https://api.twitter.com/1.1/friendships/destroy.json", tr.requests[0].URL)
	require.Empty(t, tr.requests[0].Account)
}

func TestFollowLookupFailure(t *testing.T) {
	tr := &fakeTransport{bodies: []string{`{}`}}
	c := newTestClient(t, tr, ClientConfig{})

	err := c.Follow(context.Background(), "nobody")
	require.ErrorIs(t, err, ErrUserNotFound)
	require.Empty(t, tr.requests)
}

func TestFollowTransportFailure(t *testing.T) {
	c := newTestClient(t, &fakeTransport{err: &APIError{Endpoint: opFriendshipCreate, Status: 403}}, ClientConfig{})
	var apiErr *APIError
	require.ErrorAs(t, c.Follow(context.Background(), "bob"), &apiErr)
	require.Equal(t, 403, apiErr.Status)

	c = newTestClient(t, &fakeTransport{bodies: []string{`<html>`}}, ClientConfig{})
	var decodeErr *DecodeError
	require.ErrorAs(t, c.Follow(context.Background(), "bob"), &decodeErr)
}

func TestFollowErrorPayload(t *testing.T) {
	body := `{"errors":[{"code":161,"message":"You are unable to follow more people at this time."}]}`

	c := newTestClient(t, &fakeTransport{bodies: []string{body}}, ClientConfig{})
	require.NoError(t, c.Follow(context.Background(), "bob"))

	c = newTestClient(t, &fakeTransport{bodies: []string{body}}, ClientConfig{StrictMutations: true})
	err := c.Follow(context.Background(), "bob")
	var respErr *ResponseError
	require.ErrorAs(t, err, &respErr)
	require.Equal(t, 161, respErr.Code)
	require.Equal(t, opFriendshipCreate, respErr.Endpoint)
}

func TestDefaultLookupUsedForFollow(t *testing.T) {
	tr := &fakeTransport{bodies: []string{
		`{"data":{"user":{"result":{"__typename":"User","rest_id":"999","legacy":{"screen_name":"bob"}}}}}`,
		`{}`,
	}}
	c, err := NewClient(ClientConfig{Transport: tr})
	require.NoError(t, err)

	require.NoError(t, c.Follow(context.Background(), "@bob"))
	require.Len(t, tr.requests, 2)
	require.Equal(t, opUserByScreenName, tr.requests[0].Endpoint)
	require.Equal(t, "bob", requestVariables(t, tr.requests[0])["screen_name"])

	payload, _, err := tr.requests[1].Body.encode()
	require.NoError(t, err)
	require.Contains(t, string(payload), "user_id=999")
}

func TestNewClientKeepsInjectedCollaborators(t *testing.T) {
	tr := &fakeTransport{}
	lookup := fakeLookup{}
	c, err := NewClient(ClientConfig{Transport: tr, Lookup: lookup})
	require.NoError(t, err)
	require.Same(t, tr, c.Transport())
	require.Equal(t, lookup, c.lookup)

	_, err = c.lookup.UserID(context.Background(), "x")
	require.True(t, errors.Is(err, ErrUserNotFound))
}
