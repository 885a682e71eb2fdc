package xgraph

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

const (
	graphQLBase = "https://x.com/i/api/graphql"
	legacyBase  = "https://api.twitter.com"
)

// bearerTokens is the list of known web-app bearer tokens.
var bearerTokens = []string{
	"AAAAAAAAAAAAAAAAAAAAANRILgAAAAAAnNwIzUejRCOuH5E6I8xnZz4puTs%3D1Zv7ttfk8LF81IUq16cHjhLTvJu4FA33AGWWjCpTnA",
	"AAAAAAAAAAAAAAAAAAAAAFQODgEAAAAAVHTp76lzh3rFzcHbmHVvQxYYpTw%3DckAlMINMjmCwxUcaXbAN4XqJVdgMJaHqNOFgPMK0zN1qLqLQCF",
}

// BearerToken is the active bearer token (first in list).
var BearerToken = bearerTokens[0]

// Operation names, also used as rate-limit and metrics keys.
const (
	opUserByScreenName  = "UserByScreenName"
	opFollowing         = "Following"
	opFollowers         = "Followers"
	opFriendshipCreate  = "friendships/create"
	opFriendshipDestroy = "friendships/destroy"
)

// Endpoint holds a GraphQL query ID, its operation name and feature flags.
type Endpoint struct {
	ID       string
	Name     string
	Features map[string]any
}

// URL returns the bare query URL for this endpoint.
func (e Endpoint) URL() string {
	return fmt.Sprintf("%s/%s/%s", graphQLBase, e.ID, e.Name)
}

// Endpoints maps operation names to their GraphQL query IDs and feature flags.
var Endpoints = map[string]Endpoint{
	opUserByScreenName: {ID: "1VOOyvKkiI3FMmkeDNxM9A", Name: opUserByScreenName, Features: userFeatures()},
	opFollowing:        {ID: "C1qZ6bs-L3oc_TKSZyxkXQ", Name: opFollowing, Features: relationshipFeatures()},
	opFollowers:        {ID: "Elc_-qTARceHpztqhI9PQA", Name: opFollowers, Features: relationshipFeatures()},
}

// graphQLURL builds the GET URL for a named operation with its variables and features.
func graphQLURL(operation string, variables map[string]any) (string, error) {
	ep, ok := Endpoints[operation]
	if !ok {
		return "", fmt.Errorf("unknown operation: %s", operation)
	}
	v, err := json.Marshal(variables)
	if err != nil {
		return "", fmt.Errorf("%s variables: %w", operation, err)
	}
	f, err := json.Marshal(ep.Features)
	if err != nil {
		return "", fmt.Errorf("%s features: %w", operation, err)
	}
	return ep.URL() + "?variables=" + url.QueryEscape(string(v)) + "&features=" + url.QueryEscape(string(f)), nil
}

// legacyURL returns the v1.1 REST URL for a path like "friendships/create".
func legacyURL(path string) string {
	return legacyBase + "/1.1/" + strings.TrimPrefix(path, "/") + ".json"
}

// relationshipFeatures is the flag bag the Following/Followers timelines require.
func relationshipFeatures() map[string]any {
	return map[string]any{
		"responsive_web_twitter_article_tweet_consumption_enabled":                false,
		"tweet_with_visibility_results_prefer_gql_limited_actions_policy_enabled": true,
		"longform_notetweets_inline_media_enabled":                                true,
		"responsive_web_media_download_video_enabled":                             false,
	}
}

// userFeatures is the flag bag for single-user lookups.
func userFeatures() map[string]any {
	return map[string]any{
		"hidden_profile_subscriptions_enabled":                              true,
		"profile_label_improvements_pcf_label_in_post_enabled":              false,
		"responsive_web_graphql_exclude_directive_enabled":                  true,
		"responsive_web_graphql_skip_user_profile_image_extensions_enabled": false,
		"responsive_web_graphql_timeline_navigation_enabled":                true,
		"rweb_tipjar_consumption_enabled":                                   true,
		"subscriptions_feature_can_gift_premium":                            false,
		"subscriptions_verification_info_is_identity_verified_enabled":      true,
		"subscriptions_verification_info_verified_since_enabled":            true,
		"verified_phone_label_enabled":                                      false,
		"highlights_tweets_tab_ui_enabled":                                  true,
		"creator_subscriptions_tweet_preview_api_enabled":                   true,
	}
}
