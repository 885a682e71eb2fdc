package xgraph

import "time"

// Profile is the normalized shape of an account returned by relationship timelines.
// String fields are empty when the upstream omitted them.
type Profile struct {
	ID              string
	Handle          string
	DisplayName     string
	Description     string
	Location        string
	URL             string
	Protected       bool
	Verified        bool
	BlueVerified    bool
	Followers       int
	Following       int
	TweetCount      int
	ListedCount     int
	CreatedAt       time.Time // Unix epoch when missing or unparseable
	ProfileImageURL string
	BannerURL       string
	PinnedTweetID   string
}

// Page is one decoded slice of a relationship timeline.
// Next and Previous are opaque cursors; empty means absent. Cursor markers
// with an empty value are ignored, so they never clear a cursor seen earlier.
type Page struct {
	Profiles []Profile
	Next     string
	Previous string
}

// HasNext reports whether another page can be requested after this one.
func (p *Page) HasNext() bool {
	return p != nil && p.Next != ""
}
