package xgraph

import (
	"log/slog"
	"time"
)

// createdAtLayout is the legacy API timestamp format, e.g. "Wed Oct 10 20:19:24 +0000 2018".
const createdAtLayout = "Mon Jan 02 15:04:05 -0700 2006"

// epoch substitutes for missing or unparseable creation timestamps.
var epoch = time.Unix(0, 0).UTC()

// decodeRelationshipTimeline walks the instruction stream in order. Profiles keep
// entry order; for each cursor direction the last marker seen wins.
func decodeRelationshipTimeline(tree *relationshipTimeline) Page {
	var page Page
	if tree == nil || tree.Data == nil {
		return page
	}

	for _, ins := range tree.Data.User.Result.Timeline.Timeline.Instructions {
		switch ins := ins.(type) {
		case addEntries:
			for _, entry := range ins.entries {
				switch content := entry.content.(type) {
				case itemContent:
					if content.user == nil || content.user.Legacy == nil {
						continue
					}
					page.Profiles = append(page.Profiles, newProfile(content.user))
				case cursorContent:
					page.applyCursor(content)
				case nil:
					slog.Debug("skip unrecognized timeline entry", slog.String("entry", entry.id))
				}
			}
		case replaceEntry:
			if content, ok := ins.entry.content.(cursorContent); ok {
				page.applyCursor(content)
			}
		}
	}
	return page
}

func (p *Page) applyCursor(c cursorContent) {
	switch c.cursorType {
	case "Bottom":
		p.Next = c.value
	case "Top":
		p.Previous = c.value
	}
}

// newProfile is the one place where missing upstream fields get their defaults.
func newProfile(r *userResult) Profile {
	var l userLegacy
	if r.Legacy != nil {
		l = *r.Legacy
	}
	var pinned string
	if len(l.PinnedTweetIDsStr) > 0 {
		pinned = l.PinnedTweetIDsStr[0]
	}
	return Profile{
		ID:              deref(r.RestID),
		Handle:          deref(l.ScreenName),
		DisplayName:     deref(l.Name),
		Description:     deref(l.Description),
		Location:        deref(l.Location),
		URL:             deref(l.URL),
		Protected:       deref(l.Protected),
		Verified:        deref(l.Verified),
		BlueVerified:    deref(r.IsBlueVerified),
		Followers:       deref(l.FollowersCount),
		Following:       deref(l.FriendsCount),
		TweetCount:      deref(l.StatusesCount),
		ListedCount:     deref(l.ListedCount),
		CreatedAt:       parseCreatedAt(deref(l.CreatedAt)),
		ProfileImageURL: deref(l.ProfileImageURL),
		BannerURL:       deref(l.ProfileBannerURL),
		PinnedTweetID:   pinned,
	}
}

func parseCreatedAt(s string) time.Time {
	if s == "" {
		return epoch
	}
	t, err := time.Parse(createdAtLayout, s)
	if err != nil {
		return epoch
	}
	return t.UTC()
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
