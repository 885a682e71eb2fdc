package xgraph

import (
	"encoding/json"
	"log/slog"
)

const (
	instructionAddEntries   = "TimelineAddEntries"
	instructionReplaceEntry = "TimelineReplaceEntry"
	cursorEntryType         = "TimelineTimelineCursor"
)

// relationshipTimeline is the Following/Followers response tree.
// Data is nil when the API answered with "data": null.
type relationshipTimeline struct {
	Data *struct {
		User struct {
			Result struct {
				Timeline struct {
					Timeline timeline `json:"timeline"`
				} `json:"timeline"`
			} `json:"result"`
		} `json:"user"`
	} `json:"data"`
}

type timeline struct {
	Instructions instructionList `json:"instructions"`
}

// instruction is a closed set: addEntries or replaceEntry.
type instruction interface {
	isInstruction()
}

type addEntries struct {
	entries []timelineEntry
}

type replaceEntry struct {
	entry timelineEntry
}

func (addEntries) isInstruction()   {}
func (replaceEntry) isInstruction() {}

// entryContent is a closed set: itemContent or cursorContent.
// A nil entryContent marks an entry whose shape was not recognized.
type entryContent interface {
	isEntryContent()
}

type itemContent struct {
	user *userResult // nil when the item carries no user_results.result
}

type cursorContent struct {
	cursorType string
	value      string
}

func (itemContent) isEntryContent()   {}
func (cursorContent) isEntryContent() {}

type timelineEntry struct {
	id      string
	content entryContent
}

// userResult is a user_results.result node. Every field may be missing or
// carry the wrong JSON type; either way it decodes to nil.
type userResult struct {
	TypeName       string
	RestID         *string
	IsBlueVerified *bool
	Legacy         *userLegacy
}

type userLegacy struct {
	ScreenName        *string
	Name              *string
	Description       *string
	Location          *string
	URL               *string
	Protected         *bool
	Verified          *bool
	FollowersCount    *int
	FriendsCount      *int
	StatusesCount     *int
	ListedCount       *int
	CreatedAt         *string
	ProfileImageURL   *string
	ProfileBannerURL  *string
	PinnedTweetIDsStr []string
}

// UnmarshalJSON reads the node field by field. A result that is not an
// object decodes to an empty node, which the timeline decoder skips.
func (r *userResult) UnmarshalJSON(b []byte) error {
	*r = userResult{}
	fields := objectFields(b, "user result")
	if fields == nil {
		return nil
	}
	r.TypeName = deref(field[string](fields, "__typename"))
	r.RestID = field[string](fields, "rest_id")
	r.IsBlueVerified = field[bool](fields, "is_blue_verified")
	if legacy := objectFields(fields["legacy"], "legacy"); legacy != nil {
		r.Legacy = newUserLegacy(legacy)
	}
	return nil
}

func newUserLegacy(fields map[string]json.RawMessage) *userLegacy {
	return &userLegacy{
		ScreenName:        field[string](fields, "screen_name"),
		Name:              field[string](fields, "name"),
		Description:       field[string](fields, "description"),
		Location:          field[string](fields, "location"),
		URL:               field[string](fields, "url"),
		Protected:         field[bool](fields, "protected"),
		Verified:          field[bool](fields, "verified"),
		FollowersCount:    field[int](fields, "followers_count"),
		FriendsCount:      field[int](fields, "friends_count"),
		StatusesCount:     field[int](fields, "statuses_count"),
		ListedCount:       field[int](fields, "listed_count"),
		CreatedAt:         field[string](fields, "created_at"),
		ProfileImageURL:   field[string](fields, "profile_image_url_https"),
		ProfileBannerURL:  field[string](fields, "profile_banner_url"),
		PinnedTweetIDsStr: deref(field[[]string](fields, "pinned_tweet_ids_str")),
	}
}

// objectFields splits a JSON object into its members. It returns nil for
// absent, null and non-object values.
func objectFields(raw json.RawMessage, what string) map[string]json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		slog.Debug("skip malformed "+what, slog.Any("error", err))
		return nil
	}
	return fields
}

// field decodes one member. A wrong-typed value is treated like a missing one.
func field[T any](fields map[string]json.RawMessage, key string) *T {
	raw, ok := fields[key]
	if !ok {
		return nil
	}
	var v *T
	if err := json.Unmarshal(raw, &v); err != nil {
		slog.Debug("ignore malformed user field", slog.String("field", key), slog.Any("error", err))
		return nil
	}
	return v
}

// instructionList decodes each instruction on its own so one malformed or
// unknown instruction never poisons the rest of the stream.
type instructionList []instruction

func (l *instructionList) UnmarshalJSON(b []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := make(instructionList, 0, len(raw))
	for _, r := range raw {
		if ins := decodeInstruction(r); ins != nil {
			out = append(out, ins)
		}
	}
	*l = out
	return nil
}

func decodeInstruction(raw json.RawMessage) instruction {
	var head struct {
		Type    string            `json:"type"`
		Entries []json.RawMessage `json:"entries"`
		Entry   json.RawMessage   `json:"entry"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		slog.Debug("skip malformed timeline instruction", slog.Any("error", err))
		return nil
	}
	switch head.Type {
	case instructionAddEntries:
		entries := make([]timelineEntry, 0, len(head.Entries))
		for _, e := range head.Entries {
			entries = append(entries, decodeEntry(e))
		}
		return addEntries{entries: entries}
	case instructionReplaceEntry:
		return replaceEntry{entry: decodeEntry(head.Entry)}
	default:
		return nil
	}
}

// decodeEntry never fails: anything it cannot place yields an entry with nil content.
func decodeEntry(raw json.RawMessage) timelineEntry {
	if len(raw) == 0 {
		return timelineEntry{}
	}
	var e struct {
		EntryID string `json:"entryId"`
		Content struct {
			EntryType   string `json:"entryType"`
			TypeName    string `json:"__typename"`
			ItemContent *struct {
				UserResults *struct {
					Result *userResult `json:"result"`
				} `json:"user_results"`
			} `json:"itemContent"`
			CursorType *string `json:"cursorType"`
			Value      *string `json:"value"`
		} `json:"content"`
	}
	if err := json.Unmarshal(raw, &e); err != nil {
		slog.Debug("skip malformed timeline entry", slog.Any("error", err))
		return timelineEntry{}
	}

	c := e.Content
	switch {
	case c.ItemContent != nil:
		item := itemContent{}
		if c.ItemContent.UserResults != nil {
			item.user = c.ItemContent.UserResults.Result
		}
		return timelineEntry{id: e.EntryID, content: item}
	// An empty value is no cursor at all; it must not clear an earlier one.
	case c.Value != nil && *c.Value != "" && (c.CursorType != nil || c.EntryType == cursorEntryType || c.TypeName == cursorEntryType):
		return timelineEntry{id: e.EntryID, content: cursorContent{
			cursorType: deref(c.CursorType),
			value:      *c.Value,
		}}
	default:
		return timelineEntry{id: e.EntryID}
	}
}
