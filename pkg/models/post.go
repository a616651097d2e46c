package models

import "time"

// ISOLayout is the fixed-width UTC timestamp layout used for every
// createdAt/insertedAt field. Fixed width keeps lexicographic string
// comparison equivalent to chronological comparison, which every sort
// comparator in this module relies on.
const ISOLayout = "2006-01-02T15:04:05.000Z"

// NowISO returns the current UTC time in ISOLayout.
func NowISO() string {
	return time.Now().UTC().Format(ISOLayout)
}

// FormatISO renders t in ISOLayout.
func FormatISO(t time.Time) string {
	return t.UTC().Format(ISOLayout)
}

type Post struct {
	ID              string   `json:"id"`
	ScenarioID      string   `json:"scenarioId"`
	AuthorProfileID string   `json:"authorProfileId"`
	Text            string   `json:"text"`
	ParentPostID    string   `json:"parentPostId,omitempty"`
	QuotedPostID    string   `json:"quotedPostId,omitempty"`
	ImageURLs       []string `json:"imageUrls,omitempty"`
	ReplyCount      int      `json:"replyCount"`
	RepostCount     int      `json:"repostCount"`
	LikeCount       int      `json:"likeCount"`
	// CreatedAt is the logical creation time set by the author or the
	// server; immutable after creation.
	CreatedAt string `json:"createdAt"`
	// InsertedAt is the local arrival time and drives default feed
	// ordering.
	InsertedAt string `json:"insertedAt"`
	IsPinned   bool   `json:"isPinned,omitempty"`
	PinOrder   int    `json:"pinOrder,omitempty"`
}

// IsRoot reports whether the post starts a thread (is not a reply).
func (p Post) IsRoot() bool { return p.ParentPostID == "" }

// HasMedia reports whether the post carries at least one attachment.
func (p Post) HasMedia() bool { return len(p.ImageURLs) > 0 }
