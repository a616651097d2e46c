package feed

import (
	"fmt"
	"sort"

	"scenefeed/pkg/cursor"
	"scenefeed/pkg/models"
	"scenefeed/pkg/telemetry"
)

// ProfileTab selects one of the four views over a profile.
type ProfileTab string

const (
	TabPosts   ProfileTab = "posts"
	TabMedia   ProfileTab = "media"
	TabReplies ProfileTab = "replies"
	TabLikes   ProfileTab = "likes"
)

// Activity item kinds.
const (
	KindPost   = "post"
	KindRepost = "repost"
	KindLike   = "like"
)

// ActivityItem is one profile-tab entry. ActivityAt is the ordering
// key and differs by kind: createdAt for authored posts, the
// repost/like event time otherwise.
type ActivityItem struct {
	Post              models.Post `json:"post"`
	Kind              string      `json:"kind"`
	ActivityAt        string      `json:"activityAt"`
	ReposterProfileID string      `json:"reposterProfileId,omitempty"`
}

type ActivityPage struct {
	Items      []ActivityItem `json:"items"`
	NextCursor *string        `json:"nextCursor"`
}

// ProfileFeedPage returns one page of a profile tab, ordered by
// activityAt descending with (postId, reposter) as deterministic
// tiebreakers, the same fields the composite cursor encodes.
func (e *Engine) ProfileFeedPage(scenarioID, profileID string, tab ProfileTab, cur string, limit int) (ActivityPage, error) {
	if limit <= 0 {
		limit = 20
	}
	snap := e.store.Snapshot()

	var items []ActivityItem
	switch tab {
	case TabPosts:
		items = e.postsTab(snap, scenarioID, profileID)
	case TabMedia:
		items = e.authoredTab(snap, scenarioID, profileID, func(p models.Post) bool {
			return p.IsRoot() && p.HasMedia()
		})
	case TabReplies:
		items = e.authoredTab(snap, scenarioID, profileID, func(p models.Post) bool {
			return !p.IsRoot()
		})
	case TabLikes:
		items = e.likesTab(snap, scenarioID, profileID)
	default:
		return ActivityPage{}, fmt.Errorf("unknown profile tab: %q", tab)
	}

	sort.Slice(items, func(i, j int) bool { return activityLess(items[i], items[j]) })

	start := 0
	if cur != "" {
		c, err := cursor.DecodeActivity(cur)
		if err != nil {
			return ActivityPage{}, fmt.Errorf("invalid profile cursor: %w", err)
		}
		ref := ActivityItem{
			ActivityAt:        c.ActivityAt,
			Post:              models.Post{ID: c.PostID},
			ReposterProfileID: c.ReposterProfileID,
		}
		// first item ordered strictly after the cursor; the cursor's
		// own item (when still present) compares equal and is skipped.
		start = len(items)
		for i, it := range items {
			if activityLess(ref, it) {
				start = i
				break
			}
		}
	}

	end := start + limit
	if end > len(items) {
		end = len(items)
	}
	page := make([]ActivityItem, end-start)
	copy(page, items[start:end])
	var next *string
	if len(page) == limit {
		last := page[len(page)-1]
		c := cursor.EncodeActivity(cursor.Activity{
			ActivityAt:        last.ActivityAt,
			Kind:              last.Kind,
			PostID:            last.Post.ID,
			ReposterProfileID: last.ReposterProfileID,
		})
		next = &c
	}

	telemetry.PagesServed.WithLabelValues("profile").Inc()
	if e.sched != nil {
		e.sched.RequestFeedSync(scenarioID)
	}
	return ActivityPage{Items: page, NextCursor: next}, nil
}

// activityLess orders newest-first on (activityAt, postId, reposter),
// all descending.
func activityLess(a, b ActivityItem) bool {
	if a.ActivityAt != b.ActivityAt {
		return a.ActivityAt > b.ActivityAt
	}
	if a.Post.ID != b.Post.ID {
		return a.Post.ID > b.Post.ID
	}
	return a.ReposterProfileID > b.ReposterProfileID
}

// postsTab interleaves authored root posts with the profile's reposts
// of others' posts. A post the profile both authored and reposted
// appears exactly once, as an authored post.
func (e *Engine) postsTab(snap *models.Snapshot, scenarioID, profileID string) []ActivityItem {
	var items []ActivityItem
	for _, p := range snap.Posts {
		if p.ScenarioID == scenarioID && p.AuthorProfileID == profileID && p.IsRoot() {
			items = append(items, ActivityItem{Post: p, Kind: KindPost, ActivityAt: p.CreatedAt})
		}
	}
	for _, r := range snap.Reposts {
		if r.ScenarioID != scenarioID || r.ProfileID != profileID {
			continue
		}
		p, ok := snap.Posts[r.PostID]
		if !ok || p.AuthorProfileID == profileID {
			continue
		}
		items = append(items, ActivityItem{
			Post:              p,
			Kind:              KindRepost,
			ActivityAt:        r.CreatedAt,
			ReposterProfileID: profileID,
		})
	}
	return items
}

func (e *Engine) authoredTab(snap *models.Snapshot, scenarioID, profileID string, keep func(models.Post) bool) []ActivityItem {
	var items []ActivityItem
	for _, p := range snap.Posts {
		if p.ScenarioID == scenarioID && p.AuthorProfileID == profileID && keep(p) {
			items = append(items, ActivityItem{Post: p, Kind: KindPost, ActivityAt: p.CreatedAt})
		}
	}
	return items
}

// likesTab lists posts the profile liked, ordered by like time. A
// legacy 2-part like row counts only when its stored scenario matches
// the queried one.
func (e *Engine) likesTab(snap *models.Snapshot, scenarioID, profileID string) []ActivityItem {
	var items []ActivityItem
	for stored, row := range snap.Likes {
		key, ok := models.DecodeLikeKey(stored, row)
		if !ok || key.ScenarioID != scenarioID || key.ProfileID != profileID {
			continue
		}
		p, ok := snap.Posts[key.PostID]
		if !ok {
			continue
		}
		items = append(items, ActivityItem{Post: p, Kind: KindLike, ActivityAt: row.CreatedAt})
	}
	return items
}
