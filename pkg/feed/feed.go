// Package feed serves cursor-paginated views over the local replica.
// Every read is synchronous over the current snapshot and never waits
// on the network; as a side effect each read asks the sync scheduler
// to refresh the backing resource, fire-and-forget.
package feed

import (
	"fmt"
	"sort"

	"scenefeed/pkg/cursor"
	"scenefeed/pkg/index"
	"scenefeed/pkg/models"
	"scenefeed/pkg/store"
	"scenefeed/pkg/syncer"
	"scenefeed/pkg/telemetry"
)

type Engine struct {
	store *store.Store
	sched *syncer.Scheduler // nil disables refresh side effects
	// remoteActive gates the home feed to server-confirmed posts:
	// with a backend configured, a purely local never-synced post must
	// not leak into the feed.
	remoteActive bool
}

func New(st *store.Store, sched *syncer.Scheduler, remoteActive bool) *Engine {
	return &Engine{store: st, sched: sched, remoteActive: remoteActive}
}

// PageOptions narrows the home-feed candidate set.
type PageOptions struct {
	IncludeReplies bool
	Filter         func(models.Post) bool
}

// PostPage is one home-feed page. NextCursor is null exactly when
// fewer than limit items were returned; callers stop paging then.
type PostPage struct {
	Items      []models.Post `json:"items"`
	NextCursor *string       `json:"nextCursor"`
}

// Page returns one page of the scenario home feed, ordered by
// insertedAt descending with id descending as tiebreaker. Cursor
// semantics: items strictly after the cursor in this ordering. When
// the cursor's referenced item has been deleted the read continues
// from the first item strictly older than the cursor's timestamp
// instead of restarting at the newest item, so callers never see
// duplicates.
func (e *Engine) Page(scenarioID, cur string, limit int, opts PageOptions) (PostPage, error) {
	if limit <= 0 {
		limit = 20
	}
	snap := e.store.Snapshot()
	posts := e.orderedPosts(snap, scenarioID)

	filtered := posts[:0:0]
	for _, p := range posts {
		if e.remoteActive && !snap.SeenPost(scenarioID, p.ID) {
			continue
		}
		if !opts.IncludeReplies && !p.IsRoot() {
			continue
		}
		if opts.Filter != nil && !opts.Filter(p) {
			continue
		}
		filtered = append(filtered, p)
	}

	start := 0
	if cur != "" {
		k, err := cursor.DecodeKey(cur)
		if err != nil {
			return PostPage{}, fmt.Errorf("invalid feed cursor: %w", err)
		}
		start = len(filtered)
		for i, p := range filtered {
			if p.InsertedAt < k.TS || (p.InsertedAt == k.TS && p.ID < k.ID) {
				start = i
				break
			}
		}
	}

	page := paginatePosts(filtered, start, limit)
	telemetry.PagesServed.WithLabelValues("feed").Inc()
	if e.sched != nil {
		e.sched.RequestFeedSync(scenarioID)
	}
	return page, nil
}

func paginatePosts(filtered []models.Post, start, limit int) PostPage {
	end := start + limit
	if end > len(filtered) {
		end = len(filtered)
	}
	items := make([]models.Post, end-start)
	copy(items, filtered[start:end])
	var next *string
	if len(items) == limit {
		last := items[len(items)-1]
		c := cursor.EncodeKey(cursor.Key{TS: last.InsertedAt, ID: last.ID})
		next = &c
	}
	return PostPage{Items: items, NextCursor: next}
}

// orderedPosts returns the scenario's posts in feed order, from the
// secondary index when present, otherwise by a pure snapshot scan.
// The index is derived data; the scan path must stay equivalent.
func (e *Engine) orderedPosts(snap *models.Snapshot, scenarioID string) []models.Post {
	if idx := e.store.Index(); idx != nil {
		ids := idx.FeedOrder(scenarioID)
		posts := make([]models.Post, 0, len(ids))
		for _, id := range ids {
			if p, ok := snap.Posts[id]; ok {
				posts = append(posts, p)
			}
		}
		return posts
	}
	var posts []models.Post
	for _, p := range snap.Posts {
		if p.ScenarioID == scenarioID {
			posts = append(posts, p)
		}
	}
	sort.Slice(posts, func(i, j int) bool { return index.FeedLess(posts[i], posts[j]) })
	return posts
}

// ThreadRoot walks the reply chain up from postID to the thread's
// root. The walk is cycle-guarded: a visited set plus a hard cap, and
// a detected cycle stops at the last valid node rather than failing.
func (e *Engine) ThreadRoot(scenarioID, postID string) (models.Post, bool) {
	snap := e.store.Snapshot()
	p, ok := snap.Posts[postID]
	if !ok || p.ScenarioID != scenarioID {
		return models.Post{}, false
	}
	visited := map[string]bool{p.ID: true}
	for hops := 0; hops < 100; hops++ {
		if p.ParentPostID == "" {
			break
		}
		parent, ok := snap.Posts[p.ParentPostID]
		if !ok || parent.ScenarioID != scenarioID || visited[parent.ID] {
			break
		}
		visited[parent.ID] = true
		p = parent
	}
	return p, true
}
