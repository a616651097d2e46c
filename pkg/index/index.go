// Package index maintains queryable in-memory projections of the
// entity store snapshot: per-scenario feed order and per-conversation
// message order. The index is derived data, rebuilt synchronously
// after every store commit, and rebuildable from the primary
// documents at any time; readers fall back to a pure snapshot scan
// when it is disabled.
package index

import (
	"sort"
	"sync"

	"scenefeed/pkg/models"
)

type Index struct {
	mu sync.RWMutex
	// feedOrder: scenario id -> post ids sorted insertedAt desc, id desc.
	feedOrder map[string][]string
	// convOrder: conversation id -> message ids sorted (createdAt, id) asc.
	convOrder map[string][]string
}

func New() *Index {
	return &Index{
		feedOrder: map[string][]string{},
		convOrder: map[string][]string{},
	}
}

// FeedLess is the home-feed ordering: insertedAt descending with id
// descending as tiebreaker. Timestamps are fixed-width ISO strings so
// plain string comparison is chronological.
func FeedLess(a, b models.Post) bool {
	if a.InsertedAt != b.InsertedAt {
		return a.InsertedAt > b.InsertedAt
	}
	return a.ID > b.ID
}

// MessageLess is the conversation ordering: (createdAt, id) ascending.
func MessageLess(a, b models.Message) bool {
	if a.CreatedAt != b.CreatedAt {
		return a.CreatedAt < b.CreatedAt
	}
	return a.ID < b.ID
}

// Rebuild recomputes every projection from the snapshot. Called under
// the store's write lock so no dependent read observes a stale index.
func (ix *Index) Rebuild(s *models.Snapshot) {
	byScenario := map[string][]models.Post{}
	for _, p := range s.Posts {
		byScenario[p.ScenarioID] = append(byScenario[p.ScenarioID], p)
	}
	feed := make(map[string][]string, len(byScenario))
	for sc, posts := range byScenario {
		sort.Slice(posts, func(i, j int) bool { return FeedLess(posts[i], posts[j]) })
		ids := make([]string, len(posts))
		for i, p := range posts {
			ids[i] = p.ID
		}
		feed[sc] = ids
	}

	byConv := map[string][]models.Message{}
	for _, m := range s.Messages {
		byConv[m.ConversationID] = append(byConv[m.ConversationID], m)
	}
	conv := make(map[string][]string, len(byConv))
	for cid, msgs := range byConv {
		sort.Slice(msgs, func(i, j int) bool { return MessageLess(msgs[i], msgs[j]) })
		ids := make([]string, len(msgs))
		for i, m := range msgs {
			ids[i] = m.ID
		}
		conv[cid] = ids
	}

	ix.mu.Lock()
	ix.feedOrder = feed
	ix.convOrder = conv
	ix.mu.Unlock()
}

// FeedOrder returns the ordered post ids for a scenario.
func (ix *Index) FeedOrder(scenarioID string) []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	ids := ix.feedOrder[scenarioID]
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}

// ConvOrder returns the ordered message ids for a conversation.
func (ix *Index) ConvOrder(conversationID string) []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	ids := ix.convOrder[conversationID]
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}
