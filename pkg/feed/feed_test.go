package feed

import (
	"testing"

	"scenefeed/pkg/cursor"
	"scenefeed/pkg/index"
	"scenefeed/pkg/models"
	"scenefeed/pkg/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(t.TempDir(), index.New())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func seedPosts(t *testing.T, st *store.Store, posts ...models.Post) {
	t.Helper()
	_, err := st.Apply(func(s *models.Snapshot) {
		for _, p := range posts {
			s.Posts[p.ID] = p
		}
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func ts(n int) string {
	return "2024-05-01T10:00:0" + string(rune('0'+n)) + ".000Z"
}

func TestPageSpecExample(t *testing.T) {
	st := newTestStore(t)
	e := New(st, nil, false)
	seedPosts(t, st,
		models.Post{ID: "p1", ScenarioID: "S1", InsertedAt: ts(1), CreatedAt: ts(1)},
		models.Post{ID: "p2", ScenarioID: "S1", InsertedAt: ts(2), CreatedAt: ts(2)},
		models.Post{ID: "p3", ScenarioID: "S1", InsertedAt: ts(3), CreatedAt: ts(3)},
	)

	page, err := e.Page("S1", "", 2, PageOptions{})
	if err != nil {
		t.Fatalf("page 1: %v", err)
	}
	if len(page.Items) != 2 || page.Items[0].ID != "p3" || page.Items[1].ID != "p2" {
		t.Fatalf("page 1 wrong: %+v", page.Items)
	}
	if page.NextCursor == nil {
		t.Fatalf("full page must carry a next cursor")
	}

	page2, err := e.Page("S1", *page.NextCursor, 2, PageOptions{})
	if err != nil {
		t.Fatalf("page 2: %v", err)
	}
	if len(page2.Items) != 1 || page2.Items[0].ID != "p1" {
		t.Fatalf("page 2 wrong: %+v", page2.Items)
	}
	if page2.NextCursor != nil {
		t.Fatalf("short page must end pagination, got cursor %q", *page2.NextCursor)
	}
}

func TestPageChainIsDeterministicAndComplete(t *testing.T) {
	st := newTestStore(t)
	e := New(st, nil, false)

	var all []models.Post
	for i := 0; i < 9; i++ {
		p := models.Post{
			ID:         "p" + string(rune('a'+i)),
			ScenarioID: "S1",
			InsertedAt: ts(i % 3), // duplicate timestamps exercise the id tiebreaker
			CreatedAt:  ts(i % 3),
		}
		all = append(all, p)
	}
	seedPosts(t, st, all...)

	seen := map[string]bool{}
	cur := ""
	for {
		page, err := e.Page("S1", cur, 4, PageOptions{})
		if err != nil {
			t.Fatalf("page: %v", err)
		}
		for i := 1; i < len(page.Items); i++ {
			a, b := page.Items[i-1], page.Items[i]
			if a.InsertedAt < b.InsertedAt || (a.InsertedAt == b.InsertedAt && a.ID < b.ID) {
				t.Fatalf("ordering violated: %s/%s before %s/%s", a.InsertedAt, a.ID, b.InsertedAt, b.ID)
			}
		}
		for _, p := range page.Items {
			if seen[p.ID] {
				t.Fatalf("duplicate item %s in cursor chain", p.ID)
			}
			seen[p.ID] = true
		}
		if page.NextCursor == nil {
			break
		}
		cur = *page.NextCursor
	}
	if len(seen) != len(all) {
		t.Fatalf("gap in cursor chain: saw %d of %d", len(seen), len(all))
	}
}

func TestCursorSurvivesDeletedReference(t *testing.T) {
	st := newTestStore(t)
	e := New(st, nil, false)
	seedPosts(t, st,
		models.Post{ID: "p1", ScenarioID: "S1", InsertedAt: ts(1)},
		models.Post{ID: "p2", ScenarioID: "S1", InsertedAt: ts(2)},
		models.Post{ID: "p3", ScenarioID: "S1", InsertedAt: ts(3)},
	)

	page, err := e.Page("S1", "", 2, PageOptions{})
	if err != nil || page.NextCursor == nil {
		t.Fatalf("page 1: %v", err)
	}

	// Delete the post the cursor references (p2).
	_, err = st.Apply(func(s *models.Snapshot) { delete(s.Posts, "p2") })
	if err != nil {
		t.Fatalf("delete: %v", err)
	}

	page2, err := e.Page("S1", *page.NextCursor, 2, PageOptions{})
	if err != nil {
		t.Fatalf("page 2: %v", err)
	}
	if len(page2.Items) != 1 || page2.Items[0].ID != "p1" {
		t.Fatalf("expected only items strictly older than cursor, got %+v", page2.Items)
	}
}

func TestPageFiltersRepliesAndPredicate(t *testing.T) {
	st := newTestStore(t)
	e := New(st, nil, false)
	seedPosts(t, st,
		models.Post{ID: "root", ScenarioID: "S1", AuthorProfileID: "pr1", InsertedAt: ts(3)},
		models.Post{ID: "reply", ScenarioID: "S1", AuthorProfileID: "pr1", ParentPostID: "root", InsertedAt: ts(2)},
		models.Post{ID: "other", ScenarioID: "S1", AuthorProfileID: "pr2", InsertedAt: ts(1)},
	)

	page, err := e.Page("S1", "", 10, PageOptions{})
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if len(page.Items) != 2 {
		t.Fatalf("replies should be excluded by default: %+v", page.Items)
	}

	page, err = e.Page("S1", "", 10, PageOptions{IncludeReplies: true, Filter: func(p models.Post) bool {
		return p.AuthorProfileID == "pr1"
	}})
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if len(page.Items) != 2 || page.Items[0].ID != "root" || page.Items[1].ID != "reply" {
		t.Fatalf("predicate page wrong: %+v", page.Items)
	}
}

func TestSeenGateWithRemoteActive(t *testing.T) {
	st := newTestStore(t)
	e := New(st, nil, true)
	_, err := st.Apply(func(s *models.Snapshot) {
		s.Posts["confirmed"] = models.Post{ID: "confirmed", ScenarioID: "S1", InsertedAt: ts(2)}
		s.Posts["local-only"] = models.Post{ID: "local-only", ScenarioID: "S1", InsertedAt: ts(3)}
		s.MarkSeen("S1", "confirmed")
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	page, err := e.Page("S1", "", 10, PageOptions{})
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != "confirmed" {
		t.Fatalf("never-synced post leaked into remote-backed feed: %+v", page.Items)
	}
}

func TestThreadRootWalksToRoot(t *testing.T) {
	st := newTestStore(t)
	e := New(st, nil, false)
	seedPosts(t, st,
		models.Post{ID: "root", ScenarioID: "S1"},
		models.Post{ID: "mid", ScenarioID: "S1", ParentPostID: "root"},
		models.Post{ID: "leaf", ScenarioID: "S1", ParentPostID: "mid"},
	)

	got, ok := e.ThreadRoot("S1", "leaf")
	if !ok || got.ID != "root" {
		t.Fatalf("thread root wrong: %+v ok=%v", got, ok)
	}
	if _, ok := e.ThreadRoot("S2", "leaf"); ok {
		t.Fatalf("wrong-scenario lookup must fail")
	}
}

func TestThreadRootStopsOnCycle(t *testing.T) {
	st := newTestStore(t)
	e := New(st, nil, false)
	seedPosts(t, st,
		models.Post{ID: "a", ScenarioID: "S1", ParentPostID: "b"},
		models.Post{ID: "b", ScenarioID: "S1", ParentPostID: "a"},
	)

	got, ok := e.ThreadRoot("S1", "a")
	if !ok {
		t.Fatalf("cycle must not be fatal")
	}
	if got.ID != "a" && got.ID != "b" {
		t.Fatalf("cycle walk escaped the chain: %+v", got)
	}
}

func TestPageCursorStartAfterEqualKey(t *testing.T) {
	st := newTestStore(t)
	e := New(st, nil, false)
	seedPosts(t, st,
		models.Post{ID: "p1", ScenarioID: "S1", InsertedAt: ts(1)},
		models.Post{ID: "p2", ScenarioID: "S1", InsertedAt: ts(1)},
	)
	cur := cursor.EncodeKey(cursor.Key{TS: ts(1), ID: "p2"})
	page, err := e.Page("S1", cur, 10, PageOptions{})
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != "p1" {
		t.Fatalf("same-timestamp tiebreaker wrong: %+v", page.Items)
	}
}
