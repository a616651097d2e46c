package merge

import (
	"testing"

	"scenefeed/pkg/index"
	"scenefeed/pkg/models"
	"scenefeed/pkg/store"
)

func newTestMerger(t *testing.T) (*Merger, *store.Store) {
	t.Helper()
	st, err := store.Open(t.TempDir(), index.New())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return New(st), st
}

func TestMergeScenarioUpsertsAndMarksSeen(t *testing.T) {
	m, st := newTestMerger(t)

	posts := []models.Post{
		{ID: "p1", Text: "first", CreatedAt: "2024-05-01T10:00:00.000Z"},
		{ID: "", Text: "no id, must be skipped"},
	}
	if err := m.MergeScenario("s1", posts, nil, nil); err != nil {
		t.Fatalf("merge: %v", err)
	}

	snap := st.Snapshot()
	p, ok := snap.Posts["p1"]
	if !ok {
		t.Fatalf("post not merged")
	}
	if p.ScenarioID != "s1" {
		t.Fatalf("scenario not defaulted, got %q", p.ScenarioID)
	}
	if p.InsertedAt == "" {
		t.Fatalf("insertedAt not set for new row")
	}
	if !snap.SeenPost("s1", "p1") {
		t.Fatalf("merged post not marked seen")
	}
	if len(snap.Posts) != 1 {
		t.Fatalf("id-less row merged: %v", snap.Posts)
	}
}

func TestFoldPostPreservesLocalOnlyFields(t *testing.T) {
	prev := models.Post{
		ID: "p1", ScenarioID: "s1", Text: "local text",
		InsertedAt: "2024-05-01T09:00:00.000Z",
		CreatedAt:  "2024-05-01T08:00:00.000Z",
		IsPinned:   true, PinOrder: 2,
	}
	in := models.Post{ID: "p1", LikeCount: 7}

	out := FoldPost(prev, true, in, "s1")
	if out.InsertedAt != prev.InsertedAt {
		t.Fatalf("insertedAt clobbered: %q", out.InsertedAt)
	}
	if !out.IsPinned || out.PinOrder != 2 {
		t.Fatalf("pin state clobbered: %+v", out)
	}
	if out.Text != "local text" || out.CreatedAt != prev.CreatedAt {
		t.Fatalf("missing remote fields not filled from local row: %+v", out)
	}
	if out.LikeCount != 7 {
		t.Fatalf("remote-provided field not taken: %d", out.LikeCount)
	}
}

func TestReplaceLikesKeepsPendingOptimisticLike(t *testing.T) {
	m, st := newTestMerger(t)

	_, err := st.Apply(func(s *models.Snapshot) {
		s.Likes["s1|pr1|p1"] = models.Like{ScenarioID: "s1", ProfileID: "pr1", PostID: "p1", Pending: true}
		s.Likes["s1|pr2|p2"] = models.Like{ScenarioID: "s1", ProfileID: "pr2", PostID: "p2"}
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	// Server set contains neither like. The confirmed one goes, the
	// pending optimistic one stays.
	if err := m.MergeScenario("s1", nil, nil, nil); err != nil {
		t.Fatalf("merge: %v", err)
	}
	snap := st.Snapshot()
	if _, ok := snap.Likes["s1|pr1|p1"]; !ok {
		t.Fatalf("pending like dropped by wholesale replace")
	}
	if _, ok := snap.Likes["s1|pr2|p2"]; ok {
		t.Fatalf("confirmed like absent from server set should be deleted")
	}
}

func TestReplaceLikesScopedToScenario(t *testing.T) {
	m, st := newTestMerger(t)

	_, err := st.Apply(func(s *models.Snapshot) {
		s.Likes["s2|pr1|p9"] = models.Like{ScenarioID: "s2", ProfileID: "pr1", PostID: "p9"}
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	likes := []models.Like{
		{ProfileID: "pr1", PostID: "p1"},
		{ProfileID: "", PostID: "p2"}, // malformed, skipped
	}
	if err := m.MergeScenario("s1", nil, likes, nil); err != nil {
		t.Fatalf("merge: %v", err)
	}

	snap := st.Snapshot()
	if _, ok := snap.Likes["s2|pr1|p9"]; !ok {
		t.Fatalf("other scenario's like deleted by s1 replace")
	}
	if l, ok := snap.Likes["s1|pr1|p1"]; !ok || l.Pending {
		t.Fatalf("incoming like not stored confirmed: %+v ok=%v", l, ok)
	}
	if len(snap.Likes) != 2 {
		t.Fatalf("malformed like row merged: %v", snap.Likes)
	}
}

func TestMergeMessagesKeepsUnconfirmedLocalWrites(t *testing.T) {
	m, st := newTestMerger(t)

	_, err := st.Apply(func(s *models.Snapshot) {
		s.Messages["local-abc"] = models.Message{ID: "local-abc", ConversationID: "c1", ScenarioID: "s1", ClientStatus: models.StatusSending, CreatedAt: "2024-05-01T10:00:02.000Z"}
		s.Messages["m-old"] = models.Message{ID: "m-old", ConversationID: "c1", ScenarioID: "s1", CreatedAt: "2024-05-01T10:00:00.000Z"}
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	incoming := []models.Message{
		{ID: "m-new", CreatedAt: "2024-05-01T10:00:01.000Z"},
	}
	if err := m.MergeMessages("s1", "c1", incoming); err != nil {
		t.Fatalf("merge: %v", err)
	}

	snap := st.Snapshot()
	if _, ok := snap.Messages["local-abc"]; !ok {
		t.Fatalf("unconfirmed optimistic message deleted by merge")
	}
	if _, ok := snap.Messages["m-old"]; ok {
		t.Fatalf("confirmed message absent from server set should be deleted")
	}
	conv, ok := snap.Conversations["c1"]
	if !ok {
		t.Fatalf("conversation row not created")
	}
	want := []string{"m-new", "local-abc"}
	if len(conv.MessageIDs) != len(want) {
		t.Fatalf("messageIds cache wrong: %v", conv.MessageIDs)
	}
	for i, id := range want {
		if conv.MessageIDs[i] != id {
			t.Fatalf("messageIds order wrong: %v want %v", conv.MessageIDs, want)
		}
	}
	if conv.LastMessageAt != "2024-05-01T10:00:02.000Z" {
		t.Fatalf("lastMessageAt not recomputed: %q", conv.LastMessageAt)
	}
}
