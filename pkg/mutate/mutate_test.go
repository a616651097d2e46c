package mutate

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"scenefeed/pkg/index"
	"scenefeed/pkg/models"
	"scenefeed/pkg/remote"
	"scenefeed/pkg/store"
)

type fakeBackend struct {
	toggleResp remote.LikeToggleResponse
	toggleErr  error
	pinResp    remote.PinResponse
	pinErr     error
	sheetErr   error
	postErr    error
	sendErr    error

	sheetPuts int
	postCalls int
}

func (f *fakeBackend) FetchPosts(context.Context, string, int, string) (remote.PostsPage, error) {
	return remote.PostsPage{}, nil
}
func (f *fakeBackend) FetchLikes(context.Context, string) ([]models.Like, error) { return nil, nil }

func (f *fakeBackend) FetchReposts(context.Context, string) ([]models.Repost, error) {
	return nil, nil
}
func (f *fakeBackend) FetchMessages(context.Context, string, int) ([]models.Message, error) {
	return nil, nil
}

func (f *fakeBackend) ToggleLike(context.Context, string, string, string, bool) (remote.LikeToggleResponse, error) {
	return f.toggleResp, f.toggleErr
}

func (f *fakeBackend) SetPinnedPost(context.Context, string, *string, string) (remote.PinResponse, error) {
	return f.pinResp, f.pinErr
}

func (f *fakeBackend) PutCharacterSheet(_ context.Context, _ string, s models.CharacterSheet) (models.CharacterSheet, error) {
	if f.sheetErr != nil {
		return models.CharacterSheet{}, f.sheetErr
	}
	f.sheetPuts++
	return s, nil
}

func (f *fakeBackend) CreatePost(_ context.Context, _ string, p models.Post) (models.Post, error) {
	if f.postErr != nil {
		return models.Post{}, f.postErr
	}
	f.postCalls++
	p.ID = "srv-recap"
	return p, nil
}

func (f *fakeBackend) SendMessage(_ context.Context, _ string, m models.Message) (models.Message, error) {
	if f.sendErr != nil {
		return models.Message{}, f.sendErr
	}
	m.ID = "srv-msg"
	return m, nil
}

func newTestEngine(t *testing.T, client remote.Client) (*Engine, *store.Store) {
	t.Helper()
	st, err := store.Open(t.TempDir(), index.New())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return New(st, client), st
}

func seedPost(t *testing.T, st *store.Store, p models.Post) {
	t.Helper()
	_, err := st.Apply(func(s *models.Snapshot) { s.Posts[p.ID] = p })
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestToggleLikeLocalOnlyIsIdempotent(t *testing.T) {
	e, st := newTestEngine(t, nil)
	seedPost(t, st, models.Post{ID: "p1", ScenarioID: "s1", LikeCount: 3})

	liked, err := e.ToggleLike(context.Background(), "s1", "pr1", "p1")
	if err != nil || !liked {
		t.Fatalf("first toggle: liked=%v err=%v", liked, err)
	}
	if got := st.Snapshot().Posts["p1"].LikeCount; got != 4 {
		t.Fatalf("likeCount not incremented: %d", got)
	}

	liked, err = e.ToggleLike(context.Background(), "s1", "pr1", "p1")
	if err != nil || liked {
		t.Fatalf("second toggle: liked=%v err=%v", liked, err)
	}
	snap := st.Snapshot()
	if got := snap.Posts["p1"].LikeCount; got != 3 {
		t.Fatalf("likeCount delta did not net to zero: %d", got)
	}
	if len(snap.Likes) != 0 {
		t.Fatalf("like row left behind: %v", snap.Likes)
	}
}

func TestToggleLikeWrongScenarioSilentlyDropped(t *testing.T) {
	e, st := newTestEngine(t, nil)
	seedPost(t, st, models.Post{ID: "p1", ScenarioID: "s1", LikeCount: 1})

	liked, err := e.ToggleLike(context.Background(), "s2", "pr1", "p1")
	if err != nil || liked {
		t.Fatalf("stale scenario must be a no-op: liked=%v err=%v", liked, err)
	}
	if got := st.Snapshot().Posts["p1"].LikeCount; got != 1 {
		t.Fatalf("count changed for wrong-scenario toggle: %d", got)
	}
}

func TestToggleLikeFoldsAuthoritativeResponse(t *testing.T) {
	f := &fakeBackend{toggleResp: remote.LikeToggleResponse{
		Liked: true,
		Post:  &models.Post{ID: "p1", LikeCount: 12},
	}}
	e, st := newTestEngine(t, f)
	seedPost(t, st, models.Post{ID: "p1", ScenarioID: "s1", LikeCount: 3, InsertedAt: "2024-05-01T10:00:00.000Z"})

	liked, err := e.ToggleLike(context.Background(), "s1", "pr1", "p1")
	if err != nil || !liked {
		t.Fatalf("toggle: liked=%v err=%v", liked, err)
	}
	snap := st.Snapshot()
	if got := snap.Posts["p1"].LikeCount; got != 12 {
		t.Fatalf("server count must replace the local guess: %d", got)
	}
	row, ok := snap.Likes["s1|pr1|p1"]
	if !ok || row.Pending {
		t.Fatalf("confirmed like not stored clean: %+v ok=%v", row, ok)
	}
}

func TestToggleLikeRemoteFailureKeepsOptimisticState(t *testing.T) {
	f := &fakeBackend{toggleErr: errors.New("backend down")}
	e, st := newTestEngine(t, f)
	seedPost(t, st, models.Post{ID: "p1", ScenarioID: "s1"})

	liked, err := e.ToggleLike(context.Background(), "s1", "pr1", "p1")
	if err == nil {
		t.Fatalf("remote failure must surface to the caller")
	}
	if !liked {
		t.Fatalf("optimistic liked state lost")
	}
	snap := st.Snapshot()
	if row, ok := snap.Likes["s1|pr1|p1"]; !ok || !row.Pending {
		t.Fatalf("optimistic pending like must survive the failure: %+v ok=%v", row, ok)
	}
}

func TestReorderPins(t *testing.T) {
	e, st := newTestEngine(t, nil)
	seedPost(t, st, models.Post{ID: "a", ScenarioID: "s1", IsPinned: true, PinOrder: 1})
	seedPost(t, st, models.Post{ID: "b", ScenarioID: "s1"})
	seedPost(t, st, models.Post{ID: "reply", ScenarioID: "s1", ParentPostID: "a"})
	seedPost(t, st, models.Post{ID: "elsewhere", ScenarioID: "s2"})

	// Stale ids, a reply and a wrong-scenario post are all dropped.
	if err := e.ReorderPins("s1", []string{"b", "ghost", "reply", "elsewhere", "a", "b"}); err != nil {
		t.Fatalf("reorder: %v", err)
	}

	snap := st.Snapshot()
	if p := snap.Posts["b"]; !p.IsPinned || p.PinOrder != 1 {
		t.Fatalf("b should be pin 1: %+v", p)
	}
	if p := snap.Posts["a"]; !p.IsPinned || p.PinOrder != 2 {
		t.Fatalf("a should be pin 2: %+v", p)
	}
	if snap.Posts["reply"].IsPinned || snap.Posts["elsewhere"].IsPinned {
		t.Fatalf("invalid ids must not be pinned")
	}

	// Full replace: omitting a previously pinned post unpins it.
	if err := e.ReorderPins("s1", []string{"b"}); err != nil {
		t.Fatalf("reorder: %v", err)
	}
	snap = st.Snapshot()
	if p := snap.Posts["a"]; p.IsPinned || p.PinOrder != 0 {
		t.Fatalf("a should be unpinned: %+v", p)
	}
}

func TestGMApplySheetUpdateIsAtomic(t *testing.T) {
	e, st := newTestEngine(t, nil)
	_, err := st.Apply(func(s *models.Snapshot) {
		s.Sheets[models.SheetKey("s1", "pr1")] = models.CharacterSheet{
			ScenarioID: "s1", ProfileID: "pr1",
			Stats: map[string]any{"hp": 10, "mp": 4},
		}
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	recap, err := e.GMApplySheetUpdate("s1", "gm", "Session recap", []SheetUpdate{
		{ProfileID: "pr1", Stats: map[string]any{"hp": 7, "mp": 4, "updatedAt": "x"}},
		{ProfileID: "pr2", Stats: map[string]any{"hp": 12}},
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	snap := st.Snapshot()
	sheet := snap.Sheets[models.SheetKey("s1", "pr1")]
	if sheet.Stats["hp"] != 7 {
		t.Fatalf("sheet not patched: %+v", sheet.Stats)
	}
	if _, ok := snap.Sheets[models.SheetKey("s1", "pr2")]; !ok {
		t.Fatalf("new sheet not created")
	}
	got, ok := snap.Posts[recap.ID]
	if !ok {
		t.Fatalf("recap post missing from the same transaction")
	}
	if !models.IsLocalID(got.ID) {
		t.Fatalf("uncommitted recap must carry a client-generated id: %q", got.ID)
	}
	if !strings.Contains(got.Text, "pr1 hp: 10 -> 7") || !strings.Contains(got.Text, "pr2 hp: - -> 12") {
		t.Fatalf("diff text wrong:\n%s", got.Text)
	}
	if strings.Contains(got.Text, "mp") || strings.Contains(got.Text, "updatedAt") {
		t.Fatalf("unchanged or volatile fields leaked into the diff:\n%s", got.Text)
	}
}

func TestGMApplySheetUpdateLeavesPriorSnapshotIntact(t *testing.T) {
	e, st := newTestEngine(t, nil)
	_, err := st.Apply(func(s *models.Snapshot) {
		s.Sheets[models.SheetKey("s1", "pr1")] = models.CharacterSheet{
			ScenarioID: "s1", ProfileID: "pr1",
			Stats: map[string]any{"hp": 10},
		}
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	before := st.Snapshot()
	if _, err := e.GMApplySheetUpdate("s1", "gm", "", []SheetUpdate{
		{ProfileID: "pr1", Stats: map[string]any{"hp": 99}},
	}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if got := before.Sheets[models.SheetKey("s1", "pr1")].Stats["hp"]; got != 10 {
		t.Fatalf("prior snapshot mutated in place: hp=%v (want 10)", got)
	}
	if got := st.Snapshot().Sheets[models.SheetKey("s1", "pr1")].Stats["hp"]; got != 99 {
		t.Fatalf("patch lost: hp=%v (want 99)", got)
	}
}

func TestGMCommitPartialFailure(t *testing.T) {
	f := &fakeBackend{postErr: errors.New("post rejected")}
	e, _ := newTestEngine(t, f)

	_, err := e.GMCommitSheetAndPostText(context.Background(), "s1", "gm", "note", []SheetUpdate{
		{ProfileID: "pr1", Stats: map[string]any{"hp": 1}},
	})
	if !errors.Is(err, ErrPartialCommit) {
		t.Fatalf("expected ErrPartialCommit, got %v", err)
	}
	if f.sheetPuts != 1 {
		t.Fatalf("sheet phase should have committed: %d", f.sheetPuts)
	}
}

func TestGMCommitReplacesLocalRecapWithServerPost(t *testing.T) {
	f := &fakeBackend{}
	e, st := newTestEngine(t, f)

	recap, err := e.GMCommitSheetAndPostText(context.Background(), "s1", "gm", "note", []SheetUpdate{
		{ProfileID: "pr1", Stats: map[string]any{"hp": 1}},
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if recap.ID != "srv-recap" {
		t.Fatalf("server post id expected, got %q", recap.ID)
	}
	snap := st.Snapshot()
	stored, ok := snap.Posts["srv-recap"]
	if !ok {
		t.Fatalf("server recap not merged")
	}
	if !reflect.DeepEqual(recap, stored) {
		t.Fatalf("returned recap diverges from the stored row:\n%+v\n%+v", recap, stored)
	}
	for id := range snap.Posts {
		if models.IsLocalID(id) {
			t.Fatalf("local recap row left behind: %s", id)
		}
	}
}

func TestGMCommitWithoutRemote(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	_, err := e.GMCommitSheetAndPostText(context.Background(), "s1", "gm", "", []SheetUpdate{{ProfileID: "pr1", Stats: map[string]any{"hp": 1}}})
	if !errors.Is(err, ErrNoRemote) {
		t.Fatalf("expected ErrNoRemote, got %v", err)
	}
}

func TestSendMessageSuccessReplacesOptimisticRow(t *testing.T) {
	e, st := newTestEngine(t, &fakeBackend{})

	msg, err := e.SendMessage(context.Background(), "s1", "c1", "pr1", "hello", nil)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if msg.ID != "srv-msg" || msg.ClientStatus != "" {
		t.Fatalf("confirmed message wrong: %+v", msg)
	}
	snap := st.Snapshot()
	if _, ok := snap.Messages["srv-msg"]; !ok {
		t.Fatalf("server row not stored")
	}
	for id := range snap.Messages {
		if models.IsLocalID(id) {
			t.Fatalf("optimistic row left behind: %s", id)
		}
	}
	conv := snap.Conversations["c1"]
	if len(conv.MessageIDs) != 1 || conv.MessageIDs[0] != "srv-msg" {
		t.Fatalf("conversation cache not recomputed: %+v", conv)
	}
}

func TestSendMessageFailureMarksFailed(t *testing.T) {
	e, st := newTestEngine(t, &fakeBackend{sendErr: errors.New("offline")})

	msg, err := e.SendMessage(context.Background(), "s1", "c1", "pr1", "hello", nil)
	if err == nil {
		t.Fatalf("send failure must surface")
	}
	if !models.IsLocalID(msg.ID) || msg.ClientStatus != models.StatusFailed {
		t.Fatalf("failed message wrong: %+v", msg)
	}
	stored := st.Snapshot().Messages[msg.ID]
	if stored.ClientStatus != models.StatusFailed {
		t.Fatalf("stored row not marked failed: %+v", stored)
	}
	if !stored.Unconfirmed() {
		t.Fatalf("failed row must be merge-protected")
	}
}
