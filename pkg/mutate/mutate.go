// Package mutate applies user actions to the replica optimistically:
// the local write lands atomically before any network call, and when a
// remote backend is configured the authoritative response is folded
// back over the optimistic guess. Failed authoritative writes are
// surfaced to the caller with the optimistic state left in place; the
// caller owns the rollback decision.
package mutate

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"scenefeed/pkg/merge"
	"scenefeed/pkg/models"
	"scenefeed/pkg/remote"
	"scenefeed/pkg/store"
	"scenefeed/pkg/utils"
)

var (
	// ErrNoRemote marks an operation that needs a configured backend.
	ErrNoRemote = errors.New("no remote backend configured")
	// ErrPartialCommit marks a two-phase remote write whose second
	// phase failed after the first succeeded. Remote state is now
	// inconsistent: sheets updated, no recap posted.
	ErrPartialCommit = errors.New("partial commit: sheets written, recap post failed")
)

type Engine struct {
	store  *store.Store
	client remote.Client // nil means local-only mode
}

func New(st *store.Store, client remote.Client) *Engine {
	return &Engine{store: st, client: client}
}

// ToggleLike flips the (scenario, profile, post) like state. The local
// flip and the ±1 likeCount adjustment land in one atomic write before
// any network call; with a backend configured the server's liked flag
// and post counters then replace the optimistic guess. A post id not
// in the scenario is stale client state and is silently dropped.
func (e *Engine) ToggleLike(ctx context.Context, scenarioID, profileID, postID string) (bool, error) {
	key := models.LikeKey{ScenarioID: scenarioID, ProfileID: profileID, PostID: postID}
	var liked, valid bool
	_, err := e.store.Apply(func(s *models.Snapshot) {
		p, ok := s.Posts[postID]
		if !ok || p.ScenarioID != scenarioID {
			return
		}
		valid = true
		if _, stored, had := s.LikeState(key); had {
			delete(s.Likes, stored)
			if p.LikeCount > 0 {
				p.LikeCount--
			}
			liked = false
		} else {
			s.Likes[key.Encode()] = models.Like{
				ScenarioID: scenarioID,
				ProfileID:  profileID,
				PostID:     postID,
				CreatedAt:  models.NowISO(),
				Pending:    e.client != nil,
			}
			p.LikeCount++
			liked = true
		}
		s.Posts[postID] = p
	})
	if err != nil {
		return false, err
	}
	if !valid || e.client == nil {
		return liked, nil
	}

	resp, err := e.client.ToggleLike(ctx, postID, scenarioID, profileID, liked)
	if err != nil {
		return liked, fmt.Errorf("toggle like %s: %w", postID, err)
	}
	_, err = e.store.Apply(func(s *models.Snapshot) {
		if _, stored, had := s.LikeState(key); had {
			delete(s.Likes, stored)
		}
		if resp.Liked {
			row := models.Like{ScenarioID: scenarioID, ProfileID: profileID, PostID: postID, CreatedAt: models.NowISO()}
			if resp.Like != nil {
				row = *resp.Like
				row.ScenarioID = scenarioID
				row.Pending = false
			}
			s.Likes[key.Encode()] = row
		}
		if resp.Post != nil {
			prev, had := s.Posts[postID]
			s.Posts[postID] = merge.FoldPost(prev, had, *resp.Post, scenarioID)
		}
	})
	return resp.Liked, err
}

// ReorderPins replaces the scenario's pinned-post list wholesale. Ids
// that do not name an existing root post in the scenario are dropped;
// previously pinned posts absent from the list are unpinned. Purely
// local: pin order is presentation state this client owns.
func (e *Engine) ReorderPins(scenarioID string, orderedPostIDs []string) error {
	_, err := e.store.Apply(func(s *models.Snapshot) {
		order := make(map[string]int)
		rank := 0
		for _, id := range orderedPostIDs {
			p, ok := s.Posts[id]
			if !ok || p.ScenarioID != scenarioID || !p.IsRoot() {
				continue
			}
			if _, dup := order[id]; dup {
				continue
			}
			rank++
			order[id] = rank
		}
		for id, p := range s.Posts {
			if p.ScenarioID != scenarioID {
				continue
			}
			if n, ok := order[id]; ok {
				p.IsPinned = true
				p.PinOrder = n
			} else if p.IsPinned {
				p.IsPinned = false
				p.PinOrder = 0
			} else {
				continue
			}
			s.Posts[id] = p
		}
	})
	return err
}

// SetPinnedPost sets or clears (nil postID) a profile's single pinned
// post, optimistically, then folds the authoritative pin state when a
// backend is configured.
func (e *Engine) SetPinnedPost(ctx context.Context, scenarioID, profileID string, postID *string) error {
	_, err := e.store.Apply(func(s *models.Snapshot) {
		if postID == nil {
			delete(s.ProfilePins, profileID)
			return
		}
		s.ProfilePins[profileID] = models.ProfilePin{
			ProfileID:  profileID,
			ScenarioID: scenarioID,
			PostID:     *postID,
			PinnedAt:   models.NowISO(),
		}
	})
	if err != nil || e.client == nil {
		return err
	}

	resp, err := e.client.SetPinnedPost(ctx, profileID, postID, scenarioID)
	if err != nil {
		return fmt.Errorf("set pinned post for %s: %w", profileID, err)
	}
	_, err = e.store.Apply(func(s *models.Snapshot) {
		if !resp.Pinned || resp.Pin == nil {
			delete(s.ProfilePins, profileID)
			return
		}
		s.ProfilePins[profileID] = *resp.Pin
	})
	return err
}

// SheetUpdate is a partial stat patch for one profile's sheet.
type SheetUpdate struct {
	ProfileID string         `json:"profileId"`
	Stats     map[string]any `json:"stats"`
}

// volatile bookkeeping fields never appear in recap diffs.
var volatileStatFields = map[string]bool{
	"createdAt": true,
	"updatedAt": true,
}

// GMApplySheetUpdate patches the target profiles' character sheets and
// creates one recap post summarizing the diff, all in a single store
// transaction. The recap post carries a client-generated id until an
// authoritative commit replaces it.
func (e *Engine) GMApplySheetUpdate(scenarioID, authorProfileID, note string, updates []SheetUpdate) (models.Post, error) {
	if len(updates) == 0 {
		return models.Post{}, errors.New("no sheet updates")
	}
	now := models.NowISO()
	var recap models.Post
	_, err := e.store.Apply(func(s *models.Snapshot) {
		var lines []string
		for _, u := range updates {
			key := models.SheetKey(scenarioID, u.ProfileID)
			sheet, had := s.Sheets[key]
			if !had {
				sheet = models.CharacterSheet{ScenarioID: scenarioID, ProfileID: u.ProfileID, CreatedAt: now}
			}
			lines = append(lines, diffLines(u.ProfileID, sheet.Stats, u.Stats)...)
			// The stored Stats map is shared with previously returned
			// snapshots; replace it wholesale, never patch in place.
			stats := make(map[string]any, len(sheet.Stats)+len(u.Stats))
			for k, v := range sheet.Stats {
				stats[k] = v
			}
			for k, v := range u.Stats {
				stats[k] = v
			}
			sheet.Stats = stats
			sheet.UpdatedAt = now
			s.Sheets[key] = sheet
		}

		text := note
		for _, l := range lines {
			if text != "" {
				text += "\n"
			}
			text += l
		}
		recap = models.Post{
			ID:              utils.GenLocalID(),
			ScenarioID:      scenarioID,
			AuthorProfileID: authorProfileID,
			Text:            text,
			CreatedAt:       now,
			InsertedAt:      now,
		}
		s.Posts[recap.ID] = recap
	})
	return recap, err
}

// diffLines renders one profile's stat changes field by field, old to
// new, in deterministic field order. Unchanged and volatile fields are
// skipped.
func diffLines(profileID string, old, patch map[string]any) []string {
	fields := make([]string, 0, len(patch))
	for k := range patch {
		if !volatileStatFields[k] {
			fields = append(fields, k)
		}
	}
	sort.Strings(fields)
	var lines []string
	for _, k := range fields {
		prev, had := old[k]
		if had && fmt.Sprint(prev) == fmt.Sprint(patch[k]) {
			continue
		}
		from := "-"
		if had {
			from = fmt.Sprint(prev)
		}
		lines = append(lines, fmt.Sprintf("%s %s: %s -> %s", profileID, k, from, fmt.Sprint(patch[k])))
	}
	return lines
}

// GMCommitSheetAndPostText runs the GM update against the backend:
// local apply first, then one authoritative sheet write per profile,
// then the recap post creation. The two remote phases cannot be made
// atomic; a recap failure after any sheet write succeeded returns
// ErrPartialCommit so the caller can surface the inconsistency.
func (e *Engine) GMCommitSheetAndPostText(ctx context.Context, scenarioID, authorProfileID, note string, updates []SheetUpdate) (models.Post, error) {
	if e.client == nil {
		return models.Post{}, ErrNoRemote
	}
	recap, err := e.GMApplySheetUpdate(scenarioID, authorProfileID, note, updates)
	if err != nil {
		return models.Post{}, err
	}

	snap := e.store.Snapshot()
	committed := 0
	for _, u := range updates {
		sheet, ok := snap.Sheets[models.SheetKey(scenarioID, u.ProfileID)]
		if !ok {
			continue
		}
		confirmed, err := e.client.PutCharacterSheet(ctx, u.ProfileID, sheet)
		if err != nil {
			if committed > 0 {
				return recap, fmt.Errorf("%w: sheet write for %s: %v", ErrPartialCommit, u.ProfileID, err)
			}
			return recap, fmt.Errorf("sheet write for %s: %w", u.ProfileID, err)
		}
		committed++
		_, err = e.store.Apply(func(s *models.Snapshot) {
			confirmed.ScenarioID = scenarioID
			confirmed.ProfileID = u.ProfileID
			s.Sheets[models.SheetKey(scenarioID, u.ProfileID)] = confirmed
		})
		if err != nil {
			return recap, err
		}
	}

	created, err := e.client.CreatePost(ctx, scenarioID, models.Post{
		ScenarioID:      scenarioID,
		AuthorProfileID: recap.AuthorProfileID,
		Text:            recap.Text,
		CreatedAt:       recap.CreatedAt,
	})
	if err != nil {
		return recap, fmt.Errorf("%w: %v", ErrPartialCommit, err)
	}
	after, err := e.store.Apply(func(s *models.Snapshot) {
		delete(s.Posts, recap.ID)
		merge.UpsertPost(s, scenarioID, created)
	})
	if err != nil {
		return recap, err
	}
	// Return the row as the replica stored it; FoldPost owns insertedAt.
	if stored, ok := after.Posts[created.ID]; ok {
		created = stored
	}
	return created, nil
}

// SendMessage appends an optimistic message to a conversation and, with
// a backend configured, sends it authoritatively. The local row keeps
// clientStatus "sending" until the server row replaces it; a send
// failure marks it "failed" and returns the error, leaving the row for
// the caller to retry or discard.
func (e *Engine) SendMessage(ctx context.Context, scenarioID, conversationID, senderProfileID, text string, imageURLs []string) (models.Message, error) {
	msg := models.Message{
		ID:              utils.GenLocalID(),
		ScenarioID:      scenarioID,
		ConversationID:  conversationID,
		SenderProfileID: senderProfileID,
		Text:            text,
		ImageURLs:       imageURLs,
		CreatedAt:       models.NowISO(),
	}
	if e.client != nil {
		msg.ClientStatus = models.StatusSending
	}
	_, err := e.store.Apply(func(s *models.Snapshot) {
		s.Messages[msg.ID] = msg
		merge.RecomputeConversation(s, scenarioID, conversationID)
	})
	if err != nil || e.client == nil {
		return msg, err
	}

	sent, err := e.client.SendMessage(ctx, conversationID, models.Message{
		ScenarioID:      scenarioID,
		ConversationID:  conversationID,
		SenderProfileID: senderProfileID,
		Text:            text,
		ImageURLs:       imageURLs,
		CreatedAt:       msg.CreatedAt,
	})
	if err != nil {
		_, applyErr := e.store.Apply(func(s *models.Snapshot) {
			if m, ok := s.Messages[msg.ID]; ok {
				m.ClientStatus = models.StatusFailed
				s.Messages[msg.ID] = m
			}
		})
		if applyErr != nil {
			return msg, applyErr
		}
		msg.ClientStatus = models.StatusFailed
		return msg, fmt.Errorf("send message: %w", err)
	}

	_, err = e.store.Apply(func(s *models.Snapshot) {
		delete(s.Messages, msg.ID)
		if sent.ID != "" {
			if sent.ConversationID == "" {
				sent.ConversationID = conversationID
			}
			if sent.ScenarioID == "" {
				sent.ScenarioID = scenarioID
			}
			if sent.CreatedAt == "" {
				sent.CreatedAt = msg.CreatedAt
			}
			sent.ClientStatus = ""
			s.Messages[sent.ID] = sent
		}
		merge.RecomputeConversation(s, scenarioID, conversationID)
	})
	if err != nil {
		return msg, err
	}
	return sent, nil
}
