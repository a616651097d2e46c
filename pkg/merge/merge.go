// Package merge reconciles authoritative remote rows into the entity
// store: id-keyed upsert with optimistic-write protection. Remote
// wins on every field it provides; local-only fields (insertedAt, pin
// state, client status) and unconfirmed local writes survive.
package merge

import (
	"sort"

	"scenefeed/pkg/index"
	"scenefeed/pkg/models"
	"scenefeed/pkg/store"
	"scenefeed/pkg/telemetry"
)

type Merger struct {
	store *store.Store
}

func New(st *store.Store) *Merger {
	return &Merger{store: st}
}

// FoldPost overlays an authoritative post row onto the previously
// known local row. Missing remote fields fall back to local data (or
// safe defaults for brand-new rows); insertedAt and pin state are
// local-only and always preserved.
func FoldPost(prev models.Post, had bool, in models.Post, scenarioID string) models.Post {
	out := in
	if out.ScenarioID == "" {
		out.ScenarioID = scenarioID
	}
	if had {
		if out.CreatedAt == "" {
			out.CreatedAt = prev.CreatedAt
		}
		if out.AuthorProfileID == "" {
			out.AuthorProfileID = prev.AuthorProfileID
		}
		if out.Text == "" {
			out.Text = prev.Text
		}
		if len(out.ImageURLs) == 0 {
			out.ImageURLs = prev.ImageURLs
		}
		out.InsertedAt = prev.InsertedAt
		out.IsPinned = prev.IsPinned
		out.PinOrder = prev.PinOrder
	} else {
		now := models.NowISO()
		if out.CreatedAt == "" {
			out.CreatedAt = now
		}
		out.InsertedAt = now
	}
	return out
}

// UpsertPost folds one authoritative post into the snapshot and marks
// it server-confirmed. Rows with no id are skipped.
func UpsertPost(s *models.Snapshot, scenarioID string, in models.Post) bool {
	if in.ID == "" {
		telemetry.RowsSkipped.WithLabelValues("posts").Inc()
		return false
	}
	prev, had := s.Posts[in.ID]
	s.Posts[in.ID] = FoldPost(prev, had, in, scenarioID)
	s.MarkSeen(scenarioID, in.ID)
	return true
}

// MergeScenario folds one sync tick's worth of scenario rows into the
// store: posts are merged incrementally, likes and reposts are
// replaced wholesale (they carry no reliable incremental deltas), with
// the one exception that a pending optimistic like absent from the
// server set is kept.
func (m *Merger) MergeScenario(scenarioID string, posts []models.Post, likes []models.Like, reposts []models.Repost) error {
	snap, err := m.store.Apply(func(s *models.Snapshot) {
		merged := 0
		for _, p := range posts {
			if UpsertPost(s, scenarioID, p) {
				merged++
			}
		}
		telemetry.RowsMerged.WithLabelValues("posts").Add(float64(merged))

		replaceLikes(s, scenarioID, likes)
		replaceReposts(s, scenarioID, reposts)
	})
	if err != nil {
		return err
	}
	telemetry.SetReplicaSizes(len(snap.Posts), len(snap.Likes), len(snap.Reposts), len(snap.Conversations), len(snap.Messages))
	return nil
}

func replaceLikes(s *models.Snapshot, scenarioID string, likes []models.Like) {
	incoming := make(map[string]models.Like, len(likes))
	for _, l := range likes {
		if l.ProfileID == "" || l.PostID == "" {
			telemetry.RowsSkipped.WithLabelValues("likes").Inc()
			continue
		}
		if l.ScenarioID == "" {
			l.ScenarioID = scenarioID
		}
		if l.ScenarioID != scenarioID {
			continue
		}
		l.Pending = false
		incoming[l.Key().Encode()] = l
	}
	for stored, row := range s.Likes {
		key, ok := models.DecodeLikeKey(stored, row)
		if !ok || key.ScenarioID != scenarioID {
			continue
		}
		if _, confirmed := incoming[key.Encode()]; !confirmed && row.Pending {
			continue
		}
		delete(s.Likes, stored)
		telemetry.RowsDeleted.WithLabelValues("likes").Inc()
	}
	for k, l := range incoming {
		s.Likes[k] = l
	}
	telemetry.RowsMerged.WithLabelValues("likes").Add(float64(len(incoming)))
}

func replaceReposts(s *models.Snapshot, scenarioID string, reposts []models.Repost) {
	for stored, row := range s.Reposts {
		if row.ScenarioID == scenarioID {
			delete(s.Reposts, stored)
			telemetry.RowsDeleted.WithLabelValues("reposts").Inc()
		}
	}
	merged := 0
	for _, r := range reposts {
		if r.ProfileID == "" || r.PostID == "" {
			telemetry.RowsSkipped.WithLabelValues("reposts").Inc()
			continue
		}
		if r.ScenarioID == "" {
			r.ScenarioID = scenarioID
		}
		if r.ScenarioID != scenarioID {
			continue
		}
		s.Reposts[models.RepostKey(r.ScenarioID, r.ProfileID, r.PostID)] = r
		merged++
	}
	telemetry.RowsMerged.WithLabelValues("reposts").Add(float64(merged))
}

// MergeMessages reconciles one conversation against the authoritative
// message set. Local rows absent from the server set are deleted
// unless they are unconfirmed optimistic writes; the conversation's
// ordering cache and lastMessageAt are recomputed afterwards.
func (m *Merger) MergeMessages(scenarioID, conversationID string, msgs []models.Message) error {
	_, err := m.store.Apply(func(s *models.Snapshot) {
		incoming := make(map[string]models.Message, len(msgs))
		for _, in := range msgs {
			if in.ID == "" {
				telemetry.RowsSkipped.WithLabelValues("messages").Inc()
				continue
			}
			if in.ConversationID == "" {
				in.ConversationID = conversationID
			}
			if in.ScenarioID == "" {
				in.ScenarioID = scenarioID
			}
			incoming[in.ID] = in
		}

		for id, local := range s.Messages {
			if local.ConversationID != conversationID {
				continue
			}
			if _, present := incoming[id]; present {
				continue
			}
			if local.Unconfirmed() {
				continue
			}
			delete(s.Messages, id)
			telemetry.RowsDeleted.WithLabelValues("messages").Inc()
		}

		for id, in := range incoming {
			if prev, had := s.Messages[id]; had {
				if in.CreatedAt == "" {
					in.CreatedAt = prev.CreatedAt
				}
				if in.Text == "" {
					in.Text = prev.Text
				}
				if in.SenderProfileID == "" {
					in.SenderProfileID = prev.SenderProfileID
				}
				if len(in.ImageURLs) == 0 {
					in.ImageURLs = prev.ImageURLs
				}
			} else if in.CreatedAt == "" {
				in.CreatedAt = models.NowISO()
			}
			s.Messages[id] = in
		}
		telemetry.RowsMerged.WithLabelValues("messages").Add(float64(len(incoming)))

		RecomputeConversation(s, scenarioID, conversationID)
	})
	return err
}

// RecomputeConversation rebuilds a conversation's messageIds cache
// and lastMessageAt from the merged message set, sorted by
// (createdAt, id) ascending. The conversation row is created when the
// replica has messages for an unknown conversation.
func RecomputeConversation(s *models.Snapshot, scenarioID, conversationID string) {
	var msgs []models.Message
	for _, m := range s.Messages {
		if m.ConversationID == conversationID {
			msgs = append(msgs, m)
		}
	}
	conv, had := s.Conversations[conversationID]
	if !had {
		conv = models.Conversation{ID: conversationID, ScenarioID: scenarioID}
	}
	if len(msgs) == 0 {
		conv.MessageIDs = nil
		s.Conversations[conversationID] = conv
		return
	}
	sort.Slice(msgs, func(i, j int) bool { return index.MessageLess(msgs[i], msgs[j]) })
	ids := make([]string, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}
	conv.MessageIDs = ids
	conv.LastMessageAt = msgs[len(msgs)-1].CreatedAt
	s.Conversations[conversationID] = conv
}
