package feed

import (
	"fmt"
	"sort"

	"scenefeed/pkg/cursor"
	"scenefeed/pkg/index"
	"scenefeed/pkg/models"
	"scenefeed/pkg/telemetry"
)

type MessagePage struct {
	Items      []models.Message `json:"items"`
	NextCursor *string          `json:"nextCursor"`
}

// MessagesPage returns one page of a conversation's history under the
// same keyset-cursor discipline as the home feed. Base ordering is
// (createdAt, id) ascending; descending reverses it for history views
// that render newest-first. The cursor encodes createdAt|id of the
// last item seen in the chosen direction.
func (e *Engine) MessagesPage(scenarioID, conversationID, cur string, limit int, descending bool) (MessagePage, error) {
	if limit <= 0 {
		limit = 50
	}
	snap := e.store.Snapshot()
	// Scenarios are isolated tenants: a conversation known to belong to
	// another scenario yields an empty page and no sync request.
	if !conversationInScenario(snap, scenarioID, conversationID) {
		return MessagePage{}, nil
	}
	msgs := e.orderedMessages(snap, conversationID)
	if descending {
		for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
			msgs[i], msgs[j] = msgs[j], msgs[i]
		}
	}

	start := 0
	if cur != "" {
		k, err := cursor.DecodeKey(cur)
		if err != nil {
			return MessagePage{}, fmt.Errorf("invalid message cursor: %w", err)
		}
		start = len(msgs)
		for i, m := range msgs {
			if afterCursor(m, k, descending) {
				start = i
				break
			}
		}
	}

	end := start + limit
	if end > len(msgs) {
		end = len(msgs)
	}
	items := make([]models.Message, end-start)
	copy(items, msgs[start:end])
	var next *string
	if len(items) == limit {
		last := items[len(items)-1]
		c := cursor.EncodeKey(cursor.Key{TS: last.CreatedAt, ID: last.ID})
		next = &c
	}

	telemetry.PagesServed.WithLabelValues("messages").Inc()
	if e.sched != nil {
		e.sched.RequestMessageSync(scenarioID, conversationID)
	}
	return MessagePage{Items: items, NextCursor: next}, nil
}

// conversationInScenario resolves a conversation's owning scenario
// from its row, falling back to its stored messages. Conversations the
// replica has never seen pass; the sync that follows will fetch them.
func conversationInScenario(snap *models.Snapshot, scenarioID, conversationID string) bool {
	if conv, ok := snap.Conversations[conversationID]; ok && conv.ScenarioID != "" {
		return conv.ScenarioID == scenarioID
	}
	for _, m := range snap.Messages {
		if m.ConversationID == conversationID && m.ScenarioID != "" {
			return m.ScenarioID == scenarioID
		}
	}
	return true
}

// afterCursor reports whether m sits strictly after the cursor key in
// the chosen direction.
func afterCursor(m models.Message, k cursor.Key, descending bool) bool {
	if descending {
		return m.CreatedAt < k.TS || (m.CreatedAt == k.TS && m.ID < k.ID)
	}
	return m.CreatedAt > k.TS || (m.CreatedAt == k.TS && m.ID > k.ID)
}

// orderedMessages returns the conversation history ascending, from
// the index, the conversation's messageIds cache, or a scan, in that
// order of preference.
func (e *Engine) orderedMessages(snap *models.Snapshot, conversationID string) []models.Message {
	if idx := e.store.Index(); idx != nil {
		ids := idx.ConvOrder(conversationID)
		msgs := make([]models.Message, 0, len(ids))
		for _, id := range ids {
			if m, ok := snap.Messages[id]; ok {
				msgs = append(msgs, m)
			}
		}
		return msgs
	}
	if conv, ok := snap.Conversations[conversationID]; ok && len(conv.MessageIDs) > 0 {
		msgs := make([]models.Message, 0, len(conv.MessageIDs))
		for _, id := range conv.MessageIDs {
			if m, ok := snap.Messages[id]; ok {
				msgs = append(msgs, m)
			}
		}
		return msgs
	}
	var msgs []models.Message
	for _, m := range snap.Messages {
		if m.ConversationID == conversationID {
			msgs = append(msgs, m)
		}
	}
	sort.Slice(msgs, func(i, j int) bool { return index.MessageLess(msgs[i], msgs[j]) })
	return msgs
}
