package models

// Conversation is a message container: 1 participant for self-notes,
// 2 for DMs, 3+ for groups.
type Conversation struct {
	ID                    string   `json:"id"`
	ScenarioID            string   `json:"scenarioId"`
	ParticipantProfileIDs []string `json:"participantProfileIds"`
	Title                 string   `json:"title,omitempty"`
	AvatarURL             string   `json:"avatarUrl,omitempty"`
	LastMessageAt         string   `json:"lastMessageAt,omitempty"`
	// MessageIDs is an ordering cache over the conversation's messages,
	// sorted by (createdAt, id) ascending; recomputed on every merge
	// that touches the conversation.
	MessageIDs []string `json:"messageIds,omitempty"`
}

// Message client statuses marking unconfirmed optimistic writes.
const (
	StatusSending = "sending"
	StatusFailed  = "failed"
)

type Message struct {
	ID              string   `json:"id"`
	ScenarioID      string   `json:"scenarioId"`
	ConversationID  string   `json:"conversationId"`
	SenderProfileID string   `json:"senderProfileId"`
	Text            string   `json:"text"`
	ImageURLs       []string `json:"imageUrls,omitempty"`
	CreatedAt       string   `json:"createdAt"`
	// ClientStatus is set only on optimistic local writes: "sending"
	// until the authoritative request settles, "failed" after a send
	// error. Server-confirmed messages carry no status.
	ClientStatus string `json:"clientStatus,omitempty"`
}

// Unconfirmed reports whether the message is an optimistic local write
// the server may not know about yet. Such rows must survive merges
// that reconcile against authoritative row sets.
func (m Message) Unconfirmed() bool {
	return IsLocalID(m.ID) || m.ClientStatus == StatusSending || m.ClientStatus == StatusFailed
}
