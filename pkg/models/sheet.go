package models

import "strings"

// LocalIDPrefix marks client-generated ids that were never issued by
// the server. Rows carrying it are invisible to server-scoped views
// and protected from merge deletion.
const LocalIDPrefix = "local-"

// IsLocalID reports whether id was generated on this client.
func IsLocalID(id string) bool { return strings.HasPrefix(id, LocalIDPrefix) }

// ProfilePin is the single pinned post of a profile; identity is the
// profile id.
type ProfilePin struct {
	ProfileID  string `json:"profileId"`
	ScenarioID string `json:"scenarioId"`
	PostID     string `json:"postId"`
	PinnedAt   string `json:"pinnedAt,omitempty"`
}

// CharacterSheet holds one profile's structured stats within a
// scenario; one sheet per (scenarioId, profileId).
type CharacterSheet struct {
	ScenarioID string         `json:"scenarioId"`
	ProfileID  string         `json:"profileId"`
	Stats      map[string]any `json:"stats,omitempty"`
	CreatedAt  string         `json:"createdAt"`
	UpdatedAt  string         `json:"updatedAt"`
}

// SheetKey builds the stored map key for a character sheet.
func SheetKey(scenarioID, profileID string) string {
	return scenarioID + "|" + profileID
}
