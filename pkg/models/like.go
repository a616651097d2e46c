package models

import "strings"

// Like records "profile X liked post Y" within one scenario. At most
// one like exists per (scenario, profile, post).
type Like struct {
	ScenarioID string `json:"scenarioId"`
	ProfileID  string `json:"profileId"`
	PostID     string `json:"postId"`
	CreatedAt  string `json:"createdAt"`
	// Pending marks an optimistic local like that the server has not
	// confirmed yet; merges must not drop it.
	Pending bool `json:"pending,omitempty"`
}

// Key returns the normalized 3-part key for the like.
func (l Like) Key() LikeKey {
	return LikeKey{ScenarioID: l.ScenarioID, ProfileID: l.ProfileID, PostID: l.PostID}
}

// LikeKey is the single normalized composite identity for likes. Two
// stored shapes exist historically: a legacy 2-part
// "profileId|postId" and the current 3-part
// "scenarioId|profileId|postId". The legacy shape is accepted only at
// the ingestion edge (store load, merge) and normalized immediately;
// writes always use the 3-part encoding.
type LikeKey struct {
	ScenarioID string
	ProfileID  string
	PostID     string
}

func (k LikeKey) Encode() string {
	return k.ScenarioID + "|" + k.ProfileID + "|" + k.PostID
}

// LegacyEncode returns the old 2-part key shape.
func (k LikeKey) LegacyEncode() string {
	return k.ProfileID + "|" + k.PostID
}

// DecodeLikeKey parses a stored like map key together with its row.
// A 2-part key is valid only when the row itself carries a scenario
// id; the returned key is always 3-part. ok is false when the key is
// in neither shape or the legacy shape has no scenario to resolve.
func DecodeLikeKey(stored string, row Like) (LikeKey, bool) {
	parts := strings.Split(stored, "|")
	switch len(parts) {
	case 3:
		return LikeKey{ScenarioID: parts[0], ProfileID: parts[1], PostID: parts[2]}, true
	case 2:
		if row.ScenarioID == "" {
			return LikeKey{}, false
		}
		return LikeKey{ScenarioID: row.ScenarioID, ProfileID: parts[0], PostID: parts[1]}, true
	default:
		return LikeKey{}, false
	}
}

// Repost records "profile X boosted post Y" within one scenario.
type Repost struct {
	ScenarioID string `json:"scenarioId"`
	ProfileID  string `json:"profileId"`
	PostID     string `json:"postId"`
	CreatedAt  string `json:"createdAt"`
}

// RepostKey builds the stored map key for a repost.
func RepostKey(scenarioID, profileID, postID string) string {
	return scenarioID + "|" + profileID + "|" + postID
}
