// Package cursor encodes and decodes the opaque keyset-pagination
// tokens used by every paginated view. A cursor names the last item
// the caller has seen for one specific ordering; it is never an
// offset, so inserts behind the read position cannot shift page
// boundaries.
package cursor

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// Key is the simple ordering cursor: a timestamp field plus the item
// id as tiebreaker. The home feed encodes insertedAt|id, the message
// history encodes createdAt|id.
type Key struct {
	TS string
	ID string
}

// Activity is the composite cursor for profile tabs, which interleave
// authored posts, reposts and likes under a per-item activity time.
type Activity struct {
	ActivityAt        string
	Kind              string
	PostID            string
	ReposterProfileID string
}

const sep = "|"

func encode(fields ...string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strings.Join(fields, sep)))
}

func decode(s string, want int) ([]string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("malformed cursor: %w", err)
	}
	parts := strings.Split(string(raw), sep)
	if len(parts) != want {
		return nil, fmt.Errorf("malformed cursor: expected %d fields, got %d", want, len(parts))
	}
	return parts, nil
}

func EncodeKey(k Key) string {
	return encode(k.TS, k.ID)
}

func DecodeKey(s string) (Key, error) {
	parts, err := decode(s, 2)
	if err != nil {
		return Key{}, err
	}
	return Key{TS: parts[0], ID: parts[1]}, nil
}

func EncodeActivity(a Activity) string {
	return encode(a.ActivityAt, a.Kind, a.PostID, a.ReposterProfileID)
}

func DecodeActivity(s string) (Activity, error) {
	parts, err := decode(s, 4)
	if err != nil {
		return Activity{}, err
	}
	return Activity{ActivityAt: parts[0], Kind: parts[1], PostID: parts[2], ReposterProfileID: parts[3]}, nil
}
