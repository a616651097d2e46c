package models

// Snapshot is the single logical state of the local replica: every
// collection keyed by id. Snapshots are treated as immutable values;
// all mutation happens on a clone inside store.Apply and entities are
// replaced wholesale, never edited in place.
type Snapshot struct {
	Posts         map[string]Post           `json:"posts"`
	Likes         map[string]Like           `json:"likes"`
	Reposts       map[string]Repost         `json:"reposts"`
	Conversations map[string]Conversation   `json:"conversations"`
	Messages      map[string]Message        `json:"messages"`
	ProfilePins   map[string]ProfilePin     `json:"profilePins"`
	Sheets        map[string]CharacterSheet `json:"sheets"`
	// Seen records, per scenario, the post ids confirmed present
	// server-side at least once. It gates home-feed visibility when a
	// remote backend is active.
	Seen map[string]map[string]bool `json:"seen"`
}

func NewSnapshot() *Snapshot {
	return &Snapshot{
		Posts:         map[string]Post{},
		Likes:         map[string]Like{},
		Reposts:       map[string]Repost{},
		Conversations: map[string]Conversation{},
		Messages:      map[string]Message{},
		ProfilePins:   map[string]ProfilePin{},
		Sheets:        map[string]CharacterSheet{},
		Seen:          map[string]map[string]bool{},
	}
}

// Clone copies every collection map so a mutator can edit the clone
// without disturbing readers of the original.
func (s *Snapshot) Clone() *Snapshot {
	n := &Snapshot{
		Posts:         make(map[string]Post, len(s.Posts)),
		Likes:         make(map[string]Like, len(s.Likes)),
		Reposts:       make(map[string]Repost, len(s.Reposts)),
		Conversations: make(map[string]Conversation, len(s.Conversations)),
		Messages:      make(map[string]Message, len(s.Messages)),
		ProfilePins:   make(map[string]ProfilePin, len(s.ProfilePins)),
		Sheets:        make(map[string]CharacterSheet, len(s.Sheets)),
		Seen:          make(map[string]map[string]bool, len(s.Seen)),
	}
	for k, v := range s.Posts {
		n.Posts[k] = v
	}
	for k, v := range s.Likes {
		n.Likes[k] = v
	}
	for k, v := range s.Reposts {
		n.Reposts[k] = v
	}
	for k, v := range s.Conversations {
		n.Conversations[k] = v
	}
	for k, v := range s.Messages {
		n.Messages[k] = v
	}
	for k, v := range s.ProfilePins {
		n.ProfilePins[k] = v
	}
	for k, v := range s.Sheets {
		n.Sheets[k] = v
	}
	for sc, set := range s.Seen {
		ns := make(map[string]bool, len(set))
		for id := range set {
			ns[id] = true
		}
		n.Seen[sc] = ns
	}
	return n
}

// MarkSeen records a post id as server-confirmed for a scenario.
func (s *Snapshot) MarkSeen(scenarioID, postID string) {
	set := s.Seen[scenarioID]
	if set == nil {
		set = map[string]bool{}
		s.Seen[scenarioID] = set
	}
	set[postID] = true
}

// SeenPost reports whether a post id is server-confirmed in a scenario.
func (s *Snapshot) SeenPost(scenarioID, postID string) bool {
	return s.Seen[scenarioID][postID]
}

// LikeState resolves the like state for a normalized key, honoring
// both stored key shapes: the 3-part form always, the legacy 2-part
// form only when its row's scenario matches the queried one.
func (s *Snapshot) LikeState(key LikeKey) (Like, string, bool) {
	if l, ok := s.Likes[key.Encode()]; ok {
		return l, key.Encode(), true
	}
	legacy := key.LegacyEncode()
	if l, ok := s.Likes[legacy]; ok && l.ScenarioID == key.ScenarioID {
		return l, legacy, true
	}
	return Like{}, "", false
}

// Scenarios lists every scenario id present in the replica.
func (s *Snapshot) Scenarios() []string {
	set := map[string]bool{}
	for _, p := range s.Posts {
		if p.ScenarioID != "" {
			set[p.ScenarioID] = true
		}
	}
	for sc := range s.Seen {
		set[sc] = true
	}
	for _, c := range s.Conversations {
		if c.ScenarioID != "" {
			set[c.ScenarioID] = true
		}
	}
	out := make([]string, 0, len(set))
	for sc := range set {
		out = append(out, sc)
	}
	return out
}
