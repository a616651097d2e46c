// Package store holds the durable local replica. All collections live
// in one logical snapshot; the only mutation path is Apply, a
// serialized read-modify-write over a clone of the current snapshot.
// Every committed write persists each collection as a single document
// in Pebble and rebuilds the secondary index before returning, so no
// dependent read can observe a half-applied state.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/pebble"

	"scenefeed/pkg/index"
	"scenefeed/pkg/logger"
	"scenefeed/pkg/models"
)

// ErrNotOpen is returned when a store method is called after Close or
// before Open.
var ErrNotOpen = errors.New("store not opened; call store.Open first")

// Document keys, one per logical collection.
const (
	docPosts         = "doc:posts"
	docLikes         = "doc:likes"
	docReposts       = "doc:reposts"
	docConversations = "doc:conversations"
	docMessages      = "doc:messages"
	docProfilePins   = "doc:profilePins"
	docSheets        = "doc:sheets"
	docSeen          = "doc:seen"
)

type Store struct {
	mu   sync.Mutex // serializes Apply
	db   *pebble.DB
	path string
	idx  *index.Index // nil when the query index is disabled
	snap atomic.Pointer[models.Snapshot]
}

// Open opens (or creates) the Pebble database at path, loads every
// collection document into the in-memory snapshot, normalizes legacy
// like keys, and seeds the index when one is provided.
func Open(path string, idx *index.Index) (*Store, error) {
	logger.Info("opening_replica", "path", path)
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("replica_open_failed", "path", path, "error", err)
		return nil, err
	}
	s := &Store{db: db, path: path, idx: idx}
	snap, err := s.load()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	normalizeLikes(snap)
	if idx != nil {
		idx.Rebuild(snap)
	}
	s.snap.Store(snap)
	logger.Info("replica_opened", "path", path,
		"posts", len(snap.Posts), "messages", len(snap.Messages))
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	logger.Info("replica_closed", "path", s.path)
	return err
}

// Ready reports whether the store is open.
func (s *Store) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db != nil
}

// Index returns the secondary index, or nil when disabled.
func (s *Store) Index() *index.Index { return s.idx }

// Snapshot returns the current snapshot. The returned value is shared
// and must be treated as read-only; it never blocks on I/O.
func (s *Store) Snapshot() *models.Snapshot {
	if v := s.snap.Load(); v != nil {
		return v
	}
	return models.NewSnapshot()
}

// Apply runs mut against a clone of the current snapshot, persists
// every collection document in one synced batch, rebuilds the index,
// and installs the clone as the new snapshot. Applies are serialized:
// each mutator sees the previous mutator's result, so multi-field
// writes (like + count) cannot lose updates.
func (s *Store) Apply(mut func(*models.Snapshot)) (*models.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, ErrNotOpen
	}
	next := s.Snapshot().Clone()
	mut(next)

	b := s.db.NewBatch()
	docs := []struct {
		key string
		v   any
	}{
		{docPosts, next.Posts},
		{docLikes, next.Likes},
		{docReposts, next.Reposts},
		{docConversations, next.Conversations},
		{docMessages, next.Messages},
		{docProfilePins, next.ProfilePins},
		{docSheets, next.Sheets},
		{docSeen, next.Seen},
	}
	for _, d := range docs {
		data, err := json.Marshal(d.v)
		if err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("failed to marshal %s: %w", d.key, err)
		}
		if err := b.Set([]byte(d.key), data, nil); err != nil {
			_ = b.Close()
			return nil, err
		}
	}
	if err := b.Commit(pebble.Sync); err != nil {
		logger.Error("replica_commit_failed", "error", err)
		return nil, err
	}
	if s.idx != nil {
		s.idx.Rebuild(next)
	}
	s.snap.Store(next)
	return next, nil
}

func (s *Store) load() (*models.Snapshot, error) {
	snap := models.NewSnapshot()
	for _, d := range []struct {
		key string
		out any
	}{
		{docPosts, &snap.Posts},
		{docLikes, &snap.Likes},
		{docReposts, &snap.Reposts},
		{docConversations, &snap.Conversations},
		{docMessages, &snap.Messages},
		{docProfilePins, &snap.ProfilePins},
		{docSheets, &snap.Sheets},
		{docSeen, &snap.Seen},
	} {
		if err := s.loadDoc(d.key, d.out); err != nil {
			return nil, err
		}
	}
	return snap, nil
}

// loadDoc unmarshals one collection document into out; a missing key
// leaves out at its zero state.
func (s *Store) loadDoc(key string, out any) error {
	v, closer, err := s.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil
		}
		return err
	}
	defer func() { _ = closer.Close() }()
	if err := json.Unmarshal(v, out); err != nil {
		return fmt.Errorf("corrupt document %s: %w", key, err)
	}
	return nil
}

// normalizeLikes rewrites legacy 2-part like keys to the 3-part form
// at the ingestion edge so business logic only ever sees one shape.
// Legacy rows with no resolvable scenario are dropped.
func normalizeLikes(s *models.Snapshot) {
	rewritten := 0
	for stored, row := range s.Likes {
		key, ok := models.DecodeLikeKey(stored, row)
		if !ok {
			delete(s.Likes, stored)
			continue
		}
		if stored == key.Encode() {
			continue
		}
		delete(s.Likes, stored)
		row.ScenarioID = key.ScenarioID
		row.ProfileID = key.ProfileID
		row.PostID = key.PostID
		s.Likes[key.Encode()] = row
		rewritten++
	}
	if rewritten > 0 {
		logger.Info("legacy_like_keys_normalized", "count", rewritten)
	}
}
