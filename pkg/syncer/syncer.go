// Package syncer schedules background reconciliation against the
// remote backend: one scheduling unit per logical resource key
// (scenario id for the feed, conversation id for message history),
// single-flight per key, throttled by a minimum interval so a UI that
// asks for a refresh on every render cannot flood the backend.
// Failures are swallowed; the only observable effect of a failed tick
// is that the replica stays stale.
package syncer

import (
	"context"
	"sync"
	"time"

	"scenefeed/pkg/logger"
	"scenefeed/pkg/merge"
	"scenefeed/pkg/models"
	"scenefeed/pkg/remote"
	"scenefeed/pkg/telemetry"
)

const (
	kindFeed     = "feed"
	kindMessages = "messages"
)

type Config struct {
	// FeedMinInterval and MessageMinInterval bound how often one
	// resource key may be refreshed.
	FeedMinInterval    time.Duration
	MessageMinInterval time.Duration
	// PageSize bounds every remote fetch.
	PageSize int
}

func (c *Config) withDefaults() {
	if c.FeedMinInterval <= 0 {
		c.FeedMinInterval = 2500 * time.Millisecond
	}
	if c.MessageMinInterval <= 0 {
		c.MessageMinInterval = 3 * time.Second
	}
	if c.PageSize <= 0 {
		c.PageSize = 200
	}
}

// resource is the per-key scheduler bookkeeping: the in-flight flag,
// the last attempt time, and the independent older-data backfill
// cursor advanced one page per tick.
type resource struct {
	inFlight     bool
	lastAttempt  time.Time
	backfill     string
	backfillInit bool
	backfillDone bool
}

type Scheduler struct {
	mu     sync.Mutex
	feed   map[string]*resource
	conv   map[string]*resource
	client remote.Client
	merger *merge.Merger
	cfg    Config

	now func() time.Time // test hook
}

// New builds a scheduler. A nil client disables syncing entirely:
// every refresh request becomes a no-op.
func New(client remote.Client, merger *merge.Merger, cfg Config) *Scheduler {
	cfg.withDefaults()
	return &Scheduler{
		feed:   map[string]*resource{},
		conv:   map[string]*resource{},
		client: client,
		merger: merger,
		cfg:    cfg,
		now:    time.Now,
	}
}

// admit implements the single-flight and throttle gate for one key.
// It returns the resource with inFlight set when a fetch should
// start, or nil when the request was dropped.
func (s *Scheduler) admit(kind string, m map[string]*resource, key string, minInterval time.Duration) *resource {
	if s.client == nil {
		telemetry.SyncSkipped.WithLabelValues(kind, "no_remote").Inc()
		return nil
	}
	// Locally generated resource ids were never created server-side;
	// the remote would reject them.
	if models.IsLocalID(key) || key == "" {
		telemetry.SyncSkipped.WithLabelValues(kind, "local_resource").Inc()
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r := m[key]
	if r == nil {
		r = &resource{}
		m[key] = r
	}
	if r.inFlight {
		telemetry.SyncSkipped.WithLabelValues(kind, "in_flight").Inc()
		return nil
	}
	now := s.now()
	if !r.lastAttempt.IsZero() && now.Sub(r.lastAttempt) < minInterval {
		telemetry.SyncSkipped.WithLabelValues(kind, "throttled").Inc()
		return nil
	}
	r.inFlight = true
	r.lastAttempt = now
	telemetry.SyncAttempts.WithLabelValues(kind).Inc()
	return r
}

func (s *Scheduler) release(r *resource) {
	s.mu.Lock()
	r.inFlight = false
	s.mu.Unlock()
}

// RequestFeedSync opportunistically refreshes one scenario's posts,
// likes and reposts. Fire-and-forget: it never blocks the caller and
// never reports errors.
func (s *Scheduler) RequestFeedSync(scenarioID string) {
	r := s.admit(kindFeed, s.feed, scenarioID, s.cfg.FeedMinInterval)
	if r == nil {
		return
	}
	go s.syncFeed(scenarioID, r)
}

// syncFeed performs one feed tick: the top page, one backfill page,
// and the wholesale likes/reposts sets, all fed to the merge engine.
func (s *Scheduler) syncFeed(scenarioID string, r *resource) {
	defer s.release(r)
	ctx := context.Background()

	top, err := s.client.FetchPosts(ctx, scenarioID, s.cfg.PageSize, "")
	if err != nil {
		s.fail(kindFeed, scenarioID, err)
		return
	}
	rows := top.Items

	s.mu.Lock()
	backfill := r.backfill
	backfillInit := r.backfillInit
	backfillDone := r.backfillDone
	s.mu.Unlock()

	if !backfillDone {
		if !backfillInit {
			// First tick: the top page's nextCursor seeds the backfill
			// walk; nothing older to fetch yet.
			s.mu.Lock()
			r.backfillInit = true
			if top.NextCursor == nil {
				r.backfillDone = true
			} else {
				r.backfill = *top.NextCursor
			}
			s.mu.Unlock()
		} else {
			page, err := s.client.FetchPosts(ctx, scenarioID, s.cfg.PageSize, backfill)
			if err != nil {
				s.fail(kindFeed, scenarioID, err)
				return
			}
			rows = append(rows, page.Items...)
			s.mu.Lock()
			if page.NextCursor == nil {
				r.backfillDone = true
			} else {
				r.backfill = *page.NextCursor
			}
			s.mu.Unlock()
		}
	}

	// Likes and reposts lack incremental deltas; each tick replaces
	// them wholesale. Merge only when both fetches succeeded so a
	// transport error cannot masquerade as an empty set.
	likes, err := s.client.FetchLikes(ctx, scenarioID)
	if err != nil {
		s.fail(kindFeed, scenarioID, err)
		return
	}
	reposts, err := s.client.FetchReposts(ctx, scenarioID)
	if err != nil {
		s.fail(kindFeed, scenarioID, err)
		return
	}

	if err := s.merger.MergeScenario(scenarioID, rows, likes, reposts); err != nil {
		s.fail(kindFeed, scenarioID, err)
	}
}

// RequestMessageSync opportunistically refreshes one conversation's
// history. Fire-and-forget.
func (s *Scheduler) RequestMessageSync(scenarioID, conversationID string) {
	r := s.admit(kindMessages, s.conv, conversationID, s.cfg.MessageMinInterval)
	if r == nil {
		return
	}
	go s.syncMessages(scenarioID, conversationID, r)
}

func (s *Scheduler) syncMessages(scenarioID, conversationID string, r *resource) {
	defer s.release(r)
	msgs, err := s.client.FetchMessages(context.Background(), conversationID, s.cfg.PageSize)
	if err != nil {
		s.fail(kindMessages, conversationID, err)
		return
	}
	if err := s.merger.MergeMessages(scenarioID, conversationID, msgs); err != nil {
		s.fail(kindMessages, conversationID, err)
	}
}

// ResetBackfill restarts a scenario's backfill walk from the top; the
// periodic sweep uses it so full history is eventually re-pulled.
func (s *Scheduler) ResetBackfill(scenarioID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.feed[scenarioID]; ok {
		r.backfill = ""
		r.backfillInit = false
		r.backfillDone = false
	}
}

func (s *Scheduler) fail(kind, key string, err error) {
	telemetry.SyncFailures.WithLabelValues(kind).Inc()
	logger.Warn("background_sync_failed", "kind", kind, "key", key, "error", err)
}
