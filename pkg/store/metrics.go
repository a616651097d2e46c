package store

import (
	"io/fs"
	"path/filepath"
)

// ReplicaMetrics is a compact view of replica size used by the
// telemetry gauges and the inspect tool.
type ReplicaMetrics struct {
	DiskBytes     uint64
	Posts         int
	Messages      int
	Likes         int
	Reposts       int
	Conversations int
}

// Metrics returns best-effort replica metrics. Disk usage is the
// on-disk size of the Pebble directory.
func (s *Store) Metrics() ReplicaMetrics {
	snap := s.Snapshot()
	m := ReplicaMetrics{
		Posts:         len(snap.Posts),
		Messages:      len(snap.Messages),
		Likes:         len(snap.Likes),
		Reposts:       len(snap.Reposts),
		Conversations: len(snap.Conversations),
	}
	if s.path == "" {
		return m
	}
	_ = filepath.WalkDir(s.path, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if fi, err := d.Info(); err == nil {
			m.DiskBytes += uint64(fi.Size())
		}
		return nil
	})
	return m
}
