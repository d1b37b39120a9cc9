package dump

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// Stats summarises store activity for monitoring endpoints.
type Stats struct {
	Dumps         int64     `json:"dumps"`
	Failures      int64     `json:"failures"`
	LastDumpURI   string    `json:"last_dump_uri,omitempty"`
	LastDumpTime  time.Time `json:"last_dump_time,omitempty"`
	LastSnapshots int       `json:"last_snapshots"`
}

// Store writes captures into bundle directories under a single root.
type Store struct {
	mu    sync.Mutex
	dir   string
	now   func() time.Time
	stats Stats
}

// NewStore constructs a store rooted at dir, creating it when missing.
func NewStore(dir string, clock func() time.Time) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("dump directory must be provided")
	}
	if clock == nil {
		clock = time.Now
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Store{dir: dir, now: clock}, nil
}

// Dir exposes the root directory.
func (s *Store) Dir() string {
	if s == nil {
		return ""
	}
	return s.dir
}

// Save persists capture and returns the bundle directory.
func (s *Store) Save(capture Capture) (string, error) {
	if s == nil {
		return "", fmt.Errorf("store not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	//1.- Serialise saves so bundle names stay unique per clock reading.
	path, err := WriteCapture(s.dir, capture, s.now)
	if err != nil {
		s.stats.Failures++
		return "", err
	}
	//2.- Track the latest bundle for the metrics endpoint.
	s.stats.Dumps++
	s.stats.LastDumpURI = path
	s.stats.LastDumpTime = s.now().UTC()
	s.stats.LastSnapshots = capture.SnapshotCount()
	return path, nil
}

// Stats returns a copy of the store counters.
func (s *Store) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
