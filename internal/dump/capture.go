// Package dump writes diagnostic bundles of every engine's retained history.
// Bundles are for inspection only; nothing loads them back into a running session.
package dump

import "driftpursuit/rewind/internal/history"

// EntityHistory is one engine's retained snapshots at capture time.
type EntityHistory struct {
	ID            string             `json:"id"`
	Kind          string             `json:"kind"`
	Mode          string             `json:"mode"`
	Participating bool               `json:"participating"`
	Snapshots     []history.Snapshot `json:"snapshots"`
}

// Event is one manipulation transition observed by the session.
type Event struct {
	Tick     uint64  `json:"tick"`
	Time     float64 `json:"time"`
	EntityID string  `json:"entity_id"`
	Kind     string  `json:"kind"`
}

// Capture is a consistent view of the session taken on the tick goroutine.
type Capture struct {
	SessionID string          `json:"session_id"`
	Tick      uint64          `json:"tick"`
	Time      float64         `json:"time"`
	Preset    string          `json:"preset"`
	Direction string          `json:"direction"`
	Entities  []EntityHistory `json:"entities"`
	Events    []Event         `json:"events"`
}

// SnapshotCount totals the snapshots across every entity.
func (c Capture) SnapshotCount() int {
	total := 0
	for _, entity := range c.Entities {
		total += len(entity.Snapshots)
	}
	return total
}
