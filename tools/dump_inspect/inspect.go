package dumpinspect

import (
	"fmt"
	"strings"

	"driftpursuit/rewind/internal/dump"
)

// EntitySummary condenses one entity's retained history.
type EntitySummary struct {
	ID        string  `json:"id"`
	Kind      string  `json:"kind"`
	Mode      string  `json:"mode"`
	Snapshots int     `json:"snapshots"`
	Oldest    float64 `json:"oldest"`
	Newest    float64 `json:"newest"`
	Span      float64 `json:"span"`
	// Distance is the path length traced by consecutive positions.
	Distance float64 `json:"distance"`
}

// Summary condenses a whole bundle for operators.
type Summary struct {
	SessionID string          `json:"session_id"`
	Tick      uint64          `json:"tick"`
	Time      float64         `json:"time"`
	Preset    string          `json:"preset"`
	Direction string          `json:"direction"`
	Entities  []EntitySummary `json:"entities"`
	Events    map[string]int  `json:"events"`
}

// Inspect loads the bundle at path and summarises it.
func Inspect(path string) (dump.Capture, Summary, error) {
	if strings.TrimSpace(path) == "" {
		return dump.Capture{}, Summary{}, fmt.Errorf("path is required")
	}
	capture, err := dump.Load(path)
	if err != nil {
		return dump.Capture{}, Summary{}, err
	}
	return capture, Summarize(capture), nil
}

// Summarize derives per-entity spans and event counts from capture.
func Summarize(capture dump.Capture) Summary {
	summary := Summary{
		SessionID: capture.SessionID,
		Tick:      capture.Tick,
		Time:      capture.Time,
		Preset:    capture.Preset,
		Direction: capture.Direction,
		Entities:  make([]EntitySummary, 0, len(capture.Entities)),
		Events:    make(map[string]int),
	}
	for _, entity := range capture.Entities {
		entry := EntitySummary{ID: entity.ID, Kind: entity.Kind, Mode: entity.Mode, Snapshots: len(entity.Snapshots)}
		if n := len(entity.Snapshots); n > 0 {
			entry.Oldest = entity.Snapshots[0].Timestamp
			entry.Newest = entity.Snapshots[n-1].Timestamp
			entry.Span = entry.Newest - entry.Oldest
			//1.- Snapshots are chronological, so the path is the sum of hops between neighbours.
			for i := 1; i < n; i++ {
				entry.Distance += entity.Snapshots[i].Transform.Position.Sub(entity.Snapshots[i-1].Transform.Position).Len()
			}
		}
		summary.Entities = append(summary.Entities, entry)
	}
	for _, event := range capture.Events {
		summary.Events[event.Kind]++
	}
	return summary
}
