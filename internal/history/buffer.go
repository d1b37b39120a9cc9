package history

import (
	"errors"
	"iter"
	"math"
	"sort"
)

// ErrNonMonotonic is returned when a snapshot does not advance the buffer's time.
var ErrNonMonotonic = errors.New("snapshot timestamp must be after the newest recorded snapshot")

const (
	// DefaultRetentionWindow is used when a buffer is built with a non-positive window.
	DefaultRetentionWindow = 10.0
	// DefaultCaptureInterval sizes the ring when no interval hint is supplied.
	DefaultCaptureInterval = 1.0 / 30.0
	// MaxInitialCapacity bounds the preallocated ring; denser capture grows it on demand.
	MaxInitialCapacity = 4096
)

// Buffer retains the last window seconds of snapshots for one entity in a ring.
// It is not safe for concurrent use; the owning engine confines it to the tick goroutine.
type Buffer struct {
	window  float64
	ring    []Snapshot
	head    int
	count   int
	version uint64
}

// NewBuffer sizes a ring for window seconds of history captured every interval seconds.
func NewBuffer(window, interval float64) *Buffer {
	if !(window > 0) {
		window = DefaultRetentionWindow
	}
	if !(interval > 0) {
		interval = DefaultCaptureInterval
	}
	//1.- Reserve one extra slot for the entry straddling the window edge plus one for the newest.
	slots := math.Ceil(window/interval) + 2
	capacity := MaxInitialCapacity
	if slots < MaxInitialCapacity {
		capacity = max(int(slots), 2)
	}
	return &Buffer{window: window, ring: make([]Snapshot, capacity)}
}

// Window reports the retention window in seconds.
func (b *Buffer) Window() float64 { return b.window }

// Len reports the number of retained snapshots.
func (b *Buffer) Len() int { return b.count }

// Capacity reports the number of slots currently allocated for the ring.
func (b *Buffer) Capacity() int { return len(b.ring) }

// Version changes every time the retained contents change.
func (b *Buffer) Version() uint64 { return b.version }

// at returns the i-th retained snapshot, oldest first.
func (b *Buffer) at(i int) Snapshot {
	return b.ring[(b.head+i)%len(b.ring)]
}

// Record appends a snapshot and evicts entries that fell out of the retention window.
func (b *Buffer) Record(snapshot Snapshot) error {
	if math.IsNaN(snapshot.Timestamp) || math.IsInf(snapshot.Timestamp, 0) {
		return ErrNonMonotonic
	}
	if b.count > 0 && snapshot.Timestamp <= b.at(b.count-1).Timestamp {
		return ErrNonMonotonic
	}
	//1.- Grow instead of overwriting when a burst of captures outpaces the sizing hint.
	if b.count == len(b.ring) {
		b.grow()
	}
	b.ring[(b.head+b.count)%len(b.ring)] = snapshot
	b.count++
	//2.- Drop entries older than the window measured back from the newest snapshot.
	cutoff := snapshot.Timestamp - b.window
	for b.count > 1 && b.at(0).Timestamp < cutoff {
		b.ring[b.head] = Snapshot{}
		b.head = (b.head + 1) % len(b.ring)
		b.count--
	}
	b.version++
	return nil
}

func (b *Buffer) grow() {
	next := make([]Snapshot, len(b.ring)*2)
	for i := 0; i < b.count; i++ {
		next[i] = b.at(i)
	}
	b.ring = next
	b.head = 0
}

// Reset discards every retained snapshot.
func (b *Buffer) Reset() {
	clear(b.ring)
	b.head = 0
	b.count = 0
	b.version++
}

// OldestTime returns the timestamp of the oldest retained snapshot.
func (b *Buffer) OldestTime() (float64, bool) {
	if b == nil || b.count == 0 {
		return 0, false
	}
	return b.at(0).Timestamp, true
}

// NewestTime returns the timestamp of the newest retained snapshot.
func (b *Buffer) NewestTime() (float64, bool) {
	if b == nil || b.count == 0 {
		return 0, false
	}
	return b.at(b.count - 1).Timestamp, true
}

// Newest returns the most recent snapshot.
func (b *Buffer) Newest() (Snapshot, bool) {
	if b == nil || b.count == 0 {
		return Snapshot{}, false
	}
	return b.at(b.count - 1), true
}

// Clamp limits t to the retained time range.
func (b *Buffer) Clamp(t float64) (float64, bool) {
	oldest, ok := b.OldestTime()
	if !ok {
		return 0, false
	}
	newest, _ := b.NewestTime()
	return math.Max(oldest, math.Min(newest, t)), true
}

// Sample returns the state at time t, interpolating between the bracketing snapshots
// and clamping to the oldest or newest entry outside the retained range.
func (b *Buffer) Sample(t float64) (Snapshot, bool) {
	if b == nil || b.count == 0 {
		return Snapshot{}, false
	}
	oldest := b.at(0)
	if t <= oldest.Timestamp || math.IsNaN(t) {
		return oldest, true
	}
	newest := b.at(b.count - 1)
	if t >= newest.Timestamp {
		return newest, true
	}
	//1.- Binary search for the first snapshot at or after t; oldest < t < newest guarantees 0 < idx < count.
	idx := sort.Search(b.count, func(i int) bool { return b.at(i).Timestamp >= t })
	after := b.at(idx)
	if after.Timestamp == t {
		return after, true
	}
	before := b.at(idx - 1)
	//2.- Linear weight between the two bracketing captures.
	alpha := (t - before.Timestamp) / (after.Timestamp - before.Timestamp)
	return interpolate(before, after, alpha, t), true
}

// All yields copies of the retained snapshots, oldest first.
func (b *Buffer) All() iter.Seq2[int, Snapshot] {
	return func(yield func(int, Snapshot) bool) {
		if b == nil {
			return
		}
		for i := 0; i < b.count; i++ {
			if !yield(i, b.at(i)) {
				return
			}
		}
	}
}

// Snapshots copies the retained history into a new slice, oldest first.
func (b *Buffer) Snapshots() []Snapshot {
	if b == nil || b.count == 0 {
		return nil
	}
	out := make([]Snapshot, 0, b.count)
	for _, snapshot := range b.All() {
		out = append(out, snapshot)
	}
	return out
}
