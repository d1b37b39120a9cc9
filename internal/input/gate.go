package input

import (
	"sync"
	"time"

	"driftpursuit/rewind/internal/logging"
)

// Clock exposes the current time for freshness and rate decisions.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (c ClockFunc) Now() time.Time { return c() }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// GateConfig controls the freshness and throughput checks applied to control frames.
type GateConfig struct {
	MaxAge      time.Duration
	MinInterval time.Duration
}

// DropReason enumerates why a control frame was rejected.
type DropReason string

const (
	DropNone        DropReason = ""
	DropSequence    DropReason = "sequence"
	DropStale       DropReason = "stale"
	DropRateLimited DropReason = "rate_limit"
	DropInvalid     DropReason = "invalid"
)

// String returns the textual representation of the drop reason.
func (r DropReason) String() string { return string(r) }

// Decision summarises whether a frame passed the gate.
type Decision struct {
	Accepted bool
	Reason   DropReason
	Delay    time.Duration
}

// Frame is the envelope metadata of one control message.
type Frame struct {
	ClientID string
	Sequence uint64
	SentAt   time.Time
}

// DropCounters aggregates per-reason drop counts.
type DropCounters struct {
	Sequence    uint64 `json:"sequence"`
	Stale       uint64 `json:"stale"`
	RateLimited uint64 `json:"rate_limited"`
	Invalid     uint64 `json:"invalid"`
}

func (c *DropCounters) add(reason DropReason) {
	switch reason {
	case DropSequence:
		c.Sequence++
	case DropStale:
		c.Stale++
	case DropRateLimited:
		c.RateLimited++
	case DropInvalid:
		c.Invalid++
	}
}

type clientState struct {
	lastSequence uint64
	lastAccepted time.Time
	drops        DropCounters
}

// Gate rejects out-of-order, stale and too frequent control frames per client.
// It is safe for concurrent use by transport goroutines.
type Gate struct {
	mu       sync.Mutex
	cfg      GateConfig
	clock    Clock
	log      *logging.Logger
	clients  map[string]*clientState
	totals   DropCounters
	accepted uint64
}

// GateOption customises gate construction.
type GateOption func(*Gate)

// WithClock overrides the clock used for freshness decisions.
func WithClock(clock Clock) GateOption {
	return func(g *Gate) {
		if clock != nil {
			g.clock = clock
		}
	}
}

// NewGate constructs a gate; zero or negative limits disable the matching check.
func NewGate(cfg GateConfig, logger *logging.Logger, opts ...GateOption) *Gate {
	if cfg.MaxAge < 0 {
		cfg.MaxAge = 0
	}
	if cfg.MinInterval < 0 {
		cfg.MinInterval = 0
	}
	if logger == nil {
		logger = logging.L()
	}
	gate := &Gate{
		cfg:     cfg,
		clock:   systemClock{},
		log:     logger.Named("input_gate"),
		clients: make(map[string]*clientState),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(gate)
		}
	}
	return gate
}

// Evaluate applies the sequencing, freshness and throughput checks to frame.
func (g *Gate) Evaluate(frame Frame) Decision {
	if g == nil || frame.ClientID == "" {
		return Decision{Accepted: true}
	}
	now := g.clock.Now()
	var delay time.Duration
	if !frame.SentAt.IsZero() {
		if delay = now.Sub(frame.SentAt); delay < 0 {
			delay = 0
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	state := g.clients[frame.ClientID]
	if state == nil {
		state = &clientState{}
		g.clients[frame.ClientID] = state
	}

	reason := g.check(state, frame, now, delay)
	if reason != DropNone {
		state.drops.add(reason)
		g.totals.add(reason)
		g.log.Debug("control frame dropped",
			logging.String("client_id", frame.ClientID),
			logging.Uint64("sequence", frame.Sequence),
			logging.Stringer("reason", reason))
		return Decision{Reason: reason, Delay: delay}
	}
	//1.- Only accepted frames advance the client's baseline.
	state.lastSequence = frame.Sequence
	state.lastAccepted = now
	g.accepted++
	return Decision{Accepted: true, Delay: delay}
}

func (g *Gate) check(state *clientState, frame Frame, now time.Time, delay time.Duration) DropReason {
	//1.- Sequence zero is reserved; replays and reordering never pass.
	if frame.Sequence == 0 || (state.lastSequence != 0 && frame.Sequence <= state.lastSequence) {
		return DropSequence
	}
	//2.- A frame that sat in transit too long would act on a stale view of the timeline.
	if g.cfg.MaxAge > 0 && delay > g.cfg.MaxAge {
		return DropStale
	}
	if state.lastSequence == 0 {
		return DropNone
	}
	if g.cfg.MinInterval > 0 && now.Sub(state.lastAccepted) < g.cfg.MinInterval {
		return DropRateLimited
	}
	return DropNone
}

// Reject records a frame that passed the gate but failed command validation.
func (g *Gate) Reject(clientID string) {
	if g == nil || clientID == "" {
		return
	}
	g.mu.Lock()
	if state := g.clients[clientID]; state != nil {
		state.drops.add(DropInvalid)
	}
	g.totals.add(DropInvalid)
	g.mu.Unlock()
}

// Forget clears sequencing state and counters for a disconnected client.
func (g *Gate) Forget(clientID string) {
	if g == nil || clientID == "" {
		return
	}
	g.mu.Lock()
	delete(g.clients, clientID)
	g.mu.Unlock()
}

// Drops returns a copy of the per-client counters.
func (g *Gate) Drops() map[string]DropCounters {
	if g == nil {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.clients) == 0 {
		return nil
	}
	out := make(map[string]DropCounters, len(g.clients))
	for id, state := range g.clients {
		out[id] = state.drops
	}
	return out
}

// Totals returns lifetime accepted and dropped counts across every client.
func (g *Gate) Totals() (accepted uint64, drops DropCounters) {
	if g == nil {
		return 0, DropCounters{}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.accepted, g.totals
}
