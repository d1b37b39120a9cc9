package rewind

// EventKind distinguishes manipulation transitions.
type EventKind uint8

const (
	ManipulationStarted EventKind = iota + 1
	ManipulationCompleted
)

func (k EventKind) String() string {
	switch k {
	case ManipulationStarted:
		return "manipulation_started"
	case ManipulationCompleted:
		return "manipulation_completed"
	default:
		return "unknown"
	}
}

// Event is delivered synchronously to subscribers at a state transition.
type Event struct {
	Kind   EventKind
	Engine *Engine
}

// Listener receives engine events.
type Listener func(Event)

type subscriber struct {
	id       uint64
	listener Listener
}

// Subscribe registers listener and returns a function that removes it.
// Listeners run in registration order on the goroutine that caused the transition.
func (e *Engine) Subscribe(listener Listener) func() {
	if e == nil || listener == nil {
		return func() {}
	}
	e.nextSubscriber++
	id := e.nextSubscriber
	e.subscribers = append(e.subscribers, subscriber{id: id, listener: listener})
	return func() {
		for i, sub := range e.subscribers {
			if sub.id == id {
				//1.- Copy rather than splice in place so an in-flight emit keeps its view.
				next := make([]subscriber, 0, len(e.subscribers)-1)
				next = append(next, e.subscribers[:i]...)
				e.subscribers = append(next, e.subscribers[i+1:]...)
				return
			}
		}
	}
}

func (e *Engine) emit(kind EventKind) {
	subscribers := e.subscribers
	event := Event{Kind: kind, Engine: e}
	for _, sub := range subscribers {
		sub.listener(event)
	}
}
