package simulation

import (
	"context"
	"sync"
	"time"
)

// maxCatchUpSteps bounds how many fixed steps one wake-up may run after a stall.
const maxCatchUpSteps = 5

// StepFunc advances the simulation by one fixed timestep.
type StepFunc func(step time.Duration)

// Loop drives a fixed timestep simulation from a single goroutine.
type Loop struct {
	step     time.Duration
	stepFunc StepFunc
	monitor  *TickMonitor
	now      func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// LoopOption customises loop construction.
type LoopOption func(*Loop)

// WithMonitor records the wall-clock cost of every step.
func WithMonitor(monitor *TickMonitor) LoopOption {
	return func(l *Loop) { l.monitor = monitor }
}

// NewLoop configures a loop that runs step every interval.
func NewLoop(interval time.Duration, step StepFunc, opts ...LoopOption) *Loop {
	if interval <= 0 {
		interval = time.Second / 60
	}
	if step == nil {
		step = func(time.Duration) {}
	}
	loop := &Loop{step: interval, stepFunc: step, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(loop)
		}
	}
	return loop
}

// Start begins ticking until ctx is cancelled or Stop is invoked.
func (l *Loop) Start(ctx context.Context) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done != nil {
		return
	}
	ctx, l.cancel = context.WithCancel(ctx)
	l.done = make(chan struct{})
	go l.run(ctx, l.done)
}

func (l *Loop) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(l.step)
	defer ticker.Stop()
	last := l.now()
	var accumulator time.Duration
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			//1.- Accumulate elapsed wall time and run whole fixed steps.
			accumulator += now.Sub(last)
			last = now
			steps := 0
			for accumulator >= l.step && steps < maxCatchUpSteps {
				started := l.now()
				l.stepFunc(l.step)
				l.monitor.Observe(l.now().Sub(started), l.step)
				accumulator -= l.step
				steps++
			}
			//2.- After a long stall drop the backlog instead of spiralling.
			if steps == maxCatchUpSteps && accumulator >= l.step {
				l.monitor.Skipped(int(accumulator / l.step))
				accumulator %= l.step
			}
		}
	}
}

// Stop cancels the loop and waits for the goroutine to exit.
func (l *Loop) Stop() {
	if l == nil {
		return
	}
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// StepDuration exposes the configured timestep.
func (l *Loop) StepDuration() time.Duration {
	if l == nil {
		return 0
	}
	return l.step
}
