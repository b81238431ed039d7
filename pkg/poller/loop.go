package poller

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultInterval = 3 * time.Second
	defaultTimeout  = 10 * time.Second
)

type State int

const (
	StateIdle State = iota
	StatePolling
	StatePaused
)

func (s State) String() string {
	switch s {
	case StatePolling:
		return "polling"
	case StatePaused:
		return "paused"
	}
	return "idle"
}

// FetchFunc performs the network half of one tick. On success it returns an
// apply func that mutates local state; apply only runs if the loop is still
// in the same generation when the fetch returns.
type FetchFunc func(ctx context.Context) (apply func(), err error)

// Loop runs FetchFunc on a fixed interval for the lifetime of one open
// surface. Open starts it, Close stops it, SetVisible pauses and resumes it.
// Every state change bumps the generation so results of in-flight fetches
// started earlier are dropped.
type Loop struct {
	interval time.Duration
	timeout  time.Duration
	clock    Clock
	fetch    FetchFunc
	log      *zap.Logger

	mu     sync.Mutex
	state  State
	gen    uint64
	cancel context.CancelFunc
	wake   chan struct{}
}

type LoopOption func(*Loop)

func WithInterval(d time.Duration) LoopOption { return func(l *Loop) { l.interval = d } }
func WithClock(c Clock) LoopOption           { return func(l *Loop) { l.clock = c } }
func WithLogger(log *zap.Logger) LoopOption  { return func(l *Loop) { l.log = log } }

// WithFetchTimeout bounds each tick's network call.
func WithFetchTimeout(d time.Duration) LoopOption { return func(l *Loop) { l.timeout = d } }

func NewLoop(fetch FetchFunc, opts ...LoopOption) *Loop {
	l := &Loop{
		interval: DefaultInterval,
		timeout:  defaultTimeout,
		clock:    Real(),
		fetch:    fetch,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Open starts polling with an immediate first tick. Opening an open loop is a no-op.
func (l *Loop) Open() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateIdle {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.wake = make(chan struct{}, 1)
	l.state = StatePolling
	l.gen++
	l.wake <- struct{}{}

	go l.run(ctx, l.wake)
}

// Close stops the timer. A fetch already in flight is left to finish but its
// result is discarded.
func (l *Loop) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateIdle {
		return
	}
	l.state = StateIdle
	l.gen++
	l.cancel()
	l.cancel = nil
}

// SetVisible pauses ticks while the surface is hidden and resumes with an
// immediate tick when it is shown again.
func (l *Loop) SetVisible(visible bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch {
	case visible && l.state == StatePaused:
		l.state = StatePolling
		l.gen++
		l.kickLocked()
	case !visible && l.state == StatePolling:
		l.state = StatePaused
		l.gen++
	}
}

// Kick requests an extra tick now, for example after the roster query changed.
func (l *Loop) Kick() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StatePolling {
		l.kickLocked()
	}
}

func (l *Loop) kickLocked() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) run(ctx context.Context, wake <-chan struct{}) {
	ticker := l.clock.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-wake:
		case <-ticker.C:
		}
		l.tick()
	}
}

func (l *Loop) tick() {
	l.mu.Lock()
	if l.state != StatePolling {
		l.mu.Unlock()
		return
	}
	gen := l.gen
	l.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	apply, err := l.fetch(ctx)
	cancel()
	if err != nil {
		l.log.Debug("poll_tick_failed", zap.Error(err))
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.gen != gen || l.state != StatePolling {
		l.log.Debug("poll_result_discarded", zap.Uint64("generation", gen))
		return
	}
	if apply != nil {
		apply()
	}
}
