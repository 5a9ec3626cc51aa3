package loop

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// ErrClosed is returned by Run when the loop was closed.
var ErrClosed = errors.New("loop closed")

// Option configures a Loop.
type Option func(*Loop)

// WithClock sets the clock used for timers. Tests pass clock.NewMock().
func WithClock(c clock.Clock) Option {
	return func(l *Loop) {
		l.clock = c
	}
}

// Loop is a cooperative single-goroutine task queue with timers.
//
// Post and AfterFunc may be called from any goroutine. Queued work is executed
// either by Run or, in tests and embedded hosts, by explicit ProcessEvents calls.
// Run and ProcessEvents must not be used concurrently on the same loop.
type Loop struct {
	clock clock.Clock

	mu     sync.Mutex
	tasks  []func()
	timers timerHeap
	seq    uint64
	closed bool

	wake chan struct{}
}

// New creates a loop using the wall clock unless overridden.
func New(opts ...Option) *Loop {
	l := &Loop{
		clock: clock.New(),
		wake:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Clock returns the loop's clock.
func (l *Loop) Clock() clock.Clock {
	return l.clock
}

// Post queues fn to run on the loop. Posting to a closed loop is a no-op.
func (l *Loop) Post(fn func()) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.tasks = append(l.tasks, fn)
	l.mu.Unlock()
	l.signal()
}

// AfterFunc schedules fn to run on the loop once d has elapsed on the loop's clock.
func (l *Loop) AfterFunc(d time.Duration, fn func()) *Timer {
	t := &Timer{loop: l, fn: fn, index: -1}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return t
	}
	l.seq++
	t.seq = l.seq
	t.when = l.clock.Now().Add(d)
	heap.Push(&l.timers, t)
	l.mu.Unlock()
	l.signal()
	return t
}

// Pending reports the number of queued tasks and armed timers.
func (l *Loop) Pending() (tasks, timers int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tasks), len(l.timers)
}

// ProcessEvents runs due timers and queued tasks until nothing is runnable,
// including work queued by the tasks themselves. It returns the number of
// callbacks executed.
func (l *Loop) ProcessEvents() int {
	n := 0
	for {
		fn := l.next()
		if fn == nil {
			return n
		}
		fn()
		n++
	}
}

// Run processes events until ctx is done or the loop is closed.
func (l *Loop) Run(ctx context.Context) error {
	for {
		l.ProcessEvents()

		l.mu.Lock()
		closed := l.closed
		wait := time.Duration(-1)
		if len(l.timers) > 0 {
			wait = max(l.timers[0].when.Sub(l.clock.Now()), 0)
		}
		l.mu.Unlock()

		if closed {
			return ErrClosed
		}

		var (
			timer  *clock.Timer
			timerC <-chan time.Time
		)
		if wait >= 0 {
			timer = l.clock.Timer(wait)
			timerC = timer.C
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return ctx.Err()
		case <-l.wake:
		case <-timerC:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

// Close discards queued work and stops accepting new work.
func (l *Loop) Close() {
	l.mu.Lock()
	l.closed = true
	l.tasks = nil
	for _, t := range l.timers {
		t.index = -1
	}
	l.timers = nil
	l.mu.Unlock()
	l.signal()
}

// Closed reports whether Close was called.
func (l *Loop) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func (l *Loop) next() func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	if len(l.timers) > 0 && !l.timers[0].when.After(l.clock.Now()) {
		t := heap.Pop(&l.timers).(*Timer)
		t.fired = true
		return t.fn
	}
	if len(l.tasks) > 0 {
		fn := l.tasks[0]
		l.tasks[0] = nil
		l.tasks = l.tasks[1:]
		return fn
	}
	return nil
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Timer is a pending AfterFunc callback.
type Timer struct {
	loop  *Loop
	fn    func()
	when  time.Time
	seq   uint64
	index int
	fired bool
}

// Stop cancels the timer. It returns false if the timer already fired or was stopped.
func (t *Timer) Stop() bool {
	l := t.loop
	l.mu.Lock()
	defer l.mu.Unlock()
	if t.fired || t.index < 0 {
		return false
	}
	heap.Remove(&l.timers, t.index)
	return true
}

type timerHeap []*Timer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].when.Equal(h[j].when) {
		return h[i].seq < h[j].seq
	}
	return h[i].when.Before(h[j].when)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*Timer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}
