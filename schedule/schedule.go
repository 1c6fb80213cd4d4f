// Package schedule runs the cache's background work: the repeating
// expiration sweep and the one-shot debounced snapshot write.
//
// Time comes from a clockwork.Clock, so tests can drive both kinds of task
// with clockwork's fake clock instead of sleeping.
package schedule

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Task is a handle to scheduled work.
type Task interface {
	// Stop cancels future runs. It is safe to call more than once.
	// A run already in progress is allowed to finish.
	Stop()
}

// Scheduler starts repeating and one-shot tasks.
type Scheduler interface {
	// Every runs fn every d until the returned Task is stopped.
	Every(d time.Duration, fn func()) Task
	// After runs fn once, d from now, unless the Task is stopped first.
	After(d time.Duration, fn func()) Task
}

// clockScheduler implements Scheduler on top of a clockwork.Clock.
type clockScheduler struct {
	clock clockwork.Clock
}

// New returns a Scheduler driven by clock.
// A nil clock means the real wall clock.
func New(clock clockwork.Clock) Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &clockScheduler{clock: clock}
}

// Every starts a ticker goroutine owned by the returned Task.
// Ticks that arrive while fn is still running are dropped by the ticker.
func (s *clockScheduler) Every(d time.Duration, fn func()) Task {
	t := &tickerTask{
		ticker: s.clock.NewTicker(d),
		done:   make(chan struct{}),
	}
	t.wg.Add(1)
	go t.loop(fn)
	return t
}

// After arms a one-shot timer.
func (s *clockScheduler) After(d time.Duration, fn func()) Task {
	return &timerTask{timer: s.clock.AfterFunc(d, fn)}
}

type tickerTask struct {
	ticker clockwork.Ticker
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

func (t *tickerTask) loop(fn func()) {
	defer t.wg.Done()
	for {
		select {
		case <-t.done:
			return
		case <-t.ticker.Chan():
			// Re-check so a Stop racing with a tick wins.
			select {
			case <-t.done:
				return
			default:
			}
			fn()
		}
	}
}

// Stop stops the ticker and waits for the loop goroutine to exit.
// It must not be called from inside the task's own fn.
func (t *tickerTask) Stop() {
	t.once.Do(func() {
		t.ticker.Stop()
		close(t.done)
	})
	t.wg.Wait()
}

type timerTask struct {
	timer clockwork.Timer
}

func (t *timerTask) Stop() { t.timer.Stop() }
