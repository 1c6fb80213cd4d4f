package schedule

import (
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
)

// Cron is a Scheduler whose repeating tasks run on a robfig/cron runner.
//
// When built with a non-empty spec, Every ignores its interval and uses the
// cron expression instead, which lets operators pin sweeps to wall-clock
// times ("0 */6 * * *") or use descriptors ("@every 90s", "@hourly").
// One-shot tasks use a plain clock timer.
type Cron struct {
	c     *cron.Cron
	sched cron.Schedule // nil => interval passed to Every
	clock clockwork.Clock
}

// NewCron starts a cron runner. spec follows the standard 5-field syntax
// plus descriptors; an empty spec keeps Every interval-based.
// Call Close to stop the runner.
func NewCron(spec string, opts ...cron.Option) (*Cron, error) {
	var sched cron.Schedule
	if spec != "" {
		s, err := cron.ParseStandard(spec)
		if err != nil {
			return nil, fmt.Errorf("schedule: parse cron spec %q: %w", spec, err)
		}
		sched = s
	}
	c := cron.New(opts...)
	c.Start()
	return &Cron{c: c, sched: sched, clock: clockwork.NewRealClock()}, nil
}

// Every registers fn on the cron runner. cron.Every rounds d to whole
// seconds (minimum one second).
func (c *Cron) Every(d time.Duration, fn func()) Task {
	sched := c.sched
	if sched == nil {
		sched = cron.Every(d)
	}
	id := c.c.Schedule(sched, cron.FuncJob(fn))
	return &cronTask{c: c.c, id: id}
}

// After arms a one-shot timer on the real clock.
func (c *Cron) After(d time.Duration, fn func()) Task {
	return &timerTask{timer: c.clock.AfterFunc(d, fn)}
}

// Next reports when a task registered with Every(d, ...) would first run
// after now. Useful for logging the effective sweep schedule.
func (c *Cron) Next(d time.Duration, now time.Time) time.Time {
	if c.sched != nil {
		return c.sched.Next(now)
	}
	return cron.Every(d).Next(now)
}

// Close stops the runner and waits for running jobs to finish.
func (c *Cron) Close() {
	<-c.c.Stop().Done()
}

type cronTask struct {
	c  *cron.Cron
	id cron.EntryID
}

func (t *cronTask) Stop() { t.c.Remove(t.id) }

var _ Scheduler = (*Cron)(nil)
