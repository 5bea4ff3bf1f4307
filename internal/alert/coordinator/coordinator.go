package coordinator

import (
	"context"
	"fmt"
	"time"

	"alertd/internal/alert"
	"alertd/internal/alert/scheduler"
	"alertd/internal/task"
	logx "alertd/pkg/logx"
)

// DefaultMaxScheduled is the capacity used when Config.MaxScheduled is unset.
const DefaultMaxScheduled = 5

// Poster is the peer task the coordinator delivers results to.
type Poster interface {
	Post(fn func()) bool
}

type Config struct {
	MaxScheduled int
	MaxLead      time.Duration
}

type AddResult struct {
	Seq    uint64
	Record alert.Record
	Err    error
}

type DeleteResult struct {
	Seq uint64
	ID  string
	Err error
}

func (r DeleteResult) OK() bool { return r.Err == nil }

type Stats struct {
	Count    int
	Capacity int
	Fired    int
}

// Coordinator owns the capacity counter and the scheduler. Both are touched
// only by closures on the coordinator's own queue; every result is posted to
// the peer queue, where the caller's callback runs.
type Coordinator struct {
	q    *task.Queue
	peer Poster
	log  logx.Logger

	sched    *scheduler.Scheduler
	capacity int
	count    int
	seq      uint64
	onActive func(id string)
}

func New(cfg Config, peer Poster, log logx.Logger, opts ...scheduler.Option) *Coordinator {
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "coordinator"))
	capacity := cfg.MaxScheduled
	if capacity <= 0 {
		capacity = DefaultMaxScheduled
	}
	if cfg.MaxLead > 0 {
		opts = append([]scheduler.Option{scheduler.WithMaxLead(cfg.MaxLead)}, opts...)
	}
	return &Coordinator{
		q:        task.New("coordinator", log),
		peer:     peer,
		log:      log,
		sched:    scheduler.New(opts...),
		capacity: capacity,
	}
}

// Run drives the coordinator task until ctx is done. Pending timers are
// canceled on exit.
func (c *Coordinator) Run(ctx context.Context) error {
	err := c.q.Run(ctx)
	// the queue has exited, nothing else touches the scheduler now
	c.sched.Stop()
	return err
}

func (c *Coordinator) Queue() *task.Queue { return c.q }

// SetActiveHandler installs the function called on the peer task when a
// tracked alert fires.
func (c *Coordinator) SetActiveHandler(fn func(id string)) {
	c.q.Post(func() { c.onActive = fn })
}

// RequestAdd validates and schedules d on the coordinator task. done runs on
// the peer task with the outcome.
func (c *Coordinator) RequestAdd(d alert.Draft, done func(AddResult)) {
	ok := c.q.Post(func() {
		c.seq++
		res := AddResult{Seq: c.seq}
		res.Record, res.Err = c.add(d)
		if res.Err != nil {
			c.log.Debug("add rejected", logx.Uint64("seq", res.Seq), logx.String("source", d.Source), logx.Err(res.Err))
		} else {
			c.log.Info("alert scheduled",
				logx.Uint64("seq", res.Seq),
				logx.String("id", res.Record.ID),
				logx.String("kind", res.Record.Kind.String()),
				logx.Time("at", res.Record.ScheduledAt),
				logx.Int("count", c.count),
			)
		}
		c.deliver(func() {
			if done != nil {
				done(res)
			}
		})
	})
	if !ok {
		c.deliver(func() {
			if done != nil {
				done(AddResult{Err: fmt.Errorf("add: %w", alert.ErrStopped)})
			}
		})
	}
}

func (c *Coordinator) add(d alert.Draft) (alert.Record, error) {
	if c.count >= c.capacity {
		return alert.Record{}, fmt.Errorf("%w: %d of %d", alert.ErrCapacityExceeded, c.count, c.capacity)
	}
	if err := d.Validate(); err != nil {
		return alert.Record{}, err
	}
	at, err := alert.ParseWireTime(d.ScheduledAt)
	if err != nil {
		return alert.Record{}, err
	}
	rec := alert.Record{
		ScheduledAt: at,
		Kind:        d.Kind,
		Source:      d.Source,
		State:       alert.StateDraft,
	}
	id, err := c.sched.Add(rec, c.timerFired)
	if err != nil {
		return alert.Record{}, err
	}
	c.count++
	rec.ID = id
	rec.ScheduledAt = at.Truncate(time.Second)
	rec.State = alert.StateScheduled
	return rec, nil
}

// RequestDelete cancels and forgets id. done runs on the peer task.
func (c *Coordinator) RequestDelete(id string, done func(DeleteResult)) {
	ok := c.q.Post(func() {
		c.seq++
		res := DeleteResult{Seq: c.seq, ID: id}
		if c.sched.Delete(id) {
			c.count--
			c.log.Info("alert deleted", logx.Uint64("seq", res.Seq), logx.String("id", id), logx.Int("count", c.count))
		} else {
			res.Err = fmt.Errorf("%w: %s", alert.ErrUnknownID, id)
		}
		c.deliver(func() {
			if done != nil {
				done(res)
			}
		})
	})
	if !ok {
		c.deliver(func() {
			if done != nil {
				done(DeleteResult{ID: id, Err: fmt.Errorf("delete: %w", alert.ErrStopped)})
			}
		})
	}
}

// Stats reports the capacity counter on the peer task.
func (c *Coordinator) Stats(done func(Stats)) {
	c.q.Post(func() {
		st := Stats{Count: c.count, Capacity: c.capacity}
		for _, r := range c.sched.Records() {
			if c.sched.Fired(r.ID) {
				st.Fired++
			}
		}
		c.deliver(func() {
			if done != nil {
				done(st)
			}
		})
	})
}

// Stop cancels every pending timer. Tracked records and the counter are kept.
func (c *Coordinator) Stop() {
	c.q.Post(c.sched.Stop)
}

// timerFired runs on the timer goroutine and only hands off.
func (c *Coordinator) timerFired(id string) {
	if !c.q.Post(func() { c.fired(id) }) {
		c.log.Warn("fire dropped, coordinator stopped", logx.String("id", id))
	}
}

func (c *Coordinator) fired(id string) {
	if !c.sched.Tracked(id) {
		// deleted between the timer firing and this closure running
		c.log.Debug("stale fire dropped", logx.String("id", id))
		return
	}
	c.log.Info("alert due", logx.String("id", id))
	fn := c.onActive
	if fn == nil {
		return
	}
	c.deliver(func() { fn(id) })
}

func (c *Coordinator) deliver(fn func()) {
	if c.peer == nil {
		fn()
		return
	}
	if !c.peer.Post(fn) {
		c.log.Warn("peer task stopped, result dropped")
	}
}
