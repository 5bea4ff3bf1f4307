package scheduler

import (
	"fmt"
	"time"

	"alertd/internal/alert"
)

// DefaultMaxLead bounds how far in the future an alert may be scheduled.
const DefaultMaxLead = 24 * time.Hour

type entry struct {
	rec   alert.Record
	timer *Timer
}

// Scheduler validates schedule times, assigns ids and arms one timer per
// accepted record. It is not safe for concurrent use: the coordinator calls it
// only from its own task.
type Scheduler struct {
	now     func() time.Time
	newID   func() string
	maxLead time.Duration

	entries map[string]*entry
	// insertion order, for stable iteration
	order []string
}

type Option func(*Scheduler)

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

func WithIDFunc(fn func() string) Option {
	return func(s *Scheduler) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// WithMaxLead overrides DefaultMaxLead. Non-positive values are ignored.
func WithMaxLead(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.maxLead = d
		}
	}
}

func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		now:     time.Now,
		newID:   alert.NewID,
		maxLead: DefaultMaxLead,
		entries: make(map[string]*entry),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Scheduler) MaxLead() time.Duration { return s.maxLead }

// Add accepts rec if no tracked record occupies the same second and the
// deadline falls in (now, now+MaxLead]. onFire(id) is called once from the
// timer goroutine when the deadline passes. The record stays tracked after
// firing; only Delete removes it.
func (s *Scheduler) Add(rec alert.Record, onFire func(id string)) (string, error) {
	at := rec.ScheduledAt.UTC().Truncate(time.Second)
	if s.Exists(at) {
		return "", fmt.Errorf("%w: %s", alert.ErrDuplicateTime, alert.FormatWireTime(at))
	}

	id := s.newID()
	for _, taken := s.entries[id]; taken; _, taken = s.entries[id] {
		id = s.newID()
	}

	deadline := at.Sub(s.now())
	if deadline <= 0 || deadline > s.maxLead {
		return "", fmt.Errorf("%w: %s is %s away", alert.ErrInvalidWindow, alert.FormatWireTime(at), deadline.Round(time.Second))
	}

	rec.ID = id
	rec.ScheduledAt = at
	rec.State = alert.StateScheduled
	rec.Reason = alert.ReasonNone

	e := &entry{rec: rec}
	e.timer = newTimer(deadline, func() {
		if onFire != nil {
			onFire(id)
		}
	})
	s.entries[id] = e
	s.order = append(s.order, id)
	return id, nil
}

// Delete cancels the record's timer if it is still pending and stops tracking
// the record. It reports false for an unknown id.
func (s *Scheduler) Delete(id string) bool {
	e, ok := s.entries[id]
	if !ok {
		return false
	}
	e.timer.Cancel()
	delete(s.entries, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// Exists reports whether a tracked record is scheduled at the same second.
func (s *Scheduler) Exists(at time.Time) bool {
	at = at.UTC().Truncate(time.Second)
	for _, e := range s.entries {
		if e.rec.ScheduledAt.Equal(at) {
			return true
		}
	}
	return false
}

func (s *Scheduler) Tracked(id string) bool {
	_, ok := s.entries[id]
	return ok
}

// Fired reports whether the timer of a tracked record has already fired.
func (s *Scheduler) Fired(id string) bool {
	e, ok := s.entries[id]
	return ok && e.timer.Fired()
}

func (s *Scheduler) Len() int { return len(s.entries) }

// Records returns the tracked records in insertion order.
func (s *Scheduler) Records() []alert.Record {
	out := make([]alert.Record, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.entries[id].rec)
	}
	return out
}

// Stop cancels every pending timer. Records stay tracked.
func (s *Scheduler) Stop() {
	for _, e := range s.entries {
		e.timer.Cancel()
	}
}
