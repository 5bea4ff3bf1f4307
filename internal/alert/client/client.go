package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"alertd/internal/alert"
	"alertd/internal/alert/coordinator"
	"alertd/internal/alert/store"
	"alertd/internal/task"
	logx "alertd/pkg/logx"
)

// Observer is told about every alert, whichever source created it. Calls run
// on the client task and must not block.
type Observer interface {
	OnActive(id string)
	OnAcknowledged(id string)
}

// Coordinator is the scheduling side of the pipeline. Result callbacks must be
// delivered on the client's queue.
type Coordinator interface {
	RequestAdd(d alert.Draft, done func(coordinator.AddResult))
	RequestDelete(id string, done func(coordinator.DeleteResult))
	SetActiveHandler(fn func(id string))
}

type Config struct {
	// StrictPersistence rejects an add whose store write fails. When false the
	// failure is logged and the alert stays scheduled in memory.
	StrictPersistence bool
	// Now is used for expiry during restore. Defaults to time.Now.
	Now func() time.Time
}

// Client is the facade used by transports. Sources, observers and records are
// owned by the client task.
type Client struct {
	q     *task.Queue
	coord Coordinator
	store store.Store
	log   logx.Logger

	strict bool
	now    func() time.Time
	ctx    context.Context

	sources   map[string]func(id string)
	observers []Observer
	records   map[string]*alert.Record
	order     []string
}

// New builds a client on q. q must be the peer queue the coordinator delivers
// results to.
func New(q *task.Queue, coord Coordinator, st store.Store, cfg Config, log logx.Logger) *Client {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	c := &Client{
		q:       q,
		coord:   coord,
		store:   st,
		log:     log.With(logx.String("comp", "client")),
		strict:  cfg.StrictPersistence,
		now:     cfg.Now,
		ctx:     context.Background(),
		sources: make(map[string]func(string)),
		records: make(map[string]*alert.Record),
	}
	coord.SetActiveHandler(c.markActive)
	return c
}

// Run drives the client task until ctx is done.
func (c *Client) Run(ctx context.Context) error {
	c.ctx = ctx
	return c.q.Run(ctx)
}

func (c *Client) Queue() *task.Queue { return c.q }

func (c *Client) RegisterSource(ctx context.Context, name string, cb func(id string)) error {
	var err error
	if cerr := c.q.Call(ctx, func() {
		if _, ok := c.sources[name]; ok {
			err = fmt.Errorf("%w: %q already registered", alert.ErrUnknownSource, name)
			return
		}
		c.sources[name] = cb
		c.log.Info("source registered", logx.String("source", name))
	}); cerr != nil {
		return cerr
	}
	return err
}

// UnregisterSource forgets name and disables every alert it created. The
// disabled alerts are deleted asynchronously; observers are not told.
func (c *Client) UnregisterSource(ctx context.Context, name string) error {
	var err error
	if cerr := c.q.Call(ctx, func() {
		if _, ok := c.sources[name]; !ok {
			err = fmt.Errorf("%w: %q", alert.ErrUnknownSource, name)
			return
		}
		delete(c.sources, name)

		n := 0
		for _, id := range c.order {
			rec := c.records[id]
			if rec.Source != name {
				continue
			}
			n++
			c.coord.RequestDelete(id, c.disabled)
		}
		c.log.Info("source unregistered", logx.String("source", name), logx.Int("disabled", n))
	}); cerr != nil {
		return cerr
	}
	return err
}

func (c *Client) AddObserver(o Observer) {
	if o == nil {
		return
	}
	c.q.Post(func() { c.observers = append(c.observers, o) })
}

func (c *Client) RemoveObserver(o Observer) {
	c.q.Post(func() {
		for i, v := range c.observers {
			if v == o {
				c.observers = append(c.observers[:i], c.observers[i+1:]...)
				return
			}
		}
	})
}

// AddAlert requests a new alert. done, if not nil, runs on the client task
// once the request is accepted (after the entry is saved and the source
// callback ran) or rejected.
func (c *Client) AddAlert(d alert.Draft, done func(id string, err error)) {
	c.coord.RequestAdd(d, func(res coordinator.AddResult) {
		c.added(res, done)
	})
}

func (c *Client) added(res coordinator.AddResult, done func(string, error)) {
	finish := func(id string, err error) {
		if done != nil {
			done(id, err)
		}
	}
	if res.Err != nil {
		c.log.Warn("add rejected", logx.Uint64("seq", res.Seq), logx.Err(res.Err))
		finish("", res.Err)
		return
	}

	rec := res.Record
	if err := c.store.Save(c.ctx, rec); err != nil {
		if c.strict {
			c.log.Error("save failed, rolling back", logx.String("id", rec.ID), logx.Err(err))
			c.coord.RequestDelete(rec.ID, func(coordinator.DeleteResult) {})
			finish("", err)
			return
		}
		c.log.Error("save failed, alert kept in memory", logx.String("id", rec.ID), logx.Err(err))
	}

	rec.State = alert.StateScheduled
	c.records[rec.ID] = &rec
	c.order = append(c.order, rec.ID)

	if cb := c.sources[rec.Source]; cb != nil {
		cb(rec.ID)
	}
	finish(rec.ID, nil)
}

// DeleteAlert cancels or dismisses id. done, if not nil, runs on the client
// task.
func (c *Client) DeleteAlert(id string, done func(ok bool, err error)) {
	c.coord.RequestDelete(id, func(res coordinator.DeleteResult) {
		if res.Err != nil {
			c.log.Debug("delete rejected", logx.String("id", id), logx.Err(res.Err))
			if done != nil {
				done(false, res.Err)
			}
			return
		}
		c.retire(id, alert.ReasonAcknowledged)
		if done != nil {
			done(true, nil)
		}
	})
}

func (c *Client) disabled(res coordinator.DeleteResult) {
	if res.Err != nil {
		// already gone through another path
		c.log.Debug("disable skipped", logx.String("id", res.ID), logx.Err(res.Err))
		return
	}
	c.retire(res.ID, alert.ReasonDisabled)
}

// retire moves a deleted record to Terminal and drops its entry.
func (c *Client) retire(id string, reason alert.Reason) {
	rec := c.records[id]
	if rec != nil && rec.State == alert.StateActive && reason == alert.ReasonAcknowledged {
		for _, o := range c.observers {
			o.OnAcknowledged(id)
		}
	}
	if err := c.store.Erase(c.ctx, id); err != nil && !errors.Is(err, alert.ErrUnknownID) {
		c.log.Error("erase failed", logx.String("id", id), logx.Err(err))
	}
	if rec == nil {
		return
	}
	rec.Terminate(reason)
	delete(c.records, id)
	for i, v := range c.order {
		if v == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.log.Info("alert retired", logx.String("id", id), logx.String("reason", reason.String()))
}

// NotifyActive marks id active and tells every observer.
func (c *Client) NotifyActive(id string) {
	c.q.Post(func() { c.markActive(id) })
}

func (c *Client) markActive(id string) {
	rec := c.records[id]
	if rec == nil || !rec.Activate() {
		c.log.Debug("active notification ignored", logx.String("id", id))
		return
	}
	c.log.Info("alert active", logx.String("id", id), logx.String("source", rec.Source))
	for _, o := range c.observers {
		o.OnActive(id)
	}
}

// Snapshot returns copies of the tracked records in acceptance order.
func (c *Client) Snapshot(ctx context.Context) ([]alert.Record, error) {
	var out []alert.Record
	if err := c.q.Call(ctx, func() {
		out = make([]alert.Record, 0, len(c.order))
		for _, id := range c.order {
			out = append(out, *c.records[id])
		}
	}); err != nil {
		return nil, err
	}
	return out, nil
}
