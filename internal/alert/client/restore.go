package client

import (
	"context"

	"alertd/internal/alert"
	"alertd/internal/alert/coordinator"
	"alertd/internal/alert/store"
	logx "alertd/pkg/logx"
)

// RestoreReport summarizes a startup recovery.
type RestoreReport struct {
	Scanned   int
	Restored  []string // new ids
	Rejected  int
	Expired   int
	Malformed []string
	Err       error
}

// RestoreOnStartup reschedules every persisted alert. Entries whose time has
// already passed are erased and counted as expired. Each resubmitted entry is
// erased once its replacement has been accepted or rejected. done runs on the
// client task after the last entry resolves.
func (c *Client) RestoreOnStartup(ctx context.Context, done func(RestoreReport)) {
	finish := func(r RestoreReport) {
		c.log.Info("restore finished",
			logx.Int("scanned", r.Scanned),
			logx.Int("restored", len(r.Restored)),
			logx.Int("rejected", r.Rejected),
			logx.Int("expired", r.Expired),
			logx.Int("malformed", len(r.Malformed)),
		)
		if done != nil {
			done(r)
		}
	}

	c.q.Post(func() {
		res, err := c.store.ScanAll(ctx)
		if err != nil {
			c.log.Error("restore scan failed", logx.Err(err))
			finish(RestoreReport{Err: err})
			return
		}

		rep := &RestoreReport{Scanned: len(res.Records) + len(res.Malformed), Malformed: res.Malformed}
		now := c.now()
		var pending []store.Persisted
		for _, p := range res.Records {
			if !p.ScheduledAt.After(now) {
				c.log.Info("expired alert dropped", logx.String("id", p.ID), logx.Time("at", p.ScheduledAt))
				c.erase(ctx, p.ID)
				rep.Expired++
				continue
			}
			pending = append(pending, p)
		}
		if len(pending) == 0 {
			finish(*rep)
			return
		}

		left := len(pending)
		for _, p := range pending {
			old := p.ID
			d := alert.Draft{Kind: p.Kind, ScheduledAt: alert.FormatWireTime(p.ScheduledAt), Source: p.Source}
			c.coord.RequestAdd(d, func(ar coordinator.AddResult) {
				c.added(ar, func(id string, err error) {
					if err != nil {
						rep.Rejected++
						c.log.Warn("recovered alert rejected", logx.String("old_id", old), logx.Err(err))
					} else {
						rep.Restored = append(rep.Restored, id)
					}
					if id != old {
						c.erase(ctx, old)
					}
				})
				left--
				if left == 0 {
					finish(*rep)
				}
			})
		}
	})
}

func (c *Client) erase(ctx context.Context, id string) {
	if err := c.store.Erase(ctx, id); err != nil {
		c.log.Error("erase failed", logx.String("id", id), logx.Err(err))
	}
}
