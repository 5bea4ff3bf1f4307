package app

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"alertd/internal/alert/coordinator"
	"alertd/internal/task"
	logx "alertd/pkg/logx"
)

// runStats logs one line of alert and loop stats on every tick of spec until
// ctx is done.
func (a *App) runStats(ctx context.Context, spec string) error {
	c := cron.New(cron.WithLocation(time.UTC))
	if _, err := c.AddFunc(spec, a.logStats); err != nil {
		return err
	}
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

func (a *App) logStats() {
	a.coord.Stats(func(st coordinator.Stats) {
		var restarts, panics uint64
		for _, l := range a.sup.Snapshot() {
			restarts += l.Restarts
			panics += l.Panics
		}
		fields := []logx.Field{
			logx.Int("scheduled", st.Count),
			logx.Int("capacity", st.Capacity),
			logx.Int("ringing", st.Fired),
			logx.Uint64("bus_dropped", a.bus.Dropped()),
			logx.Uint64("loop_restarts", restarts),
			logx.Uint64("loop_panics", panics),
		}
		for _, q := range []task.Stats{a.coord.Queue().Stats(), a.client.Queue().Stats()} {
			fields = append(fields,
				logx.Int(q.Name+"_pending", q.Pending),
				logx.Uint64(q.Name+"_panics", q.Panics),
			)
		}
		fields = append(fields, logx.Int("loops_active", int(a.sup.Active())))
		if a.ws != nil {
			fields = append(fields, logx.Int("ws_conns", a.ws.Conns()))
		}
		a.log.Info("stats", fields...)
	})
}
