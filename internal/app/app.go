package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"alertd/internal/alert/client"
	"alertd/internal/alert/coordinator"
	"alertd/internal/alert/observer"
	"alertd/internal/alert/store"
	"alertd/internal/config"
	"alertd/internal/eventbus"
	"alertd/internal/runtime/supervisor"
	"alertd/internal/task"
	"alertd/internal/transport/ws"
	"alertd/internal/version"
	logx "alertd/pkg/logx"

	"github.com/coreos/go-systemd/v22/daemon"
)

type App struct {
	cfgm      *config.Manager
	rt        config.Runtime
	watchable bool

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store  store.Store
	coord  *coordinator.Coordinator
	client *client.Client
	ws     *ws.Server

	sup *supervisor.Supervisor

	restored chan client.RestoreReport
}

// New loads the configuration and builds every component. Nothing runs until
// Start. A missing config file falls back to defaults.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	watchable := true
	cfg, err := cfgm.Load()
	if errors.Is(err, os.ErrNotExist) {
		watchable = false
		cfg, err = config.Default(), nil
		cfgm.Commit(cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	rt, err := config.Resolve(cfg)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	logSvc, log := logx.New(cfg.LogConfig())
	if !watchable {
		log.Warn("config file not found, using defaults", logx.String("path", cfgm.Path()))
	}

	st, err := store.Open(mapStorageConfig(rt), log)
	if err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("storage: %w", err)
	}

	bus := eventbus.New()
	q := task.New("client", log)
	coord := coordinator.New(mapCoordinatorConfig(rt), q, log)
	cl := client.New(q, coord, st, mapClientConfig(rt), log)
	cl.AddObserver(observer.NewLog(log))
	cl.AddObserver(observer.NewBus(bus))

	a := &App{
		cfgm:      cfgm,
		rt:        rt,
		watchable: watchable,
		log:       log.With(logx.String("comp", "app")),
		logs:      logSvc,
		bus:       bus,
		store:     st,
		coord:     coord,
		client:    cl,
		restored:  make(chan client.RestoreReport, 1),
	}
	if rt.TransportEnabled {
		a.ws = ws.New(mapTransportConfig(rt), cl, bus, log)
	}
	return a, nil
}

// Client exposes the alert facade for embedders.
func (a *App) Client() *client.Client { return a.client }

// Restored delivers the startup recovery report once. It never fires when
// restore is disabled.
func (a *App) Restored() <-chan client.RestoreReport { return a.restored }

// Done is closed when the app stops, including after a fatal loop error.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	if a.sup != nil {
		return errors.New("app already started")
	}
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.log.Info("starting", logx.String("version", version.Short()),
		logx.String("storage", a.rt.StorageDriver),
		logx.Int("max_scheduled", a.rt.MaxScheduled),
		logx.Duration("max_lead", a.rt.MaxLead),
	)

	a.sup.Go("task.coordinator", a.coord.Run)
	a.sup.Go("task.client", a.client.Run)

	if a.rt.RestoreOnStartup {
		a.client.RestoreOnStartup(a.sup.Context(), func(rep client.RestoreReport) {
			if rep.Err != nil {
				a.log.Error("restore failed", logx.Err(rep.Err))
			}
			a.restored <- rep
		})
	}

	if a.ws != nil {
		a.sup.GoRestart("transport.ws", a.ws.Run)
	}

	if a.watchable {
		a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
		a.sup.GoRestart("config.watch", a.cfgm.Watch)
		a.sup.Go0("config.reload", a.reloadLoop)
	}

	if spec := a.rt.StatsSchedule; spec != "" {
		a.sup.Go("stats", func(c context.Context) error { return a.runStats(c, spec) })
	}

	events, unsub := a.bus.Subscribe(64)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Any("data", e.Data))
			}
		}
	})

	sdNotify(a.log, daemon.SdNotifyReady)
	return nil
}

// reloadLoop applies logging changes live and flags the rest.
func (a *App) reloadLoop(ctx context.Context) {
	sub := a.cfgm.Subscribe(4)
	defer a.cfgm.Unsubscribe(sub)
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			a.logs.Apply(next.LogConfig())
			if sections := config.RestartRequired(last, next); len(sections) > 0 {
				a.log.Warn("config changed, restart required", logx.String("sections", strings.Join(sections, ",")))
			}
			last = next
		}
	}
}

// Stop cancels every loop and closes the store.
func (a *App) Stop(ctx context.Context) error {
	sdNotify(a.log, daemon.SdNotifyStopping)
	var err error
	if a.sup != nil {
		err = a.sup.Stop(ctx)
	}
	if cerr := a.store.Close(); cerr != nil && err == nil {
		err = cerr
	}
	a.log.Info("stopped")
	_ = a.logs.Close()
	return err
}
