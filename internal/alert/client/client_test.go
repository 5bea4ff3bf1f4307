package client

import (
	"context"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"alertd/internal/alert"
	"alertd/internal/alert/coordinator"
	"alertd/internal/alert/store"
	"alertd/internal/task"
	logx "alertd/pkg/logx"
)

type recorder struct {
	mu     sync.Mutex
	active []string
	acked  []string
}

func (r *recorder) OnActive(id string) {
	r.mu.Lock()
	r.active = append(r.active, id)
	r.mu.Unlock()
}

func (r *recorder) OnAcknowledged(id string) {
	r.mu.Lock()
	r.acked = append(r.acked, id)
	r.mu.Unlock()
}

func (r *recorder) snapshot() (active, acked []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.active...), append([]string(nil), r.acked...)
}

type env struct {
	t     *testing.T
	fs    afero.Fs
	st    store.Store
	coord *coordinator.Coordinator
	cl    *Client
	obs   *recorder
	ctx   context.Context
}

type envOpts struct {
	fs       afero.Fs
	strict   bool
	capacity int
}

// newEnv wires a client, coordinator and in-memory store inside the current
// bubble. The returned cancel must run before the bubble function returns.
func newEnv(t *testing.T, o envOpts) (*env, context.CancelFunc) {
	t.Helper()
	fs := o.fs
	if fs == nil {
		fs = afero.NewMemMapFs()
		require.NoError(t, fs.MkdirAll("Alerts", 0o755))
	}
	st, err := store.OpenDir(fs, "Alerts", logx.Nop())
	require.NoError(t, err)

	q := task.New("client", logx.Nop())
	coord := coordinator.New(coordinator.Config{MaxScheduled: o.capacity}, q, logx.Nop())
	cl := New(q, coord, st, Config{StrictPersistence: o.strict}, logx.Nop())
	obs := &recorder{}
	cl.AddObserver(obs)

	ctx, cancel := context.WithCancel(context.Background())
	go coord.Run(ctx)
	go cl.Run(ctx)
	return &env{t: t, fs: fs, st: st, coord: coord, cl: cl, obs: obs, ctx: ctx}, cancel
}

func (e *env) add(kind alert.Kind, at time.Time, source string) (string, error) {
	type result struct {
		id  string
		err error
	}
	ch := make(chan result, 1)
	e.cl.AddAlert(alert.Draft{Kind: kind, ScheduledAt: alert.FormatWireTime(at), Source: source}, func(id string, err error) {
		ch <- result{id, err}
	})
	r := <-ch
	return r.id, r.err
}

func (e *env) del(id string) (bool, error) {
	type result struct {
		ok  bool
		err error
	}
	ch := make(chan result, 1)
	e.cl.DeleteAlert(id, func(ok bool, err error) { ch <- result{ok, err} })
	r := <-ch
	return r.ok, r.err
}

func (e *env) snapshot() []alert.Record {
	recs, err := e.cl.Snapshot(e.ctx)
	require.NoError(e.t, err)
	return recs
}

func (e *env) persistedIDs() []string {
	res, err := e.st.ScanAll(context.Background())
	require.NoError(e.t, err)
	var ids []string
	for _, p := range res.Records {
		ids = append(ids, p.ID)
	}
	return ids
}

func (e *env) count() int {
	ch := make(chan coordinator.Stats, 1)
	e.coord.Stats(func(s coordinator.Stats) { ch <- s })
	return (<-ch).Count
}

func TestScheduleThenFire(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		e, cancel := newEnv(t, envOpts{})
		defer cancel()

		delivered := make(chan string, 1)
		require.NoError(t, e.cl.RegisterSource(e.ctx, "web", func(id string) { delivered <- id }))

		id, err := e.add(alert.KindTimer, time.Now().Add(10*time.Second), "web")
		require.NoError(t, err)
		require.NotEmpty(t, id)
		require.Equal(t, id, <-delivered)
		require.Equal(t, []string{id}, e.persistedIDs())

		time.Sleep(9 * time.Second)
		synctest.Wait()
		active, _ := e.obs.snapshot()
		require.Empty(t, active)

		time.Sleep(time.Second)
		synctest.Wait()
		active, _ = e.obs.snapshot()
		require.Equal(t, []string{id}, active)

		recs := e.snapshot()
		require.Len(t, recs, 1)
		require.Equal(t, alert.StateActive, recs[0].State)
		// Active alerts keep their entry until acknowledged.
		require.Equal(t, []string{id}, e.persistedIDs())
	})
}

func TestDuplicateSecondRejected(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		e, cancel := newEnv(t, envOpts{})
		defer cancel()
		at := time.Now().Add(10 * time.Second)

		first, err := e.add(alert.KindTimer, at, "web")
		require.NoError(t, err)

		second, err := e.add(alert.KindTimer, at, "web")
		require.ErrorIs(t, err, alert.ErrDuplicateTime)
		require.Empty(t, second)

		recs := e.snapshot()
		require.Len(t, recs, 1)
		require.Equal(t, first, recs[0].ID)
		require.Equal(t, []string{first}, e.persistedIDs())
	})
}

func TestCapacityFreedByDelete(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		e, cancel := newEnv(t, envOpts{})
		defer cancel()
		now := time.Now()

		var ids []string
		for i := range 5 {
			id, err := e.add(alert.KindAlarm, now.Add(time.Duration(i+1)*time.Hour), "web")
			require.NoError(t, err)
			ids = append(ids, id)
		}
		_, err := e.add(alert.KindAlarm, now.Add(10*time.Hour), "web")
		require.ErrorIs(t, err, alert.ErrCapacityExceeded)
		require.Len(t, e.snapshot(), 5)
		require.Len(t, e.persistedIDs(), 5)

		ok, err := e.del(ids[0])
		require.NoError(t, err)
		require.True(t, ok)

		_, err = e.add(alert.KindAlarm, now.Add(10*time.Hour), "web")
		require.NoError(t, err)
		require.Len(t, e.snapshot(), 5)
		require.Equal(t, 5, e.count())
	})
}

func TestDeleteBeforeFire(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		e, cancel := newEnv(t, envOpts{})
		defer cancel()

		id, err := e.add(alert.KindTimer, time.Now().Add(5*time.Second), "web")
		require.NoError(t, err)

		time.Sleep(time.Second)
		ok, err := e.del(id)
		require.NoError(t, err)
		require.True(t, ok)

		time.Sleep(10 * time.Second)
		synctest.Wait()
		active, acked := e.obs.snapshot()
		require.Empty(t, active)
		// it never became active, so nothing is acknowledged
		require.Empty(t, acked)
		require.Empty(t, e.snapshot())
		require.Empty(t, e.persistedIDs())
		require.Zero(t, e.count())
	})
}

func TestDeleteActiveAcknowledges(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		e, cancel := newEnv(t, envOpts{})
		defer cancel()

		id, err := e.add(alert.KindAlarm, time.Now().Add(2*time.Second), "web")
		require.NoError(t, err)
		time.Sleep(2 * time.Second)
		synctest.Wait()

		ok, err := e.del(id)
		require.NoError(t, err)
		require.True(t, ok)

		active, acked := e.obs.snapshot()
		require.Equal(t, []string{id}, active)
		require.Equal(t, []string{id}, acked)
		require.Empty(t, e.persistedIDs())
	})
}

func TestDeleteUnknown(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		e, cancel := newEnv(t, envOpts{})
		defer cancel()

		ok, err := e.del("NOPE")
		require.False(t, ok)
		require.ErrorIs(t, err, alert.ErrUnknownID)
	})
}

func TestRestoreOnStartup(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		fs := afero.NewMemMapFs()
		now := time.Now()
		seed, err := store.OpenDir(fs, "Alerts", logx.Nop())
		require.NoError(t, err)
		for i, id := range []string{"OLD1", "OLD2", "OLD3"} {
			r := alert.Record{ID: id, ScheduledAt: now.Add(time.Duration(i+1) * time.Hour), Kind: alert.KindAlarm, Source: "web"}
			require.NoError(t, seed.Save(context.Background(), r))
		}
		require.NoError(t, afero.WriteFile(fs, "Alerts/BAD", []byte("2000-99-99,???"), 0o600))
		require.NoError(t, afero.WriteFile(fs, "Alerts/PAST", []byte(store.EncodeLine(alert.Record{
			ScheduledAt: now.Add(-time.Minute), Kind: alert.KindTimer, Source: "web",
		})), 0o600))

		e, cancel := newEnv(t, envOpts{fs: fs})
		defer cancel()

		reports := make(chan RestoreReport, 1)
		e.cl.RestoreOnStartup(e.ctx, func(r RestoreReport) { reports <- r })
		rep := <-reports

		require.NoError(t, rep.Err)
		require.Equal(t, 5, rep.Scanned)
		require.Len(t, rep.Restored, 3)
		require.Equal(t, 1, rep.Expired)
		require.Zero(t, rep.Rejected)
		require.Equal(t, []string{"BAD"}, rep.Malformed)

		recs := e.snapshot()
		require.Len(t, recs, 3)
		for _, r := range recs {
			require.Equal(t, alert.KindAlarm, r.Kind)
			require.NotContains(t, []string{"OLD1", "OLD2", "OLD3"}, r.ID)
		}
		require.ElementsMatch(t, rep.Restored, e.persistedIDs())
		require.Equal(t, 3, e.count())

		ok, err := afero.Exists(fs, "Alerts/BAD")
		require.NoError(t, err)
		require.True(t, ok)
		ok, err = afero.Exists(fs, "Alerts/PAST")
		require.NoError(t, err)
		require.False(t, ok)
	})
}

func TestRestoreRespectsCapacity(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		fs := afero.NewMemMapFs()
		now := time.Now()
		seed, err := store.OpenDir(fs, "Alerts", logx.Nop())
		require.NoError(t, err)
		for i, id := range []string{"A", "B", "C"} {
			r := alert.Record{ID: id, ScheduledAt: now.Add(time.Duration(i+1) * time.Minute), Kind: alert.KindTimer, Source: "web"}
			require.NoError(t, seed.Save(context.Background(), r))
		}

		e, cancel := newEnv(t, envOpts{fs: fs, capacity: 2})
		defer cancel()

		reports := make(chan RestoreReport, 1)
		e.cl.RestoreOnStartup(e.ctx, func(r RestoreReport) { reports <- r })
		rep := <-reports
		require.Len(t, rep.Restored, 2)
		require.Equal(t, 1, rep.Rejected)
		// the rejected entry is not left behind
		require.ElementsMatch(t, rep.Restored, e.persistedIDs())
	})
}

func TestPersistenceFailureBestEffort(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		base := afero.NewMemMapFs()
		require.NoError(t, base.MkdirAll("Alerts", 0o755))
		e, cancel := newEnv(t, envOpts{fs: afero.NewReadOnlyFs(base)})
		defer cancel()

		id, err := e.add(alert.KindTimer, time.Now().Add(time.Minute), "web")
		require.NoError(t, err)
		require.Len(t, e.snapshot(), 1)
		require.Empty(t, e.persistedIDs())

		ok, err := e.del(id)
		require.NoError(t, err)
		require.True(t, ok)
	})
}

func TestPersistenceFailureStrict(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		base := afero.NewMemMapFs()
		require.NoError(t, base.MkdirAll("Alerts", 0o755))
		e, cancel := newEnv(t, envOpts{fs: afero.NewReadOnlyFs(base), strict: true})
		defer cancel()

		id, err := e.add(alert.KindTimer, time.Now().Add(time.Minute), "web")
		require.ErrorIs(t, err, alert.ErrPersistence)
		require.Empty(t, id)
		require.Empty(t, e.snapshot())

		synctest.Wait()
		require.Zero(t, e.count())

		time.Sleep(2 * time.Minute)
		synctest.Wait()
		active, _ := e.obs.snapshot()
		require.Empty(t, active)
	})
}

func TestUnregisterDisablesSourceAlerts(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		e, cancel := newEnv(t, envOpts{})
		defer cancel()
		now := time.Now()

		require.NoError(t, e.cl.RegisterSource(e.ctx, "web", func(string) {}))
		require.NoError(t, e.cl.RegisterSource(e.ctx, "voice", nil))
		require.ErrorIs(t, e.cl.RegisterSource(e.ctx, "web", nil), alert.ErrUnknownSource)

		_, err := e.add(alert.KindTimer, now.Add(time.Minute), "web")
		require.NoError(t, err)
		_, err = e.add(alert.KindTimer, now.Add(2*time.Minute), "web")
		require.NoError(t, err)
		keep, err := e.add(alert.KindAlarm, now.Add(3*time.Minute), "voice")
		require.NoError(t, err)

		require.NoError(t, e.cl.UnregisterSource(e.ctx, "web"))
		require.ErrorIs(t, e.cl.UnregisterSource(e.ctx, "web"), alert.ErrUnknownSource)
		synctest.Wait()

		recs := e.snapshot()
		require.Len(t, recs, 1)
		require.Equal(t, keep, recs[0].ID)
		require.Equal(t, []string{keep}, e.persistedIDs())
		require.Equal(t, 1, e.count())

		time.Sleep(5 * time.Minute)
		synctest.Wait()
		active, acked := e.obs.snapshot()
		require.Equal(t, []string{keep}, active)
		require.Empty(t, acked)
	})
}

func TestBroadcastIsUnfiltered(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		e, cancel := newEnv(t, envOpts{})
		defer cancel()

		other := &recorder{}
		e.cl.AddObserver(other)
		gone := &recorder{}
		e.cl.AddObserver(gone)
		e.cl.RemoveObserver(gone)

		id, err := e.add(alert.KindTimer, time.Now().Add(time.Second), "voice")
		require.NoError(t, err)
		time.Sleep(time.Second)
		synctest.Wait()

		a1, _ := e.obs.snapshot()
		a2, _ := other.snapshot()
		a3, _ := gone.snapshot()
		require.Equal(t, []string{id}, a1)
		require.Equal(t, []string{id}, a2)
		require.Empty(t, a3)
	})
}

func TestStaleActiveIgnored(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		e, cancel := newEnv(t, envOpts{})
		defer cancel()

		e.cl.NotifyActive("GHOST")
		synctest.Wait()
		active, _ := e.obs.snapshot()
		require.Empty(t, active)
	})
}

func TestStoppedClient(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		e, cancel := newEnv(t, envOpts{})
		cancel()
		synctest.Wait()

		err := e.cl.RegisterSource(context.Background(), "web", nil)
		require.ErrorIs(t, err, alert.ErrStopped)
		_, err = e.cl.Snapshot(context.Background())
		require.ErrorIs(t, err, alert.ErrStopped)
	})
}
