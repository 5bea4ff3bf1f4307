package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"alertd/internal/alert"
	logx "alertd/pkg/logx"
)

func rec(id string, at time.Time, kind alert.Kind, src string) alert.Record {
	return alert.Record{ID: id, ScheduledAt: at, Kind: kind, Source: src, State: alert.StateScheduled}
}

func TestLineCodec(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 10, 14, 7, 30, 0, 0, time.UTC)
	line := EncodeLine(rec("A", at, alert.KindAlarm, "web"))
	require.Equal(t, "2026-10-14T07:30:00,ALARM,web", line)

	p, err := DecodeLine("A", line+"\n")
	require.NoError(t, err)
	require.Equal(t, Persisted{ID: "A", ScheduledAt: at, Kind: alert.KindAlarm, Source: "web"}, p)

	// Commas in the source survive.
	p, err = DecodeLine("B", "2026-10-14T07:30:00,TIMER,kitchen,left")
	require.NoError(t, err)
	require.Equal(t, "kitchen,left", p.Source)

	for _, bad := range []string{
		"",
		"garbage",
		"2026-10-14T07:30:00,TIMER",
		"2026-10-14 07:30:00,TIMER,web",
		"2026-10-14T07:30:00,SNOOZE,web",
		"2026-10-14T07:30:00,TIMER, ",
	} {
		_, err := DecodeLine("X", bad)
		require.ErrorIs(t, err, alert.ErrMalformedRecovery, bad)
	}
}

// contract exercises behaviour every driver must share.
func contract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	at := time.Date(2026, 10, 14, 7, 0, 0, 0, time.UTC)

	require.NoError(t, s.Save(ctx, rec("B", at, alert.KindTimer, "web")))
	require.NoError(t, s.Save(ctx, rec("A", at.Add(time.Hour), alert.KindAlarm, "voice")))
	require.NoError(t, s.Save(ctx, rec("C", at.Add(2*time.Hour), alert.KindTimer, "web")))
	// overwrite
	require.NoError(t, s.Save(ctx, rec("C", at.Add(3*time.Hour), alert.KindAlarm, "web")))

	res, err := s.ScanAll(ctx)
	require.NoError(t, err)
	require.Empty(t, res.Malformed)
	require.Equal(t, []Persisted{
		{ID: "A", ScheduledAt: at.Add(time.Hour), Kind: alert.KindAlarm, Source: "voice"},
		{ID: "B", ScheduledAt: at, Kind: alert.KindTimer, Source: "web"},
		{ID: "C", ScheduledAt: at.Add(3 * time.Hour), Kind: alert.KindAlarm, Source: "web"},
	}, res.Records)

	require.NoError(t, s.Erase(ctx, "B"))
	require.ErrorIs(t, s.Erase(ctx, "B"), alert.ErrUnknownID)

	res, err = s.ScanAll(ctx)
	require.NoError(t, err)
	require.Len(t, res.Records, 2)
}

func TestDirStoreContract(t *testing.T) {
	t.Parallel()
	s, err := OpenDir(afero.NewMemMapFs(), "/var/lib/alertd/Alerts", logx.Nop())
	require.NoError(t, err)
	contract(t, s)
}

func TestSQLiteStoreContract(t *testing.T) {
	t.Parallel()
	s, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "alerts.db"), BusyTimeout: time.Second}, logx.Nop())
	require.NoError(t, err)
	defer s.Close()
	contract(t, s)
}

func TestDirStoreSkipsMalformed(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	s, err := OpenDir(fs, "Alerts", logx.Nop())
	require.NoError(t, err)

	ctx := context.Background()
	at := time.Date(2026, 10, 14, 7, 0, 0, 0, time.UTC)
	for i, id := range []string{"ID1", "ID2", "ID3"} {
		require.NoError(t, s.Save(ctx, rec(id, at.Add(time.Duration(i)*time.Minute), alert.KindTimer, "web")))
	}
	require.NoError(t, afero.WriteFile(fs, "Alerts/BROKEN", []byte("not,a valid line"), 0o600))
	// leftovers that are not entries
	require.NoError(t, afero.WriteFile(fs, "Alerts/.ID9.tmp", []byte("x"), 0o600))
	require.NoError(t, fs.MkdirAll("Alerts/sub", 0o755))

	res, err := s.ScanAll(ctx)
	require.NoError(t, err)
	require.Len(t, res.Records, 3)
	require.Equal(t, []string{"BROKEN"}, res.Malformed)
}

func TestSQLiteStoreSkipsMalformed(t *testing.T) {
	t.Parallel()

	st, err := openSQLite(Config{Path: filepath.Join(t.TempDir(), "alerts.db")}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()
	s := st.(*sqliteStore)

	ctx := context.Background()
	require.NoError(t, s.Save(ctx, rec("OK", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), alert.KindTimer, "web")))
	_, err = s.db.ExecContext(ctx, `INSERT INTO alerts(id, line, saved_at) VALUES('BAD', 'nope', '')`)
	require.NoError(t, err)

	res, err := s.ScanAll(ctx)
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	require.Equal(t, []string{"BAD"}, res.Malformed)
}

func TestDirStoreReadOnlyFailsAsPersistence(t *testing.T) {
	t.Parallel()

	base := afero.NewMemMapFs()
	require.NoError(t, base.MkdirAll("Alerts", 0o755))
	require.NoError(t, afero.WriteFile(base, "Alerts/OLD", []byte("2026-10-14T07:00:00,TIMER,web\n"), 0o600))

	s, err := OpenDir(afero.NewReadOnlyFs(base), "Alerts", logx.Nop())
	require.NoError(t, err)

	ctx := context.Background()
	err = s.Save(ctx, rec("NEW", time.Now(), alert.KindTimer, "web"))
	require.ErrorIs(t, err, alert.ErrPersistence)

	err = s.Erase(ctx, "OLD")
	require.ErrorIs(t, err, alert.ErrPersistence)

	res, err := s.ScanAll(ctx)
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
}

func TestDirStoreRejectsPathIDs(t *testing.T) {
	t.Parallel()
	s, err := OpenDir(afero.NewMemMapFs(), "", logx.Nop())
	require.NoError(t, err)
	require.Equal(t, "Alerts", s.Dir())

	for _, id := range []string{"", "../x", `a\b`, ".hidden"} {
		require.ErrorIs(t, s.Save(context.Background(), rec(id, time.Now(), alert.KindTimer, "web")), alert.ErrPersistence, id)
	}
}

func TestDirStoreClosed(t *testing.T) {
	t.Parallel()
	s, err := OpenDir(afero.NewMemMapFs(), "Alerts", logx.Nop())
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.ErrorIs(t, s.Save(context.Background(), rec("A", time.Now(), alert.KindTimer, "web")), alert.ErrPersistence)
}

func TestOpenDrivers(t *testing.T) {
	t.Parallel()

	_, err := Open(Config{Driver: "none"}, logx.Nop())
	require.Error(t, err)
	_, err = Open(Config{Driver: "redis"}, logx.Nop())
	require.Error(t, err)
	_, err = Open(Config{Driver: "sqlite"}, logx.Nop())
	require.Error(t, err)

	s, err := Open(Config{Driver: "dir", Path: filepath.Join(t.TempDir(), "Alerts")}, logx.Nop())
	require.NoError(t, err)
	require.IsType(t, &DirStore{}, s)
	require.NoError(t, s.Close())
}
