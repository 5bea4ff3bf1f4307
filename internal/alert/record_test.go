package alert

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"alertd/internal/task"
)

func TestParseWireTime(t *testing.T) {
	t.Parallel()

	got, err := ParseWireTime("2026-10-14T07:30:05")
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 10, 14, 7, 30, 5, 0, time.UTC), got)
	require.Equal(t, "2026-10-14T07:30:05", FormatWireTime(got))

	for _, bad := range []string{
		"",
		"2026-10-14",
		"2026-10-14 07:30:05",
		"2026-10-14T07:30:05Z",
		"2026-13-14T07:30:05",
		"2026-10-14T25:30:05",
		"tomorrow at seven",
	} {
		_, err := ParseWireTime(bad)
		require.ErrorIs(t, err, ErrInvalidTimeFormat, bad)
	}
}

func TestFormatWireTimeConvertsToUTC(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("UTC+2", 2*60*60)
	require.Equal(t, "2026-10-14T05:00:00", FormatWireTime(time.Date(2026, 10, 14, 7, 0, 0, 0, loc)))
}

func TestParseKind(t *testing.T) {
	t.Parallel()

	k, err := ParseKind("timer")
	require.NoError(t, err)
	require.Equal(t, KindTimer, k)

	k, err = ParseKind("ALARM")
	require.NoError(t, err)
	require.Equal(t, KindAlarm, k)
	require.Equal(t, "ALARM", k.String())

	_, err = ParseKind("REMINDER")
	require.Error(t, err)
}

func TestRecordTransitions(t *testing.T) {
	t.Parallel()

	r := Record{ID: NewID(), State: StateScheduled}
	require.True(t, r.Tracked())
	require.True(t, r.Activate())
	require.False(t, r.Activate())
	require.Equal(t, StateActive, r.State)

	require.True(t, r.Terminate(ReasonAcknowledged))
	require.False(t, r.Tracked())
	require.Equal(t, ReasonAcknowledged, r.Reason)
	require.False(t, r.Terminate(ReasonDisabled))

	draft := Record{}
	require.False(t, draft.Activate())
	require.False(t, draft.Terminate(ReasonDisabled))
}

func TestNewIDUnique(t *testing.T) {
	t.Parallel()

	seen := map[string]struct{}{}
	for range 1000 {
		id := NewID()
		require.Len(t, id, 36)
		_, dup := seen[id]
		require.False(t, dup)
		seen[id] = struct{}{}
	}
}

func TestDraftValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, Draft{Kind: KindAlarm, Source: "web"}.Validate())
	require.NoError(t, Draft{Kind: KindTimer, Source: "kitchen,left"}.Validate())

	for _, d := range []Draft{
		{Kind: KindTimer},
		{Kind: KindTimer, Source: "  "},
		{Kind: KindTimer, Source: "\tweb"},
		{Kind: KindTimer, Source: "a\rb"},
		{Kind: Kind(-1), Source: "web"},
	} {
		require.ErrorIs(t, d.Validate(), ErrInvalidDraft, "%+v", d)
	}
	require.False(t, Kind(2).Valid())
}

func TestErrStoppedIsTaskSentinel(t *testing.T) {
	t.Parallel()

	require.ErrorIs(t, fmt.Errorf("client: %w", task.ErrStopped), ErrStopped)
}
