package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCron(t *testing.T) {
	for _, expr := range []string{"*/5 * * * *", "0 9 * * 1-5", "@hourly", "@daily"} {
		_, err := ParseCron(expr)
		assert.NoError(t, err, expr)
	}

	for _, expr := range []string{"", "invalid cron", "* * * *", "0 0 * * * *", "61 * * * *"} {
		_, err := ParseCron(expr)
		assert.Error(t, err, expr)
	}
}

func TestIsDue_EveryFiveMinutes(t *testing.T) {
	sched, err := ParseCron("*/5 * * * *")
	require.NoError(t, err)

	now := time.Date(2026, 3, 2, 10, 0, 30, 0, time.UTC)
	prev, ok := PreviousFire(sched, now, 0)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC), prev)
	assert.True(t, IsDue(prev, now))

	later := time.Date(2026, 3, 2, 10, 1, 5, 0, time.UTC)
	prev, ok = PreviousFire(sched, later, 0)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC), prev)
	assert.False(t, IsDue(prev, later))
}

func TestIsDue_Boundaries(t *testing.T) {
	prev := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	assert.True(t, IsDue(prev, prev))
	assert.True(t, IsDue(prev, prev.Add(59*time.Second)))
	assert.False(t, IsDue(prev, prev.Add(time.Minute)))
	assert.False(t, IsDue(prev, prev.Add(-time.Second)))
}

func TestPreviousFire_ExactlyOnFire(t *testing.T) {
	sched, err := ParseCron("0 * * * *")
	require.NoError(t, err)

	now := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	prev, ok := PreviousFire(sched, now, 0)
	require.True(t, ok)
	assert.Equal(t, now, prev)
}

func TestPreviousFire_SparseSchedules(t *testing.T) {
	now := time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC)

	yearly, err := ParseCron("0 0 1 1 *")
	require.NoError(t, err)
	prev, ok := PreviousFire(yearly, now, 0)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), prev)

	hourly, err := ParseCron("@hourly")
	require.NoError(t, err)
	prev, ok = PreviousFire(hourly, now, 0)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC), prev)

	weekdays, err := ParseCron("0 9 * * 1-5")
	require.NoError(t, err)
	// 2026-10-19 is a Monday; before 09:00 the last fire is Friday.
	prev, ok = PreviousFire(weekdays, now, 0)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC), prev)
}

func TestPreviousFire_OutsideLookback(t *testing.T) {
	leap, err := ParseCron("0 0 29 2 *")
	require.NoError(t, err)

	now := time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC)
	_, ok := PreviousFire(leap, now, 0)
	assert.False(t, ok)

	prev, ok := PreviousFire(leap, now, 3*366*24*time.Hour)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), prev)
}
