package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pcrguild/pcrdb-collector/internal/config"
)

func TestParseDayOfMonthLastDay(t *testing.T) {
	m, err := parseDayOfMonth("L")
	require.NoError(t, err)
	assert.True(t, m.match(time.Date(2026, 4, 30, 0, 0, 0, 0, time.UTC)))
	assert.False(t, m.match(time.Date(2026, 4, 29, 0, 0, 0, 0, time.UTC)))
}

func TestParseDayOfMonthLastMinusN(t *testing.T) {
	m, err := parseDayOfMonth("L-3")
	require.NoError(t, err)
	// July has 31 days; L-3 is the fourth-from-last day: 31 - 3 = 28.
	assert.True(t, m.match(time.Date(2026, 7, 28, 0, 0, 0, 0, time.UTC)))
	assert.False(t, m.match(time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC)))
	assert.False(t, m.match(time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)))
}

func TestParseDayOfMonthCommaList(t *testing.T) {
	m, err := parseDayOfMonth("1,11,21")
	require.NoError(t, err)
	for _, day := range []int{1, 11, 21} {
		assert.True(t, m.match(time.Date(2026, 5, day, 0, 0, 0, 0, time.UTC)), "day %d should match", day)
	}
	assert.False(t, m.match(time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC)))
}

func TestParseDayOfMonthWildcard(t *testing.T) {
	m, err := parseDayOfMonth("*")
	require.NoError(t, err)
	assert.True(t, m.match(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, m.match(time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)))
}

// TestEntryFiresOnlyOnTargetDay is scenario S4: "0 3 L-3 * *" on a 31-day
// month (July) fires only on day 28, at 03:00.
func TestEntryFiresOnlyOnTargetDay(t *testing.T) {
	cfg := config.ScheduleEntry{
		TaskName:   "monthly_job",
		Enabled:    true,
		Minute:     "0",
		Hour:       "3",
		DayOfMonth: "L-3",
		Month:      "*",
		DayOfWeek:  "*",
	}

	e, err := parseEntry(cfg)
	require.NoError(t, err)

	fireDay := time.Date(2026, 7, 28, 3, 0, 0, 0, time.UTC)
	assert.True(t, e.fires(fireDay))

	for _, day := range []int{1, 27, 29, 30, 31} {
		other := time.Date(2026, 7, day, 3, 0, 0, 0, time.UTC)
		assert.False(t, e.fires(other), "day %d at 03:00 should not fire", day)
	}

	wrongHour := time.Date(2026, 7, 28, 4, 0, 0, 0, time.UTC)
	assert.False(t, e.fires(wrongHour))
}
