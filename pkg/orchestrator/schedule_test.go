package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextTrigger_Interval(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	next, err := NextTrigger(Schedule{Mode: ModeInterval, Interval: 6 * time.Hour}, now)

	require.NoError(t, err)
	assert.Equal(t, now.Add(6*time.Hour), next)
}

func TestNextTrigger_Daily(t *testing.T) {
	loc := time.FixedZone("CST", 8*3600)
	schedule := Schedule{Mode: ModeDaily, DailyAt: "09:30", Location: loc}

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"before trigger today", time.Date(2024, 5, 1, 8, 0, 0, 0, loc), time.Date(2024, 5, 1, 9, 30, 0, 0, loc)},
		{"exactly at trigger moves to tomorrow", time.Date(2024, 5, 1, 9, 30, 0, 0, loc), time.Date(2024, 5, 2, 9, 30, 0, 0, loc)},
		{"after trigger", time.Date(2024, 5, 1, 23, 59, 0, 0, loc), time.Date(2024, 5, 2, 9, 30, 0, 0, loc)},
		{"month end", time.Date(2024, 5, 31, 10, 0, 0, 0, loc), time.Date(2024, 6, 1, 9, 30, 0, 0, loc)},
		{"now in another zone", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 5, 1, 9, 30, 0, 0, loc)},
		{"utc still on the previous day", time.Date(2024, 4, 30, 20, 0, 0, 0, time.UTC), time.Date(2024, 5, 1, 9, 30, 0, 0, loc)},
		{"utc clock before trigger but local day past it", time.Date(2024, 5, 1, 2, 0, 0, 0, time.UTC), time.Date(2024, 5, 2, 9, 30, 0, 0, loc)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, err := NextTrigger(schedule, tt.now)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(next), "want %s, got %s", tt.want, next)
			assert.True(t, next.After(tt.now))
		})
	}
}

func TestNextTrigger_Errors(t *testing.T) {
	now := time.Now()

	_, err := NextTrigger(Schedule{Mode: ModeOnce}, now)
	assert.Error(t, err)

	_, err = NextTrigger(Schedule{Mode: ModeInterval}, now)
	assert.Error(t, err)

	_, err = NextTrigger(Schedule{Mode: ModeDaily, DailyAt: "25:00"}, now)
	assert.Error(t, err)
}

func TestParseClock(t *testing.T) {
	h, m, err := ParseClock("07:05")
	require.NoError(t, err)
	assert.Equal(t, 7, h)
	assert.Equal(t, 5, m)

	for _, bad := range []string{"", "7", "07:60", "-1:00", "aa:bb", "07:05:00"} {
		_, _, err := ParseClock(bad)
		assert.Error(t, err, bad)
	}
}

func TestSchedule_Validate(t *testing.T) {
	assert.NoError(t, Schedule{}.Validate())
	assert.NoError(t, Schedule{Mode: ModeInterval, Interval: time.Minute}.Validate())
	assert.NoError(t, Schedule{Mode: ModeDaily, DailyAt: "00:00"}.Validate())
	assert.Error(t, Schedule{Mode: ModeInterval}.Validate())
	assert.Error(t, Schedule{Mode: ModeDaily, DailyAt: "noon"}.Validate())
	assert.Error(t, Schedule{Mode: "weekly"}.Validate())
}
