package cron

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kolkata(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	return loc
}

func TestIsDue(t *testing.T) {
	loc := kolkata(t)
	// 2024-05-06 is a Monday.
	at := func(day, hour, minute int) time.Time {
		return time.Date(2024, 5, day, hour, minute, 0, 0, loc)
	}
	disabled := false

	cases := []struct {
		name string
		cfg  ScheduleConfig
		last time.Time
		now  time.Time
		want bool
	}{
		{name: "never_ran_after_slot", cfg: ScheduleConfig{}, now: at(6, 6, 30), want: true},
		{name: "before_slot", cfg: ScheduleConfig{}, now: at(6, 5, 59), want: false},
		{name: "exactly_at_slot", cfg: ScheduleConfig{}, now: at(6, 6, 0), want: true},
		{name: "ran_after_slot_today", cfg: ScheduleConfig{}, last: at(6, 6, 10), now: at(6, 6, 30), want: false},
		{name: "ran_yesterday", cfg: ScheduleConfig{}, last: at(5, 6, 10), now: at(6, 6, 30), want: true},
		{name: "late_run_does_not_shift_next_slot", cfg: ScheduleConfig{}, last: at(5, 23, 0), now: at(6, 6, 1), want: true},
		{name: "forced_before_slot_still_due_at_slot", cfg: ScheduleConfig{}, last: at(6, 5, 0), now: at(6, 6, 1), want: true},
		{name: "weekday_in_set", cfg: ScheduleConfig{DaysOfWeek: Weekdays{1, 3}}, now: at(6, 7, 0), want: true},
		{name: "weekday_not_in_set", cfg: ScheduleConfig{DaysOfWeek: Weekdays{1, 3}}, now: at(7, 7, 0), want: false},
		{name: "sunday_is_seven", cfg: ScheduleConfig{DaysOfWeek: Weekdays{7}}, now: at(12, 7, 0), want: true},
		{name: "disabled", cfg: ScheduleConfig{Enabled: &disabled}, now: at(6, 7, 0), want: false},
		{name: "custom_time", cfg: ScheduleConfig{Time: "18:45"}, now: at(6, 18, 44), want: false},
		{name: "utc_instant_compared_in_zone", cfg: ScheduleConfig{}, now: time.Date(2024, 5, 6, 0, 31, 0, 0, time.UTC), want: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsDue(tc.cfg, tc.last, tc.now))
		})
	}
}

func TestScheduleDefaultsOnInvalidInput(t *testing.T) {
	cfg := ScheduleConfig{Timezone: "Mars/Olympus_Mons", Time: "25:00", DaysOfWeek: Weekdays{0, 8, 9}}

	assert.Equal(t, DefaultTimezone, cfg.Zone())
	assert.Equal(t, "Asia/Kolkata", cfg.Location().String())
	assert.Equal(t, DefaultTime, cfg.Clock())
	assert.Empty(t, cfg.Days())
	assert.True(t, cfg.IsEnabled())
	assert.Equal(t, "Daily at 06:00 (Asia/Kolkata)", Describe(cfg))

	loc := kolkata(t)
	assert.True(t, IsDue(cfg, time.Time{}, time.Date(2024, 5, 6, 6, 0, 0, 0, loc)))
}

func TestDescribe(t *testing.T) {
	cases := []struct {
		name string
		cfg  ScheduleConfig
		want string
	}{
		{name: "daily", cfg: ScheduleConfig{}, want: "Daily at 06:00 (Asia/Kolkata)"},
		{name: "days_sorted_deduped", cfg: ScheduleConfig{DaysOfWeek: Weekdays{3, 1, 1}}, want: "Monday, Wednesday at 06:00 (Asia/Kolkata)"},
		{name: "custom_zone_and_time", cfg: ScheduleConfig{Timezone: "UTC", Time: "21:05", DaysOfWeek: Weekdays{7}}, want: "Sunday at 21:05 (UTC)"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Describe(tc.cfg))
		})
	}
}

func TestNextRun(t *testing.T) {
	loc := kolkata(t)
	monday := func(hour, minute, second int) time.Time {
		return time.Date(2024, 5, 6, hour, minute, second, 0, loc)
	}

	cases := []struct {
		name string
		cfg  ScheduleConfig
		now  time.Time
		want time.Time
	}{
		{name: "later_today", cfg: ScheduleConfig{}, now: monday(5, 0, 0), want: monday(6, 0, 0)},
		{name: "exactly_now", cfg: ScheduleConfig{}, now: monday(6, 0, 0), want: monday(6, 0, 0)},
		{name: "tomorrow", cfg: ScheduleConfig{}, now: monday(6, 0, 30), want: time.Date(2024, 5, 7, 6, 0, 0, 0, loc)},
		{name: "next_sunday", cfg: ScheduleConfig{DaysOfWeek: Weekdays{7}}, now: monday(9, 0, 0), want: time.Date(2024, 5, 12, 6, 0, 0, 0, loc)},
		{name: "wednesday", cfg: ScheduleConfig{DaysOfWeek: Weekdays{3, 5}}, now: monday(9, 0, 0), want: time.Date(2024, 5, 8, 6, 0, 0, 0, loc)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := NextRun(tc.cfg, tc.now)
			require.True(t, ok)
			assert.True(t, got.Equal(tc.want), "got %s want %s", got, tc.want)
			assert.False(t, got.Before(tc.now))
		})
	}
}

func TestNextRunUsesScheduleZone(t *testing.T) {
	now := time.Date(2024, 6, 3, 1, 0, 0, 0, time.UTC)
	got, ok := NextRun(ScheduleConfig{}, now)
	require.True(t, ok)
	assert.Equal(t, "2024-06-04T06:00:00+05:30", got.Format(time.RFC3339))
	assert.Equal(t, "Asia/Kolkata", got.Location().String())
}

func TestCronExpr(t *testing.T) {
	cfg := ScheduleConfig{Time: "07:30", DaysOfWeek: Weekdays{7, 1}}
	assert.Equal(t, "CRON_TZ=Asia/Kolkata 30 7 * * 1,0", CronExpr(cfg))
}

func TestWeekdaysUnmarshal(t *testing.T) {
	var cfg ScheduleConfig
	require.NoError(t, json.Unmarshal([]byte(`{"daysOfWeek":["1",3,"x"],"time":"06:00"}`), &cfg))
	assert.Equal(t, []int{1, 3}, cfg.Days())

	var scalar ScheduleConfig
	require.NoError(t, json.Unmarshal([]byte(`{"daysOfWeek":"weekdays"}`), &scalar))
	assert.Empty(t, scalar.Days())
}

func TestParseTimestamp(t *testing.T) {
	loc := kolkata(t)
	got := ParseTimestamp("2024-05-06T06:10:00+05:30", loc)
	assert.True(t, got.Equal(time.Date(2024, 5, 6, 6, 10, 0, 0, loc)))

	local := ParseTimestamp("2024-05-06 06:10:00", loc)
	assert.True(t, local.Equal(time.Date(2024, 5, 6, 6, 10, 0, 0, loc)))

	assert.True(t, ParseTimestamp("yesterday-ish", loc).IsZero())
	assert.True(t, ParseTimestamp("", loc).IsZero())
}
