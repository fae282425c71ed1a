package cron

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	robcron "github.com/robfig/cron/v3"
)

// lookaheadDays bounds NextRun for day-constrained schedules.
const lookaheadDays = 14

var clockRe = regexp.MustCompile(`^(?:[01]\d|2[0-3]):[0-5]\d$`)

var weekdayNames = map[int]string{
	1: "Monday",
	2: "Tuesday",
	3: "Wednesday",
	4: "Thursday",
	5: "Friday",
	6: "Saturday",
	7: "Sunday",
}

// Location returns the configured zone, or the default zone when the name is
// empty or unknown. UTC is the last resort when tzdata is unavailable.
func (c ScheduleConfig) Location() *time.Location {
	if loc, err := loadLocation(c.Timezone); err == nil {
		return loc
	}
	if loc, err := time.LoadLocation(DefaultTimezone); err == nil {
		return loc
	}
	return time.UTC
}

// Zone is the name of the zone Location resolves to.
func (c ScheduleConfig) Zone() string {
	name := strings.TrimSpace(c.Timezone)
	if name != "" {
		if _, err := loadLocation(name); err == nil {
			return name
		}
	}
	return DefaultTimezone
}

// Clock returns the configured time of day as HH:MM.
func (c ScheduleConfig) Clock() string {
	raw := strings.TrimSpace(c.Time)
	if clockRe.MatchString(raw) {
		return raw
	}
	return DefaultTime
}

func (c ScheduleConfig) hourMinute() (int, int) {
	clock := c.Clock()
	h, _ := strconv.Atoi(clock[:2])
	m, _ := strconv.Atoi(clock[3:])
	return h, m
}

// Days returns the valid ISO weekdays, sorted and without duplicates. An
// empty result means every day.
func (c ScheduleConfig) Days() []int {
	if len(c.DaysOfWeek) == 0 {
		return nil
	}
	seen := make(map[int]bool, len(c.DaysOfWeek))
	out := make([]int, 0, len(c.DaysOfWeek))
	for _, d := range c.DaysOfWeek {
		if d < 1 || d > 7 || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	sort.Ints(out)
	if len(out) == 0 {
		return nil
	}
	return out
}

func (c ScheduleConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// Describe renders the schedule for operators, e.g.
// "Monday, Wednesday at 06:00 (Asia/Kolkata)".
func Describe(c ScheduleConfig) string {
	days := c.Days()
	label := "Daily"
	if len(days) > 0 {
		names := make([]string, 0, len(days))
		for _, d := range days {
			names = append(names, weekdayNames[d])
		}
		label = strings.Join(names, ", ")
	}
	return fmt.Sprintf("%s at %s (%s)", label, c.Clock(), c.Zone())
}

// SlotOn returns the nominal run instant on the calendar day of now, in the
// schedule's zone.
func SlotOn(c ScheduleConfig, now time.Time) time.Time {
	loc := c.Location()
	local := now.In(loc)
	h, m := c.hourMinute()
	return time.Date(local.Year(), local.Month(), local.Day(), h, m, 0, 0, loc)
}

// IsDue reports whether a job with this schedule should run at now, given the
// instant of its last successful run (zero when it never succeeded).
func IsDue(c ScheduleConfig, lastRunAt time.Time, now time.Time) bool {
	if !c.IsEnabled() {
		return false
	}
	local := now.In(c.Location())
	if days := c.Days(); len(days) > 0 && !containsDay(days, isoWeekday(local.Weekday())) {
		return false
	}
	slot := SlotOn(c, now)
	if now.Before(slot) {
		return false
	}
	return lastRunAt.IsZero() || lastRunAt.Before(slot)
}

// NextRun returns the first instant at or after now matching the schedule,
// expressed in the schedule's zone. It reports false when no matching day lies within the lookahead window.
func NextRun(c ScheduleConfig, now time.Time) (time.Time, bool) {
	schedule, err := parseSchedule(c)
	if err != nil {
		return time.Time{}, false
	}
	next := schedule.Next(now.Add(-time.Nanosecond))
	if next.IsZero() || next.Sub(now) > lookaheadDays*24*time.Hour {
		return time.Time{}, false
	}
	return next.In(c.Location()), true
}

// CronExpr translates the schedule into a robfig/cron expression carrying its
// zone, e.g. "CRON_TZ=Asia/Kolkata 0 6 * * 1,3".
func CronExpr(c ScheduleConfig) string {
	h, m := c.hourMinute()
	dow := "*"
	if days := c.Days(); len(days) > 0 {
		parts := make([]string, 0, len(days))
		for _, d := range days {
			parts = append(parts, strconv.Itoa(d%7))
		}
		dow = strings.Join(parts, ",")
	}
	return fmt.Sprintf("CRON_TZ=%s %d %d * * %s", c.Location().String(), m, h, dow)
}

func parseSchedule(c ScheduleConfig) (robcron.Schedule, error) {
	parser := robcron.NewParser(robcron.Minute | robcron.Hour | robcron.Dom | robcron.Month | robcron.Dow | robcron.Descriptor)
	schedule, err := parser.Parse(CronExpr(c))
	if err != nil {
		return nil, fmt.Errorf("parse cron expr: %w", err)
	}
	return schedule, nil
}

// ParseTimestamp reads a stored run timestamp. Unparseable input yields the
// zero time, which callers treat as "never ran".
func ParseTimestamp(raw string, loc *time.Location) time.Time {
	t, err := parseTimeInLocation(raw, loc)
	if err != nil {
		return time.Time{}
	}
	return t
}

func isoWeekday(wd time.Weekday) int {
	if wd == time.Sunday {
		return 7
	}
	return int(wd)
}

func containsDay(days []int, day int) bool {
	for _, d := range days {
		if d == day {
			return true
		}
	}
	return false
}

func loadLocation(raw string) (*time.Location, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return nil, fmt.Errorf("timezone is empty")
	}
	if strings.EqualFold(name, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load location %q: %w", name, err)
	}
	return loc, nil
}

func parseTimeInLocation(raw string, loc *time.Location) (time.Time, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return time.Time{}, fmt.Errorf("time is empty")
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, text); err == nil {
			return t, nil
		}
	}
	layouts := []string{
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04",
		"2006-01-02 15:04",
		"2006-01-02",
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, text, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("parse time %q: expected RFC3339 or local formats like 2006-01-02 15:04", text)
}
