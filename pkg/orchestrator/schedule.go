package orchestrator

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Mode selects how often the orchestrator runs
type Mode string

const (
	ModeOnce     Mode = "once"
	ModeInterval Mode = "interval"
	ModeDaily    Mode = "daily"
)

// Schedule describes when passes are triggered
type Schedule struct {
	Mode     Mode
	Interval time.Duration
	// DailyAt is the local "HH:MM" of the daily trigger
	DailyAt string
	// RunOnStart runs one pass immediately in daily mode
	RunOnStart bool
	Location   *time.Location
}

// Repeating reports whether the schedule triggers more than one pass
func (s Schedule) Repeating() bool {
	return s.Mode == ModeInterval || s.Mode == ModeDaily
}

// Validate checks the schedule fields required by its mode
func (s Schedule) Validate() error {
	switch s.Mode {
	case ModeOnce, "":
		return nil
	case ModeInterval:
		if s.Interval <= 0 {
			return fmt.Errorf("interval schedule needs a positive interval, got %s", s.Interval)
		}
		return nil
	case ModeDaily:
		_, _, err := ParseClock(s.DailyAt)
		return err
	default:
		return fmt.Errorf("unknown schedule mode %q", s.Mode)
	}
}

// ParseClock parses an "HH:MM" time of day
func ParseClock(clock string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(clock), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time of day %q: want HH:MM", clock)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", clock)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", clock)
	}
	return hour, minute, nil
}

// NextTrigger returns the first trigger strictly after now.
// Triggers missed while a pass was running are coalesced into this one.
func NextTrigger(s Schedule, now time.Time) (time.Time, error) {
	switch s.Mode {
	case ModeInterval:
		if s.Interval <= 0 {
			return time.Time{}, fmt.Errorf("interval must be positive")
		}
		return now.Add(s.Interval), nil
	case ModeDaily:
		hour, minute, err := ParseClock(s.DailyAt)
		if err != nil {
			return time.Time{}, err
		}
		loc := s.Location
		if loc == nil {
			loc = time.Local
		}
		local := now.In(loc)
		next := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
		for !next.After(now) {
			local = local.AddDate(0, 0, 1)
			next = time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
		}
		return next, nil
	default:
		return time.Time{}, fmt.Errorf("schedule mode %q does not repeat", s.Mode)
	}
}
