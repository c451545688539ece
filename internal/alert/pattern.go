package alert

import (
	"fmt"
	"strings"
	"time"
)

// Mode is the alert engine state.
type Mode string

const (
	Off             Mode = "off"
	PrayerTimeAlert Mode = "prayer"
	WarningAlert    Mode = "warning"
	Custom          Mode = "custom"
)

// Pattern is an output waveform driven by elapsed time since the
// transition. Period zero means held on for the whole duration.
type Pattern struct {
	Period time.Duration
	Total  time.Duration
}

var (
	// 0.5 s on / 0.5 s off for 10 s
	PrayerPattern = Pattern{Period: time.Second, Total: 10 * time.Second}
	// held on for 1 s
	WarningPattern = Pattern{Total: time.Second}
	// 0.1 s on / 0.1 s off for 5 s
	CustomPattern = Pattern{Period: 200 * time.Millisecond, Total: 5 * time.Second}
)

// Level returns the output level at elapsed and whether the pattern is
// still running.
func (p Pattern) Level(elapsed time.Duration) (on bool, running bool) {
	if elapsed < 0 || elapsed >= p.Total {
		return false, false
	}
	if p.Period <= 0 {
		return true, true
	}
	return elapsed%p.Period < p.Period/2, true
}

// ParseMode maps a command argument to an alert kind accepted by
// TestPattern.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case PrayerTimeAlert, "prayer_time", "adhan":
		return PrayerTimeAlert, nil
	case WarningAlert, "warn":
		return WarningAlert, nil
	case Custom, "alarm", "test":
		return Custom, nil
	}
	return Off, fmt.Errorf("unknown alert kind %q", s)
}
