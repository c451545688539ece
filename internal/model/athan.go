package model

import (
	"fmt"
	"strconv"
	"strings"
)

// PrayerName is one of the five daily prayers tracked by the alert engine.
type PrayerName string

const (
	Fajr    PrayerName = "Fajr"
	Dhuhr   PrayerName = "Dhuhr"
	Asr     PrayerName = "Asr"
	Maghrib PrayerName = "Maghrib"
	Isha    PrayerName = "Isha"
)

// PrayerOrder is the order prayers occur in a day.
var PrayerOrder = []PrayerName{Fajr, Dhuhr, Asr, Maghrib, Isha}

type Prayer struct {
	Name   PrayerName `json:"name"`
	Time   string     `json:"time"` // “05:12”, 24-hour
	Hour   int        `json:"-"`
	Minute int        `json:"-"`
}

// MinuteOfDay returns the prayer time as minutes since local midnight.
func (p Prayer) MinuteOfDay() int {
	return p.Hour*60 + p.Minute
}

// Period renders the prayer time on a 12-hour clock, e.g. ("05:30", "PM").
func (p Prayer) Period() (string, string) {
	h := p.Hour
	period := "AM"
	if h >= 12 {
		period = "PM"
		if h > 12 {
			h -= 12
		}
	}
	if h == 0 {
		h = 12
	}
	return fmt.Sprintf("%02d:%02d", h, p.Minute), period
}

// ParseClockTime normalises an upstream timing such as "04:12" or
// "04:12 (WIB)" into hour and minute.
func ParseClockTime(s string) (int, int, error) {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, ' '); i >= 0 {
		s = s[:i]
	}
	parts := strings.Split(s, ":")
	if len(parts) != 2 || len(parts[0]) == 0 || len(parts[0]) > 2 || len(parts[1]) != 2 {
		return 0, 0, fmt.Errorf("%w: bad time %q", ErrMalformedSchedule, s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("%w: bad hour in %q", ErrMalformedSchedule, s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("%w: bad minute in %q", ErrMalformedSchedule, s)
	}
	return h, m, nil
}
