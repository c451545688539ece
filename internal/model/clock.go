package model

import "time"

// MinValidYear is the last year treated as "clock not set". Readings at or
// before it never drive scheduling.
const MinValidYear = 2000

// ClockSource says where a reading came from.
type ClockSource string

const (
	ClockSourceRTC     ClockSource = "rtc"
	ClockSourceNetwork ClockSource = "network"
	ClockSourceNone    ClockSource = "none"
)

// ClockReading is a local wall-clock instant plus a validity flag.
type ClockReading struct {
	Time   time.Time
	Source ClockSource
	Valid  bool
}

// NewClockReading derives validity from the year of t.
func NewClockReading(t time.Time, src ClockSource) ClockReading {
	return ClockReading{Time: t, Source: src, Valid: t.Year() > MinValidYear}
}

// Today returns the local calendar day of the reading.
func (r ClockReading) Today() Date {
	return DateOf(r.Time)
}

// MinuteOfDay returns minutes since local midnight.
func (r ClockReading) MinuteOfDay() int {
	return r.Time.Hour()*60 + r.Time.Minute()
}
