package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Origin tags where a resolved record came from.
type Origin string

const (
	OriginNone          Origin = ""
	OriginLocalStore    Origin = "local_store"
	OriginRemote        Origin = "remote"
	OriginStaleFallback Origin = "stale_fallback"
)

// ScheduleRecord is the reduced daily document, persisted as-is. Its JSON
// shape is a strict subset of the upstream response.
type ScheduleRecord struct {
	Code   int          `json:"code"`
	Status string       `json:"status"`
	Data   ScheduleData `json:"data"`
}

type ScheduleData struct {
	Timings Timings  `json:"timings"`
	Date    DateInfo `json:"date"`
	Meta    Meta     `json:"meta"`
}

// Timings holds exactly the five prayer times, "HH:MM" 24-hour.
type Timings struct {
	Fajr    string `json:"Fajr"`
	Dhuhr   string `json:"Dhuhr"`
	Asr     string `json:"Asr"`
	Maghrib string `json:"Maghrib"`
	Isha    string `json:"Isha"`
}

type DateInfo struct {
	Readable  string    `json:"readable"`
	Timestamp Timestamp `json:"timestamp"`
}

type Meta struct {
	Timezone string `json:"timezone"`
}

// Get returns the raw timing for a prayer.
func (t Timings) Get(name PrayerName) string {
	switch name {
	case Fajr:
		return t.Fajr
	case Dhuhr:
		return t.Dhuhr
	case Asr:
		return t.Asr
	case Maghrib:
		return t.Maghrib
	case Isha:
		return t.Isha
	}
	return ""
}

// Prayers parses all five timings in day order. A record missing any of
// them is treated as absent by the alert engine, so this fails on the first
// missing or unparsable field.
func (r *ScheduleRecord) Prayers() ([]Prayer, error) {
	out := make([]Prayer, 0, len(PrayerOrder))
	for _, name := range PrayerOrder {
		raw := r.Data.Timings.Get(name)
		if raw == "" {
			return nil, fmt.Errorf("%w: missing %s", ErrMalformedSchedule, name)
		}
		h, m, err := ParseClockTime(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out = append(out, Prayer{Name: name, Time: fmt.Sprintf("%02d:%02d", h, m), Hour: h, Minute: m})
	}
	return out, nil
}

// Validate checks every field the reduced schema requires.
func (r *ScheduleRecord) Validate() error {
	if _, err := r.Prayers(); err != nil {
		return err
	}
	if r.Data.Date.Readable == "" {
		return fmt.Errorf("%w: missing date.readable", ErrMalformedSchedule)
	}
	if r.Data.Date.Timestamp <= 0 {
		return fmt.Errorf("%w: missing date.timestamp", ErrMalformedSchedule)
	}
	if r.Data.Meta.Timezone == "" {
		return fmt.Errorf("%w: missing meta.timezone", ErrMalformedSchedule)
	}
	return nil
}

// Timestamp is a unix time in seconds. Upstream sends it as a quoted
// string; both forms are accepted and the string form is written back.
type Timestamp int64

func (ts Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.FormatInt(int64(ts), 10))
}

func (ts *Timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*ts = 0
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			*ts = 0
			return nil
		}
		b = []byte(s)
	}
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp %q", ErrMalformedSchedule, b)
	}
	*ts = Timestamp(n)
	return nil
}
