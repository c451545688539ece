package device

import (
	"time"

	"github.com/Nixie-Tech-LLC/muezzin/internal/alert"
	"github.com/Nixie-Tech-LLC/muezzin/internal/clock"
	"github.com/Nixie-Tech-LLC/muezzin/internal/lookahead"
	"github.com/Nixie-Tech-LLC/muezzin/internal/model"
)

type Status struct {
	Connectivity       bool         `json:"connectivity"`
	ClockValid         bool         `json:"clock_valid"`
	CacheOriginOfToday model.Origin `json:"cache_origin_of_today"`

	Time        *time.Time        `json:"time,omitempty"`
	ClockSource model.ClockSource `json:"clock_source"`
	City        string            `json:"city"`
	Timezone    clock.Zone        `json:"timezone"`
	ZoneAbbr    string            `json:"timezone_abbr"`
	LastSyncErr string            `json:"last_sync_error,omitempty"`

	Today      string        `json:"today,omitempty"`
	NextPrayer *model.Prayer `json:"next_prayer,omitempty"`

	AlertMode     alert.Mode        `json:"alert_mode"`
	ActiveAlert   *alert.Notice     `json:"active_alert,omitempty"`
	Lookahead     lookahead.State   `json:"lookahead_state"`
	LastLookahead *lookahead.Result `json:"last_lookahead,omitempty"`
}

// Status reports device state without touching the network beyond the
// link probe.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := c.clock.Now()
	zone := c.clock.Zone()
	st := Status{
		Connectivity:  c.link.Connected(),
		ClockValid:    r.Valid,
		ClockSource:   r.Source,
		City:          c.location,
		Timezone:      zone,
		ZoneAbbr:      clock.Abbreviation(zone.OffsetHours),
		AlertMode:     c.alerts.Mode(),
		ActiveAlert:   c.alerts.Active(),
		Lookahead:     c.lookahead.State(),
		LastLookahead: c.lookahead.Last(),
	}
	if c.lastSyncErr != nil {
		st.LastSyncErr = c.lastSyncErr.Error()
	}
	if !r.Valid {
		return st
	}

	t := r.Time
	st.Time = &t
	today := r.Today()
	st.Today = today.String()

	var rec *model.ScheduleRecord
	switch {
	case c.today == today && c.todayRec != nil:
		c.promoteToday()
		rec = c.todayRec
		st.CacheOriginOfToday = c.todayOrigin
	default:
		if local, ok := c.resolver.Local(today); ok {
			rec = local
			st.CacheOriginOfToday = model.OriginLocalStore
		}
	}
	if rec != nil {
		st.NextPrayer = nextPrayer(rec, r.MinuteOfDay())
	}
	return st
}

func nextPrayer(rec *model.ScheduleRecord, minute int) *model.Prayer {
	prayers, err := rec.Prayers()
	if err != nil {
		return nil
	}
	for _, p := range prayers {
		if p.MinuteOfDay() >= minute {
			p := p
			return &p
		}
	}
	return nil
}
