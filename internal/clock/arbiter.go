// Package clock arbitrates between the battery-backed clock and network time
// and hands every other component a local wall-clock reading.
package clock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/muezzin/internal/metrics"
	"github.com/Nixie-Tech-LLC/muezzin/internal/model"
)

const (
	DefaultSyncAttempts = 15
	DefaultRetryDelay   = time.Second
)

// Connectivity is the boolean link signal.
type Connectivity interface {
	Connected() bool
}

type Options struct {
	// RTC may be nil when no clock peripheral is fitted.
	RTC          RTC
	Network      NetworkTime
	Link         Connectivity
	Zone         Zone
	SyncAttempts int
	RetryDelay   time.Duration
}

// SyncRequest carries the optional overrides of a sync call.
type SyncRequest struct {
	Force bool
	// OffsetHours overrides the zone offset when non-nil.
	OffsetHours *int
	// Label switches the zone label when non-empty.
	Label string
}

type Arbiter struct {
	rtc      RTC
	network  NetworkTime
	link     Connectivity
	attempts int
	delay    time.Duration

	// test hooks
	sleep func(ctx context.Context, d time.Duration) error
	mono  func() time.Time

	mu       sync.Mutex
	zone     Zone
	synced   bool
	syncZone Zone
	netTime  time.Time
	netAt    time.Time
}

func NewArbiter(opts Options) *Arbiter {
	if opts.SyncAttempts <= 0 {
		opts.SyncAttempts = DefaultSyncAttempts
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.Zone.Label == "" && opts.Zone.OffsetHours == 0 {
		opts.Zone = ZoneFor("Asia/Jakarta")
	}
	return &Arbiter{
		rtc:      opts.RTC,
		network:  opts.Network,
		link:     opts.Link,
		attempts: opts.SyncAttempts,
		delay:    opts.RetryDelay,
		sleep:    sleepCtx,
		mono:     time.Now,
		zone:     opts.Zone,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Now prefers a valid RTC reading, then the last network sync advanced by
// elapsed host time; otherwise the reading is invalid with source none.
func (a *Arbiter) Now() model.ClockReading {
	a.mu.Lock()
	defer a.mu.Unlock()
	loc := a.zone.Location()

	if a.rtc != nil {
		if t, err := a.rtc.Now(); err == nil {
			r := model.NewClockReading(t.In(loc), model.ClockSourceRTC)
			if r.Valid {
				return r
			}
		}
	}
	if a.synced {
		t := a.netTime.Add(a.mono().Sub(a.netAt))
		return model.NewClockReading(t.In(loc), model.ClockSourceNetwork)
	}
	return model.ClockReading{Source: model.ClockSourceNone}
}

func (a *Arbiter) Zone() Zone {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.zone
}

// SetTimezone adopts label as the effective zone and reports whether it
// differs from the current one.
func (a *Arbiter) SetTimezone(label string) bool {
	if label == "" {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if label == a.zone.Label {
		return false
	}
	prev := a.zone
	a.zone = ZoneFor(label)
	log.Info().Str("from", prev.Label).Str("to", a.zone.Label).Int("offset", a.zone.OffsetHours).Msg("timezone changed")
	return true
}

// SyncFromNetwork fetches network time and writes it into the RTC. Without a
// link it fails with model.ErrClockUnavailable. Unless forced, it is a no-op
// when the effective zone matches the last successful sync.
func (a *Arbiter) SyncFromNetwork(ctx context.Context, req SyncRequest) error {
	if a.link == nil || !a.link.Connected() {
		metrics.ClockSyncs.WithLabelValues("failed").Inc()
		return fmt.Errorf("%w: no connectivity", model.ErrClockUnavailable)
	}

	a.mu.Lock()
	zone := a.zone
	if req.Label != "" {
		zone = ZoneFor(req.Label)
	}
	if req.OffsetHours != nil {
		zone.OffsetHours = *req.OffsetHours
	}
	skip := !req.Force && a.synced && zone == a.syncZone
	a.mu.Unlock()

	if skip {
		metrics.ClockSyncs.WithLabelValues("skipped").Inc()
		log.Debug().Str("zone", zone.Label).Msg("timezone unchanged, sync skipped")
		return nil
	}
	if a.network == nil {
		metrics.ClockSyncs.WithLabelValues("failed").Inc()
		return fmt.Errorf("%w: no network time source", model.ErrClockUnavailable)
	}

	var err error
	for attempt := 1; attempt <= a.attempts; attempt++ {
		var t time.Time
		t, err = a.network.Query(ctx)
		if err == nil && t.Year() > model.MinValidYear {
			a.commit(t, zone)
			metrics.ClockSyncs.WithLabelValues("ok").Inc()
			log.Info().Time("time", t.In(zone.Location())).Str("zone", zone.Label).Int("attempt", attempt).Msg("time synced from network")
			return nil
		}
		if err == nil {
			err = fmt.Errorf("implausible network time %s", t)
		}

		log.Warn().Err(err).
			Int("attempt", attempt).
			Msgf("network time sync failed, retrying in %s", a.delay)

		if attempt < a.attempts {
			if serr := a.sleep(ctx, a.delay); serr != nil {
				err = serr
				break
			}
		}
	}

	metrics.ClockSyncs.WithLabelValues("failed").Inc()
	return fmt.Errorf("%w: no network time after %d attempts: %v", model.ErrClockUnavailable, a.attempts, err)
}

func (a *Arbiter) commit(t time.Time, zone Zone) {
	a.mu.Lock()
	a.zone = zone
	a.synced = true
	a.syncZone = zone
	a.netTime = t
	a.netAt = a.mono()
	rtc := a.rtc
	a.mu.Unlock()

	if rtc != nil {
		if err := rtc.Set(t); err != nil {
			log.Error().Err(err).Msg("rtc write failed")
		}
	}
}
