// Package device runs the single control loop of the unit and exposes its
// command surface. Commands and loop iterations are serialised by one
// mutex, so the components underneath see a single thread of control.
package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/muezzin/internal/aladhan"
	"github.com/Nixie-Tech-LLC/muezzin/internal/alert"
	"github.com/Nixie-Tech-LLC/muezzin/internal/cache"
	"github.com/Nixie-Tech-LLC/muezzin/internal/clock"
	"github.com/Nixie-Tech-LLC/muezzin/internal/link"
	"github.com/Nixie-Tech-LLC/muezzin/internal/lookahead"
	"github.com/Nixie-Tech-LLC/muezzin/internal/model"
	"github.com/Nixie-Tech-LLC/muezzin/internal/storage"
)

const (
	DefaultTick              = 100 * time.Millisecond
	DefaultReconnectInterval = 30 * time.Second
	MaxLookaheadDays         = 30
)

type Options struct {
	Location string
	Store    storage.Store
	Fetcher  aladhan.Fetcher
	// Mirror is optional.
	Mirror cache.Mirror
	Link   link.Link
	Clock  *clock.Arbiter
	// Sink defaults to alert.LogSink.
	Sink alert.Sink

	Lookahead lookahead.Config
	Alerts    alert.Config

	ReconnectInterval time.Duration
	Tick              time.Duration
}

type Controller struct {
	location  string
	clock     *clock.Arbiter
	link      link.Link
	resolver  *cache.Resolver
	lookahead *lookahead.Scheduler
	alerts    *alert.Engine
	reconnect time.Duration
	tick      time.Duration

	// set from inside Refresh; consumed by the next Poll
	resync atomic.Bool

	mu            sync.Mutex
	today         model.Date
	todayRec      *model.ScheduleRecord
	todayOrigin   model.Origin
	todayTried    time.Time
	lastReconnect time.Time
	lastSyncErr   error
}

func New(opts Options) (*Controller, error) {
	if opts.Clock == nil || opts.Link == nil {
		return nil, errors.New("device: clock and link are required")
	}
	if opts.ReconnectInterval <= 0 {
		opts.ReconnectInterval = DefaultReconnectInterval
	}
	if opts.Tick <= 0 {
		opts.Tick = DefaultTick
	}

	c := &Controller{
		location:  opts.Location,
		clock:     opts.Clock,
		link:      opts.Link,
		reconnect: opts.ReconnectInterval,
		tick:      opts.Tick,
	}

	res, err := cache.New(cache.Options{
		Location: opts.Location,
		Store:    opts.Store,
		Fetcher:  opts.Fetcher,
		Link:     opts.Link,
		Mirror:   opts.Mirror,
		OnRemote: c.adoptTimezone,
	})
	if err != nil {
		return nil, err
	}
	c.resolver = res

	la, err := lookahead.New(res, opts.Link, opts.Lookahead)
	if err != nil {
		return nil, err
	}
	c.lookahead = la
	c.alerts = alert.NewEngine(todaySource{c}, opts.Sink, opts.Alerts)
	return c, nil
}

// adoptTimezone follows the zone the upstream reports for the location. A
// change is resynced from the network on the next loop iteration.
func (c *Controller) adoptTimezone(rec *model.ScheduleRecord) {
	if c.clock.SetTimezone(rec.Data.Meta.Timezone) {
		c.resync.Store(true)
	}
}

// todaySource hands the alert engine the record resolved for today, which
// may be a stale fallback. It runs with c.mu held.
type todaySource struct{ c *Controller }

func (s todaySource) Local(date model.Date) (*model.ScheduleRecord, bool) {
	if date == s.c.today && s.c.todayRec != nil {
		s.c.promoteToday()
		return s.c.todayRec, true
	}
	return s.c.resolver.Local(date)
}

// promoteToday swaps a stale record for today's own once the store holds it.
func (c *Controller) promoteToday() {
	if c.todayOrigin != model.OriginStaleFallback {
		return
	}
	if rec, ok := c.resolver.Local(c.today); ok {
		c.todayRec, c.todayOrigin = rec, model.OriginLocalStore
		log.Info().Str("date", c.today.String()).Msg("today's schedule now cached, leaving stale fallback")
	}
}

func (c *Controller) now() (model.ClockReading, error) {
	r := c.clock.Now()
	if !r.Valid {
		return r, fmt.Errorf("%w: source %s", model.ErrClockUnavailable, r.Source)
	}
	return r, nil
}

// TodayResult is what fetchToday reports.
type TodayResult struct {
	Date   model.Date            `json:"date"`
	Origin model.Origin          `json:"origin"`
	Record *model.ScheduleRecord `json:"record"`
}

// FetchToday resolves today's schedule through the cache policy.
func (c *Controller) FetchToday(ctx context.Context) (*TodayResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, err := c.now()
	if err != nil {
		return nil, err
	}
	return c.resolveToday(ctx, r)
}

func (c *Controller) resolveToday(ctx context.Context, r model.ClockReading) (*TodayResult, error) {
	today := r.Today()
	c.todayTried = r.Time
	rec, origin, err := c.resolver.Resolve(ctx, today)
	if err != nil {
		if c.today != today {
			c.today, c.todayRec, c.todayOrigin = today, nil, model.OriginNone
		}
		return nil, err
	}
	c.today, c.todayRec, c.todayOrigin = today, rec, origin
	return &TodayResult{Date: today, Origin: origin, Record: rec}, nil
}

// FetchLookahead caches today..today+days, skipping dates already stored.
func (c *Controller) FetchLookahead(ctx context.Context, days int) (*lookahead.Result, error) {
	if days < 0 || days > MaxLookaheadDays {
		return nil, fmt.Errorf("days must be between 0 and %d", MaxLookaheadDays)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	r, err := c.now()
	if err != nil {
		return nil, err
	}
	if !c.link.Connected() {
		return nil, fmt.Errorf("%w: no connectivity", model.ErrRemoteUnavailable)
	}
	res := c.lookahead.Run(ctx, r.Today(), days)
	c.promoteToday()
	return &res, nil
}

// ForceSync resyncs the clock from the network regardless of the zone,
// optionally switching it first.
func (c *Controller) ForceSync(ctx context.Context, offsetHours *int, label string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.clock.SyncFromNetwork(ctx, clock.SyncRequest{Force: true, OffsetHours: offsetHours, Label: label})
	c.lastSyncErr = err
	return err
}

// EnsureClock runs a regular sync when no trusted time exists yet.
func (c *Controller) EnsureClock(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.clock.Now().Valid {
		return nil
	}
	err := c.clock.SyncFromNetwork(ctx, clock.SyncRequest{})
	c.lastSyncErr = err
	return err
}

// Schedule resolves an arbitrary date.
func (c *Controller) Schedule(ctx context.Context, date model.Date) (*model.ScheduleRecord, model.Origin, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resolver.Resolve(ctx, date)
}

// TestAlertPattern runs kind's output pattern immediately.
func (c *Controller) TestAlertPattern(kind alert.Mode) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.alerts.TestPattern(kind)
}

// Silence stops the running alert.
func (c *Controller) Silence() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts.Silence()
}

// Boot runs the start-up sequence: sync the clock, resolve today and fill
// the look-ahead window when tomorrow is not cached yet.
func (c *Controller) Boot(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.link.Connected() {
		if err := c.clock.SyncFromNetwork(ctx, clock.SyncRequest{}); err != nil {
			c.lastSyncErr = err
			log.Warn().Err(err).Msg("boot time sync failed")
		}
	} else {
		log.Warn().Msg("no connectivity at boot, running from local data")
	}

	r, err := c.now()
	if err != nil {
		log.Error().Err(err).Msg("no trusted time, scheduling suspended")
		return
	}
	if res, err := c.resolveToday(ctx, r); err != nil {
		log.Error().Err(err).Msg("no schedule for today")
	} else {
		log.Info().Str("date", res.Date.String()).Str("origin", string(res.Origin)).Msg("today's schedule loaded")
	}

	if c.link.Connected() && !c.resolver.Has(r.Today().AddDays(1)) {
		log.Info().Msg("look-ahead window empty, caching")
		c.lookahead.Run(ctx, r.Today(), c.lookahead.Days())
		c.promoteToday()
	}
}

// Poll is one control-loop iteration.
func (c *Controller) Poll(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.link.Connected() {
		if c.lastReconnect.IsZero() || time.Since(c.lastReconnect) >= c.reconnect {
			c.lastReconnect = time.Now()
			if err := c.link.Reconnect(ctx); err != nil {
				log.Debug().Err(err).Msg("reconnect failed")
			}
		}
	} else if c.resync.Load() {
		c.resync.Store(false)
		if err := c.clock.SyncFromNetwork(ctx, clock.SyncRequest{Force: true}); err != nil {
			c.lastSyncErr = err
			log.Warn().Err(err).Msg("resync after timezone change failed")
		}
	}

	r := c.clock.Now()
	if r.Valid {
		c.refreshTodayIfStale(ctx, r)
	}
	c.alerts.Poll(r)
	if c.lookahead.Poll(ctx, r) {
		c.promoteToday()
	}
}

// refreshTodayIfStale re-resolves today after a date rollover, and retries
// a stale or missing result once per reconnect interval while online.
func (c *Controller) refreshTodayIfStale(ctx context.Context, r model.ClockReading) {
	today := r.Today()
	switch {
	case c.today != today:
	case c.todayOrigin == model.OriginLocalStore || c.todayOrigin == model.OriginRemote:
		return
	case !c.link.Connected():
		if c.todayRec != nil || !c.resolver.Has(today) {
			return
		}
	case r.Time.Sub(c.todayTried) < c.reconnect:
		return
	}
	if _, err := c.resolveToday(ctx, r); err != nil {
		log.Debug().Err(err).Str("date", today.String()).Msg("today unresolved")
	}
}

// Run drives Poll on a fixed tick until ctx is done.
func (c *Controller) Run(ctx context.Context) error {
	c.Boot(ctx)
	t := time.NewTicker(c.tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			c.Silence()
			return ctx.Err()
		case <-t.C:
			c.Poll(ctx)
		}
	}
}
