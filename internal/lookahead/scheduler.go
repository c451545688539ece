// Package lookahead keeps a rolling window of future days in the store,
// filled once per night shortly after local midnight.
package lookahead

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/Nixie-Tech-LLC/muezzin/internal/metrics"
	"github.com/Nixie-Tech-LLC/muezzin/internal/model"
)

const (
	DefaultDays          = 7
	DefaultWindowMinutes = 5
	DefaultDelay         = time.Second
	DefaultCheckEvery    = 30 * time.Second
)

type State string

const (
	Idle    State = "idle"
	Caching State = "caching"
)

// Cache is the part of the resolver the scheduler needs.
type Cache interface {
	Has(date model.Date) bool
	Refresh(ctx context.Context, date model.Date) (*model.ScheduleRecord, error)
}

type Connectivity interface {
	Connected() bool
}

type Config struct {
	// Days past today to keep cached. Zero caches today only; a negative
	// value selects DefaultDays.
	Days          int
	WindowMinutes int
	Delay         time.Duration
	CheckEvery    time.Duration
}

// Result summarises one pass over the window.
type Result struct {
	From     model.Date `json:"from"`
	Days     int        `json:"days"`
	Cached   int        `json:"cached"`
	Skipped  int        `json:"skipped"`
	Failed   int        `json:"failed"`
	Finished time.Time  `json:"finished"`
}

type Scheduler struct {
	cache      Cache
	link       Connectivity
	days       int
	expr       string
	checkEvery time.Duration
	limiter    *rate.Limiter

	mu        sync.Mutex
	state     State
	done      bool
	lastCheck time.Time
	last      *Result
}

// WindowExpr is the cron expression matching every second of the first n
// minutes after midnight. The leading seconds field is required: gronx reads
// a five-field expression as second 0 only.
func WindowExpr(n int) string {
	if n <= 1 {
		return "* 0 0 * * *"
	}
	return fmt.Sprintf("* 0-%d 0 * * *", n-1)
}

func New(cache Cache, link Connectivity, cfg Config) (*Scheduler, error) {
	if cfg.Days < 0 {
		cfg.Days = DefaultDays
	}
	if cfg.WindowMinutes <= 0 {
		cfg.WindowMinutes = DefaultWindowMinutes
	}
	if cfg.CheckEvery <= 0 {
		cfg.CheckEvery = DefaultCheckEvery
	}
	expr := WindowExpr(cfg.WindowMinutes)
	if !gronx.IsValid(expr) {
		return nil, fmt.Errorf("invalid midnight window %d", cfg.WindowMinutes)
	}

	lim := rate.NewLimiter(rate.Inf, 1)
	if cfg.Delay > 0 {
		lim = rate.NewLimiter(rate.Every(cfg.Delay), 1)
	}
	return &Scheduler{
		cache:      cache,
		link:       link,
		days:       cfg.Days,
		expr:       expr,
		checkEvery: cfg.CheckEvery,
		limiter:    lim,
		state:      Idle,
	}, nil
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Last returns the result of the most recent run, or nil.
func (s *Scheduler) Last() *Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil
	}
	r := *s.last
	return &r
}

func (s *Scheduler) Days() int {
	return s.days
}

// InWindow reports whether t falls inside the midnight window.
func (s *Scheduler) InWindow(t time.Time) bool {
	due, err := gronx.New().IsDue(s.expr, t)
	if err != nil {
		log.Error().Err(err).Str("expr", s.expr).Msg("window check failed")
		return false
	}
	return due
}

// Poll runs the nightly pass when the clock is valid, the link is up, the
// time is inside the midnight window and today's pass has not completed.
// The window check itself runs at most once per CheckEvery.
func (s *Scheduler) Poll(ctx context.Context, now model.ClockReading) bool {
	if !now.Valid {
		return false
	}

	s.mu.Lock()
	if !s.lastCheck.IsZero() && now.Time.After(s.lastCheck) && now.Time.Sub(s.lastCheck) < s.checkEvery {
		s.mu.Unlock()
		return false
	}
	s.lastCheck = now.Time
	inWindow := s.InWindow(now.Time)
	if !inWindow {
		s.done = false
	}
	due := inWindow && !s.done
	s.mu.Unlock()

	if !due || !s.link.Connected() {
		return false
	}

	log.Info().Str("date", now.Today().String()).Int("days", s.days).Msg("starting nightly look-ahead")
	s.Run(ctx, now.Today(), s.days)

	s.mu.Lock()
	s.done = true
	s.mu.Unlock()
	return true
}

// Run visits from..from+days. Dates already held locally are skipped; the
// rest are fetched one at a time, spaced by the limiter. A failed date never
// stops the pass.
func (s *Scheduler) Run(ctx context.Context, from model.Date, days int) Result {
	s.mu.Lock()
	s.state = Caching
	s.mu.Unlock()

	res := Result{From: from, Days: days}
	for i := 0; i <= days; i++ {
		d := from.AddDays(i)
		if s.cache.Has(d) {
			res.Skipped++
			metrics.LookaheadDates.WithLabelValues("skipped").Inc()
			continue
		}
		if err := s.limiter.Wait(ctx); err != nil {
			log.Warn().Err(err).Str("date", d.String()).Msg("look-ahead interrupted")
			res.Failed += days - i + 1
			metrics.LookaheadDates.WithLabelValues("failed").Add(float64(days - i + 1))
			break
		}
		if _, err := s.cache.Refresh(ctx, d); err != nil {
			res.Failed++
			metrics.LookaheadDates.WithLabelValues("failed").Inc()
			log.Warn().Err(err).Str("date", d.String()).Msg("look-ahead fetch failed")
			continue
		}
		res.Cached++
		metrics.LookaheadDates.WithLabelValues("cached").Inc()
	}
	res.Finished = time.Now()

	log.Info().
		Str("from", from.String()).
		Int("cached", res.Cached).
		Int("skipped", res.Skipped).
		Int("failed", res.Failed).
		Msg("look-ahead finished")

	s.mu.Lock()
	s.state = Idle
	s.last = &res
	s.mu.Unlock()
	return res
}
