// Package alert drives the buzzer from today's schedule: a warning a fixed
// number of minutes before each prayer and a longer pattern on time, each at
// most once per prayer per day.
package alert

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/muezzin/internal/metrics"
	"github.com/Nixie-Tech-LLC/muezzin/internal/model"
)

const DefaultWarningLead = 10

// Schedules gives the engine local-only access to the day's record.
type Schedules interface {
	Local(date model.Date) (*model.ScheduleRecord, bool)
}

type Config struct {
	WarningLeadMinutes int
	// zero patterns take the defaults
	Prayer  Pattern
	Warning Pattern
	Custom  Pattern
}

type Engine struct {
	schedules Schedules
	sink      Sink
	lead      int
	patterns  map[Mode]Pattern

	// monotonic source for pattern timing
	now func() time.Time

	mu       sync.Mutex
	mode     Mode
	since    time.Time
	level    bool
	unsure   bool
	notice   *Notice
	day      model.Date
	fired    map[Mode]map[model.PrayerName]bool
	lastEval time.Time
}

func NewEngine(schedules Schedules, sink Sink, cfg Config) *Engine {
	if cfg.WarningLeadMinutes <= 0 {
		cfg.WarningLeadMinutes = DefaultWarningLead
	}
	if cfg.Prayer.Total == 0 {
		cfg.Prayer = PrayerPattern
	}
	if cfg.Warning.Total == 0 {
		cfg.Warning = WarningPattern
	}
	if cfg.Custom.Total == 0 {
		cfg.Custom = CustomPattern
	}
	if sink == nil {
		sink = LogSink{}
	}
	return &Engine{
		schedules: schedules,
		sink:      sink,
		lead:      cfg.WarningLeadMinutes,
		patterns: map[Mode]Pattern{
			PrayerTimeAlert: cfg.Prayer,
			WarningAlert:    cfg.Warning,
			Custom:          cfg.Custom,
		},
		now:   time.Now,
		mode:  Off,
		fired: newFired(),
	}
}

func newFired() map[Mode]map[model.PrayerName]bool {
	return map[Mode]map[model.PrayerName]bool{
		PrayerTimeAlert: {},
		WarningAlert:    {},
	}
}

func (e *Engine) Mode() Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

// Active returns the notice of the running alert, or nil.
func (e *Engine) Active() *Notice {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.notice == nil {
		return nil
	}
	n := *e.notice
	return &n
}

func (e *Engine) WarningLead() int {
	return e.lead
}

// Poll advances the running pattern and, once per wall-clock second,
// evaluates today's schedule. An invalid reading suspends evaluation but
// not a pattern already running.
func (e *Engine) Poll(r model.ClockReading) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.tick()

	if !r.Valid {
		return
	}
	sec := r.Time.Truncate(time.Second)
	if sec.Equal(e.lastEval) {
		return
	}
	e.lastEval = sec
	e.evaluate(r)
}

// TestPattern starts kind's pattern immediately, bypassing the schedule.
func (e *Engine) TestPattern(kind Mode) error {
	if _, ok := e.patterns[kind]; !ok {
		return fmt.Errorf("no pattern for %q", kind)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.mode != Off {
		return fmt.Errorf("%w: %s", model.ErrAlertActive, e.mode)
	}
	e.start(kind, Notice{Kind: kind})
	e.tick()
	return nil
}

// Silence stops the running alert. The dedup state is kept.
func (e *Engine) Silence() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.mode != Off {
		log.Info().Str("mode", string(e.mode)).Msg("alert silenced")
		e.stop()
	}
}

func (e *Engine) evaluate(r model.ClockReading) {
	today := r.Today()
	if today != e.day {
		e.day = today
		e.fired = newFired()
	}

	rec, ok := e.schedules.Local(today)
	if !ok {
		return
	}
	prayers, err := rec.Prayers()
	if err != nil {
		return
	}

	cur := r.MinuteOfDay()
	for _, p := range prayers {
		switch p.MinuteOfDay() - cur {
		case 0:
			e.trigger(PrayerTimeAlert, p, 0)
		case e.lead:
			e.trigger(WarningAlert, p, e.lead)
		}
	}
}

func (e *Engine) trigger(kind Mode, p model.Prayer, minutesLeft int) {
	if e.fired[kind][p.Name] {
		return
	}
	e.fired[kind][p.Name] = true

	if e.mode != Off {
		log.Warn().
			Str("kind", string(kind)).
			Str("prayer", string(p.Name)).
			Str("active", string(e.mode)).
			Msg("alert dropped, another alert is active")
		return
	}
	e.start(kind, Notice{
		Kind:        kind,
		Prayer:      string(p.Name),
		Time:        p.Time,
		MinutesLeft: minutesLeft,
		Date:        e.day.String(),
	})
	e.tick()
}

func (e *Engine) start(kind Mode, n Notice) {
	e.mode = kind
	e.since = e.now()
	e.notice = &n
	metrics.AlertsFired.WithLabelValues(string(kind)).Inc()
	log.Info().Str("kind", string(kind)).Str("prayer", n.Prayer).Int("minutes_left", n.MinutesLeft).Msg("alert started")

	if nt, ok := e.sink.(Notifier); ok {
		if err := nt.Notify(n); err != nil {
			log.Error().Err(err).Msg("alert notice failed")
		}
	}
}

func (e *Engine) tick() {
	if e.mode == Off {
		return
	}
	on, running := e.patterns[e.mode].Level(e.now().Sub(e.since))
	if !running {
		e.stop()
		return
	}
	e.setLevel(on)
}

// stop drives the output low before leaving the alert state.
func (e *Engine) stop() {
	e.setLevel(false)
	e.mode = Off
	e.notice = nil
}

// setLevel writes the output only on a change, unless the previous write
// failed and the line state is unknown.
func (e *Engine) setLevel(on bool) {
	if on == e.level && !e.unsure {
		return
	}
	if err := e.sink.Set(on); err != nil {
		log.Error().Err(err).Bool("on", on).Msg("alert output write failed")
		e.unsure = true
		return
	}
	e.level, e.unsure = on, false
}
