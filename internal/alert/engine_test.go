package alert

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nixie-Tech-LLC/muezzin/internal/metrics"
	"github.com/Nixie-Tech-LLC/muezzin/internal/model"
)

type fakeSchedules map[model.Date]*model.ScheduleRecord

func (f fakeSchedules) Local(d model.Date) (*model.ScheduleRecord, bool) {
	rec, ok := f[d]
	return rec, ok
}

type recordingSink struct {
	levels  []bool
	notices []Notice
}

func (s *recordingSink) Set(on bool) error {
	s.levels = append(s.levels, on)
	return nil
}

func (s *recordingSink) Notify(n Notice) error {
	s.notices = append(s.notices, n)
	return nil
}

func (s *recordingSink) count(kind Mode) int {
	n := 0
	for _, x := range s.notices {
		if x.Kind == kind {
			n++
		}
	}
	return n
}

var wib = time.FixedZone("WIB", 7*3600)

func record(t model.Timings) *model.ScheduleRecord {
	return &model.ScheduleRecord{
		Code:   200,
		Status: "OK",
		Data: model.ScheduleData{
			Timings: t,
			Date:    model.DateInfo{Readable: "01 Jan 2025", Timestamp: 1735689600},
			Meta:    model.Meta{Timezone: "Asia/Jakarta"},
		},
	}
}

var jan1 = model.Date{Year: 2025, Month: time.January, Day: 1}

func dhuhrAtNoon() fakeSchedules {
	return fakeSchedules{
		jan1: record(model.Timings{Fajr: "04:12", Dhuhr: "12:00", Asr: "15:03", Maghrib: "17:52", Isha: "19:05"}),
	}
}

// harness steps wall and monotonic time together.
type harness struct {
	e    *Engine
	sink *recordingSink
	wall time.Time
	mono time.Time
}

func newHarness(s Schedules, start time.Time) *harness {
	h := &harness{sink: &recordingSink{}, wall: start, mono: time.Unix(1000, 0)}
	h.e = NewEngine(s, h.sink, Config{WarningLeadMinutes: 10})
	h.e.now = func() time.Time { return h.mono }
	return h
}

func (h *harness) step(d time.Duration) {
	h.wall = h.wall.Add(d)
	h.mono = h.mono.Add(d)
	h.e.Poll(model.NewClockReading(h.wall, model.ClockSourceRTC))
}

func TestDhuhrWarningAndAlertFireExactlyOnce(t *testing.T) {
	h := newHarness(dhuhrAtNoon(), time.Date(2025, time.January, 1, 11, 45, 0, 0, wib))

	var warnAt, prayerAt time.Time
	for h.wall.Before(time.Date(2025, time.January, 1, 12, 5, 0, 0, wib)) {
		before := len(h.sink.notices)
		h.step(100 * time.Millisecond)
		if len(h.sink.notices) > before {
			switch h.sink.notices[before].Kind {
			case WarningAlert:
				warnAt = h.wall
			case PrayerTimeAlert:
				prayerAt = h.wall
			}
		}
	}

	assert.Equal(t, 1, h.sink.count(WarningAlert))
	assert.Equal(t, 1, h.sink.count(PrayerTimeAlert))
	assert.Equal(t, 11, warnAt.Hour())
	assert.Equal(t, 50, warnAt.Minute())
	assert.Equal(t, 12, prayerAt.Hour())
	assert.Equal(t, 0, prayerAt.Minute())

	w := h.sink.notices[0]
	assert.Equal(t, "Dhuhr", w.Prayer)
	assert.Equal(t, 10, w.MinutesLeft)
	assert.Equal(t, "01-01-2025", w.Date)

	assert.Equal(t, Off, h.e.Mode())
	assert.False(t, h.sink.levels[len(h.sink.levels)-1], "output ends low")
}

func TestEvaluatedEverySecondThroughTheMinute(t *testing.T) {
	h := newHarness(dhuhrAtNoon(), time.Date(2025, time.January, 1, 11, 59, 59, 0, wib))
	for i := 0; i < 61; i++ {
		h.step(time.Second)
	}
	assert.Equal(t, 1, h.sink.count(PrayerTimeAlert))
}

func TestPrayerPatternTiming(t *testing.T) {
	h := newHarness(dhuhrAtNoon(), time.Date(2025, time.January, 1, 11, 59, 59, 900_000_000, wib))
	h.step(100 * time.Millisecond)
	require.Equal(t, PrayerTimeAlert, h.e.Mode())

	// first half-period on
	assert.Equal(t, []bool{true}, h.sink.levels)
	h.step(500 * time.Millisecond)
	assert.Equal(t, []bool{true, false}, h.sink.levels)
	h.step(500 * time.Millisecond)
	assert.Equal(t, []bool{true, false, true}, h.sink.levels)

	h.step(8*time.Second + 900*time.Millisecond)
	assert.Equal(t, PrayerTimeAlert, h.e.Mode())
	h.step(100 * time.Millisecond)
	assert.Equal(t, Off, h.e.Mode())
	assert.False(t, h.sink.levels[len(h.sink.levels)-1])
}

func TestWarningHoldsForOneSecond(t *testing.T) {
	h := newHarness(dhuhrAtNoon(), time.Date(2025, time.January, 1, 11, 49, 59, 900_000_000, wib))
	h.step(100 * time.Millisecond)
	require.Equal(t, WarningAlert, h.e.Mode())
	assert.Equal(t, []bool{true}, h.sink.levels)

	h.step(900 * time.Millisecond)
	assert.Equal(t, WarningAlert, h.e.Mode())
	assert.Equal(t, []bool{true}, h.sink.levels)

	h.step(100 * time.Millisecond)
	assert.Equal(t, Off, h.e.Mode())
	assert.Equal(t, []bool{true, false}, h.sink.levels)
}

func TestInvalidClockSkipsEvaluation(t *testing.T) {
	s := fakeSchedules{
		{Year: 1999, Month: time.January, Day: 1}: record(model.Timings{Fajr: "04:12", Dhuhr: "12:00", Asr: "15:03", Maghrib: "17:52", Isha: "19:05"}),
	}
	h := newHarness(s, time.Date(1999, time.January, 1, 11, 49, 0, 0, wib))
	for i := 0; i < 15*60; i++ {
		h.step(time.Second)
	}
	assert.Empty(t, h.sink.notices)
	assert.Empty(t, h.sink.levels)
}

func TestMissingScheduleMeansNoEvaluation(t *testing.T) {
	s := fakeSchedules{
		jan1: record(model.Timings{Fajr: "04:12", Dhuhr: "12:00", Asr: "15:03", Maghrib: "17:52"}),
	}
	h := newHarness(s, time.Date(2025, time.January, 1, 11, 59, 58, 0, wib))
	for i := 0; i < 4; i++ {
		h.step(time.Second)
	}
	assert.Empty(t, h.sink.notices)

	h2 := newHarness(fakeSchedules{}, time.Date(2025, time.January, 1, 11, 59, 58, 0, wib))
	for i := 0; i < 4; i++ {
		h2.step(time.Second)
	}
	assert.Empty(t, h2.sink.notices)
}

func TestDedupResetsOnNewDay(t *testing.T) {
	timings := model.Timings{Fajr: "04:12", Dhuhr: "12:00", Asr: "15:03", Maghrib: "17:52", Isha: "19:05"}
	jan2 := jan1.AddDays(1)
	s := fakeSchedules{jan1: record(timings), jan2: record(timings)}

	h := newHarness(s, time.Date(2025, time.January, 1, 11, 59, 59, 0, wib))
	h.step(time.Second)
	assert.Equal(t, 1, h.sink.count(PrayerTimeAlert))

	h.step(24 * time.Hour)
	assert.Equal(t, 2, h.sink.count(PrayerTimeAlert))
	assert.Equal(t, "02-01-2025", h.sink.notices[1].Date)
}

func TestTriggerWhileActiveIsDropped(t *testing.T) {
	// Asr warning lands while the Dhuhr alert is still running
	s := fakeSchedules{
		jan1: record(model.Timings{Fajr: "04:12", Dhuhr: "12:00", Asr: "12:10", Maghrib: "17:52", Isha: "19:05"}),
	}
	h := newHarness(s, time.Date(2025, time.January, 1, 11, 59, 59, 0, wib))
	for i := 0; i < 70; i++ {
		h.step(time.Second)
	}
	assert.Equal(t, 1, h.sink.count(PrayerTimeAlert))
	assert.Equal(t, 0, h.sink.count(WarningAlert))
	assert.Equal(t, Off, h.e.Mode())
}

func TestTestPattern(t *testing.T) {
	h := newHarness(fakeSchedules{}, time.Date(2025, time.January, 1, 8, 0, 0, 0, wib))
	before := testutil.ToFloat64(metrics.AlertsFired.WithLabelValues(string(Custom)))

	require.NoError(t, h.e.TestPattern(Custom))
	assert.Equal(t, Custom, h.e.Mode())
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.AlertsFired.WithLabelValues(string(Custom))))

	err := h.e.TestPattern(WarningAlert)
	assert.ErrorIs(t, err, model.ErrAlertActive)

	// 0.1s on / 0.1s off
	h.step(100 * time.Millisecond)
	h.step(100 * time.Millisecond)
	assert.Equal(t, []bool{true, false, true}, h.sink.levels)

	for i := 0; i < 48; i++ {
		h.step(100 * time.Millisecond)
	}
	assert.Equal(t, Off, h.e.Mode())
	assert.False(t, h.sink.levels[len(h.sink.levels)-1])

	assert.Error(t, h.e.TestPattern(Off))
}

func TestPatternRunsWithoutValidClock(t *testing.T) {
	h := newHarness(fakeSchedules{}, time.Date(1999, time.January, 1, 8, 0, 0, 0, wib))
	require.NoError(t, h.e.TestPattern(WarningAlert))
	h.step(time.Second)
	assert.Equal(t, Off, h.e.Mode())
	assert.Equal(t, []bool{true, false}, h.sink.levels)
}

func TestSilence(t *testing.T) {
	h := newHarness(fakeSchedules{}, time.Date(2025, time.January, 1, 8, 0, 0, 0, wib))
	require.NoError(t, h.e.TestPattern(PrayerTimeAlert))
	require.NotNil(t, h.e.Active())
	h.e.Silence()
	assert.Equal(t, Off, h.e.Mode())
	assert.Nil(t, h.e.Active())
	assert.Equal(t, []bool{true, false}, h.sink.levels)
}

// flakySink fails its first n writes.
type flakySink struct {
	recordingSink
	fail int
}

func (s *flakySink) Set(on bool) error {
	s.levels = append(s.levels, on)
	if s.fail > 0 {
		s.fail--
		return errors.New("gpio busy")
	}
	return nil
}

func TestOutputDrivenLowAfterFailedWrite(t *testing.T) {
	sink := &flakySink{fail: 1}
	e := NewEngine(fakeSchedules{}, sink, Config{})
	mono := time.Unix(1000, 0)
	e.now = func() time.Time { return mono }

	// the first high write fails; the line may still have latched
	require.NoError(t, e.TestPattern(PrayerTimeAlert))
	e.Silence()
	assert.Equal(t, Off, e.Mode())
	assert.Equal(t, []bool{true, false}, sink.levels)

	// normal writes stay edge-only
	require.NoError(t, e.TestPattern(WarningAlert))
	mono = mono.Add(time.Second)
	e.Poll(model.ClockReading{})
	assert.Equal(t, []bool{true, false, true, false}, sink.levels)
}

func TestPatternLevel(t *testing.T) {
	on, running := PrayerPattern.Level(0)
	assert.True(t, on)
	assert.True(t, running)
	on, _ = PrayerPattern.Level(600 * time.Millisecond)
	assert.False(t, on)
	_, running = PrayerPattern.Level(10 * time.Second)
	assert.False(t, running)

	on, running = WarningPattern.Level(999 * time.Millisecond)
	assert.True(t, on)
	assert.True(t, running)
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"prayer": PrayerTimeAlert, "Warning": WarningAlert, " custom ": Custom, "alarm": Custom} {
		got, err := ParseMode(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseMode("siren")
	assert.Error(t, err)
}
