package lookahead

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nixie-Tech-LLC/muezzin/internal/link"
	"github.com/Nixie-Tech-LLC/muezzin/internal/model"
)

type fakeCache struct {
	have     map[model.Date]bool
	requests []model.Date
	fail     map[model.Date]bool
}

func newFakeCache(have ...model.Date) *fakeCache {
	c := &fakeCache{have: map[model.Date]bool{}, fail: map[model.Date]bool{}}
	for _, d := range have {
		c.have[d] = true
	}
	return c
}

func (c *fakeCache) Has(d model.Date) bool { return c.have[d] }

func (c *fakeCache) Refresh(_ context.Context, d model.Date) (*model.ScheduleRecord, error) {
	c.requests = append(c.requests, d)
	if c.fail[d] {
		return nil, model.ErrRemoteUnavailable
	}
	c.have[d] = true
	return &model.ScheduleRecord{}, nil
}

var jakarta = time.FixedZone("WIB", 7*3600)

func at(y int, m time.Month, d, hh, mm, ss int) model.ClockReading {
	return model.NewClockReading(time.Date(y, m, d, hh, mm, ss, 0, jakarta), model.ClockSourceRTC)
}

func newScheduler(t *testing.T, c Cache, up bool) *Scheduler {
	s, err := New(c, link.NewStatic(up), Config{Days: 7, WindowMinutes: 5})
	require.NoError(t, err)
	return s
}

func TestWindowExpr(t *testing.T) {
	assert.Equal(t, "* 0-4 0 * * *", WindowExpr(5))
	assert.Equal(t, "* 0 0 * * *", WindowExpr(1))
	assert.Equal(t, "* 0-29 0 * * *", WindowExpr(30))
}

func TestInWindow(t *testing.T) {
	s := newScheduler(t, newFakeCache(), true)
	assert.True(t, s.InWindow(at(2025, 1, 1, 0, 0, 0).Time))
	assert.True(t, s.InWindow(at(2025, 1, 1, 0, 4, 59).Time))
	assert.False(t, s.InWindow(at(2025, 1, 1, 0, 5, 0).Time))
	assert.False(t, s.InWindow(at(2025, 1, 1, 23, 59, 0).Time))
	assert.False(t, s.InWindow(at(2025, 1, 1, 12, 2, 0).Time))
	assert.True(t, s.InWindow(at(2025, 1, 1, 0, 2, 30).Time))
	assert.True(t, s.InWindow(time.Date(2025, 1, 1, 0, 3, 17, 400e6, jakarta)))
}

func TestPollAtLoopCadenceAcrossMidnight(t *testing.T) {
	c := newFakeCache()
	s := newScheduler(t, c, true)

	start := time.Date(2024, 12, 31, 23, 59, 50, 250e6, jakarta)
	end := time.Date(2025, 1, 1, 0, 5, 50, 0, jakarta)
	runs := 0
	for now := start; now.Before(end); now = now.Add(100 * time.Millisecond) {
		if s.Poll(context.Background(), model.NewClockReading(now, model.ClockSourceRTC)) {
			runs++
		}
	}
	assert.Equal(t, 1, runs)
	assert.Len(t, c.requests, 8)
	assert.Equal(t, model.Date{Year: 2025, Month: time.January, Day: 1}, c.requests[0])
}

func TestRunSkipsCachedDates(t *testing.T) {
	today := model.Date{Year: 2025, Month: time.January, Day: 1}
	c := newFakeCache(today.AddDays(1), today.AddDays(2), today.AddDays(3))
	s := newScheduler(t, c, true)

	res := s.Run(context.Background(), today, 7)
	assert.Len(t, c.requests, 5)
	assert.Equal(t, 5, res.Cached)
	assert.Equal(t, 3, res.Skipped)
	assert.Zero(t, res.Failed)
	assert.Equal(t, []model.Date{today, today.AddDays(4), today.AddDays(5), today.AddDays(6), today.AddDays(7)}, c.requests)
	assert.Equal(t, Idle, s.State())
	require.NotNil(t, s.Last())
	assert.Equal(t, 5, s.Last().Cached)
}

func TestRunToleratesFailures(t *testing.T) {
	today := model.Date{Year: 2025, Month: time.January, Day: 30}
	c := newFakeCache()
	c.fail[today.AddDays(2)] = true
	s := newScheduler(t, c, true)

	res := s.Run(context.Background(), today, 3)
	assert.Len(t, c.requests, 4)
	assert.Equal(t, 3, res.Cached)
	assert.Equal(t, 1, res.Failed)
	assert.True(t, c.have[model.Date{Year: 2025, Month: time.February, Day: 2}])
}

func TestRunSpacesRequests(t *testing.T) {
	c := newFakeCache()
	s, err := New(c, link.NewStatic(true), Config{Days: 2, Delay: 20 * time.Millisecond})
	require.NoError(t, err)

	start := time.Now()
	s.Run(context.Background(), model.Date{Year: 2025, Month: time.January, Day: 1}, 2)
	assert.GreaterOrEqual(t, time.Since(start), 35*time.Millisecond)
	assert.Len(t, c.requests, 3)
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	c := newFakeCache()
	s, err := New(c, link.NewStatic(true), Config{Days: 7, Delay: time.Hour})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := s.Run(ctx, model.Date{Year: 2025, Month: time.January, Day: 1}, 7)
	assert.Empty(t, c.requests)
	assert.Equal(t, 8, res.Failed)
}

func TestPollTwiceInWindowIsIdempotent(t *testing.T) {
	c := newFakeCache()
	s := newScheduler(t, c, true)

	assert.True(t, s.Poll(context.Background(), at(2025, 1, 1, 0, 1, 0)))
	assert.Len(t, c.requests, 8)

	// later in the same window: done flag holds
	assert.False(t, s.Poll(context.Background(), at(2025, 1, 1, 0, 3, 0)))
	assert.Len(t, c.requests, 8)

	// a fresh scheduler (restart mid-window) re-enters but finds everything cached
	s2 := newScheduler(t, c, true)
	assert.True(t, s2.Poll(context.Background(), at(2025, 1, 1, 0, 4, 0)))
	assert.Len(t, c.requests, 8)
	assert.Equal(t, 8, s2.Last().Skipped)
}

func TestPollClearsDoneOutsideWindow(t *testing.T) {
	c := newFakeCache()
	s := newScheduler(t, c, true)

	assert.True(t, s.Poll(context.Background(), at(2025, 1, 1, 0, 0, 0)))
	assert.False(t, s.Poll(context.Background(), at(2025, 1, 1, 12, 0, 0)))
	assert.True(t, s.Poll(context.Background(), at(2025, 1, 2, 0, 0, 30)))
	// only the new tail day was missing
	assert.Len(t, c.requests, 9)
	assert.Equal(t, model.Date{Year: 2025, Month: time.January, Day: 9}, c.requests[8])
}

func TestPollThrottledToCheckInterval(t *testing.T) {
	c := newFakeCache()
	s := newScheduler(t, c, true)

	assert.False(t, s.Poll(context.Background(), at(2024, 12, 31, 23, 59, 50)))
	// 20s later it is midnight, but the last check was under 30s ago
	assert.False(t, s.Poll(context.Background(), at(2025, 1, 1, 0, 0, 10)))
	assert.True(t, s.Poll(context.Background(), at(2025, 1, 1, 0, 0, 20)))
}

func TestPollNeverCachesWithInvalidClock(t *testing.T) {
	c := newFakeCache()
	s := newScheduler(t, c, true)

	r := at(1999, 1, 1, 0, 1, 0)
	require.False(t, r.Valid)
	for i := 0; i < 5; i++ {
		assert.False(t, s.Poll(context.Background(), r))
		r.Time = r.Time.Add(time.Minute)
	}
	assert.Empty(t, c.requests)
	assert.Nil(t, s.Last())
}

func TestPollRequiresLink(t *testing.T) {
	c := newFakeCache()
	l := link.NewStatic(false)
	s, err := New(c, l, Config{Days: -1})
	require.NoError(t, err)

	assert.False(t, s.Poll(context.Background(), at(2025, 1, 1, 0, 0, 0)))
	l.Set(true)
	assert.True(t, s.Poll(context.Background(), at(2025, 1, 1, 0, 1, 0)))
	assert.Len(t, c.requests, DefaultDays+1)
}

func TestCacheErrorsAreNotFatal(t *testing.T) {
	c := newFakeCache()
	today := model.Date{Year: 2025, Month: time.January, Day: 1}
	for i := 0; i <= 7; i++ {
		c.fail[today.AddDays(i)] = true
	}
	s := newScheduler(t, c, true)
	res := s.Run(context.Background(), today, 7)
	assert.Equal(t, 8, res.Failed)
	assert.Zero(t, res.Cached)
	assert.Equal(t, Idle, s.State())
}

func TestZeroDaysCachesTodayOnly(t *testing.T) {
	c := newFakeCache()
	s, err := New(c, link.NewStatic(true), Config{Days: 0, WindowMinutes: 5})
	require.NoError(t, err)
	assert.Equal(t, 0, s.Days())

	assert.True(t, s.Poll(context.Background(), at(2025, 1, 1, 0, 0, 30)))
	assert.Equal(t, []model.Date{{Year: 2025, Month: time.January, Day: 1}}, c.requests)
	require.NotNil(t, s.Last())
	assert.Equal(t, 1, s.Last().Cached)
}
