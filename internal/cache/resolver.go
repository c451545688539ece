// Package cache decides where a day's schedule comes from: the local store,
// one remote fetch, or the nearest stale record.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/muezzin/internal/aladhan"
	"github.com/Nixie-Tech-LLC/muezzin/internal/metrics"
	"github.com/Nixie-Tech-LLC/muezzin/internal/model"
	"github.com/Nixie-Tech-LLC/muezzin/internal/storage"
)

// memoLimit bounds records held in memory after a failed store write.
const memoLimit = 16

type Connectivity interface {
	Connected() bool
}

// Mirror receives a copy of every record fetched from the remote. Failures
// are logged and otherwise ignored.
type Mirror interface {
	Mirror(ctx context.Context, key model.Key, rec *model.ScheduleRecord) error
}

type Options struct {
	Location string
	Store    storage.Store
	Fetcher  aladhan.Fetcher
	Link     Connectivity
	// Mirror is optional.
	Mirror Mirror
	// OnRemote is called with each freshly fetched record, after it has been
	// persisted.
	OnRemote func(rec *model.ScheduleRecord)
}

type Resolver struct {
	location string
	store    storage.Store
	fetcher  aladhan.Fetcher
	link     Connectivity
	mirror   Mirror
	onRemote func(rec *model.ScheduleRecord)

	mu   sync.Mutex
	memo map[model.Date]*model.ScheduleRecord
}

func New(opts Options) (*Resolver, error) {
	if err := storage.ValidateLocation(opts.Location); err != nil {
		return nil, err
	}
	if opts.Store == nil || opts.Fetcher == nil || opts.Link == nil {
		return nil, errors.New("cache: store, fetcher and link are required")
	}
	return &Resolver{
		location: opts.Location,
		store:    opts.Store,
		fetcher:  opts.Fetcher,
		link:     opts.Link,
		mirror:   opts.Mirror,
		onRemote: opts.OnRemote,
		memo:     make(map[model.Date]*model.ScheduleRecord),
	}, nil
}

func (r *Resolver) Location() string {
	return r.location
}

func (r *Resolver) key(d model.Date) model.Key {
	return model.Key{Location: r.location, Date: d}
}

// Resolve returns the record for date and where it came from. Local data
// always wins; the remote is asked once only when the link is up; the stale
// fallback covers both an offline link and a failed fetch.
func (r *Resolver) Resolve(ctx context.Context, date model.Date) (*model.ScheduleRecord, model.Origin, error) {
	if rec, ok := r.Local(date); ok {
		metrics.Resolutions.WithLabelValues(string(model.OriginLocalStore)).Inc()
		return rec, model.OriginLocalStore, nil
	}

	if r.link.Connected() {
		rec, err := r.Refresh(ctx, date)
		if err == nil {
			metrics.Resolutions.WithLabelValues(string(model.OriginRemote)).Inc()
			return rec, model.OriginRemote, nil
		}
		log.Warn().Err(err).Str("date", date.String()).Msg("remote fetch failed, trying stale fallback")
	} else {
		log.Debug().Str("date", date.String()).Msg("offline, trying stale fallback")
	}

	if rec, from, ok := r.stale(date); ok {
		metrics.Resolutions.WithLabelValues(string(model.OriginStaleFallback)).Inc()
		log.Info().Str("date", date.String()).Str("from", from.String()).Msg("using stale schedule")
		return rec, model.OriginStaleFallback, nil
	}

	metrics.Resolutions.WithLabelValues("none").Inc()
	return nil, model.OriginNone, fmt.Errorf("%w: %s %s", model.ErrNoDataAvailable, r.location, date)
}

// Local looks only at the store and the in-memory fallback. It never touches
// the network. Records missing a field count as absent.
func (r *Resolver) Local(date model.Date) (*model.ScheduleRecord, bool) {
	if rec, ok := r.stored(date); ok {
		return rec, true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.memo[date]
	return rec, ok
}

// Has reports whether a complete record for date is persisted. Records held
// only in memory do not count, so a later pass fetches them again.
func (r *Resolver) Has(date model.Date) bool {
	_, ok := r.stored(date)
	return ok
}

func (r *Resolver) stored(date model.Date) (*model.ScheduleRecord, bool) {
	rec, err := r.store.Get(r.key(date))
	switch {
	case err == nil:
		if verr := rec.Validate(); verr != nil {
			log.Warn().Err(verr).Str("date", date.String()).Msg("stored schedule incomplete")
			return nil, false
		}
		return rec, true
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, model.ErrMalformedSchedule):
	default:
		log.Error().Err(err).Str("date", date.String()).Msg("store read failed")
	}
	return nil, false
}

// Refresh performs one remote fetch for date, reduces the document and
// persists it. A store write failure keeps the record in memory so the
// current run can still use it.
func (r *Resolver) Refresh(ctx context.Context, date model.Date) (*model.ScheduleRecord, error) {
	raw, err := r.fetcher.Fetch(ctx, r.location, date)
	if err != nil {
		return nil, err
	}
	rec, err := aladhan.FilterToReducedSchema(raw)
	if err != nil {
		log.Warn().Err(err).Str("date", date.String()).Msg("discarding malformed schedule")
		return nil, err
	}

	k := r.key(date)
	if err := r.store.Put(k, rec); err != nil {
		log.Error().Err(err).Str("key", k.String()).Msg("persist failed, keeping record in memory")
		r.remember(date, rec)
	} else {
		r.forget(date)
	}

	if r.mirror != nil {
		if err := r.mirror.Mirror(ctx, k, rec); err != nil {
			log.Warn().Err(err).Str("key", k.String()).Msg("mirror write failed")
		}
	}
	if r.onRemote != nil {
		r.onRemote(rec)
	}
	return rec, nil
}

// stale picks the latest cached day before date, or failing that the
// earliest one after it.
func (r *Resolver) stale(date model.Date) (*model.ScheduleRecord, model.Date, bool) {
	dates, err := r.store.Dates(r.location)
	if err != nil {
		log.Error().Err(err).Msg("listing cached dates failed")
	}
	r.mu.Lock()
	for d := range r.memo {
		dates = append(dates, d)
	}
	r.mu.Unlock()
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	var before, after []model.Date
	for _, d := range dates {
		switch {
		case d.Before(date):
			before = append(before, d)
		case date.Before(d):
			after = append(after, d)
		}
	}
	// nearest first
	candidates := make([]model.Date, 0, len(dates))
	for i := len(before) - 1; i >= 0; i-- {
		candidates = append(candidates, before[i])
	}
	candidates = append(candidates, after...)

	for _, d := range candidates {
		if rec, ok := r.Local(d); ok {
			return rec, d, true
		}
	}
	return nil, model.Date{}, false
}

func (r *Resolver) remember(date model.Date, rec *model.ScheduleRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.memo[date] = rec
	for len(r.memo) > memoLimit {
		var oldest model.Date
		first := true
		for d := range r.memo {
			if first || d.Before(oldest) {
				oldest, first = d, false
			}
		}
		delete(r.memo, oldest)
	}
}

func (r *Resolver) forget(date model.Date) {
	r.mu.Lock()
	delete(r.memo, date)
	r.mu.Unlock()
}
