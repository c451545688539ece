// Package aladhan talks to the Aladhan timingsByCity endpoint and reduces
// its responses to the schedule records the device stores.
package aladhan

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/muezzin/internal/metrics"
	"github.com/Nixie-Tech-LLC/muezzin/internal/model"
)

const (
	DefaultBaseURL = "http://api.aladhan.com/v1/timingsByCity"
	DefaultMethod  = 20 // Kemenag Indonesia
	DefaultTimeout = 10 * time.Second

	// responses are a few KiB; anything larger is not a timings document
	maxBodyBytes = 64 << 10
)

// RawDocument is an upstream response body, unfiltered.
type RawDocument []byte

// Fetcher performs one remote request for one date.
type Fetcher interface {
	Fetch(ctx context.Context, location string, date model.Date) (RawDocument, error)
}

type Config struct {
	BaseURL string
	Country string
	Method  int
	Timeout time.Duration
}

type Client struct {
	baseURL string
	country string
	method  int
	http    *http.Client
}

var _ Fetcher = (*Client)(nil)

func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Method == 0 {
		cfg.Method = DefaultMethod
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		country: cfg.Country,
		method:  cfg.Method,
		http:    &http.Client{Timeout: cfg.Timeout},
	}
}

// URL builds GET {base}/{DD-MM-YYYY}?city=&country=&method=.
func (c *Client) URL(location string, date model.Date) string {
	q := url.Values{}
	q.Set("city", location)
	q.Set("country", c.country)
	q.Set("method", strconv.Itoa(c.method))
	return fmt.Sprintf("%s/%s?%s", c.baseURL, date.String(), q.Encode())
}

// Fetch issues exactly one request, bounded by the client timeout.
func (c *Client) Fetch(ctx context.Context, location string, date model.Date) (RawDocument, error) {
	u := c.URL(location, date)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RemoteFetches.WithLabelValues("unavailable").Inc()
		log.Warn().Err(err).Str("url", u).Msg("schedule request failed")
		return nil, fmt.Errorf("%w: %v", model.ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.RemoteFetches.WithLabelValues("unavailable").Inc()
		log.Warn().Int("status", resp.StatusCode).Str("url", u).Msg("schedule request rejected")
		return nil, fmt.Errorf("%w: HTTP %d", model.ErrRemoteUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		metrics.RemoteFetches.WithLabelValues("unavailable").Inc()
		return nil, fmt.Errorf("%w: read body: %v", model.ErrRemoteUnavailable, err)
	}

	metrics.RemoteFetches.WithLabelValues("ok").Inc()
	log.Debug().Str("url", u).Int("bytes", len(body)).Msg("schedule fetched")
	return RawDocument(body), nil
}

// upstream mirrors only the parts of the response we read; everything
// else in the document is dropped on decode.
type upstream struct {
	Code   int    `json:"code"`
	Status string `json:"status"`
	Data   *struct {
		Timings map[string]string `json:"timings"`
		Date    struct {
			Readable  string          `json:"readable"`
			Timestamp model.Timestamp `json:"timestamp"`
		} `json:"date"`
		Meta struct {
			Timezone string `json:"timezone"`
		} `json:"meta"`
	} `json:"data"`
}

// FilterToReducedSchema keeps the five prayer times, the readable date, the
// timestamp and the timezone label. Incomplete input fails with
// model.ErrMalformedSchedule.
func FilterToReducedSchema(raw RawDocument) (*model.ScheduleRecord, error) {
	rec, err := filter(raw)
	if err != nil {
		metrics.RemoteFetches.WithLabelValues("malformed").Inc()
		return nil, err
	}
	return rec, nil
}

func filter(raw RawDocument) (*model.ScheduleRecord, error) {
	var doc upstream
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrMalformedSchedule, err)
	}
	if doc.Data == nil {
		return nil, fmt.Errorf("%w: missing data", model.ErrMalformedSchedule)
	}
	if doc.Code != 0 && doc.Code != http.StatusOK {
		return nil, fmt.Errorf("%w: upstream code %d", model.ErrMalformedSchedule, doc.Code)
	}

	times := make(map[model.PrayerName]string, len(model.PrayerOrder))
	for _, name := range model.PrayerOrder {
		raw, ok := doc.Data.Timings[string(name)]
		if !ok {
			return nil, fmt.Errorf("%w: missing %s", model.ErrMalformedSchedule, name)
		}
		h, m, err := model.ParseClockTime(raw)
		if err != nil {
			return nil, err
		}
		times[name] = fmt.Sprintf("%02d:%02d", h, m)
	}

	rec := &model.ScheduleRecord{
		Code:   doc.Code,
		Status: doc.Status,
		Data: model.ScheduleData{
			Timings: model.Timings{
				Fajr:    times[model.Fajr],
				Dhuhr:   times[model.Dhuhr],
				Asr:     times[model.Asr],
				Maghrib: times[model.Maghrib],
				Isha:    times[model.Isha],
			},
			Date: model.DateInfo{
				Readable:  doc.Data.Date.Readable,
				Timestamp: doc.Data.Date.Timestamp,
			},
			Meta: model.Meta{Timezone: doc.Data.Meta.Timezone},
		},
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}
