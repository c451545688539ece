package main

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/muezzin/internal/aladhan"
	"github.com/Nixie-Tech-LLC/muezzin/internal/alert"
	"github.com/Nixie-Tech-LLC/muezzin/internal/cache"
	"github.com/Nixie-Tech-LLC/muezzin/internal/clock"
	"github.com/Nixie-Tech-LLC/muezzin/internal/config"
	"github.com/Nixie-Tech-LLC/muezzin/internal/device"
	"github.com/Nixie-Tech-LLC/muezzin/internal/link"
	"github.com/Nixie-Tech-LLC/muezzin/internal/lookahead"
	"github.com/Nixie-Tech-LLC/muezzin/internal/mqtt"
	"github.com/Nixie-Tech-LLC/muezzin/internal/redis"
	"github.com/Nixie-Tech-LLC/muezzin/internal/storage"
)

// rtcStateFile sits at the volume root, outside every location tree.
const rtcStateFile = "/.rtc"

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// Runtime is the assembled device plus whatever needs closing on exit.
type Runtime struct {
	Device  *device.Controller
	Link    link.Link
	closers []io.Closer
}

func (rt *Runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i].Close(); err != nil {
			log.Warn().Err(err).Msg("shutdown")
		}
	}
}

// InitDevice wires the store volume, clock sources, link probe, upstream
// client and the optional MQTT sink and Redis mirror into one controller.
// withOutputs is false for one-shot CLI commands.
func InitDevice(ctx context.Context, cfg *config.Config, withOutputs bool) (*Runtime, error) {
	store, err := storage.NewLocalStore(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	log.Info().Str("dir", cfg.DataDir).Msg("using local schedule store")

	rtc, err := clock.NewFileRTC(store.Fs(), rtcStateFile)
	if err != nil {
		return nil, err
	}

	probe := link.NewProbe(cfg.LinkProbeAddr, cfg.LinkProbeTimeout)
	rt := &Runtime{Link: probe}

	arbiter := clock.NewArbiter(clock.Options{
		RTC:          rtc,
		Network:      &clock.NTPSource{Servers: cfg.NTPServers, Timeout: cfg.LinkProbeTimeout},
		Link:         probe,
		Zone:         clock.Zone{Label: cfg.Timezone, OffsetHours: cfg.TimezoneOffset},
		SyncAttempts: cfg.NTPSyncAttempts,
		RetryDelay:   cfg.NTPRetryDelay,
	})

	var sinks alert.Multi
	sinks = append(sinks, alert.LogSink{})
	var mirror cache.Mirror
	if withOutputs {
		if cfg.MQTTBrokerURL != "" {
			sink, err := mqtt.Connect(mqtt.Config{
				BrokerURL: cfg.MQTTBrokerURL,
				Topic:     cfg.MQTTTopic,
				DeviceID:  cfg.DeviceID,
			})
			if err != nil {
				log.Warn().Err(err).Msg("mqtt sink disabled")
			} else {
				log.Info().Str("topic", sink.Topic()).Msg("publishing alert output over mqtt")
				sinks = append(sinks, sink)
				rt.closers = append(rt.closers, closerFunc(func() error { sink.Close(); return nil }))
			}
		}
		if cfg.RedisAddress != "" {
			m, err := redis.Dial(ctx, cfg.RedisAddress, cfg.RedisUsername, cfg.RedisPassword)
			if err != nil {
				log.Warn().Err(err).Msg("redis mirror disabled")
			} else {
				mirror = m
				rt.closers = append(rt.closers, m)
			}
		}
	}

	ctrl, err := device.New(device.Options{
		Location: cfg.City,
		Store:    store,
		Fetcher: aladhan.New(aladhan.Config{
			BaseURL: cfg.AladhanBaseURL,
			Country: cfg.Country,
			Method:  cfg.PrayerMethod,
			Timeout: cfg.RequestTimeout,
		}),
		Mirror: mirror,
		Link:   probe,
		Clock:  arbiter,
		Sink:   sinks,
		Lookahead: lookahead.Config{
			Days:          cfg.LookaheadDays,
			WindowMinutes: cfg.MidnightWindowMinutes,
			Delay:         cfg.InterRequestDelay,
		},
		Alerts:            alert.Config{WarningLeadMinutes: cfg.WarningLeadMinutes},
		ReconnectInterval: cfg.ReconnectInterval,
	})
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("device: %w", err)
	}
	rt.Device = ctrl
	return rt, nil
}
