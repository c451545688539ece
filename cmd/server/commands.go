package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/muezzin/internal/config"
	"github.com/Nixie-Tech-LLC/muezzin/internal/http/middleware"
	"github.com/Nixie-Tech-LLC/muezzin/internal/model"
)

const shutdownTimeout = 5 * time.Second

// App is handed to every subcommand.
type App struct {
	Config *config.Config
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type ServeCmd struct{}

func (ServeCmd) Run(app *App) error {
	cfg := app.Config
	if err := cfg.RequireServer(); err != nil {
		return err
	}
	pinHash, err := middleware.HashPIN(cfg.CommandPIN)
	if err != nil {
		return fmt.Errorf("hash command pin: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := InitDevice(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer rt.Close()

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	RegisterRoutes(r, cfg, rt.Device, pinHash)

	srv := &http.Server{
		Addr:              cfg.ServerAddress,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		if err := rt.Device.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("device loop stopped")
		}
	}()

	srvErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.ServerAddress).Str("city", cfg.City).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err = <-srvErr:
		log.Error().Err(err).Msg("server error")
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		log.Warn().Err(serr).Msg("server shutdown")
	}
	<-loopDone
	return err
}

type FetchCmd struct {
	Date  string `arg:"" optional:"" help:"Date as DD-MM-YYYY; defaults to today."`
	Days  int    `help:"Window size for --lookahead; -1 uses LOOKAHEAD_DAYS." default:"-1"`
	Ahead bool   `name:"lookahead" help:"Cache today..today+days instead."`
}

func (f FetchCmd) Run(app *App) error {
	ctx := context.Background()
	rt, err := InitDevice(ctx, app.Config, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	if rt.Link.Connected() {
		if err := rt.Device.EnsureClock(ctx); err != nil {
			log.Warn().Err(err).Msg("no network time")
		}
	}

	switch {
	case f.Ahead:
		days := f.Days
		if days < 0 {
			days = app.Config.LookaheadDays
		}
		res, err := rt.Device.FetchLookahead(ctx, days)
		if err != nil {
			return err
		}
		return printJSON(res)
	case f.Date != "":
		date, err := model.ParseDate(f.Date)
		if err != nil {
			return err
		}
		rec, origin, err := rt.Device.Schedule(ctx, date)
		if err != nil {
			return err
		}
		return printJSON(map[string]any{"date": date, "origin": origin, "record": rec})
	}

	res, err := rt.Device.FetchToday(ctx)
	if err != nil {
		return err
	}
	return printJSON(res)
}

type SyncCmd struct {
	Offset *int   `help:"UTC offset in hours to apply with the sync."`
	Label  string `help:"Timezone label, e.g. Asia/Makassar."`
}

func (s SyncCmd) Run(app *App) error {
	ctx := context.Background()
	rt, err := InitDevice(ctx, app.Config, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.Device.ForceSync(ctx, s.Offset, s.Label); err != nil {
		return err
	}
	return printJSON(rt.Device.Status())
}

type StatusCmd struct{}

func (StatusCmd) Run(app *App) error {
	rt, err := InitDevice(context.Background(), app.Config, false)
	if err != nil {
		return err
	}
	defer rt.Close()
	return printJSON(rt.Device.Status())
}
