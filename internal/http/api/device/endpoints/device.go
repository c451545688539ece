package endpoints

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/muezzin/internal/alert"
	"github.com/Nixie-Tech-LLC/muezzin/internal/device"
	"github.com/Nixie-Tech-LLC/muezzin/internal/http/api"
	"github.com/Nixie-Tech-LLC/muezzin/internal/http/api/device/packets"
	"github.com/Nixie-Tech-LLC/muezzin/internal/lookahead"
	"github.com/Nixie-Tech-LLC/muezzin/internal/model"
)

// Device is the command surface served over HTTP.
type Device interface {
	FetchToday(ctx context.Context) (*device.TodayResult, error)
	FetchLookahead(ctx context.Context, days int) (*lookahead.Result, error)
	ForceSync(ctx context.Context, offsetHours *int, label string) error
	Schedule(ctx context.Context, date model.Date) (*model.ScheduleRecord, model.Origin, error)
	Status() device.Status
	TestAlertPattern(kind alert.Mode) error
	Silence()
}

type DeviceController struct {
	dev         Device
	defaultDays int
}

func newDeviceController(dev Device, defaultDays int) *DeviceController {
	return &DeviceController{dev: dev, defaultDays: defaultDays}
}

// DeviceModule mounts the authenticated /device endpoints.
func DeviceModule(dev Device, defaultDays int) api.Module {
	ctl := newDeviceController(dev, defaultDays)
	return api.ModuleFunc(func(c *api.Controller) {
		c.GET("/device/status", ctl.status)
		c.GET("/device/schedule/:date", ctl.schedule)

		c.POST("/device/fetch/today", ctl.fetchToday)
		c.POST("/device/fetch/lookahead", ctl.fetchLookahead)
		c.POST("/device/time/sync", ctl.syncTime)

		c.POST("/device/alerts/test", ctl.testAlert)
		c.POST("/device/alerts/stop", ctl.stopAlert)
	})
}

// HealthModule mounts the unauthenticated liveness probe.
func HealthModule() api.Module {
	return api.ModuleFunc(func(c *api.Controller) {
		c.PUBLIC_GET("/health", func(ctx *gin.Context) (any, *api.APIError) {
			return gin.H{"status": "ok"}, nil
		})
	})
}

// GET /api/device/status
func (d *DeviceController) status(ctx *gin.Context, operator string) (any, *api.APIError) {
	return d.dev.Status(), nil
}

// GET /api/device/schedule/:date  (DD-MM-YYYY or "today")
func (d *DeviceController) schedule(ctx *gin.Context, operator string) (any, *api.APIError) {
	raw := ctx.Param("date")
	if raw == "today" {
		res, err := d.dev.FetchToday(ctx.Request.Context())
		if err != nil {
			return nil, api.FromError(err)
		}
		return packets.NewScheduleResponse(res.Date, res.Origin, res.Record), nil
	}

	date, err := model.ParseDate(raw)
	if err != nil {
		return nil, api.BadRequest("date must be DD-MM-YYYY")
	}
	rec, origin, err := d.dev.Schedule(ctx.Request.Context(), date)
	if err != nil {
		return nil, api.FromError(err)
	}
	return packets.NewScheduleResponse(date, origin, rec), nil
}

// POST /api/device/fetch/today
func (d *DeviceController) fetchToday(ctx *gin.Context, operator string) (any, *api.APIError) {
	res, err := d.dev.FetchToday(ctx.Request.Context())
	if err != nil {
		log.Warn().Err(err).Str("operator", operator).Msg("fetch today failed")
		return nil, api.FromError(err)
	}
	return packets.NewScheduleResponse(res.Date, res.Origin, res.Record), nil
}

// POST /api/device/fetch/lookahead
func (d *DeviceController) fetchLookahead(ctx *gin.Context, operator string) (any, *api.APIError) {
	var request packets.LookaheadRequest
	if ctx.Request.ContentLength != 0 {
		if err := ctx.ShouldBindJSON(&request); err != nil {
			return nil, api.BadRequest(err.Error())
		}
	}
	days := d.defaultDays
	if request.Days != nil {
		days = *request.Days
	}
	if days < 0 || days > device.MaxLookaheadDays {
		return nil, api.BadRequest(fmt.Sprintf("days must be between 0 and %d", device.MaxLookaheadDays))
	}

	res, err := d.dev.FetchLookahead(ctx.Request.Context(), days)
	if err != nil {
		log.Warn().Err(err).Str("operator", operator).Int("days", days).Msg("look-ahead failed")
		return nil, api.FromError(err)
	}
	return res, nil
}

// POST /api/device/time/sync
func (d *DeviceController) syncTime(ctx *gin.Context, operator string) (any, *api.APIError) {
	var request packets.SyncRequest
	if ctx.Request.ContentLength != 0 {
		if err := ctx.ShouldBindJSON(&request); err != nil {
			return nil, api.BadRequest(err.Error())
		}
	}
	if request.OffsetHours != nil && (*request.OffsetHours < -12 || *request.OffsetHours > 14) {
		return nil, api.BadRequest("offset_hours must be between -12 and 14")
	}

	if err := d.dev.ForceSync(ctx.Request.Context(), request.OffsetHours, request.Label); err != nil {
		return nil, api.FromError(err)
	}
	log.Info().Str("operator", operator).Msg("clock resynced on request")

	st := d.dev.Status()
	out := packets.SyncResponse{
		Timezone:    st.Timezone.Label,
		OffsetHours: st.Timezone.OffsetHours,
		Abbr:        st.ZoneAbbr,
	}
	if st.Time != nil {
		out.Time = st.Time.In(st.Timezone.Location()).Format(time.RFC3339)
	}
	return out, nil
}

// POST /api/device/alerts/test
func (d *DeviceController) testAlert(ctx *gin.Context, operator string) (any, *api.APIError) {
	var request packets.AlertTestRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		return nil, api.BadRequest(err.Error())
	}
	kind, err := alert.ParseMode(request.Kind)
	if err != nil {
		return nil, api.BadRequest(err.Error())
	}
	if err := d.dev.TestAlertPattern(kind); err != nil {
		return nil, api.FromError(err)
	}
	return packets.AlertResponse{Mode: string(kind)}, nil
}

// POST /api/device/alerts/stop
func (d *DeviceController) stopAlert(ctx *gin.Context, operator string) (any, *api.APIError) {
	d.dev.Silence()
	return packets.AlertResponse{Mode: string(alert.Off)}, nil
}
