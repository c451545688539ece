package main

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Nixie-Tech-LLC/muezzin/internal/config"
	"github.com/Nixie-Tech-LLC/muezzin/internal/http/api"
	authapi "github.com/Nixie-Tech-LLC/muezzin/internal/http/api/auth/endpoints"
	deviceapi "github.com/Nixie-Tech-LLC/muezzin/internal/http/api/device/endpoints"
	"github.com/Nixie-Tech-LLC/muezzin/internal/http/middleware"
)

// RegisterRoutes sets up all application routes
func RegisterRoutes(r *gin.Engine, cfg *config.Config, dev deviceapi.Device, pinHash string) {
	r.Use(middleware.RequestID())
	// CORS, for the local display panel
	r.Use(cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool { return true },
		AllowMethods: []string{
			"GET",
			"POST",
			"OPTIONS",
		},
		AllowHeaders: []string{
			"Origin",
			"Content-Type",
			"Authorization",
			"Accept",
			middleware.RequestIDHeader,
		},
		ExposeHeaders: []string{
			"Content-Length",
			middleware.RequestIDHeader,
		},
		AllowCredentials: false,
	}))

	api.MountGroup(r, api.GroupConfig{Prefix: "/api"},
		authapi.AuthPublicModule(cfg.JWTSecret, pinHash, middleware.TokenTTL),
		deviceapi.HealthModule(),
	)

	api.MountGroup(r, api.GroupConfig{
		Prefix:          "/api",
		RequireOperator: true,
		JWTSecret:       cfg.JWTSecret,
	},
		authapi.AuthSessionModule(),
		deviceapi.DeviceModule(dev, cfg.LookaheadDays),
	)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
