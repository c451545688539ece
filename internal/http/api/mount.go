package api

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/muezzin/internal/http/middleware"
)

// Module attaches one slice of the device command surface to a Controller.
type Module interface {
	Mount(c *Controller)
}

type ModuleFunc func(c *Controller)

func (f ModuleFunc) Mount(c *Controller) { f(c) }

// Controller is the router group a Module registers on. GET and POST hand
// the handler the operator named in the bearer token; the PUBLIC_ variants
// serve anyone on the local network.
type Controller struct {
	Group *gin.RouterGroup
}

func (c *Controller) GET(path string, h HandlerFuncWithAuth) {
	c.Group.GET(path, ResolveEndpointWithAuth(h))
}

func (c *Controller) POST(path string, h HandlerFuncWithAuth) {
	c.Group.POST(path, ResolveEndpointWithAuth(h))
}

func (c *Controller) PUBLIC_GET(path string, h HandlerFunc) {
	c.Group.GET(path, ResolveEndpoint(h))
}

func (c *Controller) PUBLIC_POST(path string, h HandlerFunc) {
	c.Group.POST(path, ResolveEndpoint(h))
}

type GroupConfig struct {
	Prefix string
	// RequireOperator puts the group behind an operator token signed with
	// JWTSecret.
	RequireOperator bool
	JWTSecret       string
	Middleware      []gin.HandlerFunc
}

// MountGroup registers modules under cfg.Prefix. An operator group without
// a secret is a wiring bug and stops the process.
func MountGroup(parent gin.IRouter, cfg GroupConfig, modules ...Module) {
	grp := parent.Group(cfg.Prefix, cfg.Middleware...)
	if cfg.RequireOperator {
		if cfg.JWTSecret == "" {
			log.Fatal().Str("prefix", cfg.Prefix).Msg("operator group mounted without a jwt secret")
		}
		grp.Use(middleware.JWTMiddleware(cfg.JWTSecret))
	}

	c := &Controller{Group: grp}
	for _, m := range modules {
		m.Mount(c)
	}
}
