// Package http provides HTTP server infrastructure including module registration.
package http

import (
	"context"

	"loancrm_backend/internal/events"
	"loancrm_backend/platform/config"
	"loancrm_backend/platform/logger"

	"github.com/gin-gonic/gin"
)

// RouterConfig combines the config interfaces needed by the HTTP router.
type RouterConfig interface {
	config.HTTPConfig
}

// HealthChecker exposes minimal functionality for readiness checks.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// RouterContext is handed to each module during route registration.
type RouterContext struct {
	// Engine is the underlying gin engine, for modules that need raw access.
	Engine *gin.Engine
	// API is the /api/v1 route group.
	API *gin.RouterGroup
	// Root is the unprefixed route group, for webhook-style inbound routes.
	Root *gin.RouterGroup
}

// Module is an HTTP-facing domain module.
type Module interface {
	// Name returns the module name for logging.
	Name() string
	// RegisterRoutes registers the module's routes.
	RegisterRoutes(ctx *RouterContext)
}

// App holds the fully initialized application dependencies.
// This is populated by main.go (the composition root) and passed to the router.
type App struct {
	// Config holds the router configuration.
	Config RouterConfig
	// Logger is the structured logger.
	Logger *logger.Logger
	// Health is used for readiness/health checks (e.g., DB ping).
	Health HealthChecker
	// EventBus is the domain event bus for cross-module communication.
	EventBus events.Bus
	// Modules contains all HTTP-facing domain modules.
	Modules []Module
}
