// Package timeslots provides the timeslots domain module.
package timeslots

import (
	"loancrm_backend/internal/timeslots/handler"
	"loancrm_backend/internal/timeslots/repository"
	"loancrm_backend/internal/timeslots/service"

	apphttp "loancrm_backend/internal/http"
	"loancrm_backend/platform/clock"
	"loancrm_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module represents the timeslots domain module.
type Module struct {
	handler    *handler.Handler
	Service    *service.Service
	Repository *repository.Repository
}

// NewModule creates a new timeslots module with all dependencies wired.
func NewModule(pool *pgxpool.Pool, clk clock.Clock, val *validator.Validator) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, clk)
	h := handler.New(svc, val)

	return &Module{
		handler:    h,
		Service:    svc,
		Repository: repo,
	}
}

// Name returns the module name for logging.
func (m *Module) Name() string {
	return "timeslots"
}

// RegisterRoutes registers the module's routes under /api/v1/timeslots.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	slots := ctx.API.Group("/timeslots")
	m.handler.RegisterRoutes(slots)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
