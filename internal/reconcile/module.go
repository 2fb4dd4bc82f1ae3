// Package reconcile wires the status reconciliation engine: the webhook
// handler, the orchestrator, the sweepers and their store dependencies.
package reconcile

import (
	"github.com/jackc/pgx/v5/pgxpool"

	apptrepo "loancrm_backend/internal/appointments/repository"
	borrowerrepo "loancrm_backend/internal/borrowers/repository"
	"loancrm_backend/internal/eligibility"
	"loancrm_backend/internal/events"
	apphttp "loancrm_backend/internal/http"
	leadrepo "loancrm_backend/internal/leads/repository"
	"loancrm_backend/internal/notify"
	"loancrm_backend/internal/reconcile/engine"
	"loancrm_backend/internal/reconcile/handler"
	slotrepo "loancrm_backend/internal/timeslots/repository"
	"loancrm_backend/platform/clock"
	"loancrm_backend/platform/config"
	"loancrm_backend/platform/httpkit"
	"loancrm_backend/platform/logger"
	"loancrm_backend/platform/validator"
)

// Config is the slice of application config the module needs.
type Config interface {
	config.ReconcileConfig
	config.WebhookAuthConfig
	config.EligibilityConfig
	config.NotifyConfig
}

// Module represents the reconciliation module.
type Module struct {
	handler *handler.Handler
	cfg     Config
	log     *logger.Logger

	Runner  *engine.Runner
	Sweeper *engine.Sweeper
}

// NewModule creates the reconciliation module with all dependencies wired.
func NewModule(pool *pgxpool.Pool, clk clock.Clock, bus events.Bus, val *validator.Validator, log *logger.Logger, cfg Config) *Module {
	leads := leadrepo.New(pool)
	borrowers := borrowerrepo.New(pool)
	appts := apptrepo.New(pool)
	slots := slotrepo.New(pool)

	checker := eligibility.New(cfg, log)
	sink := notify.New(cfg, log)

	orch := engine.NewOrchestrator(leads, borrowers, appts, slots, checker, sink, clk, bus, log, engine.OrchestratorConfig{
		SlotSearchDays: cfg.GetSlotSearchDays(),
	})
	sweeper := engine.NewSweeper(leads, appts, clk, bus, log)
	runner := engine.NewRunner(orch, sweeper, bus, log, cfg.GetBatchConcurrency())

	h := handler.New(runner, clk, val, handler.Thresholds{
		LiveHours:  cfg.GetLiveThresholdHours(),
		SweepHours: cfg.GetSweepThresholdHours(),
	})

	return &Module{handler: h, cfg: cfg, log: log, Runner: runner, Sweeper: sweeper}
}

// Name returns the module name for logging.
func (m *Module) Name() string {
	return "reconcile"
}

// RegisterRoutes registers the webhook routes on the unprefixed root group,
// guarded by the shared API key and a per-client rate limit.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	rg := ctx.Root.Group("")
	rg.Use(
		httpkit.APIKeyAuth(m.cfg.GetWebhookAPIKey()),
		httpkit.RateLimit(m.cfg.GetWebhookRatePerSecond(), m.cfg.GetWebhookRateBurst(), m.log),
	)
	m.handler.RegisterRoutes(rg)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
