package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"loancrm_backend/internal/reconcile/engine"
	"loancrm_backend/internal/reconcile/transport"
	"loancrm_backend/platform/clock"
	"loancrm_backend/platform/httpkit"
	"loancrm_backend/platform/validator"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

// Thresholds carries the two documented sweep defaults. They differ on
// purpose: the live webhook path allows more slack than the manual sweep.
type Thresholds struct {
	LiveHours  float64
	SweepHours float64
}

// Handler exposes the status-update webhook.
type Handler struct {
	runner     *engine.Runner
	clk        clock.Clock
	val        *validator.Validator
	thresholds Thresholds
}

func New(runner *engine.Runner, clk clock.Clock, val *validator.Validator, thresholds Thresholds) *Handler {
	return &Handler{runner: runner, clk: clk, val: val, thresholds: thresholds}
}

// RegisterRoutes registers the webhook routes on the given group. Auth and
// rate limiting are applied by the module.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/appointments/status-update", h.StatusUpdate)
	rg.GET("/appointments/status-update", h.StatusUpdateSweep)
}

// StatusUpdate handles POST /appointments/status-update: one spreadsheet
// batch in live or end-of-day mode.
func (h *Handler) StatusUpdate(c *gin.Context) {
	var req transport.StatusUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	mode := engine.Mode(req.Mode)
	threshold := h.thresholds.LiveHours
	if req.ThresholdHours != nil {
		threshold = *req.ThresholdHours
	}

	result := h.runner.Run(c.Request.Context(), mode, req.Rows, engine.DurationFromHours(threshold))
	h.respond(c, mode, threshold, result)
}

// StatusUpdateSweep handles GET /appointments/status-update: a time-only
// sweep with no row payload, for manual testing.
func (h *Handler) StatusUpdateSweep(c *gin.Context) {
	var q transport.StatusUpdateQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}
	if err := h.val.Struct(q); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	mode := engine.ModeLive
	if q.Mode != "" {
		mode = engine.Mode(q.Mode)
	}
	if !mode.Valid() {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, fmt.Sprintf("unknown mode %q", q.Mode))
		return
	}

	if mode == engine.ModeEndOfDay {
		result := h.runner.Run(c.Request.Context(), engine.ModeEndOfDay, nil, 0)
		h.respond(c, mode, 0, result)
		return
	}

	hours := h.thresholds.SweepHours
	if q.ThresholdHours != nil {
		hours = *q.ThresholdHours
	}
	result := h.runner.RunTimeoutSweep(c.Request.Context(), engine.DurationFromHours(hours))
	h.respond(c, mode, hours, result)
}

func (h *Handler) respond(c *gin.Context, mode engine.Mode, thresholdHours float64, result engine.RunResult) {
	summary := engine.Summarize(result.Actions)
	httpkit.OK(c, transport.StatusUpdateResponse{
		Success:        result.Failed == 0,
		Mode:           string(mode),
		Message:        fmt.Sprintf("processed %d, succeeded %d, failed %d", result.Processed, result.Succeeded, result.Failed),
		TodaySingapore: h.clk.TodaySingapore().Format("2006-01-02"),
		ThresholdHours: thresholdHours,
		Results:        result.Actions,
		Summary:        summary,
	})
}
