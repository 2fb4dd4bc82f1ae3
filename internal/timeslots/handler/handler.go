package handler

import (
	"net/http"
	"time"

	"loancrm_backend/internal/timeslots/service"
	"loancrm_backend/internal/timeslots/transport"
	"loancrm_backend/platform/clock"
	"loancrm_backend/platform/httpkit"
	"loancrm_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

// Handler handles HTTP requests for timeslots.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

// New creates a new timeslots handler.
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterRoutes registers the timeslot routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.POST("/generate", h.Generate)
}

// List handles GET /api/v1/timeslots?date=YYYY-MM-DD
func (h *Handler) List(c *gin.Context) {
	var req transport.ListTimeslotsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	date, err := time.ParseInLocation("2006-01-02", req.Date, clock.Singapore)
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}

	slots, err := h.svc.ListByDate(c.Request.Context(), date)
	if httpkit.HandleError(c, err) {
		return
	}

	items := make([]transport.TimeslotResponse, 0, len(slots))
	for _, slot := range slots {
		items = append(items, transport.TimeslotResponse{
			ID:            slot.ID,
			SlotDate:      slot.SlotDate.Format("2006-01-02"),
			StartAt:       slot.StartAt,
			EndAt:         slot.EndAt,
			MaxCapacity:   slot.MaxCapacity,
			OccupiedCount: slot.OccupiedCount,
			Disabled:      slot.Disabled,
			Available:     !slot.Disabled && slot.OccupiedCount < slot.MaxCapacity,
		})
	}

	httpkit.OK(c, items)
}

// Generate handles POST /api/v1/timeslots/generate
func (h *Handler) Generate(c *gin.Context) {
	var req transport.GenerateTimeslotsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	created, err := h.svc.GenerateAhead(c.Request.Context(), req.Days)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.JSON(c, http.StatusCreated, transport.GenerateTimeslotsResponse{Created: created})
}
