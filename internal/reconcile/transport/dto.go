// Package transport defines the wire DTOs for the status-update webhook.
package transport

import (
	"loancrm_backend/internal/reconcile/engine"
)

// StatusUpdateRequest is the webhook body delivered per spreadsheet batch.
// Rows are free-form column maps; the engine locates fields by header alias.
// The spreadsheet identifiers are echoed for traceability only.
type StatusUpdateRequest struct {
	Mode            string              `json:"mode" validate:"required,oneof=live end_of_day"`
	ThresholdHours  *float64            `json:"thresholdHours,omitempty" validate:"omitempty,gt=0"`
	Rows            []map[string]string `json:"rows,omitempty"`
	SpreadsheetID   string              `json:"spreadsheet_id,omitempty"`
	SpreadsheetName string              `json:"spreadsheet_name,omitempty"`
	Sheet           string              `json:"sheet,omitempty"`
}

// StatusUpdateQuery is the GET variant for manual testing: no row payload,
// time-only sweep.
type StatusUpdateQuery struct {
	Mode           string   `form:"mode" validate:"omitempty,oneof=live end_of_day"`
	ThresholdHours *float64 `form:"thresholdHours" validate:"omitempty,gt=0"`
}

// StatusUpdateResponse reports the run outcome with per-action results so
// an operator can re-submit just the failed rows.
type StatusUpdateResponse struct {
	Success        bool               `json:"success"`
	Mode           string             `json:"mode"`
	Message        string             `json:"message"`
	TodaySingapore string             `json:"todaySingapore"`
	ThresholdHours float64            `json:"thresholdHours"`
	Results        []engine.Action `json:"results"`
	Summary        engine.Summary  `json:"summary"`
}
