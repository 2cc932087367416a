package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
	)

	// Processes
	mux.Handle("GET /api/v1/processes", chain(http.HandlerFunc(h.ListProcesses)))
	mux.Handle("POST /api/v1/processes", chain(http.HandlerFunc(h.StartProcess)))
	mux.Handle("GET /api/v1/processes/{id}", chain(http.HandlerFunc(h.GetProcess)))
	mux.Handle("GET /api/v1/processes/{id}/progress", chain(http.HandlerFunc(h.GetProgress)))
	mux.Handle("GET /api/v1/processes/{id}/children", chain(http.HandlerFunc(h.ListProcessChildren)))
	mux.Handle("GET /api/v1/processes/{id}/signals", chain(http.HandlerFunc(h.ListProcessSignals)))

	// Signals
	mux.Handle("POST /api/v1/processes/{id}/approval", chain(http.HandlerFunc(h.SubmitApproval)))
	mux.Handle("POST /api/v1/processes/{id}/events", chain(http.HandlerFunc(h.SubmitEvent)))

	// Schedules
	mux.Handle("GET /api/v1/schedules", chain(http.HandlerFunc(h.ListSchedules)))
	mux.Handle("POST /api/v1/schedules", chain(http.HandlerFunc(h.CreateSchedule)))
	mux.Handle("GET /api/v1/schedules/{id}", chain(http.HandlerFunc(h.GetSchedule)))
	mux.Handle("PUT /api/v1/schedules/{id}", chain(http.HandlerFunc(h.UpdateSchedule)))
	mux.Handle("DELETE /api/v1/schedules/{id}", chain(http.HandlerFunc(h.DeleteSchedule)))
	mux.Handle("PUT /api/v1/schedules/{id}/enabled", chain(http.HandlerFunc(h.SetScheduleEnabled)))
}
