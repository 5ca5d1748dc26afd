package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/anstrom/netsweep/internal/api/middleware"
	"github.com/anstrom/netsweep/internal/logging"
	"github.com/anstrom/netsweep/internal/scheduler"
)

// ScheduleManager manages cron-driven sweeps.
type ScheduleManager interface {
	Jobs() []scheduler.ScheduledJob
	AddSweep(name, cronExpr string, ranges []string) (uuid.UUID, error)
	RemoveJob(jobID uuid.UUID) error
}

// ScheduleRequest creates a scheduled sweep.
type ScheduleRequest struct {
	Name   string   `json:"name" validate:"required,max=100"`
	Cron   string   `json:"cron" validate:"required,max=100"`
	Ranges []string `json:"ranges" validate:"required,min=1,max=32,dive,required,max=64"`
}

// ScheduleView is a scheduled sweep and its run bookkeeping.
type ScheduleView struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	Cron      string     `json:"cron"`
	Ranges    []string   `json:"ranges"`
	LastRun   *time.Time `json:"last_run,omitempty"`
	NextRun   *time.Time `json:"next_run,omitempty"`
	LastError string     `json:"last_error,omitempty"`
	Runs      int        `json:"runs"`
	Skipped   int        `json:"skipped"`
	Running   bool       `json:"running"`
}

// SchedulesResponse lists scheduled sweeps.
type SchedulesResponse struct {
	Schedules []ScheduleView `json:"schedules"`
}

// ScheduleHandler exposes the sweep scheduler.
type ScheduleHandler struct {
	scheduler ScheduleManager
	validate  *validator.Validate
	logger    *logging.Logger
}

// NewScheduleHandler creates a new schedule handler.
func NewScheduleHandler(s ScheduleManager, logger *logging.Logger) *ScheduleHandler {
	return &ScheduleHandler{
		scheduler: s,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		logger:    logger.WithComponent("api.schedules"),
	}
}

func newScheduleView(j scheduler.ScheduledJob) ScheduleView {
	v := ScheduleView{
		ID:        j.ID,
		Name:      j.Name,
		Cron:      j.Cron,
		Ranges:    j.Ranges,
		LastError: j.LastError,
		Runs:      j.Runs,
		Skipped:   j.Skipped,
		Running:   j.Running,
	}
	if !j.LastRun.IsZero() {
		v.LastRun = &j.LastRun
	}
	if !j.NextRun.IsZero() {
		v.NextRun = &j.NextRun
	}
	return v
}

// ListSchedules returns every scheduled sweep.
//
//	@Summary	List scheduled sweeps
//	@Tags		schedules
//	@Produce	json
//	@Success	200	{object}	SchedulesResponse
//	@Router		/schedules/ [get]
func (h *ScheduleHandler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	jobs := h.scheduler.Jobs()
	views := make([]ScheduleView, 0, len(jobs))
	for _, j := range jobs {
		views = append(views, newScheduleView(j))
	}
	writeJSON(w, r, http.StatusOK, SchedulesResponse{Schedules: views})
}

// CreateSchedule adds a scheduled sweep.
//
//	@Summary	Create a scheduled sweep
//	@Tags		schedules
//	@Accept		json
//	@Produce	json
//	@Param		request	body		ScheduleRequest	true	"Schedule"
//	@Success	201		{object}	ScheduleView
//	@Failure	400		{object}	StatusResponse
//	@Router		/schedules/ [post]
func (h *ScheduleHandler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req ScheduleRequest
	body := http.MaxBytesReader(nil, r.Body, maxScanRequestSize)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeStatusError(w, r, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeStatusError(w, r, http.StatusBadRequest, "name, cron and at least one range are required")
		return
	}

	id, err := h.scheduler.AddSweep(req.Name, req.Cron, req.Ranges)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.logger.Info("Scheduled sweep created",
		"request_id", middleware.GetRequestID(r), "job_id", id, "name", req.Name, "cron", req.Cron)

	for _, j := range h.scheduler.Jobs() {
		if j.ID == id {
			writeJSON(w, r, http.StatusCreated, newScheduleView(j))
			return
		}
	}
	writeJSON(w, r, http.StatusCreated, ScheduleView{ID: id, Name: req.Name, Cron: req.Cron, Ranges: req.Ranges})
}

// DeleteSchedule removes a scheduled sweep.
//
//	@Summary	Delete a scheduled sweep
//	@Tags		schedules
//	@Param		id	path	string	true	"Schedule ID"
//	@Success	204
//	@Failure	404	{object}	StatusResponse
//	@Router		/schedules/{id}/ [delete]
func (h *ScheduleHandler) DeleteSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeStatusError(w, r, http.StatusBadRequest, "id must be a UUID")
		return
	}
	if err := h.scheduler.RemoveJob(id); err != nil {
		writeError(w, r, err)
		return
	}
	h.logger.Info("Scheduled sweep removed", "request_id", middleware.GetRequestID(r), "job_id", id)
	w.WriteHeader(http.StatusNoContent)
}
