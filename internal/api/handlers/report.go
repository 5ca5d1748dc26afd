package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/anstrom/netsweep/internal/api/middleware"
	"github.com/anstrom/netsweep/internal/db"
	"github.com/anstrom/netsweep/internal/logging"
	"github.com/anstrom/netsweep/internal/report"
)

// ReportHandler serves the downloadable device inventory.
type ReportHandler struct {
	store  DeviceStore
	logger *logging.Logger
	now    func() time.Time
}

// NewReportHandler creates a new report handler.
func NewReportHandler(store DeviceStore, logger *logging.Logger) *ReportHandler {
	return &ReportHandler{
		store:  store,
		logger: logger.WithComponent("api.report"),
		now:    time.Now,
	}
}

// Download renders every known device as an attachment.
//
//	@Summary	Download device report
//	@Tags		devices
//	@Produce	text/csv
//	@Produce	text/plain
//	@Produce	application/pdf
//	@Param		format	query		string	false	"csv (default), text or pdf"
//	@Success	200		{file}		file
//	@Failure	400		{object}	StatusResponse
//	@Failure	500		{object}	StatusResponse
//	@Router		/report/download/ [get]
func (h *ReportHandler) Download(w http.ResponseWriter, r *http.Request) {
	format, err := report.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeStatusError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	devices, err := h.store.ListDevices(r.Context(), db.DeviceFilter{})
	if err != nil {
		h.logger.Error("Failed to load devices for report", "request_id", middleware.GetRequestID(r), "error", err)
		writeError(w, r, err)
		return
	}

	// Render fully before writing headers so a failure can still become a 500.
	now := h.now()
	var buf bytes.Buffer
	if err := report.Write(&buf, format, devices, now); err != nil {
		h.logger.Error("Failed to render report", "request_id", middleware.GetRequestID(r), "error", err)
		writeStatusError(w, r, http.StatusInternalServerError, "Failed to render report")
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", format.Filename(now)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
