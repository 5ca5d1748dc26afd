package handlers

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/anstrom/netsweep/internal/api/middleware"
	"github.com/anstrom/netsweep/internal/db"
	"github.com/anstrom/netsweep/internal/errors"
	"github.com/anstrom/netsweep/internal/logging"
	"github.com/anstrom/netsweep/internal/orchestrator"
)

const (
	maxScanRequestSize = 64 * 1024
	defaultScanLimit   = 20
	maxScanLimit       = 200
)

// Sweeper runs one sweep and waits for it.
type Sweeper interface {
	Run(ctx context.Context, req orchestrator.Request) (*orchestrator.Result, error)
}

// ScanLister lists recorded sweeps, newest first.
type ScanLister interface {
	ListScans(ctx context.Context, limit int) ([]*db.Scan, error)
}

// ScanRequest is the body of POST /api/scan/start/.
type ScanRequest struct {
	IPRange string `json:"ip_range" validate:"omitempty,max=64,printascii"`
}

// ScanResponse is a successful sweep.
type ScanResponse struct {
	Status  string       `json:"status"`
	Devices []DeviceView `json:"devices"`
}

// ScansResponse lists sweep records.
type ScansResponse struct {
	Scans []*db.Scan `json:"scans"`
}

// ScanHandler handles sweep requests and sweep records.
type ScanHandler struct {
	sweeper      Sweeper
	scans        ScanLister
	defaultRange string
	validate     *validator.Validate
	logger       *logging.Logger
}

// NewScanHandler creates a new scan handler. Requests without a range sweep
// defaultRange.
func NewScanHandler(sweeper Sweeper, scans ScanLister, defaultRange string, logger *logging.Logger) *ScanHandler {
	return &ScanHandler{
		sweeper:      sweeper,
		scans:        scans,
		defaultRange: defaultRange,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
		logger:       logger.WithComponent("api.scan"),
	}
}

// StartScan runs a sweep and returns the devices it found.
//
//	@Summary		Start a sweep
//	@Description	Sweeps an IPv4 range, port-scans live hosts and returns them ascending by IP.
//	@Tags			scan
//	@Accept			json
//	@Produce		json
//	@Param			request	body		ScanRequest	false	"Range to sweep"
//	@Success		200		{object}	ScanResponse
//	@Failure		400		{object}	StatusResponse
//	@Failure		403		{object}	StatusResponse
//	@Failure		409		{object}	StatusResponse
//	@Failure		429		{object}	StatusResponse
//	@Failure		500		{object}	StatusResponse
//	@Router			/scan/start/ [post]
func (h *ScanHandler) StartScan(w http.ResponseWriter, r *http.Request) {
	req, err := h.parseScanRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	requestID := middleware.GetRequestID(r)
	h.logger.InfoScan("Scan requested", req.IPRange, "request_id", requestID)

	result, err := h.sweeper.Run(r.Context(), orchestrator.Request{
		IPRange: req.IPRange,
		Trigger: orchestrator.TriggerAPI,
	})
	if err != nil {
		if r.Context().Err() != nil {
			h.logger.Warn("Client went away before the sweep finished",
				"request_id", requestID, "range", req.IPRange)
		} else if HTTPStatusForError(err) >= http.StatusInternalServerError {
			h.logger.ErrorScan("Scan failed", req.IPRange, err, "request_id", requestID)
		}
		writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, ScanResponse{
		Status:  StatusSuccess,
		Devices: NewDeviceViews(result.Devices),
	})
}

// parseScanRequest accepts an empty body or a JSON object with an optional
// ip_range; a missing range falls back to the default.
func (h *ScanHandler) parseScanRequest(r *http.Request) (*ScanRequest, error) {
	req := &ScanRequest{}
	if r.Body != nil {
		body := http.MaxBytesReader(nil, r.Body, maxScanRequestSize)
		err := json.NewDecoder(body).Decode(req)
		switch {
		case err == nil, stderrors.Is(err, io.EOF):
		default:
			var tooLarge *http.MaxBytesError
			if stderrors.As(err, &tooLarge) {
				return nil, errors.NewScanError(errors.CodeValidation, "Request body too large")
			}
			return nil, errors.WrapScanError(errors.CodeValidation, "Invalid JSON body", err)
		}
	}

	req.IPRange = strings.TrimSpace(req.IPRange)
	if err := h.validate.Struct(req); err != nil {
		return nil, errors.ErrInvalidRange(req.IPRange, "expected an IPv4 CIDR such as 192.168.1.0/24")
	}
	if req.IPRange == "" {
		req.IPRange = h.defaultRange
	}
	return req, nil
}

// ListScans returns recent sweep records.
//
//	@Summary	List sweeps
//	@Tags		scan
//	@Produce	json
//	@Param		limit	query		int	false	"Maximum records (default 20, max 200)"
//	@Success	200		{object}	ScansResponse
//	@Failure	400		{object}	StatusResponse
//	@Failure	500		{object}	StatusResponse
//	@Router		/scans/ [get]
func (h *ScanHandler) ListScans(w http.ResponseWriter, r *http.Request) {
	limit, err := getQueryParamInt(r, "limit", defaultScanLimit)
	if err != nil || h.validate.Var(limit, "min=1") != nil {
		writeStatusError(w, r, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	if limit > maxScanLimit {
		limit = maxScanLimit
	}

	scans, err := h.scans.ListScans(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list scans", "request_id", middleware.GetRequestID(r), "error", err)
		writeError(w, r, err)
		return
	}
	if scans == nil {
		scans = []*db.Scan{}
	}
	writeJSON(w, r, http.StatusOK, ScansResponse{Scans: scans})
}
