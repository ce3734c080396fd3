// Package handler wires process endpoints to the process service.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"linetrace/internal/process/models"
	"linetrace/internal/process/service"
	"linetrace/pkg/domain"
	dErrors "linetrace/pkg/domain-errors"
	"linetrace/pkg/platform/httputil"
	"linetrace/pkg/requestcontext"
)

// Service defines the process operations the handler depends on.
type Service interface {
	Create(ctx context.Context, input service.CreateInput) (*models.Process, error)
	Update(ctx context.Context, id domain.ProcessID, input service.UpdateInput) (*models.Process, error)
	Approve(ctx context.Context, id domain.ProcessID, reason string) (*models.Process, error)
	Reject(ctx context.Context, id domain.ProcessID, reason string) (*models.Process, error)
	Deactivate(ctx context.Context, id domain.ProcessID, reason string) (*models.Process, error)
	Get(ctx context.Context, id domain.ProcessID) (*models.Process, error)
	ListByLine(ctx context.Context, lineID domain.LineID, query service.ListQuery) ([]*models.Process, error)
}

// Handler serves /processes endpoints.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a process handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts process endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/processes", func(r chi.Router) {
		r.Post("/", h.HandleCreate)
		r.Get("/", h.HandleListByLine)
		r.Get("/{processID}", h.HandleGet)
		r.Patch("/{processID}", h.HandleUpdate)
		r.Post("/{processID}/approve", h.HandleApprove)
		r.Post("/{processID}/reject", h.HandleReject)
		r.Post("/{processID}/deactivate", h.HandleDeactivate)
	})
}

type createRequest struct {
	LineID      string `json:"lineId"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Reason      string `json:"reason"`
}

type updateRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
	Reason      string  `json:"reason"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

// HandleCreate handles POST /processes.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[createRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	lineID, err := domain.ParseLineID(req.LineID)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid line id"))
		return
	}

	process, err := h.service.Create(ctx, service.CreateInput{
		LineID:      lineID,
		Title:       req.Title,
		Description: req.Description,
		Reason:      req.Reason,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "process creation failed",
			"request_id", requestID, "line_id", req.LineID, "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, process)
}

// HandleGet handles GET /processes/{processID}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseProcessID(chi.URLParam(r, "processID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid process id"))
		return
	}

	process, err := h.service.Get(ctx, id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, process)
}

// HandleUpdate handles PATCH /processes/{processID}.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	id, err := domain.ParseProcessID(chi.URLParam(r, "processID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid process id"))
		return
	}
	req, ok := httputil.DecodeAndPrepare[updateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	input := service.UpdateInput{
		Title:       req.Title,
		Description: req.Description,
		Reason:      req.Reason,
	}
	if req.Status != nil {
		status, err := models.ParseStatus(*req.Status)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		input.Status = &status
	}

	process, err := h.service.Update(ctx, id, input)
	if err != nil {
		h.logger.WarnContext(ctx, "process update failed",
			"request_id", requestID, "process_id", id.String(), "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, process)
}

// HandleApprove handles POST /processes/{processID}/approve.
func (h *Handler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.service.Approve)
}

// HandleReject handles POST /processes/{processID}/reject.
func (h *Handler) HandleReject(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.service.Reject)
}

// HandleDeactivate handles POST /processes/{processID}/deactivate.
func (h *Handler) HandleDeactivate(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.service.Deactivate)
}

func (h *Handler) lifecycle(w http.ResponseWriter, r *http.Request, op func(context.Context, domain.ProcessID, string) (*models.Process, error)) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	id, err := domain.ParseProcessID(chi.URLParam(r, "processID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid process id"))
		return
	}
	req, ok := httputil.DecodeAndPrepare[reasonRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	process, err := op(ctx, id, req.Reason)
	if err != nil {
		h.logger.WarnContext(ctx, "process lifecycle change failed",
			"request_id", requestID, "process_id", id.String(), "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, process)
}

// HandleListByLine handles GET /processes?lineId=...
func (h *Handler) HandleListByLine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	lineID, err := domain.ParseLineID(r.URL.Query().Get("lineId"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "lineId query parameter is required"))
		return
	}

	processes, err := h.service.ListByLine(ctx, lineID, service.ListQuery{
		IncludeInactive: r.URL.Query().Get("includeInactive") == "true",
		Limit:           queryInt(r, "limit"),
		Offset:          queryInt(r, "offset"),
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"processes": processes})
}

func queryInt(r *http.Request, key string) int {
	value, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return value
}
