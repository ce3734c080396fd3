// Package handler wires production-line endpoints to the line service.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"linetrace/internal/line/models"
	"linetrace/internal/line/service"
	"linetrace/pkg/domain"
	dErrors "linetrace/pkg/domain-errors"
	"linetrace/pkg/platform/httputil"
	"linetrace/pkg/requestcontext"
)

// Service defines the line operations the handler depends on.
type Service interface {
	Create(ctx context.Context, input service.CreateInput) (*models.Line, error)
	Update(ctx context.Context, id domain.LineID, input service.UpdateInput) (*models.Line, error)
	Deactivate(ctx context.Context, id domain.LineID, reason string) (*models.Line, error)
	Reactivate(ctx context.Context, id domain.LineID, reason string) (*models.Line, error)
	Get(ctx context.Context, id domain.LineID) (*models.Line, error)
	List(ctx context.Context, query service.ListQuery) ([]*models.Line, error)
}

// Handler serves /lines endpoints.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a line handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts line endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/lines", func(r chi.Router) {
		r.Post("/", h.HandleCreate)
		r.Get("/", h.HandleList)
		r.Get("/{lineID}", h.HandleGet)
		r.Patch("/{lineID}", h.HandleUpdate)
		r.Post("/{lineID}/deactivate", h.HandleDeactivate)
		r.Post("/{lineID}/reactivate", h.HandleReactivate)
	})
}

type createRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Reason      string `json:"reason"`
}

type updateRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Reason      string  `json:"reason"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

// HandleCreate handles POST /lines.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[createRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	line, err := h.service.Create(ctx, service.CreateInput{
		Name:        req.Name,
		Description: req.Description,
		Reason:      req.Reason,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "line creation failed",
			"request_id", requestID, "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, line)
}

// HandleGet handles GET /lines/{lineID}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseLineID(chi.URLParam(r, "lineID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid line id"))
		return
	}

	line, err := h.service.Get(ctx, id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, line)
}

// HandleList handles GET /lines.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	lines, err := h.service.List(ctx, service.ListQuery{
		IncludeInactive: r.URL.Query().Get("includeInactive") == "true",
		Limit:           queryInt(r, "limit"),
		Offset:          queryInt(r, "offset"),
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"lines": lines})
}

// HandleUpdate handles PATCH /lines/{lineID}.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	id, err := domain.ParseLineID(chi.URLParam(r, "lineID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid line id"))
		return
	}
	req, ok := httputil.DecodeAndPrepare[updateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	line, err := h.service.Update(ctx, id, service.UpdateInput{
		Name:        req.Name,
		Description: req.Description,
		Reason:      req.Reason,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "line update failed",
			"request_id", requestID, "line_id", id.String(), "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, line)
}

// HandleDeactivate handles POST /lines/{lineID}/deactivate.
func (h *Handler) HandleDeactivate(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.service.Deactivate)
}

// HandleReactivate handles POST /lines/{lineID}/reactivate.
func (h *Handler) HandleReactivate(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.service.Reactivate)
}

func (h *Handler) lifecycle(w http.ResponseWriter, r *http.Request, op func(context.Context, domain.LineID, string) (*models.Line, error)) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	id, err := domain.ParseLineID(chi.URLParam(r, "lineID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid line id"))
		return
	}
	req, ok := httputil.DecodeAndPrepare[reasonRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	line, err := op(ctx, id, req.Reason)
	if err != nil {
		h.logger.WarnContext(ctx, "line lifecycle change failed",
			"request_id", requestID, "line_id", id.String(), "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, line)
}

func queryInt(r *http.Request, key string) int {
	value, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return value
}
