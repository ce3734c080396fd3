// Package handler exposes the read-only audit query surface. Audit
// entries are written exclusively through the Unit-of-Work; over HTTP they
// can only be read.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"linetrace/internal/audit"
	"linetrace/pkg/domain"
	dErrors "linetrace/pkg/domain-errors"
	"linetrace/pkg/platform/httputil"
)

// Finder defines the audit queries the handler depends on.
type Finder interface {
	FindByEntity(ctx context.Context, entityType, entityID string, q audit.Query) ([]*audit.Entry, error)
	FindByActor(ctx context.Context, actorID domain.UserID, q audit.Query) ([]*audit.Entry, error)
}

// Handler serves /audit endpoints.
type Handler struct {
	finder Finder
	logger *slog.Logger
}

// New constructs an audit handler.
func New(finder Finder, logger *slog.Logger) *Handler {
	return &Handler{finder: finder, logger: logger}
}

// Register mounts audit endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/audit", func(r chi.Router) {
		r.Get("/entity/{entityType}/{entityID}", h.HandleByEntity)
		r.Get("/actor/{actorID}", h.HandleByActor)
	})
}

// HandleByEntity handles GET /audit/entity/{entityType}/{entityID}.
func (h *Handler) HandleByEntity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query := audit.Query{
		Limit:  queryInt(r, "limit"),
		Offset: queryInt(r, "offset"),
	}
	if raw := r.URL.Query().Get("actorId"); raw != "" {
		actorID, err := domain.ParseUserID(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid actor id"))
			return
		}
		query.ActorID = actorID
	}

	entries, err := h.finder.FindByEntity(ctx,
		chi.URLParam(r, "entityType"), chi.URLParam(r, "entityID"), query)
	if err != nil {
		h.logger.WarnContext(ctx, "audit entity query failed", "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// HandleByActor handles GET /audit/actor/{actorID}.
func (h *Handler) HandleByActor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actorID, err := domain.ParseUserID(chi.URLParam(r, "actorID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid actor id"))
		return
	}

	entries, err := h.finder.FindByActor(ctx, actorID, audit.Query{
		EntityType: r.URL.Query().Get("entityType"),
		Limit:      queryInt(r, "limit"),
		Offset:     queryInt(r, "offset"),
	})
	if err != nil {
		h.logger.WarnContext(ctx, "audit actor query failed", "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func queryInt(r *http.Request, key string) int {
	value, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return value
}
