package handler

import (
	"context"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"linetrace/internal/audit"
	auditmem "linetrace/internal/audit/store/memory"
	"linetrace/internal/line/models"
	"linetrace/internal/line/service"
	linestore "linetrace/internal/line/store"
	"linetrace/internal/uow"
	"linetrace/pkg/domain"
	"linetrace/pkg/testutil"
)

type zeroCounter struct{}

func (zeroCounter) CountUnfinishedByLine(context.Context, domain.LineID) (int, error) {
	return 0, nil
}

func newRouter(t *testing.T) (chi.Router, domain.UserID) {
	t.Helper()

	lines := linestore.NewMemory()
	audits := auditmem.New()
	manager := uow.NewMemory(lines, audits)
	svc := service.New(lines, zeroCounter{}, manager, audit.NewRecorder(audits))

	handler := New(svc, slog.New(slog.DiscardHandler))
	router := chi.NewRouter()
	handler.Register(router)
	return router, domain.NewUserID()
}

func TestCreateAndGetLine(t *testing.T) {
	router, actorID := newRouter(t)

	req := testutil.NewJSONRequest(t, http.MethodPost, "/lines", map[string]string{
		"name":   "Filling Line",
		"reason": "commissioning",
	})
	req = testutil.WithActor(req, actorID, domain.RoleOperator)
	rec := testutil.DoRequest(router, req)
	testutil.AssertStatus(t, rec, http.StatusCreated)

	created := testutil.UnmarshalResponse[models.Line](t, rec)
	require.Equal(t, "Filling Line", created.Name)
	require.True(t, created.IsActive)

	getReq := testutil.NewRequest(t, http.MethodGet, "/lines/"+created.ID.String())
	getRec := testutil.DoRequest(router, getReq)
	testutil.AssertStatusOK(t, getRec)
}

func TestCreateLineRequiresActor(t *testing.T) {
	router, _ := newRouter(t)

	req := testutil.NewJSONRequest(t, http.MethodPost, "/lines", map[string]string{
		"name":   "Unauthenticated",
		"reason": "r",
	})
	rec := testutil.DoRequest(router, req)
	testutil.AssertStatusAndError(t, rec, http.StatusUnauthorized, "unauthorized")
}

func TestCreateLineRequiresReason(t *testing.T) {
	router, actorID := newRouter(t)

	req := testutil.NewJSONRequest(t, http.MethodPost, "/lines", map[string]string{
		"name": "Reasonless",
	})
	req = testutil.WithActor(req, actorID, domain.RoleOperator)
	rec := testutil.DoRequest(router, req)
	testutil.AssertStatusAndError(t, rec, http.StatusBadRequest, "validation")
}

func TestDuplicateLineNameConflicts(t *testing.T) {
	router, actorID := newRouter(t)

	payload := map[string]string{"name": "Twice", "reason": "r"}
	first := testutil.WithActor(testutil.NewJSONRequest(t, http.MethodPost, "/lines", payload), actorID, domain.RoleOperator)
	testutil.AssertStatus(t, testutil.DoRequest(router, first), http.StatusCreated)

	second := testutil.WithActor(testutil.NewJSONRequest(t, http.MethodPost, "/lines", payload), actorID, domain.RoleOperator)
	testutil.AssertStatusAndError(t, testutil.DoRequest(router, second), http.StatusConflict, "conflict")
}

func TestGetUnknownLine(t *testing.T) {
	router, _ := newRouter(t)

	req := testutil.NewRequest(t, http.MethodGet, "/lines/"+domain.NewLineID().String())
	testutil.AssertStatusAndError(t, testutil.DoRequest(router, req), http.StatusNotFound, "not_found")
}

func TestInvalidLineID(t *testing.T) {
	router, _ := newRouter(t)

	req := testutil.NewRequest(t, http.MethodGet, "/lines/not-a-uuid")
	testutil.AssertStatusAndError(t, testutil.DoRequest(router, req), http.StatusBadRequest, "validation")
}

func TestDeactivateFlow(t *testing.T) {
	router, actorID := newRouter(t)

	create := testutil.WithActor(testutil.NewJSONRequest(t, http.MethodPost, "/lines",
		map[string]string{"name": "Lifecycle", "reason": "r"}), actorID, domain.RoleOperator)
	rec := testutil.DoRequest(router, create)
	testutil.AssertStatus(t, rec, http.StatusCreated)
	created := testutil.UnmarshalResponse[models.Line](t, rec)

	deactivate := testutil.WithActor(testutil.NewJSONRequest(t, http.MethodPost,
		"/lines/"+created.ID.String()+"/deactivate",
		map[string]string{"reason": "decommissioned"}), actorID, domain.RoleOperator)
	rec = testutil.DoRequest(router, deactivate)
	testutil.AssertStatusOK(t, rec)

	again := testutil.WithActor(testutil.NewJSONRequest(t, http.MethodPost,
		"/lines/"+created.ID.String()+"/deactivate",
		map[string]string{"reason": "again"}), actorID, domain.RoleOperator)
	testutil.AssertStatusAndError(t, testutil.DoRequest(router, again), http.StatusConflict, "conflict")
}
