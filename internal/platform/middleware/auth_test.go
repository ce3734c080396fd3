package middleware

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linetrace/pkg/domain"
	"linetrace/pkg/requestcontext"
)

const testSigningKey = "unit-test-signing-key"

func signToken(t *testing.T, sub string, role string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, actorClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(testSigningKey))
	require.NoError(t, err)
	return signed
}

func newProtectedHandler(t *testing.T, captured *requestcontext.Actor) http.Handler {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requestcontext.ActorFrom(r.Context())
		require.True(t, ok)
		*captured = actor
		w.WriteHeader(http.StatusNoContent)
	})
	return RequireActor(testSigningKey, logger)(inner)
}

func TestRequireActorInjectsActor(t *testing.T) {
	actorID := domain.NewUserID()
	var captured requestcontext.Actor
	handler := newProtectedHandler(t, &captured)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, actorID.String(), "SUPERVISOR"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, actorID, captured.ID)
	assert.Equal(t, domain.RoleSupervisor, captured.Role)
}

func TestRequireActorRejectsMissingToken(t *testing.T) {
	var captured requestcontext.Actor
	handler := newProtectedHandler(t, &captured)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireActorRejectsUnknownRole(t *testing.T) {
	var captured requestcontext.Actor
	handler := newProtectedHandler(t, &captured)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, domain.NewUserID().String(), "WIZARD"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireActorRejectsForgedToken(t *testing.T) {
	var captured requestcontext.Actor
	handler := newProtectedHandler(t, &captured)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, actorClaims{
		Role: "ADMIN",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   domain.NewUserID().String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	forged, err := token.SignedString([]byte("wrong-key"))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+forged)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
