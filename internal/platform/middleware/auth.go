package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"linetrace/pkg/domain"
	dErrors "linetrace/pkg/domain-errors"
	"linetrace/pkg/requestcontext"
)

// actorClaims are the claims the authentication collaborator issues. The
// core only consumes them; token issuance and revocation live elsewhere.
type actorClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// RequireActor validates the bearer token and injects the actor into the
// request context. Requests without a valid actor are rejected; the core
// never guesses an identity.
func RequireActor(signingKey string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				writeAuthError(w, "missing bearer token")
				return
			}

			claims := &actorClaims{}
			parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, dErrors.Newf(dErrors.CodeUnauthorized, "unexpected signing method %v", t.Header["alg"])
				}
				return []byte(signingKey), nil
			})
			if err != nil || !parsed.Valid {
				logger.WarnContext(r.Context(), "rejected bearer token", "error", err)
				writeAuthError(w, "invalid bearer token")
				return
			}

			actorID, err := domain.ParseUserID(claims.Subject)
			if err != nil {
				writeAuthError(w, "invalid actor id in token")
				return
			}
			role, err := domain.ParseRole(claims.Role)
			if err != nil {
				writeAuthError(w, "invalid role in token")
				return
			}

			ctx := requestcontext.WithActor(r.Context(), requestcontext.Actor{ID: actorID, Role: role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeAuthError(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"` + msg + `"}`))
}
