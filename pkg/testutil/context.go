package testutil

import (
	"net/http"

	"linetrace/pkg/domain"
	"linetrace/pkg/requestcontext"
)

// WithActor attaches an authenticated actor to the request context,
// simulating what the auth middleware does for real requests.
func WithActor(req *http.Request, actorID domain.UserID, role domain.Role) *http.Request {
	ctx := requestcontext.WithActor(req.Context(), requestcontext.Actor{ID: actorID, Role: role})
	return req.WithContext(ctx)
}

// WithRequestID attaches a request ID to the request context.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	return req.WithContext(requestcontext.WithRequestID(req.Context(), requestID))
}
