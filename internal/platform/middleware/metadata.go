package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/mssola/useragent"

	"linetrace/pkg/requestcontext"
)

// Metadata captures request provenance once per request: correlation ID,
// client IP, user agent, and a pinned request time. Services read these via
// pkg/requestcontext; audit entries inherit IP and user agent from here.
func Metadata(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.NewString()
			}

			ctx := requestcontext.WithRequestID(r.Context(), requestID)
			ctx = requestcontext.WithClientIP(ctx, clientIP(r))
			ctx = requestcontext.WithTime(ctx, requestcontext.Now(ctx))

			rawUA := r.UserAgent()
			ctx = requestcontext.WithUserAgent(ctx, rawUA)

			if logger.Enabled(ctx, slog.LevelDebug) {
				ua := useragent.New(rawUA)
				name, version := ua.Browser()
				logger.DebugContext(ctx, "request",
					"request_id", requestID,
					"method", r.Method,
					"path", r.URL.Path,
					"client", name+"/"+version,
					"bot", ua.Bot(),
				)
			}

			w.Header().Set("X-Request-ID", requestID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// clientIP prefers the first X-Forwarded-For hop, falling back to the
// connection peer.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first, _, ok := strings.Cut(fwd, ","); ok {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
