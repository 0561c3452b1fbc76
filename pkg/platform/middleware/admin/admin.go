package admin

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"sovren/pkg/platform/httputil"
	"sovren/pkg/requestcontext"
)

const (
	msgDisabled     = "admin disabled"
	msgUnauthorized = "unauthorized"
)

// RequireAdminBearer gates admin routes behind a single shared secret.
//
// An empty expectedToken hard-disables the routes: every request gets 403
// "admin disabled" whatever credentials it carries. Otherwise the request must
// send "Authorization: Bearer <token>" with exactly the configured value, or it
// gets 401.
func RequireAdminBearer(expectedToken string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if expectedToken == "" {
				logger.WarnContext(ctx, "admin request rejected: admin disabled",
					"request_id", requestcontext.RequestID(ctx),
					"path", r.URL.Path,
				)
				httputil.WriteFailure(w, http.StatusForbidden, msgDisabled)
				return
			}

			token, ok := bearerToken(r)
			// Use constant-time comparison to prevent timing attacks
			if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
				logger.WarnContext(ctx, "admin token mismatch",
					"request_id", requestcontext.RequestID(ctx),
					"client_ip", requestcontext.ClientIP(ctx),
					"credential_present", ok,
				)
				httputil.WriteFailure(w, http.StatusUnauthorized, msgUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	return token, true
}
