// Package auth gates the sync routes with HTTP Basic credentials and
// binds the authenticated user to the owner named in the path.
package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/exp/slog"

	"weavesync/internal/auth"
)

type Auth struct {
	provider auth.Provider
	log      *slog.Logger
}

func New(provider auth.Provider, log *slog.Logger) *Auth {
	return &Auth{
		provider: provider,
		log:      log.With("component", "auth_middleware"),
	}
}

func (a *Auth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			owner := strings.ToLower(chi.URLParam(r, "owner"))

			username, password, ok := r.BasicAuth()
			if !ok {
				unauthorized(w)
				return
			}
			if strings.ToLower(username) != owner {
				// credentials may be fine, just not for the account named
				// in the path
				writeError(w, http.StatusUnauthorized, "5")
				return
			}

			passed, err := a.provider.Authenticate(r.Context(), owner, password)
			if err != nil {
				a.log.Error("authentication backend failed", "owner", owner, "error", err)
				writeError(w, http.StatusServiceUnavailable, "Database unavailable")
				return
			}
			if !passed {
				unauthorized(w)
				return
			}

			// alerts are advisory; a lookup failure never blocks the request
			if alert, err := a.provider.UserAlert(r.Context(), owner); err == nil && alert != "" {
				w.Header().Set("X-Weave-Alert", alert)
			}

			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="Weave"`)
	writeError(w, http.StatusUnauthorized, "Authentication failed")
}

func writeError(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, "%q", body)
}
