package admin

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/maxpert/commitlog-cdc/cfg"
	"github.com/rs/zerolog/log"
)

const secretHeader = "X-CDC-Secret"

// AuthMiddleware requires admin.secret on every request, either in the
// X-CDC-Secret header or as a bearer token. Without a configured secret the
// API is open.
func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		want := cfg.Config.Admin.Secret
		if want == "" {
			next.ServeHTTP(w, r)
			return
		}

		got, reason := credentials(r)
		if reason == "" && subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
			reason = "invalid secret"
		}
		if reason != "" {
			log.Debug().Str("path", r.URL.Path).Str("remote", r.RemoteAddr).Str("reason", reason).Msg("Admin request rejected")
			writeErrorResponse(w, http.StatusUnauthorized, reason)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// credentials extracts the presented secret, or the reason none was usable
func credentials(r *http.Request) (string, string) {
	if s := r.Header.Get(secretHeader); s != "" {
		return s, ""
	}

	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", "missing authentication header"
	}
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok || token == "" {
		return "", "invalid authorization header format"
	}
	return token, ""
}
