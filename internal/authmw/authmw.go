// Package authmw provides HTTP middleware for bearer token authentication.
package authmw

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"
)

const bearerPrefix = "Bearer "

// BearerToken returns middleware that admits requests whose Authorization
// header carries token as a Bearer credential. Rejections are logged with
// the reason but never with the presented credential. It panics on an
// empty token.
func BearerToken(token string, logger log.Logger) func(http.Handler) http.Handler {
	if token == "" {
		panic(xerrors.New("bearer token is required"))
	}
	if logger == nil {
		logger = log.Nop()
	}
	expected := []byte(token)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")

			got, ok := strings.CutPrefix(auth, bearerPrefix)
			if !ok {
				reject(w, r, logger, "missing or malformed authorization header")
				return
			}

			if subtle.ConstantTimeCompare([]byte(got), expected) != 1 {
				reject(w, r, logger, "invalid token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func reject(w http.ResponseWriter, r *http.Request, logger log.Logger, reason string) {
	logger.Warn(r.Context(), "unauthorized request", "reason", reason, "method", r.Method, "path", r.URL.Path)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="raven"`)
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + reason + `"}` + "\n"))
}
