package auth

import (
	"net/http"

	"github.com/charmbracelet/log"
)

// HeaderName carries the "clientId:secretKey" credential.
const HeaderName = "X-API-KEY"

// RequireAPIKey rejects requests without a valid credential and stores the
// authenticated client id in the request context.
func RequireAPIKey(v *Validator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cred, outcome := v.Authenticate(r.Header.Get(HeaderName))
			switch outcome {
			case OutcomeAuthenticated:
				next.ServeHTTP(w, r.WithContext(WithClientID(r.Context(), cred.ClientID)))
				return
			case OutcomeRejected:
				log.Warn("API key rejected", "client_id", cred.ClientID, "path", r.URL.Path, "remote", r.RemoteAddr)
			default:
				log.Debug("API key missing or malformed", "path", r.URL.Path, "remote", r.RemoteAddr)
			}
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
		})
	}
}
