package middleware

import (
	"bytes"
	"io"
	"net/http"

	"app/internal/util"

	"github.com/rs/zerolog"
)

// SignatureHeader carries the dispatcher's signed callback token.
const SignatureHeader = "X-Dispatch-Signature"

// DispatchAuthMiddleware verifies that a callback invocation really comes from
// the deferred-execution dispatcher. This is a separate trust boundary from
// user authentication: the signature is checked before any state mutation.
// When isLocalDev is true the check is bypassed.
func DispatchAuthMiddleware(isLocalDev bool, signingSecret string, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isLocalDev {
				logger.Debug().Msg("Skipping dispatch signature check for local environment")
				next.ServeHTTP(w, r)
				return
			}

			if signingSecret == "" {
				logger.Error().Msg("Dispatch auth middleware configured without a signing secret; requests will be denied")
				http.Error(w, "Configuration error: signing secret not set", http.StatusInternalServerError)
				return
			}

			sig := r.Header.Get(SignatureHeader)
			if sig == "" {
				logger.Warn().Msg("Missing dispatch signature header")
				http.Error(w, "Unauthorized: missing dispatch signature", http.StatusUnauthorized)
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				http.Error(w, "failed to read body", http.StatusBadRequest)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			if err := util.VerifyDispatch(sig, body, signingSecret); err != nil {
				logger.Error().Err(err).Msg("Failed to verify dispatch signature")
				http.Error(w, "Forbidden: invalid dispatch signature", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
