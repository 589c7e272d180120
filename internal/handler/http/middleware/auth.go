package middleware

import (
	"net/http"

	"github.com/cmlabs-hris/hris-presence-go/internal/domain/auth"
	"github.com/cmlabs-hris/hris-presence-go/internal/handler/http/response"
	"github.com/cmlabs-hris/hris-presence-go/internal/pkg/validator"
	"github.com/go-chi/jwtauth/v5"
)

// AuthRequired rejects requests without a verified token of one of the given
// types. With no types only access tokens pass.
func AuthRequired(ja *jwtauth.JWTAuth, tokenTypes ...string) func(http.Handler) http.Handler {
	if len(tokenTypes) == 0 {
		tokenTypes = []string{auth.TokenTypeAccess}
	}

	return func(next http.Handler) http.Handler {
		hfn := func(w http.ResponseWriter, r *http.Request) {
			token, _, err := jwtauth.FromContext(r.Context())

			if err != nil {
				response.Unauthorized(w, err.Error())
				return
			}

			if token == nil {
				response.HandleError(w, auth.ErrInvalidToken)
				return
			}

			claims, err := token.AsMap(r.Context())
			if err != nil {
				response.HandleError(w, auth.ErrInvalidToken)
				return
			}
			tokenType, ok := claims["type"].(string)
			if !ok || !validator.IsInSlice(tokenType, tokenTypes) {
				response.HandleError(w, auth.ErrInvalidToken)
				return
			}
			if _, err := auth.UserIDFromClaims(claims); err != nil {
				response.HandleError(w, err)
				return
			}

			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(hfn)
	}
}
