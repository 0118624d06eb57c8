// Package auth guards HTTP routes with basic credentials, opaque bearer
// tokens and admin service JWTs.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"example.com/gymlog/internal/domain"
	"example.com/gymlog/internal/observability"
)

const realm = `realm="gymlog"`

// Authenticator verifies end-user credentials.
type Authenticator interface {
	VerifyBasic(ctx context.Context, username, password string) (bool, error)
	VerifyBearer(ctx context.Context, token string) (*domain.User, error)
}

// Middleware enforces authentication on individual routes.
type Middleware struct {
	auth   Authenticator
	admin  Config
	logger logrus.FieldLogger
}

// NewMiddleware constructs Middleware. admin may be zero, which rejects every admin request.
func NewMiddleware(authenticator Authenticator, admin Config, logger logrus.FieldLogger) Middleware {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return Middleware{auth: authenticator, admin: admin, logger: logger}
}

// RequireBasic admits requests carrying valid HTTP Basic credentials.
func (m Middleware) RequireBasic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok {
			m.reject(w, "Basic", "missing basic credentials")
			return
		}
		valid, err := m.auth.VerifyBasic(r.Context(), username, password)
		if err != nil {
			m.logger.WithError(err).Error("basic auth lookup failed")
			writeProblem(w, http.StatusInternalServerError, "server_error", "internal server error")
			return
		}
		if !valid {
			m.reject(w, "Basic", "invalid username or password")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUsername(r.Context(), username)))
	})
}

// RequireBearer admits requests carrying a live access token.
func (m Middleware) RequireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			m.reject(w, "Bearer", ErrMissingToken.Error())
			return
		}
		user, err := m.auth.VerifyBearer(r.Context(), token)
		switch {
		case errors.Is(err, domain.ErrTokenExpired):
			m.reject(w, "Bearer", "token expired")
			return
		case errors.Is(err, domain.ErrUnauthorized):
			m.reject(w, "Bearer", "invalid token")
			return
		case err != nil:
			m.logger.WithError(err).Error("bearer token lookup failed")
			writeProblem(w, http.StatusInternalServerError, "server_error", "internal server error")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// RequireScope admits requests carrying an admin JWT with scope.
func (m Middleware) RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				m.reject(w, "Bearer", ErrMissingToken.Error())
				return
			}
			claims, err := Parse(token, m.admin)
			if err != nil {
				m.logger.WithError(err).Warn("admin token rejected")
				m.reject(w, "Bearer", ErrInvalidToken.Error())
				return
			}
			if !claims.HasScope(scope) {
				observability.RecordAuthFailure("scope")
				writeProblem(w, http.StatusForbidden, "forbidden", "missing scope "+scope)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

func (m Middleware) reject(w http.ResponseWriter, scheme, detail string) {
	observability.RecordAuthFailure(strings.ToLower(scheme))
	w.Header().Set("WWW-Authenticate", scheme+" "+realm)
	writeProblem(w, http.StatusUnauthorized, "unauthorized", detail)
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if len(header) < len("Bearer ") || !strings.EqualFold(header[:len("Bearer ")], "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(header[len("Bearer "):])
	return token, token != ""
}

func writeProblem(w http.ResponseWriter, status int, code, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"type": code, "detail": detail})
}
