package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"example.com/gymlog/internal/domain"
)

type stubAuthenticator struct {
	users    map[string]string
	tokens   map[string]*domain.User
	expired  map[string]bool
	failWith error
}

func (s stubAuthenticator) VerifyBasic(_ context.Context, username, password string) (bool, error) {
	if s.failWith != nil {
		return false, s.failWith
	}
	pw, ok := s.users[username]
	return ok && pw == password, nil
}

func (s stubAuthenticator) VerifyBearer(_ context.Context, token string) (*domain.User, error) {
	if s.failWith != nil {
		return nil, s.failWith
	}
	if s.expired[token] {
		return nil, domain.ErrTokenExpired
	}
	user, ok := s.tokens[token]
	if !ok {
		return nil, domain.ErrUnknownToken
	}
	return user, nil
}

func newTestMiddleware(a Authenticator) Middleware {
	logger, _ := test.NewNullLogger()
	return NewMiddleware(a, Config{Secret: "s3cret", Issuer: "gymlog.admin"}, logger)
}

func decodeProblem(t *testing.T, rr *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body
}

func TestRequireBasic(t *testing.T) {
	m := newTestMiddleware(stubAuthenticator{users: map[string]string{"neil": "pw"}})
	var seen string
	handler := m.RequireBasic(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UsernameFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/token", nil)
	req.SetBasicAuth("neil", "pw")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "neil", seen)

	req = httptest.NewRequest(http.MethodGet, "/api/token", nil)
	req.SetBasicAuth("neil", "wrong")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Equal(t, `Basic realm="gymlog"`, rr.Header().Get("WWW-Authenticate"))
	require.Equal(t, "unauthorized", decodeProblem(t, rr)["type"])

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/token", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRequireBearer(t *testing.T) {
	neil := &domain.User{ID: 7, Username: "neil"}
	m := newTestMiddleware(stubAuthenticator{
		tokens:  map[string]*domain.User{"live": neil},
		expired: map[string]bool{"old": true},
	})
	var seen *domain.User
	handler := m.RequireBearer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name   string
		header string
		status int
		detail string
	}{
		{name: "live token", header: "Bearer live", status: http.StatusNoContent},
		{name: "lower case scheme", header: "bearer live", status: http.StatusNoContent},
		{name: "expired", header: "Bearer old", status: http.StatusUnauthorized, detail: "token expired"},
		{name: "unknown", header: "Bearer nope", status: http.StatusUnauthorized, detail: "invalid token"},
		{name: "missing", header: "", status: http.StatusUnauthorized, detail: ErrMissingToken.Error()},
		{name: "wrong scheme", header: "Basic Zm9vOmJhcg==", status: http.StatusUnauthorized, detail: ErrMissingToken.Error()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			require.Equal(t, tc.status, rr.Code)
			if tc.status == http.StatusNoContent {
				require.Equal(t, neil, seen)
				return
			}
			require.Nil(t, seen)
			require.Equal(t, tc.detail, decodeProblem(t, rr)["detail"])
		})
	}
}

func TestStoreFailureIsServerError(t *testing.T) {
	m := newTestMiddleware(stubAuthenticator{failWith: errors.New("db down")})
	handler := m.RequireBearer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	req.Header.Set("Authorization", "Bearer live")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.Equal(t, "server_error", decodeProblem(t, rr)["type"])
}

func TestRequireScope(t *testing.T) {
	cfg := Config{Secret: "s3cret", Issuer: "gymlog.admin"}
	m := newTestMiddleware(stubAuthenticator{})
	handler := m.RequireScope(ScopeAdminUsers)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		require.True(t, ok)
		require.Equal(t, "ops", claims.Subject)
		w.WriteHeader(http.StatusNoContent)
	}))

	now := time.Now()
	admin, err := Mint(cfg, "ops", []string{ScopeAdminUsers}, time.Minute, now)
	require.NoError(t, err)
	reader, err := Mint(cfg, "ops", []string{"sessions:read"}, time.Minute, now)
	require.NoError(t, err)
	forged, err := Mint(Config{Secret: "other", Issuer: cfg.Issuer}, "ops", []string{ScopeAdminUsers}, time.Minute, now)
	require.NoError(t, err)

	for token, status := range map[string]int{
		admin:  http.StatusNoContent,
		reader: http.StatusForbidden,
		forged: http.StatusUnauthorized,
	} {
		req := httptest.NewRequest(http.MethodPut, "/admin/users/neil/password", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		require.Equal(t, status, rr.Code)
	}
}

func TestNewMiddlewareDefaultsLogger(t *testing.T) {
	m := NewMiddleware(stubAuthenticator{}, Config{}, nil)
	require.Equal(t, logrus.StandardLogger(), m.logger)
}
