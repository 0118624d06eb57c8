package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"example.com/gymlog/internal/auth"
	"example.com/gymlog/internal/domain"
)

func TestRequestLoggerRecordsUserAndRequestID(t *testing.T) {
	logger, hook := test.NewNullLogger()
	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r = r.WithContext(auth.WithUser(r.Context(), &domain.User{ID: 1, Username: "neil"}))
		_, ok := currentUser(w, r)
		require.True(t, ok)
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusTeapot, rr.Code)
	requestID := rr.Header().Get(RequestIDHeader)
	require.NotEmpty(t, requestID)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	require.Equal(t, http.StatusTeapot, entry.Data["status"])
	require.Equal(t, "neil", entry.Data["user"])
	require.Equal(t, requestID, entry.Data["request_id"])
	require.Equal(t, "/api/sessions", entry.Data["path"])
}

func TestRequestLoggerKeepsIncomingRequestID(t *testing.T) {
	logger, hook := test.NewNullLogger()
	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, "abc-123", rr.Header().Get(RequestIDHeader))
	require.Equal(t, http.StatusOK, hook.LastEntry().Data["status"])
	require.NotContains(t, hook.LastEntry().Data, "user")
}

func TestCORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	rr := httptest.NewRecorder()
	CORS("http://localhost:5173")(next).ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/api/sessions", nil))
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Equal(t, "http://localhost:5173", rr.Header().Get("Access-Control-Allow-Origin"))

	rr = httptest.NewRecorder()
	CORS("")(next).ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/api/sessions", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestParseExerciseNamesRejectsNull(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/exercises", strings.NewReader(`{"exercises":null}`))
	_, err := parseExerciseNames(req)
	require.ErrorIs(t, err, domain.ErrValidation)
	require.EqualError(t, err, "Missing required parameter 'exercises' in the JSON body")
}
