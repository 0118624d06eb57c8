// Package api exposes HTTP handlers for the gym log.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"example.com/gymlog/internal/auth"
	"example.com/gymlog/internal/domain"
)

// SessionDateLayout renders session dates RFC-822 style. Dates are UTC
// midnight so the zone is always written as -0000.
const SessionDateLayout = "Mon, 02 Jan 2006 15:04:05 -0000"

// Services bundles the domain services the handlers drive.
type Services struct {
	Gateway *domain.Gateway
	Catalog *domain.Catalog
	Ledger  *domain.Ledger
	Reader  *domain.Reader
}

// Handler coordinates HTTP requests with the domain services.
type Handler struct {
	services Services
	logger   logrus.FieldLogger
}

// NewHandler builds a Handler.
func NewHandler(services Services, logger logrus.FieldLogger) *Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Handler{services: services, logger: logger}
}

// RegisterRoutes wires endpoints to the router. limiter may be nil.
func (h *Handler) RegisterRoutes(router *mux.Router, guard auth.Middleware, limiter *auth.RateLimiter) {
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "no route for "+r.URL.Path)
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	})

	router.HandleFunc("/healthz", healthz).Methods(http.MethodGet)

	var token http.Handler = guard.RequireBasic(http.HandlerFunc(h.issueToken))
	if limiter != nil {
		token = limiter.Handler(token)
	}

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/register", h.register).Methods(http.MethodPost)
	api.Handle("/token", token).Methods(http.MethodGet, http.MethodPost)
	api.Handle("/exercises", guard.RequireBearer(http.HandlerFunc(h.listExercises))).Methods(http.MethodGet)
	api.Handle("/exercises", guard.RequireBearer(http.HandlerFunc(h.registerExercises))).Methods(http.MethodPost)
	api.Handle("/sessions", guard.RequireBearer(http.HandlerFunc(h.listSessions))).Methods(http.MethodGet)
	api.Handle("/sessions", guard.RequireBearer(http.HandlerFunc(h.recordSession))).Methods(http.MethodPost)
	api.Handle("/sessions/{date}", guard.RequireBearer(http.HandlerFunc(h.sessionByDate))).Methods(http.MethodGet)
	api.Handle("/sessions/{date}", guard.RequireBearer(http.HandlerFunc(h.deleteSession))).Methods(http.MethodDelete)

	admin := router.PathPrefix("/admin").Subrouter()
	admin.Use(guard.RequireScope(auth.ScopeAdminUsers))
	admin.HandleFunc("/users/{username}/password", h.resetPassword).Methods(http.MethodPut)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	in, err := parseRegister(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	user, err := h.services.Gateway.Register(r.Context(), in.Username, in.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, RegisterResponse{Username: user.Username})
}

func (h *Handler) issueToken(w http.ResponseWriter, r *http.Request) {
	username, ok := auth.UsernameFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing basic credentials")
		return
	}
	setTraceUser(r.Context(), username)
	token, err := h.services.Gateway.IssueToken(r.Context(), username)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	status := http.StatusOK
	if r.Method == http.MethodPost {
		status = http.StatusCreated
	}
	writeJSON(w, status, TokenResponse{Token: token.Value, ExpiresAt: token.ExpiresAt})
}

func (h *Handler) listExercises(w http.ResponseWriter, r *http.Request) {
	if _, ok := currentUser(w, r); !ok {
		return
	}
	names, err := h.services.Catalog.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, names)
}

func (h *Handler) registerExercises(w http.ResponseWriter, r *http.Request) {
	if _, ok := currentUser(w, r); !ok {
		return
	}
	names, err := parseExerciseNames(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	registered, err := h.services.Catalog.Register(r.Context(), names)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, registered)
}

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	views, err := h.services.Reader.Read(r.Context(), user.ID, nil)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionEnvelopes(views))
}

func (h *Handler) sessionByDate(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	views, err := h.services.Reader.ReadDate(r.Context(), user.ID, mux.Vars(r)["date"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionEnvelopes(views))
}

func (h *Handler) recordSession(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	in, err := parseSession(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	receipt, err := h.services.Ledger.Record(r.Context(), user.ID, in.Date, in.Specs)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, RecordResponse{
		Message: "Record successfully created",
		Records: receipt.Records,
	})
}

func (h *Handler) deleteSession(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	raw := mux.Vars(r)["date"]
	date, err := domain.ParseDate(raw)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	day := domain.FormatDate(date)
	err = h.services.Ledger.Delete(r.Context(), user.ID, date)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, MessageResponse{
			Message: fmt.Sprintf("Session for user '%s' on '%s' deleted", user.Username, day),
		})
	case errors.Is(err, domain.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "not_found",
			fmt.Sprintf("Session for user '%s' on '%s' not found", user.Username, day))
	case errors.Is(err, domain.ErrDeleteFailed):
		h.logger.WithError(err).WithField("date", day).Error("session delete failed")
		writeError(w, http.StatusInternalServerError, "delete_failed",
			fmt.Sprintf("Session for user '%s' on '%s' failed to delete", user.Username, day))
	default:
		h.fail(w, r, err)
	}
}

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	in, err := parsePassword(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	username := mux.Vars(r)["username"]
	if err := h.services.Gateway.ResetPassword(r.Context(), username, in.Password); err != nil {
		h.fail(w, r, err)
		return
	}

	entry := h.logger.WithField("username", username)
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
		entry = entry.WithField("operator", claims.Subject)
	}
	entry.Info("password reset")
	w.WriteHeader(http.StatusNoContent)
}

func currentUser(w http.ResponseWriter, r *http.Request) (*domain.User, bool) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	setTraceUser(r.Context(), user.Username)
	return user, true
}

// fail maps an error kind to a status. Unclassified errors are logged and
// reported without detail.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, domain.ErrDuplicate):
		writeError(w, http.StatusConflict, "duplicate", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
	default:
		h.logger.WithError(err).WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error("request failed")
		writeError(w, http.StatusInternalServerError, "server_error", "internal server error")
	}
}

// RegisterResponse is returned by POST /api/register.
type RegisterResponse struct {
	Username string `json:"username"`
}

// TokenResponse carries a freshly issued bearer token.
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RecordResponse is returned by POST /api/sessions.
type RecordResponse struct {
	Message string `json:"message"`
	Records int    `json:"records"`
}

// MessageResponse is a plain status message.
type MessageResponse struct {
	Message string `json:"message"`
}

// SessionEnvelope wraps one session the way clients expect it.
type SessionEnvelope struct {
	Session SessionBody `json:"session"`
}

// SessionBody is the grouped view of a session.
type SessionBody struct {
	Date      string      `json:"date"`
	Username  string      `json:"username"`
	Exercises []string    `json:"exercises"`
	Reps      [][]int     `json:"reps"`
	Weights   [][]float64 `json:"weights"`
}

func toSessionEnvelopes(views []domain.SessionView) []SessionEnvelope {
	out := make([]SessionEnvelope, 0, len(views))
	for _, v := range views {
		out = append(out, SessionEnvelope{Session: SessionBody{
			Date:      v.Date.UTC().Format(SessionDateLayout),
			Username:  v.Username,
			Exercises: v.Exercises,
			Reps:      v.Reps,
			Weights:   v.Weights,
		}})
	}
	return out
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
