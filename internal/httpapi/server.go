// Package httpapi exposes the account operations over HTTP. It is a thin
// boundary: decode, call the service, map errors to status codes.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/coursehub/users-service/internal/messaging"
	"github.com/coursehub/users-service/internal/users"
)

// UsersService is the account service surface the HTTP layer needs.
type UsersService interface {
	Register(ctx context.Context, name, email, password string) (*users.Session, error)
	Login(ctx context.Context, email, password string) (*users.Session, error)
	AddToCart(ctx context.Context, userID, courseID int64) error
	RemoveFromCart(ctx context.Context, userID, courseID int64) error
	SyncCart(ctx context.Context, userID int64, courseIDs []int64) error
	Cart(ctx context.Context, userID int64) ([]json.RawMessage, error)
	AddToOwned(ctx context.Context, userID, courseID int64) error
	OwnedCourses(ctx context.Context, userID int64) ([]int64, error)
}

// TokenVerifier validates bearer tokens.
type TokenVerifier interface {
	Verify(token string) (int64, error)
}

// Server routes account requests.
type Server struct {
	Router   *mux.Router
	service  UsersService
	verifier TokenVerifier
	logger   *slog.Logger
}

// ServerOption configures the server.
type ServerOption func(*Server)

// WithServerLogger sets the logger.
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer builds the router.
func NewServer(service UsersService, verifier TokenVerifier, corsOrigin string, options ...ServerOption) *Server {
	s := &Server{
		Router:   mux.NewRouter(),
		service:  service,
		verifier: verifier,
		logger:   slog.Default(),
	}

	for _, opt := range options {
		opt(s)
	}

	s.Router.Use(corsMiddleware(corsOrigin))

	s.Router.HandleFunc("/users/register", s.handleRegister).Methods(http.MethodPost, http.MethodOptions)
	s.Router.HandleFunc("/users/login", s.handleLogin).Methods(http.MethodPost, http.MethodOptions)

	authed := s.Router.NewRoute().Subrouter()
	authed.Use(s.authMiddleware)
	authed.HandleFunc("/users/add-to-cart", s.handleAddToCart).Methods(http.MethodPost, http.MethodOptions)
	authed.HandleFunc("/users/remove-from-cart", s.handleRemoveFromCart).Methods(http.MethodPost, http.MethodOptions)
	authed.HandleFunc("/users/sync-cart", s.handleSyncCart).Methods(http.MethodPost, http.MethodOptions)
	authed.HandleFunc("/users/add-to-owned", s.handleAddToOwned).Methods(http.MethodPost, http.MethodOptions)
	authed.HandleFunc("/users/cart/{userId}", s.handleCart).Methods(http.MethodGet, http.MethodOptions)
	authed.HandleFunc("/users/owned/{userId}", s.handleOwned).Methods(http.MethodGet, http.MethodOptions)

	s.Router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	return s
}

type credentialsRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type cartItemRequest struct {
	UserID   int64 `json:"userId"`
	CourseID int64 `json:"courseId"`
}

type syncCartRequest struct {
	UserID  int64 `json:"userId"`
	Courses []struct {
		ID int64 `json:"id"`
	} `json:"courses"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !s.decode(w, r, &req) {
		return
	}

	session, err := s.service.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, session)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !s.decode(w, r, &req) {
		return
	}

	session, err := s.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleAddToCart(w http.ResponseWriter, r *http.Request) {
	var req cartItemRequest
	if !s.decode(w, r, &req) {
		return
	}

	if err := s.service.AddToCart(r.Context(), req.UserID, req.CourseID); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]string{"status": "added"})
}

func (s *Server) handleRemoveFromCart(w http.ResponseWriter, r *http.Request) {
	var req cartItemRequest
	if !s.decode(w, r, &req) {
		return
	}

	if err := s.service.RemoveFromCart(r.Context(), req.UserID, req.CourseID); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (s *Server) handleSyncCart(w http.ResponseWriter, r *http.Request) {
	var req syncCartRequest
	if !s.decode(w, r, &req) {
		return
	}

	courseIDs := make([]int64, 0, len(req.Courses))
	for _, c := range req.Courses {
		courseIDs = append(courseIDs, c.ID)
	}

	if err := s.service.SyncCart(r.Context(), req.UserID, courseIDs); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "synced"})
}

func (s *Server) handleAddToOwned(w http.ResponseWriter, r *http.Request) {
	var req cartItemRequest
	if !s.decode(w, r, &req) {
		return
	}

	if err := s.service.AddToOwned(r.Context(), req.UserID, req.CourseID); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]string{"status": "owned"})
}

func (s *Server) handleCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.pathUserID(w, r)
	if !ok {
		return
	}

	courses, err := s.service.Cart(r.Context(), userID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"cart": courses})
}

func (s *Server) handleOwned(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.pathUserID(w, r)
	if !ok {
		return
	}

	courseIDs, err := s.service.OwnedCourses(r.Context(), userID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"owned": courseIDs})
}

func (s *Server) pathUserID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, err := strconv.ParseInt(mux.Vars(r)["userId"], 10, 64)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid user id"})
		return 0, false
	}
	return userID, true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var status int
	switch {
	case errors.Is(err, users.ErrEmailTaken),
		errors.Is(err, users.ErrAlreadyInCart),
		errors.Is(err, users.ErrAlreadyOwned):
		status = http.StatusConflict

	case errors.Is(err, users.ErrInvalidCredentials):
		status = http.StatusUnauthorized

	case errors.Is(err, messaging.ErrReplyTimeout):
		status = http.StatusGatewayTimeout

	default:
		s.logger.Error("request failed", "error", err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
