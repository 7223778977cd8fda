// Package users implements the account service: registration, login, cart
// and owned-course operations, the bus responders that answer user-detail
// requests, and the purchase fulfillment consumer.
package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/coursehub/users-service/internal/store"
)

var (
	// ErrEmailTaken is returned when registering with an email already in use.
	ErrEmailTaken = errors.New("users: email already in use")
	// ErrInvalidCredentials is returned for unknown email or wrong password.
	ErrInvalidCredentials = errors.New("users: invalid credentials")
	// ErrAlreadyInCart is returned when a course is already in the cart.
	ErrAlreadyInCart = errors.New("users: course already in cart")
	// ErrAlreadyOwned is returned when a course is already owned.
	ErrAlreadyOwned = errors.New("users: course already owned")
)

// UserStore persists accounts.
type UserStore interface {
	Create(ctx context.Context, email, name, passwordHash string) (*store.User, error)
	ByEmail(ctx context.Context, email string) (*store.User, error)
	ByID(ctx context.Context, id int64) (*store.User, error)
}

// CartStore persists cart entries.
type CartStore interface {
	Add(ctx context.Context, userID, courseID int64) error
	AddIfAbsent(ctx context.Context, userID, courseID int64) (bool, error)
	Remove(ctx context.Context, userID, courseID int64) error
	Clear(ctx context.Context, userID int64) error
	CourseIDs(ctx context.Context, userID int64) ([]int64, error)
}

// OwnedStore persists owned-course records.
type OwnedStore interface {
	Add(ctx context.Context, userID, courseID int64) error
	Grant(ctx context.Context, userID int64, courseIDs []int64) error
	CourseIDs(ctx context.Context, userID int64) ([]int64, error)
}

// TokenIssuer signs session tokens.
type TokenIssuer interface {
	Issue(userID int64) (string, error)
}

// PasswordHasher hashes and checks account passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Check(hash, password string) bool
}

// CourseClient calls the course-catalog service over the bus.
type CourseClient interface {
	Call(ctx context.Context, queue string, request []byte, timeout time.Duration) ([]byte, error)
}

// Session is the result of a successful register or login.
type Session struct {
	Token string `json:"token"`
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Service implements the account operations.
type Service struct {
	users      UserStore
	cart       CartStore
	owned      OwnedStore
	tokens     TokenIssuer
	passwords  PasswordHasher
	courses    CourseClient
	rpcTimeout time.Duration
	logger     *slog.Logger
}

// ServiceOption configures the service.
type ServiceOption func(*Service)

// WithServiceLogger sets the logger.
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithRPCTimeout sets the deadline for course-catalog calls.
func WithRPCTimeout(timeout time.Duration) ServiceOption {
	return func(s *Service) {
		s.rpcTimeout = timeout
	}
}

// NewService wires the account service.
func NewService(users UserStore, cart CartStore, owned OwnedStore, tokens TokenIssuer, passwords PasswordHasher, courses CourseClient, options ...ServiceOption) *Service {
	s := &Service{
		users:      users,
		cart:       cart,
		owned:      owned,
		tokens:     tokens,
		passwords:  passwords,
		courses:    courses,
		rpcTimeout: 5 * time.Second,
		logger:     slog.Default(),
	}

	for _, opt := range options {
		opt(s)
	}

	return s
}

// Register creates an account and returns a fresh session.
func (s *Service) Register(ctx context.Context, name, email, password string) (*Session, error) {
	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, err
	}

	u, err := s.users.Create(ctx, email, name, hash)
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	s.logger.Info("user registered", "userId", u.ID)
	return s.session(u)
}

// Login checks credentials and returns a fresh session.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	u, err := s.users.ByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !s.passwords.Check(u.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	return s.session(u)
}

func (s *Service) session(u *store.User) (*Session, error) {
	token, err := s.tokens.Issue(u.ID)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ID: u.ID, Email: u.Email, Name: u.Name}, nil
}

// AddToCart puts a course in the user's cart.
func (s *Service) AddToCart(ctx context.Context, userID, courseID int64) error {
	if err := s.cart.Add(ctx, userID, courseID); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return ErrAlreadyInCart
		}
		return err
	}
	return nil
}

// RemoveFromCart takes a course out of the user's cart.
func (s *Service) RemoveFromCart(ctx context.Context, userID, courseID int64) error {
	return s.cart.Remove(ctx, userID, courseID)
}

// SyncCart merges courseIDs into the user's cart, skipping entries already
// present.
func (s *Service) SyncCart(ctx context.Context, userID int64, courseIDs []int64) error {
	for _, courseID := range courseIDs {
		if _, err := s.cart.AddIfAbsent(ctx, userID, courseID); err != nil {
			return err
		}
	}
	return nil
}

// Cart returns the detailed contents of the user's cart, resolving course
// details through the course-catalog service.
func (s *Service) Cart(ctx context.Context, userID int64) ([]json.RawMessage, error) {
	courseIDs, err := s.cart.CourseIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(courseIDs) == 0 {
		return []json.RawMessage{}, nil
	}

	request, err := json.Marshal(courseDetailsRequest{CourseIDs: courseIDs})
	if err != nil {
		return nil, err
	}

	payload, err := s.courses.Call(ctx, CourseQueue, request, s.rpcTimeout)
	if err != nil {
		return nil, err
	}

	var courses []json.RawMessage
	if err := json.Unmarshal(payload, &courses); err != nil {
		return nil, fmt.Errorf("decode course details: %w", err)
	}
	return courses, nil
}

// AddToOwned records direct ownership of a course.
func (s *Service) AddToOwned(ctx context.Context, userID, courseID int64) error {
	if err := s.owned.Add(ctx, userID, courseID); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return ErrAlreadyOwned
		}
		return err
	}
	return nil
}

// OwnedCourses lists the course ids the user owns.
func (s *Service) OwnedCourses(ctx context.Context, userID int64) ([]int64, error) {
	return s.owned.CourseIDs(ctx, userID)
}
