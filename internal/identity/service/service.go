// Package service implements account management: registration, login, profile
// updates, and admin role changes. Credential handling stays on the identity
// aggregate; this service only orchestrates it.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"realhub/internal/authz"
	"realhub/internal/events"
	"realhub/internal/identity"
	"realhub/internal/platform/metrics"
	id "realhub/pkg/domain"
	"realhub/pkg/email"
	dErrors "realhub/pkg/domain-errors"
	"realhub/pkg/platform/sentinel"
	"realhub/pkg/requestcontext"
)

// TokenIssuer mints access tokens for authenticated principals. Satisfied by
// the token service.
type TokenIssuer interface {
	GenerateAccessToken(userID id.UserID, expiresIn time.Duration) (string, error)
}

type Service struct {
	users     identity.Store
	authz     *authz.Engine
	tokens    TokenIssuer
	tokenTTL  time.Duration
	publisher events.Publisher
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func New(users identity.Store, authzEngine *authz.Engine, tokens TokenIssuer, tokenTTL time.Duration, publisher events.Publisher, opts ...Option) *Service {
	s := &Service{
		users:     users,
		authz:     authzEngine,
		tokens:    tokens,
		tokenTTL:  tokenTTL,
		publisher: publisher,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type RegisterInput struct {
	Email       string
	Password    string
	FullName    string
	PhoneNumber string
	Address     string
	Role        string
}

// Session is the outcome of registration or login: the account plus a bearer
// token for it.
type Session struct {
	User        *identity.User `json:"user"`
	AccessToken string         `json:"access_token"`
}

// Register creates an account. Elevated roles cannot be self-assigned; they
// are granted by an admin role change after the fact.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	role, err := identity.ParseRole(in.Role)
	if err != nil {
		return nil, err
	}
	if role.IsAdmin() || role.IsGovernment() {
		return nil, dErrors.New(dErrors.CodeValidation, "role cannot be self-assigned")
	}

	fullName := in.FullName
	if fullName == "" {
		first, last := email.DeriveNameFromEmail(in.Email)
		fullName = first + " " + last
	}

	now := requestcontext.Now(ctx)
	user, err := identity.NewUser(id.UserID(uuid.New()), in.Email, fullName, role, now)
	if err != nil {
		return nil, err
	}
	user.PhoneNumber = in.PhoneNumber
	user.Address = in.Address
	if err := user.SetPassword(in.Password); err != nil {
		return nil, err
	}

	if err := s.users.CreateIfEmailAvailable(ctx, user); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "email already registered")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "creating user")
	}
	if s.metrics != nil {
		s.metrics.IncUsersCreated()
	}
	s.emit(ctx, user.ID, "user.registered", map[string]string{"role": string(role)})

	return s.session(user)
}

// Login verifies credentials and issues a token. Wrong email and wrong
// password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeForbidden, "invalid credentials")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "loading user")
	}
	if !user.CheckPassword(password) {
		return nil, dErrors.New(dErrors.CodeForbidden, "invalid credentials")
	}
	return s.session(user)
}

// Me returns the actor's own account.
func (s *Service) Me(ctx context.Context, actor identity.Actor) (*identity.User, error) {
	if actor.IsZero() {
		return nil, dErrors.New(dErrors.CodeForbidden, authz.ReasonForbidden)
	}
	user, err := s.users.FindByID(ctx, actor.ID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "loading user")
	}
	return user, nil
}

type UpdateProfileInput struct {
	FullName    *string
	PhoneNumber *string
	Address     *string
}

// UpdateProfile edits the actor's own profile fields. Email, role, and the
// verification flag are not profile fields.
func (s *Service) UpdateProfile(ctx context.Context, actor identity.Actor, in UpdateProfileInput) (*identity.User, error) {
	if err := s.authz.Require(actor, authz.ActionUpdateProfile, &authz.Target{OwnerID: actor.ID}); err != nil {
		return nil, err
	}
	user, err := s.users.FindByID(ctx, actor.ID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "loading user")
	}
	if in.FullName != nil {
		user.FullName = *in.FullName
	}
	if in.PhoneNumber != nil {
		user.PhoneNumber = *in.PhoneNumber
	}
	if in.Address != nil {
		user.Address = *in.Address
	}
	user.UpdatedAt = requestcontext.Now(ctx)
	if err := s.save(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// ChangePassword verifies the current credential before replacing it.
func (s *Service) ChangePassword(ctx context.Context, actor identity.Actor, oldPassword, newPassword string) error {
	if actor.IsZero() {
		return dErrors.New(dErrors.CodeForbidden, authz.ReasonForbidden)
	}
	user, err := s.users.FindByID(ctx, actor.ID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "loading user")
	}
	if !user.CheckPassword(oldPassword) {
		return dErrors.New(dErrors.CodeValidation, "current password is incorrect")
	}
	if err := user.SetPassword(newPassword); err != nil {
		return err
	}
	user.UpdatedAt = requestcontext.Now(ctx)
	return s.save(ctx, user)
}

// List returns all accounts. Admin only.
func (s *Service) List(ctx context.Context, actor identity.Actor) ([]*identity.User, error) {
	if err := s.authz.Require(actor, authz.ActionManageUsers, nil); err != nil {
		return nil, err
	}
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "listing users")
	}
	return users, nil
}

// Get returns an account by ID. Admin only; users read themselves via Me.
func (s *Service) Get(ctx context.Context, actor identity.Actor, userID id.UserID) (*identity.User, error) {
	if err := s.authz.Require(actor, authz.ActionManageUsers, nil); err != nil {
		return nil, err
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "loading user")
	}
	return user, nil
}

// ChangeRole reassigns an account's role. Admin only.
func (s *Service) ChangeRole(ctx context.Context, actor identity.Actor, userID id.UserID, newRole string) (*identity.User, error) {
	if err := s.authz.Require(actor, authz.ActionManageUsers, nil); err != nil {
		return nil, err
	}
	role, err := identity.ParseRole(newRole)
	if err != nil {
		return nil, err
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "loading user")
	}
	if user.Role == role {
		return user, nil
	}
	from := user.Role
	user.Role = role
	user.UpdatedAt = requestcontext.Now(ctx)
	if err := s.save(ctx, user); err != nil {
		return nil, err
	}
	s.emit(ctx, actor.ID, "user.role_changed", map[string]string{
		"user_id": userID.String(),
		"from":    string(from),
		"to":      string(role),
	})
	return user, nil
}

// SeedAdmin ensures a bootstrap admin account exists. Used at startup for
// development and first-run deployments; a no-op when the email is taken.
func (s *Service) SeedAdmin(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return nil
	}
	now := requestcontext.Now(ctx)
	admin, err := identity.NewUser(id.UserID(uuid.New()), email, "Administrator", identity.RoleAdmin, now)
	if err != nil {
		return err
	}
	admin.Verified = true
	if err := admin.SetPassword(password); err != nil {
		return err
	}
	if err := s.users.CreateIfEmailAvailable(ctx, admin); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "seeding admin")
	}
	s.logger.InfoContext(ctx, "bootstrap admin created", "email", email)
	return nil
}

func (s *Service) save(ctx context.Context, user *identity.User) error {
	if err := s.users.Update(ctx, user); err != nil {
		if errors.Is(err, sentinel.ErrStaleState) {
			return dErrors.Wrap(err, dErrors.CodeStaleState, "user changed since it was read")
		}
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "saving user")
	}
	return nil
}

func (s *Service) session(user *identity.User) (*Session, error) {
	token, err := s.tokens.GenerateAccessToken(user.ID, s.tokenTTL)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "issuing token")
	}
	return &Session{User: user, AccessToken: token}, nil
}

func (s *Service) emit(ctx context.Context, actorID id.UserID, name string, fields map[string]string) {
	event := events.Event{
		Name:       name,
		Kind:       id.KindUser,
		EntityID:   actorID.String(),
		ActorID:    actorID,
		OccurredAt: requestcontext.Now(ctx),
		Fields:     fields,
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "event publish failed", "event", name, "error", err)
		return
	}
	if s.metrics != nil {
		s.metrics.IncEventPublished(name)
	}
}
