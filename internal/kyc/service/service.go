// Package service implements KYC submission and review. The review decision
// and the user's verified flag commit together; the flag write is idempotent
// so re-reviews never double-apply the side effect.
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
	"realhub/internal/kyc/models"
	"realhub/internal/kyc/store"
	"realhub/internal/platform/metrics"
	"realhub/internal/statemachine"
	id "realhub/pkg/domain"
	dErrors "realhub/pkg/domain-errors"
	"realhub/pkg/platform/sentinel"
	"realhub/pkg/platform/tx"
	"realhub/pkg/requestcontext"
)

type Service struct {
	kyc         store.Store
	users       identity.Store
	authz       *authz.Engine
	transitions *statemachine.Engine
	publisher   events.Publisher
	txRunner    *tx.Runner
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func New(kycStore store.Store, users identity.Store, authzEngine *authz.Engine, transitions *statemachine.Engine, publisher events.Publisher, txRunner *tx.Runner, opts ...Option) *Service {
	s := &Service{
		kyc:         kycStore,
		users:       users,
		authz:       authzEngine,
		transitions: transitions,
		publisher:   publisher,
		txRunner:    txRunner,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type SubmitInput struct {
	IDType                     string
	IDNumber                   string
	BusinessName               string
	BusinessRegistrationNumber string
}

// Submit files or refreshes the actor's verification request. A resubmission
// replaces the profile fields and returns the record to PENDING; the verified
// flag is only ever changed by a review decision.
func (s *Service) Submit(ctx context.Context, actor identity.Actor, in SubmitInput) (*models.Verification, error) {
	if actor.IsZero() {
		return nil, dErrors.New(dErrors.CodeForbidden, authz.ReasonForbidden)
	}
	if in.IDType == "" || in.IDNumber == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "id_type and id_number are required")
	}

	user, err := s.users.FindByID(ctx, actor.ID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "loading user")
	}
	if user.Role == identity.RoleRealEstateFirm && (in.BusinessName == "" || in.BusinessRegistrationNumber == "") {
		return nil, dErrors.New(dErrors.CodeValidation, "business name and registration number are required for firms")
	}

	now := requestcontext.Now(ctx)
	existing, err := s.kyc.FindByUser(ctx, actor.ID)
	switch {
	case err == nil:
		if err := s.resubmit(ctx, actor, existing, user, in, now); err != nil {
			return nil, err
		}
		s.emit(ctx, actor, "kyc.submitted", existing.ID.String(), nil)
		return existing, nil
	case errors.Is(err, sentinel.ErrNotFound):
	default:
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "loading kyc verification")
	}

	verification, err := models.NewVerification(id.KYCID(uuid.New()), actor.ID, now)
	if err != nil {
		return nil, err
	}
	err = s.txRunner.InTx(ctx, func(ctx context.Context) error {
		if err := s.kyc.Create(ctx, verification); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, "a verification request already exists")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "creating kyc verification")
		}
		applyProfile(user, in, now)
		if err := s.users.Update(ctx, user); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "saving kyc profile")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, actor, "kyc.submitted", verification.ID.String(), nil)
	return verification, nil
}

// resubmit refreshes an existing record. A reviewed record re-enters the queue
// through the transition engine; a still-pending one just updates in place.
func (s *Service) resubmit(ctx context.Context, actor identity.Actor, verification *models.Verification, user *identity.User, in SubmitInput, now time.Time) error {
	write := func(ctx context.Context, now time.Time) error {
		verification.ApplyResubmission(now)
		if err := s.kyc.Update(ctx, verification); err != nil {
			return err
		}
		applyProfile(user, in, now)
		if err := s.users.Update(ctx, user); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "saving kyc profile")
		}
		return nil
	}
	if verification.Status == statemachine.KYCPending {
		return s.txRunner.InTx(ctx, func(ctx context.Context) error {
			if err := write(ctx, now); err != nil {
				if errors.Is(err, sentinel.ErrStaleState) {
					return dErrors.Wrap(err, dErrors.CodeStaleState, "verification changed since it was read")
				}
				return err
			}
			return nil
		})
	}
	tr := statemachine.Transition{
		Kind:      id.KindKYC,
		EntityID:  verification.ID.String(),
		Action:    authz.ActionUpdateProfile,
		Owner:     verification.UserID,
		Current:   verification.Status,
		Requested: statemachine.KYCPending,
		Apply: func(ctx context.Context, now time.Time) error {
			return s.txRunner.InTx(ctx, func(ctx context.Context) error {
				return write(ctx, now)
			})
		},
	}
	return s.transitions.Run(ctx, actor, tr)
}

// Mine returns the actor's own verification record.
func (s *Service) Mine(ctx context.Context, actor identity.Actor) (*models.Verification, error) {
	if actor.IsZero() {
		return nil, dErrors.New(dErrors.CodeForbidden, authz.ReasonForbidden)
	}
	verification, err := s.kyc.FindByUser(ctx, actor.ID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, notFound()
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "loading kyc verification")
	}
	return verification, nil
}

// Get returns one record if visible to the actor; out-of-scope and
// nonexistent are indistinguishable.
func (s *Service) Get(ctx context.Context, actor identity.Actor, kycID id.KYCID) (*models.Verification, error) {
	return s.visible(ctx, actor, kycID)
}

// Pending returns the review queue for government and admin actors.
func (s *Service) Pending(ctx context.Context, actor identity.Actor) ([]*models.Verification, error) {
	if err := s.authz.Require(actor, authz.ActionReviewKYC, nil); err != nil {
		return nil, err
	}
	records, err := s.kyc.List(ctx, authz.Scope{All: true}, store.Filter{Status: statemachine.KYCPending})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "listing kyc verifications")
	}
	return records, nil
}

// Approve moves a record to APPROVED and marks the user verified. The flag
// write is conditional so repeated approvals of re-reviewed records never
// double-apply.
func (s *Service) Approve(ctx context.Context, actor identity.Actor, kycID id.KYCID) (*models.Verification, error) {
	return s.review(ctx, actor, kycID, statemachine.KYCApproved, "kyc.approved", nil,
		func(v *models.Verification, now time.Time) { v.ApplyApproval(actor.ID, now) }, true)
}

// Reject moves a record to REJECTED with a mandatory reason and clears the
// user's verified flag.
func (s *Service) Reject(ctx context.Context, actor identity.Actor, kycID id.KYCID, reason string) (*models.Verification, error) {
	validate := func() error {
		if reason == "" {
			return dErrors.New(dErrors.CodeValidation, "rejection reason is required")
		}
		return nil
	}
	return s.review(ctx, actor, kycID, statemachine.KYCRejected, "kyc.rejected", validate,
		func(v *models.Verification, now time.Time) { v.ApplyRejection(actor.ID, reason, now) }, false)
}

func (s *Service) review(ctx context.Context, actor identity.Actor, kycID id.KYCID, to statemachine.Status, event string, validate func() error, mutate func(*models.Verification, time.Time), verified bool) (*models.Verification, error) {
	verification, err := s.visible(ctx, actor, kycID)
	if err != nil {
		return nil, err
	}
	from := verification.Status
	tr := statemachine.Transition{
		Kind:      id.KindKYC,
		EntityID:  kycID.String(),
		Action:    authz.ActionReviewKYC,
		Current:   from,
		Requested: to,
		Validate:  validate,
		Apply: func(ctx context.Context, now time.Time) error {
			return s.txRunner.InTx(ctx, func(ctx context.Context) error {
				mutate(verification, now)
				if err := s.kyc.Update(ctx, verification); err != nil {
					return err
				}
				return s.setUserVerified(ctx, verification.UserID, verified, now)
			})
		},
	}
	if err := s.transitions.Run(ctx, actor, tr); err != nil {
		return nil, err
	}
	s.emit(ctx, actor, event, kycID.String(), map[string]string{
		"user_id": verification.UserID.String(),
		"from":    string(from),
		"to":      string(to),
	})
	return verification, nil
}

func (s *Service) setUserVerified(ctx context.Context, userID id.UserID, verified bool, now time.Time) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "loading user")
	}
	if user.Verified == verified {
		return nil
	}
	user.Verified = verified
	user.UpdatedAt = now
	if err := s.users.Update(ctx, user); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "saving verified flag")
	}
	return nil
}

func (s *Service) visible(ctx context.Context, actor identity.Actor, kycID id.KYCID) (*models.Verification, error) {
	verification, err := s.kyc.FindByID(ctx, kycID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, notFound()
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "loading kyc verification")
	}
	scope := authz.ScopeFor(actor, id.KindKYC)
	if !scope.All && verification.UserID != scope.UserID {
		return nil, notFound()
	}
	return verification, nil
}

func applyProfile(user *identity.User, in SubmitInput, now time.Time) {
	user.IDType = in.IDType
	user.IDNumber = in.IDNumber
	user.BusinessName = in.BusinessName
	user.BusinessRegistrationNumber = in.BusinessRegistrationNumber
	user.UpdatedAt = now
}

func (s *Service) emit(ctx context.Context, actor identity.Actor, name, entityID string, fields map[string]string) {
	event := events.Event{
		Name:       name,
		Kind:       id.KindKYC,
		EntityID:   entityID,
		ActorID:    actor.ID,
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

func notFound() error {
	return dErrors.New(dErrors.CodeNotFound, "kyc verification not found")
}
