package statemachine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"realhub/internal/authz"
	"realhub/internal/identity"
	id "realhub/pkg/domain"
	dErrors "realhub/pkg/domain-errors"
	"realhub/pkg/platform/sentinel"
	"realhub/pkg/requestcontext"
)

// defaultLockWait bounds how long a transition waits on a contended entity row.
const defaultLockWait = 2 * time.Second

// Transition describes one requested status change. Feature services build it
// and hand it to the engine; the engine owns ordering, locking, and error
// classification, while the callbacks own entity-specific payload rules and
// the actual write group.
type Transition struct {
	Kind     id.EntityKind
	EntityID string
	// Action implied by the transition, e.g. property.verify.
	Action authz.Action
	// Owner of the target entity, when the action is owner-gated.
	Owner id.UserID
	// Current and Requested states as observed by the caller's read.
	Current   Status
	Requested Status
	// Validate checks transition-specific payload invariants. Optional.
	Validate func() error
	// Apply performs the state write and all side effects, including cascades
	// to related entities, using optimistic conditional writes. The engine
	// translates sentinel.ErrStaleState from the write group into a
	// CodeStaleState rejection. Required.
	Apply func(ctx context.Context, now time.Time) error
}

// Engine validates transitions against the lattice and the authorization
// engine, then applies them under a bounded per-entity lock. Committed
// transitions are final; reversal takes a new explicit transition.
type Engine struct {
	authz    *authz.Engine
	locker   Locker
	logger   *slog.Logger
	metrics  *Metrics
	tracer   trace.Tracer
	lockWait time.Duration
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithLockWait(wait time.Duration) Option {
	return func(e *Engine) { e.lockWait = wait }
}

func NewEngine(authzEngine *authz.Engine, locker Locker, opts ...Option) *Engine {
	e := &Engine{
		authz:    authzEngine,
		locker:   locker,
		tracer:   otel.Tracer("realhub/statemachine"),
		lockWait: defaultLockWait,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes the transition for actor.
//
// Order matters and is part of the contract: lattice first (INVALID_TRANSITION),
// then authorization (FORBIDDEN with reason), then payload invariants
// (VALIDATION_ERROR), then the locked, atomic apply. A concurrent writer that
// invalidated the observed state surfaces as STALE_STATE; a lock wait that
// exceeds the bound surfaces as CONTENTION.
func (e *Engine) Run(ctx context.Context, actor identity.Actor, tr Transition) error {
	ctx, span := e.tracer.Start(ctx, "statemachine.transition",
		trace.WithAttributes(
			attribute.String("entity.kind", string(tr.Kind)),
			attribute.String("transition.from", string(tr.Current)),
			attribute.String("transition.to", string(tr.Requested)),
		))
	defer span.End()

	lattice := LatticeFor(tr.Kind)
	if err := lattice.Validate(tr.Current, tr.Requested); err != nil {
		e.reject(ctx, tr, err)
		return err
	}

	var target *authz.Target
	if !tr.Owner.IsNil() {
		target = &authz.Target{Kind: tr.Kind, OwnerID: tr.Owner}
	}
	if err := e.authz.Require(actor, tr.Action, target); err != nil {
		e.reject(ctx, tr, err)
		return err
	}

	if tr.Validate != nil {
		if err := tr.Validate(); err != nil {
			e.reject(ctx, tr, err)
			return err
		}
	}

	release, err := e.locker.Acquire(ctx, tr.Kind, tr.EntityID, e.lockWait)
	if err != nil {
		if errors.Is(err, sentinel.ErrLockTimeout) {
			err = dErrors.Wrap(err, dErrors.CodeContention, "entity is locked by another transition")
		} else {
			err = dErrors.Wrap(err, dErrors.CodeInternal, "acquiring transition lock")
		}
		e.reject(ctx, tr, err)
		return err
	}
	defer release()

	if err := tr.Apply(ctx, requestcontext.Now(ctx)); err != nil {
		if errors.Is(err, sentinel.ErrStaleState) {
			err = dErrors.Wrap(err, dErrors.CodeStaleState, "entity changed since it was read")
		}
		e.reject(ctx, tr, err)
		return err
	}

	if e.metrics != nil {
		e.metrics.IncApplied(string(tr.Kind), string(tr.Requested))
	}
	if e.logger != nil {
		e.logger.InfoContext(ctx, "transition applied",
			"kind", tr.Kind,
			"entity_id", tr.EntityID,
			"from", tr.Current,
			"to", tr.Requested,
			"actor_id", actor.ID,
		)
	}
	return nil
}

func (e *Engine) reject(ctx context.Context, tr Transition, err error) {
	if e.metrics != nil {
		e.metrics.IncRejected(string(tr.Kind), string(dErrors.CodeOf(err)))
	}
	if e.logger != nil {
		e.logger.WarnContext(ctx, "transition rejected",
			"kind", tr.Kind,
			"entity_id", tr.EntityID,
			"from", tr.Current,
			"to", tr.Requested,
			"error", err,
		)
	}
}
