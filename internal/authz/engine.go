package authz

import (
	"realhub/internal/identity"
	dErrors "realhub/pkg/domain-errors"
)

// Engine evaluates authorization decisions. It is stateless and side-effect
// free; every rejection is a structured Decision with a reason code, never an
// error escaping without one.
type Engine struct{}

func NewEngine() *Engine { return &Engine{} }

// Authorize decides whether actor may perform action on target.
//
// Precedence, first match wins:
//  1. Admin: always allow.
//  2. Elevated actions: allow iff the actor holds the capability.
//  3. Owner writes: allow iff target owner matches the actor.
//  4. Reads: allow; visibility is restricted by query scoping, not here.
//  5. Default: deny.
func (e *Engine) Authorize(actor identity.Actor, action Action, target *Target) Decision {
	if actor.Role.IsAdmin() {
		return allow()
	}

	spec, known := actionSpecs[action]
	if !known {
		return deny(ReasonForbidden)
	}

	switch spec.class {
	case classElevated:
		if identity.Has(actor, spec.capability) {
			return allow()
		}
		return deny(ReasonInsufficientRole)
	case classOwnerWrite:
		if actor.IsZero() {
			return deny(ReasonForbidden)
		}
		if target == nil || target.OwnerID.IsNil() {
			return deny(ReasonForbidden)
		}
		if target.OwnerID == actor.ID {
			return allow()
		}
		return deny(ReasonNotOwner)
	case classRead:
		return allow()
	}
	return deny(ReasonForbidden)
}

// Require is the error-returning form of Authorize for service call sites.
// Denials become CodeForbidden errors carrying the reason code.
func (e *Engine) Require(actor identity.Actor, action Action, target *Target) error {
	decision := e.Authorize(actor, action, target)
	if !decision.Allowed {
		return dErrors.New(dErrors.CodeForbidden, decision.Reason)
	}
	return nil
}
