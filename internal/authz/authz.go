// Package authz is the single authorization engine consulted by every feature
// service. It composes role capability predicates with ownership predicates and
// returns a pure allow/deny decision; query-time visibility lives in scope.go.
package authz

import (
	"realhub/internal/identity"
	id "realhub/pkg/domain"
)

// Action names an operation the engine can decide on. Transition-implied
// actions (verify property, review KYC) map onto elevated capabilities; writes
// on owned entities map onto ownership checks.
type Action string

const (
	// Elevated actions requiring a capability.
	ActionVerifyProperty     Action = "property.verify"
	ActionReviewKYC          Action = "kyc.review"
	ActionManageCompliance   Action = "compliance.manage"
	ActionManageRequirements Action = "requirements.manage"
	ActionGenerateReports    Action = "reports.generate"
	ActionManageUsers        Action = "users.manage"
	ActionSettlePayment      Action = "payment.settle"

	// Owner-gated writes on existing entities.
	ActionUpdateProperty     Action = "property.update"
	ActionDeleteProperty     Action = "property.delete"
	ActionUpdateLead         Action = "lead.update"
	ActionCancelInvoice      Action = "invoice.cancel"
	ActionCancelSubscription Action = "subscription.cancel"
	ActionManagePlan         Action = "plan.manage"
	ActionRemoveFavorite     Action = "favorite.remove"
	ActionUpdateProfile      Action = "profile.update"

	// Read actions; allowed here, restricted by query scoping.
	ActionReadProperty   Action = "property.read"
	ActionReadLead       Action = "lead.read"
	ActionReadBilling    Action = "billing.read"
	ActionReadCompliance Action = "compliance.read"
)

// Deny reasons are machine-readable and stable.
const (
	ReasonInsufficientRole = "insufficient_role"
	ReasonNotOwner         = "not_owner"
	ReasonForbidden        = "forbidden"
)

// Target describes the entity an action operates on, reduced to what the
// engine needs: its kind and the owning/referenced user. A nil target means
// the action has no entity (creation, listing).
type Target struct {
	Kind    id.EntityKind
	OwnerID id.UserID
}

// Decision is the pure outcome of an authorization check.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision             { return Decision{Allowed: true} }
func deny(reason string) Decision { return Decision{Reason: reason} }

type actionClass int

const (
	classElevated actionClass = iota
	classOwnerWrite
	classRead
)

type actionSpec struct {
	class      actionClass
	capability identity.Capability
}

var actionSpecs = map[Action]actionSpec{
	ActionVerifyProperty:     {class: classElevated, capability: identity.CapVerifyProperty},
	ActionReviewKYC:          {class: classElevated, capability: identity.CapReviewKYC},
	ActionManageCompliance:   {class: classElevated, capability: identity.CapManageCompliance},
	ActionManageRequirements: {class: classElevated, capability: identity.CapManageCompliance},
	ActionGenerateReports:    {class: classElevated, capability: identity.CapManageCompliance},
	ActionManageUsers:        {class: classElevated, capability: identity.CapAdmin},
	ActionSettlePayment:      {class: classElevated, capability: identity.CapAdmin},

	ActionUpdateProperty:     {class: classOwnerWrite},
	ActionDeleteProperty:     {class: classOwnerWrite},
	ActionUpdateLead:         {class: classOwnerWrite},
	ActionCancelInvoice:      {class: classOwnerWrite},
	ActionCancelSubscription: {class: classOwnerWrite},
	ActionManagePlan:         {class: classOwnerWrite},
	ActionRemoveFavorite:     {class: classOwnerWrite},
	ActionUpdateProfile:      {class: classOwnerWrite},

	ActionReadProperty:   {class: classRead},
	ActionReadLead:       {class: classRead},
	ActionReadBilling:    {class: classRead},
	ActionReadCompliance: {class: classRead},
}
