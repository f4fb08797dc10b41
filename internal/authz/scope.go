package authz

import (
	"realhub/internal/identity"
	id "realhub/pkg/domain"
)

// Scope is the read-visibility filter an actor gets for one entity kind.
// Stores interpret it when listing; single-entity reads apply the same filter
// so that out-of-scope and nonexistent are indistinguishable.
type Scope struct {
	// All grants unrestricted visibility.
	All bool
	// UserID, when set, restricts rows to those owned by or referencing the
	// user (owner, payer, receiver, or user field, as applicable to the kind).
	UserID id.UserID
	// PublicOnly restricts rows to those whose parent property is verified and
	// active and whose own status is publicly visible.
	PublicOnly bool
}

// governmentKinds are the kinds government actors see without restriction.
var governmentKinds = map[id.EntityKind]bool{
	id.KindProperty:   true,
	id.KindKYC:        true,
	id.KindCompliance: true,
	id.KindCheck:      true,
	id.KindReport:     true,
}

// ScopeFor returns the visibility filter for actor on kind.
//
// Admin sees everything. Government sees property, KYC, and compliance kinds
// without restriction, its own rows otherwise. Authenticated users see rows
// they own or are referenced by, plus the public subset for property reads.
// The anonymous principal sees the public subset only.
func ScopeFor(actor identity.Actor, kind id.EntityKind) Scope {
	if actor.Role.IsAdmin() {
		return Scope{All: true}
	}
	if actor.Role.IsGovernment() && governmentKinds[kind] {
		return Scope{All: true}
	}
	if actor.IsZero() {
		return Scope{PublicOnly: true}
	}
	switch kind {
	case id.KindProperty, id.KindCompliance, id.KindCheck:
		// Owners see their own rows; everyone authenticated also sees the
		// public subset.
		return Scope{UserID: actor.ID, PublicOnly: true}
	default:
		return Scope{UserID: actor.ID}
	}
}
