package authz

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"realhub/internal/identity"
	id "realhub/pkg/domain"
	dErrors "realhub/pkg/domain-errors"
)

func actorWithRole(role identity.Role) identity.Actor {
	return identity.Actor{ID: id.UserID(uuid.New()), Role: role, Verified: true}
}

func TestAuthorize_AdminAlwaysAllowed(t *testing.T) {
	engine := NewEngine()
	admin := actorWithRole(identity.RoleAdmin)
	otherOwner := id.UserID(uuid.New())

	for _, action := range []Action{
		ActionVerifyProperty, ActionReviewKYC, ActionManageUsers,
		ActionUpdateProperty, ActionDeleteProperty, ActionReadProperty,
	} {
		decision := engine.Authorize(admin, action, &Target{Kind: id.KindProperty, OwnerID: otherOwner})
		assert.True(t, decision.Allowed, "admin denied %s", action)
	}
}

func TestAuthorize_ElevatedActions(t *testing.T) {
	engine := NewEngine()

	t.Run("government holds review capabilities", func(t *testing.T) {
		gov := actorWithRole(identity.RoleGovernment)
		assert.True(t, engine.Authorize(gov, ActionVerifyProperty, nil).Allowed)
		assert.True(t, engine.Authorize(gov, ActionReviewKYC, nil).Allowed)
		assert.True(t, engine.Authorize(gov, ActionManageCompliance, nil).Allowed)
		assert.True(t, engine.Authorize(gov, ActionManageRequirements, nil).Allowed)
		assert.True(t, engine.Authorize(gov, ActionGenerateReports, nil).Allowed)
	})

	t.Run("government lacks admin capabilities", func(t *testing.T) {
		gov := actorWithRole(identity.RoleGovernment)
		decision := engine.Authorize(gov, ActionManageUsers, nil)
		assert.False(t, decision.Allowed)
		assert.Equal(t, ReasonInsufficientRole, decision.Reason)

		decision = engine.Authorize(gov, ActionSettlePayment, nil)
		assert.False(t, decision.Allowed)
		assert.Equal(t, ReasonInsufficientRole, decision.Reason)
	})

	t.Run("regular roles denied regardless of verification", func(t *testing.T) {
		for _, role := range []identity.Role{
			identity.RoleBuyerRenter, identity.RolePropertyOwner, identity.RoleRealEstateFirm,
		} {
			decision := engine.Authorize(actorWithRole(role), ActionVerifyProperty, nil)
			assert.False(t, decision.Allowed, "role %s", role)
			assert.Equal(t, ReasonInsufficientRole, decision.Reason)
		}
	})
}

func TestAuthorize_OwnerWrites(t *testing.T) {
	engine := NewEngine()
	owner := actorWithRole(identity.RolePropertyOwner)

	t.Run("owner may write own entity", func(t *testing.T) {
		decision := engine.Authorize(owner, ActionUpdateProperty, &Target{Kind: id.KindProperty, OwnerID: owner.ID})
		assert.True(t, decision.Allowed)
	})

	t.Run("non-owner denied with not_owner", func(t *testing.T) {
		decision := engine.Authorize(owner, ActionUpdateProperty, &Target{Kind: id.KindProperty, OwnerID: id.UserID(uuid.New())})
		assert.False(t, decision.Allowed)
		assert.Equal(t, ReasonNotOwner, decision.Reason)
	})

	t.Run("nil target denies", func(t *testing.T) {
		decision := engine.Authorize(owner, ActionDeleteProperty, nil)
		assert.False(t, decision.Allowed)
		assert.Equal(t, ReasonForbidden, decision.Reason)
	})

	t.Run("target without owner denies", func(t *testing.T) {
		decision := engine.Authorize(owner, ActionDeleteProperty, &Target{Kind: id.KindProperty})
		assert.False(t, decision.Allowed)
		assert.Equal(t, ReasonForbidden, decision.Reason)
	})

	t.Run("anonymous denied", func(t *testing.T) {
		decision := engine.Authorize(identity.Anonymous(), ActionUpdateProperty, &Target{Kind: id.KindProperty, OwnerID: owner.ID})
		assert.False(t, decision.Allowed)
		assert.Equal(t, ReasonForbidden, decision.Reason)
	})
}

func TestAuthorize_ReadsAndUnknown(t *testing.T) {
	engine := NewEngine()

	t.Run("reads allowed even for anonymous", func(t *testing.T) {
		assert.True(t, engine.Authorize(identity.Anonymous(), ActionReadProperty, nil).Allowed)
		assert.True(t, engine.Authorize(actorWithRole(identity.RoleBuyerRenter), ActionReadBilling, nil).Allowed)
	})

	t.Run("unknown action denied", func(t *testing.T) {
		decision := engine.Authorize(actorWithRole(identity.RoleBuyerRenter), Action("nonsense"), nil)
		assert.False(t, decision.Allowed)
		assert.Equal(t, ReasonForbidden, decision.Reason)
	})
}

func TestRequire_MapsDenialToForbidden(t *testing.T) {
	engine := NewEngine()
	buyer := actorWithRole(identity.RoleBuyerRenter)

	err := engine.Require(buyer, ActionVerifyProperty, nil)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	assert.Contains(t, err.Error(), ReasonInsufficientRole)

	require.NoError(t, engine.Require(buyer, ActionReadProperty, nil))
}

func TestScopeFor(t *testing.T) {
	admin := actorWithRole(identity.RoleAdmin)
	gov := actorWithRole(identity.RoleGovernment)
	buyer := actorWithRole(identity.RoleBuyerRenter)

	t.Run("admin sees everything", func(t *testing.T) {
		assert.Equal(t, Scope{All: true}, ScopeFor(admin, id.KindLead))
		assert.Equal(t, Scope{All: true}, ScopeFor(admin, id.KindPayment))
	})

	t.Run("government sees oversight kinds unrestricted", func(t *testing.T) {
		for _, kind := range []id.EntityKind{
			id.KindProperty, id.KindKYC, id.KindCompliance, id.KindCheck, id.KindReport,
		} {
			assert.Equal(t, Scope{All: true}, ScopeFor(gov, kind), "kind %s", kind)
		}
	})

	t.Run("government falls back to own rows elsewhere", func(t *testing.T) {
		assert.Equal(t, Scope{UserID: gov.ID}, ScopeFor(gov, id.KindPayment))
		assert.Equal(t, Scope{UserID: gov.ID}, ScopeFor(gov, id.KindLead))
	})

	t.Run("anonymous sees public subset only", func(t *testing.T) {
		assert.Equal(t, Scope{PublicOnly: true}, ScopeFor(identity.Anonymous(), id.KindProperty))
		assert.Equal(t, Scope{PublicOnly: true}, ScopeFor(identity.Anonymous(), id.KindLead))
	})

	t.Run("authenticated users see own plus public for property kinds", func(t *testing.T) {
		assert.Equal(t, Scope{UserID: buyer.ID, PublicOnly: true}, ScopeFor(buyer, id.KindProperty))
		assert.Equal(t, Scope{UserID: buyer.ID, PublicOnly: true}, ScopeFor(buyer, id.KindCompliance))
		assert.Equal(t, Scope{UserID: buyer.ID, PublicOnly: true}, ScopeFor(buyer, id.KindCheck))
	})

	t.Run("authenticated users see own rows for private kinds", func(t *testing.T) {
		assert.Equal(t, Scope{UserID: buyer.ID}, ScopeFor(buyer, id.KindLead))
		assert.Equal(t, Scope{UserID: buyer.ID}, ScopeFor(buyer, id.KindPayment))
		assert.Equal(t, Scope{UserID: buyer.ID}, ScopeFor(buyer, id.KindKYC))
	})
}
