package identity

import (
	"context"
	"errors"

	dErrors "realhub/pkg/domain-errors"
	"realhub/pkg/platform/sentinel"
	"realhub/pkg/requestcontext"
)

// Resolver turns the authenticated user ID placed in context by the auth
// middleware into the Actor passed explicitly through the core. Requests
// without a principal resolve to the anonymous actor.
type Resolver struct {
	store Store
}

func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

func (r *Resolver) Resolve(ctx context.Context) (Actor, error) {
	userID := requestcontext.UserID(ctx)
	if userID.IsNil() {
		return Anonymous(), nil
	}
	user, err := r.store.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			// Token refers to a deleted account.
			return Actor{}, dErrors.New(dErrors.CodeForbidden, "unknown principal")
		}
		return Actor{}, dErrors.Wrap(err, dErrors.CodeInternal, "resolving principal")
	}
	return user.Actor(), nil
}
