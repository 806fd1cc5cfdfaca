package service

import (
	"context"

	"github.com/iliyamo/membership-ledger/internal/model"
)

// Authorizer decides whether a caller may perform administrative
// mutations: granting benefits, creating and expiring events, check-in
// and policy changes.
type Authorizer interface {
	IsAuthorized(ctx context.Context, caller model.Caller) bool
}

// AuthorizerFunc adapts a plain predicate to Authorizer.
type AuthorizerFunc func(ctx context.Context, caller model.Caller) bool

func (f AuthorizerFunc) IsAuthorized(ctx context.Context, caller model.Caller) bool {
	return f(ctx, caller)
}

// RoleAuthorizer authorizes callers carrying the ADMIN role and any
// address on the configured allow-list.
type RoleAuthorizer struct {
	addresses map[string]struct{}
}

func NewRoleAuthorizer(adminAddresses []string) *RoleAuthorizer {
	set := make(map[string]struct{}, len(adminAddresses))
	for _, a := range adminAddresses {
		if a = model.NormalizeAddress(a); a != "" {
			set[a] = struct{}{}
		}
	}
	return &RoleAuthorizer{addresses: set}
}

func (r *RoleAuthorizer) IsAuthorized(_ context.Context, caller model.Caller) bool {
	if caller.Role == model.RoleAdmin {
		return true
	}
	_, ok := r.addresses[model.NormalizeAddress(caller.Address)]
	return ok
}
