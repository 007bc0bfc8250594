package session

// Resolver maps the raw identity state of both slots to a role. Resolvers
// must be pure: no I/O, no side effects, same inputs give the same role.
//
// This is the single seam for role elevation. Admin and organizer are never
// inferred from identity contents such as email patterns; deployments that
// need them feed an already-resolved Identity.AssignedRole and select
// AssignedRoleResolver.
type Resolver func(primary, federated *Identity) Role

// DefaultResolver returns guest when both identities are absent and user
// otherwise.
func DefaultResolver(primary, federated *Identity) Role {
	if primary == nil && federated == nil {
		return RoleGuest
	}
	return RoleUser
}

// AssignedRoleResolver honours the highest assigned role among the present
// identities. Missing, unknown or guest assignments count as user so that an
// authenticated session never resolves to guest.
func AssignedRoleResolver(primary, federated *Identity) Role {
	if primary == nil && federated == nil {
		return RoleGuest
	}
	best := RoleUser
	for _, id := range []*Identity{primary, federated} {
		if id == nil || !id.AssignedRole.Valid() {
			continue
		}
		if id.AssignedRole.Rank() > best.Rank() {
			best = id.AssignedRole
		}
	}
	return best
}

// ResolverByName returns the resolver configured by name ("default" or
// "assigned"). Unknown names fall back to DefaultResolver.
func ResolverByName(name string) Resolver {
	if name == "assigned" {
		return AssignedRoleResolver
	}
	return DefaultResolver
}
