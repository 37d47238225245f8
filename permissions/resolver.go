package permissions

import (
	"context"
	"sort"

	"github.com/pkg/errors"
)

// Resolver computes the effective permission set for a user from their
// assigned roles. Unknown users resolve to an empty set rather than an
// error so that authorization checks fail closed.
type Resolver struct {
	directory UserDirectory
	roles     RoleRepo
}

// NewResolver initializes a Resolver with its lookup collaborators.
func NewResolver(directory UserDirectory, roles RoleRepo) (*Resolver, error) {
	if directory == nil {
		return nil, errors.New("[NewResolver] user directory is required")
	}
	if roles == nil {
		return nil, errors.New("[NewResolver] role repo is required")
	}
	return &Resolver{directory: directory, roles: roles}, nil
}

// ResolvePermissions returns the union of the user's role permissions,
// sorted and de-duplicated. If the union contains the wildcard, the result
// is the entire current catalog plus the wildcard itself: granting
// admin:full means every permission that exists at resolution time, not
// just the ones enumerated on role records.
func (r *Resolver) ResolvePermissions(ctx context.Context, userID int64) ([]Permission, error) {
	union, err := r.roleUnion(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "[Resolver.ResolvePermissions] roleUnion")
	}

	if _, wildcard := union[PermAdminFull]; wildcard {
		return expandWildcard(), nil
	}

	resolved := make([]Permission, 0, len(union))
	for p := range union {
		resolved = append(resolved, p)
	}
	sort.Slice(resolved, func(i, j int) bool { return resolved[i] < resolved[j] })
	return resolved, nil
}

// HasPermission reports whether the user's roles grant p. Short-circuits
// true when the wildcard is present, even for permissions the catalog does
// not (yet) enumerate.
func (r *Resolver) HasPermission(ctx context.Context, userID int64, p Permission) (bool, error) {
	union, err := r.roleUnion(ctx, userID)
	if err != nil {
		return false, errors.Wrap(err, "[Resolver.HasPermission] roleUnion")
	}
	if _, wildcard := union[PermAdminFull]; wildcard {
		return true, nil
	}
	_, ok := union[p]
	return ok, nil
}

// HasAnyPermission reports whether the user holds at least one of the given
// permissions.
func (r *Resolver) HasAnyPermission(ctx context.Context, userID int64, ps ...Permission) (bool, error) {
	union, err := r.roleUnion(ctx, userID)
	if err != nil {
		return false, errors.Wrap(err, "[Resolver.HasAnyPermission] roleUnion")
	}
	if _, wildcard := union[PermAdminFull]; wildcard {
		return true, nil
	}
	for _, p := range ps {
		if _, ok := union[p]; ok {
			return true, nil
		}
	}
	return false, nil
}

// roleUnion gathers the raw union of the user's role permissions without
// wildcard expansion. Disabled roles contribute nothing.
func (r *Resolver) roleUnion(ctx context.Context, userID int64) (map[Permission]struct{}, error) {
	user, err := r.directory.FindUserByID(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		return map[Permission]struct{}{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "directory.FindUserByID")
	}

	roles, err := r.userRoles(ctx, user)
	if err != nil {
		return nil, err
	}

	union := make(map[Permission]struct{})
	for _, role := range roles {
		if role == nil || role.Disabled {
			continue
		}
		for _, p := range role.Permissions {
			union[p] = struct{}{}
		}
	}
	return union, nil
}

func (r *Resolver) userRoles(ctx context.Context, user *DirectoryUser) ([]*Role, error) {
	if len(user.AssignedRoleIDs) > 0 {
		roles, err := r.roles.FindRolesByIDs(ctx, user.AssignedRoleIDs)
		if err != nil {
			return nil, errors.Wrap(err, "roles.FindRolesByIDs")
		}
		return roles, nil
	}

	// Legacy fallback: accounts created before explicit role assignment
	// carry only a primary-role string.
	if user.PrimaryRole == "" {
		return nil, nil
	}
	role, err := r.roles.FindRoleByName(ctx, user.PrimaryRole)
	if errors.Is(err, ErrRoleNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "roles.FindRoleByName")
	}
	return []*Role{role}, nil
}
