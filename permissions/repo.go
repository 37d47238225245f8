package permissions

import (
	"context"
	"errors"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrRoleNotFound = errors.New("role not found")
)

// DirectoryUser is the narrow slice of the identity store this core
// consumes. The full user record (employment data, contact details, etc.)
// is owned elsewhere and never crosses this boundary.
type DirectoryUser struct {
	ID              int64
	TenantID        *int64
	DisplayName     string
	PrimaryRole     string
	AssignedRoleIDs []string
}

// UserDirectory is the read-only user lookup collaborator.
type UserDirectory interface {
	FindUserByID(ctx context.Context, id int64) (*DirectoryUser, error)
}

// RoleRepo is the read-only role lookup collaborator. FindRoleByName serves
// the legacy primary-role fallback for accounts created before explicit
// role assignment existed.
type RoleRepo interface {
	FindRolesByIDs(ctx context.Context, ids []string) ([]*Role, error)
	FindRoleByName(ctx context.Context, name string) (*Role, error)
}
