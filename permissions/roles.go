package permissions

// Role is a named bundle of permissions. Roles are tenant-scoped when
// TenantID is set and platform-wide otherwise. Rank gives an informal
// hierarchy for display purposes only; it plays no part in resolution.
// Roles are never deleted, only disabled, because issued session tokens
// embed a permission snapshot taken while the role was live.
type Role struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Rank        int          `json:"rank"`
	TenantID    *int64       `json:"tenant_id,omitempty"`
	Permissions []Permission `json:"permissions"`
	Disabled    bool         `json:"disabled"`
}

// HasPermission checks the role's declared set. The wildcard is matched
// literally here; expansion happens in the Resolver.
func (r *Role) HasPermission(p Permission) bool {
	for _, rp := range r.Permissions {
		if rp == p {
			return true
		}
	}
	return false
}

// OutranksOrEquals compares informal hierarchy positions.
func (r *Role) OutranksOrEquals(other *Role) bool {
	return r.Rank >= other.Rank
}
