package permissions

// Permission is a single fine-grained grant from the closed catalog.
type Permission string

const (
	PermEmployeesView   Permission = "employees:view"
	PermEmployeesManage Permission = "employees:manage"

	PermDriversView   Permission = "drivers:view"
	PermDriversManage Permission = "drivers:manage"

	PermComplianceView   Permission = "compliance:view"
	PermComplianceManage Permission = "compliance:manage"

	PermPaysheetsView   Permission = "paysheets:view"
	PermPaysheetsManage Permission = "paysheets:manage"

	PermInsuranceView   Permission = "insurance:view"
	PermInsuranceManage Permission = "insurance:manage"

	PermTicketsView   Permission = "tickets:view"
	PermTicketsManage Permission = "tickets:manage"

	PermAuditView Permission = "audit:view"

	PermUsersView        Permission = "users:view"
	PermUsersManage      Permission = "users:manage"
	PermUsersManageRoles Permission = "users:manage_roles"

	PermClientsManage Permission = "clients:manage"

	// PermAdminFull is the reserved wildcard. Granting it is equivalent to
	// granting every permission in the catalog at resolution time, including
	// permissions added to the catalog after the role was created.
	PermAdminFull Permission = "admin:full"
)

// Catalog enumerates every concrete permission. The wildcard is not part
// of the catalog; it expands to the catalog instead.
var Catalog = []Permission{
	PermEmployeesView,
	PermEmployeesManage,
	PermDriversView,
	PermDriversManage,
	PermComplianceView,
	PermComplianceManage,
	PermPaysheetsView,
	PermPaysheetsManage,
	PermInsuranceView,
	PermInsuranceManage,
	PermTicketsView,
	PermTicketsManage,
	PermAuditView,
	PermUsersView,
	PermUsersManage,
	PermUsersManageRoles,
	PermClientsManage,
}

// KnownPermission reports whether p is the wildcard or a catalog entry.
func KnownPermission(p Permission) bool {
	if p == PermAdminFull {
		return true
	}
	for _, c := range Catalog {
		if c == p {
			return true
		}
	}
	return false
}

func expandWildcard() []Permission {
	expanded := make([]Permission, 0, len(Catalog)+1)
	expanded = append(expanded, Catalog...)
	expanded = append(expanded, PermAdminFull)
	return expanded
}
