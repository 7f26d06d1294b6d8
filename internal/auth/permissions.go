package auth

// Well-known permission names. The catalog itself stays data-driven; these
// constants exist so call sites reference capabilities safely at compile time.
const (
	PermViewDashboard     = "view_dashboard"
	PermViewLogs          = "view_logs"
	PermCreateSignOut     = "create_signout"
	PermSignInSoldiers    = "sign_in_soldiers"
	PermManageUsers       = "manage_users"
	PermManagePermissions = "manage_permissions"
)

// BuiltinPermissions is seeded at startup. Administrators may extend the
// catalog at runtime; names are globally unique.
var BuiltinPermissions = []Permission{
	{Name: PermViewDashboard, Description: "View the current sign-out dashboard"},
	{Name: PermViewLogs, Description: "View historical sign-out logs"},
	{Name: PermCreateSignOut, Description: "Create new sign-out events"},
	{Name: PermSignInSoldiers, Description: "Sign soldiers back in"},
	{Name: PermManageUsers, Description: "Create, update and deactivate users"},
	{Name: PermManagePermissions, Description: "Grant and revoke user permissions"},
}
