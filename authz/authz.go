// Package authz decides which dashboard roles may run which exclusion
// operations. Roles come from the bearer token's role claim.
package authz

// Role represents a user's dashboard role
type Role string

const (
	RoleAdmin      Role = "admin"      // Everything, including cache and reconcile
	RoleSupervisor Role = "supervisor" // Manual overrides
	RoleAnalyst    Role = "analyst"    // Detect and evaluate
	RoleViewer     Role = "viewer"     // Read-only access
)

// Action represents an operation on the exclusion engine
type Action string

const (
	ActionView     Action = "view"     // Read audit history
	ActionEvaluate Action = "evaluate" // Detect, evaluate, forecast
	ActionOverride Action = "override" // Manual exclude / unexclude
	ActionManage   Action = "manage"   // Reconcile, threshold cache
)

// Permissions defines what actions each role can perform
var Permissions = map[Role]map[Action]bool{
	RoleAdmin: {
		ActionView:     true,
		ActionEvaluate: true,
		ActionOverride: true,
		ActionManage:   true,
	},
	RoleSupervisor: {
		ActionView:     true,
		ActionEvaluate: true,
		ActionOverride: true,
		ActionManage:   false,
	},
	RoleAnalyst: {
		ActionView:     true,
		ActionEvaluate: true,
		ActionOverride: false,
		ActionManage:   false,
	},
	RoleViewer: {
		ActionView:     true,
		ActionEvaluate: false,
		ActionOverride: false,
		ActionManage:   false,
	},
}

// ParseRole maps a token claim to a role. Tokens without a role are viewers;
// unknown roles get nothing.
func ParseRole(claim string) Role {
	if claim == "" {
		return RoleViewer
	}
	role := Role(claim)
	if _, ok := Permissions[role]; !ok {
		return ""
	}
	return role
}

// HasPermission checks if a role has permission to perform an action
func HasPermission(permissions map[Role]map[Action]bool, role Role, action Action) bool {
	if rolePerms, ok := permissions[role]; ok {
		if allowed, ok := rolePerms[action]; ok {
			return allowed
		}
	}
	return false
}
