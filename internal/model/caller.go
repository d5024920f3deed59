package model

// Role is the access role of an authenticated user.
type Role string

const (
	RoleAdmin      Role = "Admin"
	RoleSupervisor Role = "Supervisor"
	RoleOperator   Role = "Operator"
	RoleQA         Role = "QA"
	RoleApprover   Role = "Approver"
	RoleReviewer   Role = "Reviewer"
)

// Roles lists every known role.
var Roles = []Role{RoleAdmin, RoleSupervisor, RoleOperator, RoleQA, RoleApprover, RoleReviewer}

// ParseRole returns the Role named by s.
func ParseRole(s string) (Role, bool) {
	for _, r := range Roles {
		if string(r) == s {
			return r, true
		}
	}
	return "", false
}

// Caller is the identity of the user performing a request, as supplied by
// the identity provider.
type Caller struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Role        Role   `json:"role"`
}

// IsAdmin reports whether the caller holds the Admin role.
func (c Caller) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// SeesEverything reports whether the caller's role bypasses document visibility rules.
func (c Caller) SeesEverything() bool {
	return c.Role == RoleAdmin || c.Role == RoleSupervisor
}
