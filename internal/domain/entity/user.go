package entity

// Role is the coarse access level of an actor.
type Role string

const (
	RoleAdmin    Role = "Admin"
	RoleReviewer Role = "Reviewer"
	RoleSales    Role = "Sales"
)

// Permission strings checked by the authorization policy.
const (
	PermOpportunitiesRead  = "opportunities:read"
	PermOpportunitiesWrite = "opportunities:write"
)

// UserContext is the immutable identity attached to every service call.
// It is resolved from the bearer token by the session store; the core never
// looks tokens up itself.
type UserContext struct {
	ID          int64
	Role        Role
	Permissions []string
	SessionID   string
}

// Has reports whether the permission set contains perm.
func (u UserContext) Has(perm string) bool {
	for _, p := range u.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}
