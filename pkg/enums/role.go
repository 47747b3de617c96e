package enums

import (
	"slices"
	"strings"
)

// Role is the closed set of actor roles used by access predicates.
type Role string

const (
	RoleAnonymous Role = "anonymous"
	RoleCustomer  Role = "customer"
	RoleSeller    Role = "seller"
	RoleAdmin     Role = "admin"
)

// assignable roles can be stored on a user; anonymous is request-only.
var validRoles = []Role{RoleCustomer, RoleSeller, RoleAdmin}

func (r Role) String() string {
	return string(r)
}

// IsValid reports whether the role can be persisted on a user.
func (r Role) IsValid() bool { return slices.Contains(validRoles, r) }

// ParseRole normalizes raw input into a persisted Role.
func ParseRole(value string) (Role, error) {
	return parse("role", validRoles, strings.ToLower(strings.TrimSpace(value)))
}
