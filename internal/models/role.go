package models

import "fmt"

// Role is the authorization level carried by an account and its tokens.
type Role string

const (
	RoleAnonymous     Role = "ANONYMOUS"
	RoleAuthenticated Role = "AUTHENTICATED"
	RoleManager       Role = "MANAGER"
	RoleAdmin         Role = "ADMIN"
)

// AllRoles lists every valid role, lowest privilege first.
var AllRoles = []Role{RoleAnonymous, RoleAuthenticated, RoleManager, RoleAdmin}

// ParseRole converts a string into a Role, rejecting unknown values.
func ParseRole(s string) (Role, error) {
	for _, r := range AllRoles {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown role %q: %w", s, ErrBadRequest)
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}

// IsStaff reports whether the role may manage other accounts.
func (r Role) IsStaff() bool {
	return r == RoleManager || r == RoleAdmin
}

func (r Role) String() string {
	return string(r)
}
