package domain

import "fmt"

// Role is resolved once at the authentication boundary and carried
// explicitly into every service call.
type Role int8

const (
	RoleStudent Role = iota
	RoleStaff
	RoleAdmin
)

func ParseRole(s string) (Role, error) {
	switch s {
	case "student", "":
		return RoleStudent, nil
	case "staff":
		return RoleStaff, nil
	case "admin":
		return RoleAdmin, nil
	}
	return RoleStudent, fmt.Errorf("unknown role %q", s)
}

func (r Role) String() string {
	switch r {
	case RoleStaff:
		return "staff"
	case RoleAdmin:
		return "admin"
	default:
		return "student"
	}
}

// Identity is what the external identity provider asserts about the caller.
// The engine trusts it as given and performs no authentication itself.
type Identity struct {
	ID         string
	University string
	Role       Role
}

func (i Identity) CanManageListings() bool {
	return i.Role == RoleStaff || i.Role == RoleAdmin
}
