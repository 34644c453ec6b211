package auth

import (
	"math/bits"
	"strconv"
)

// Role selects an ACL permission set. Regular roles are disjoint powers of
// two below RoleSuperAdmin so a single integer can union several of them.
type Role int

// RoleBits is the width of the role and permission integers
const RoleBits = 24

const (
	// RoleGuest is a guest role (ie. view)
	RoleGuest Role = 1 << iota
	// RoleMember is a member (i.e. view, edit)
	RoleMember
	// RoleAdmin is an admin role (i.e. view, edit, create)
	RoleAdmin
	// RoleOwner is an owner role (i.e. view, edit, create, delete)
	RoleOwner
)

// RoleSuperAdmin bypasses every ACL check. It takes the top bit of the budget.
const RoleSuperAdmin Role = 1 << (RoleBits - 1)

// IsValid checks the role is a single bit inside the budget
func (r Role) IsValid() bool {
	if r <= 0 || r > RoleSuperAdmin {
		return false
	}
	return bits.OnesCount(uint(r)) == 1
}

// IsSuperAdmin reports whether the role bypasses ACL checks
func (r Role) IsSuperAdmin() bool {
	return r == RoleSuperAdmin
}

func (r Role) String() string {
	switch r {
	case RoleGuest:
		return "guest"
	case RoleMember:
		return "member"
	case RoleAdmin:
		return "admin"
	case RoleOwner:
		return "owner"
	case RoleSuperAdmin:
		return "super_admin"
	default:
		return strconv.Itoa(int(r))
	}
}

// ParseRole parses the decimal value stored in the role cookie
func ParseRole(raw string) (Role, bool) {
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	role := Role(v)
	return role, role.IsValid()
}
