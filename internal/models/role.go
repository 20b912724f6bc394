package models

// Role is the closed set of capabilities a user can hold.
type Role string

const (
	RoleSuperAdmin Role = "SUPER_ADMIN"
	RoleOwner      Role = "OWNER"
	RoleAdmin      Role = "ADMIN"
	RoleBartender  Role = "BARTENDER"
)

// decide answers a capability question for r. Every call site must give an
// answer for every role, so adding a role breaks each check until revisited.
func (r Role) decide(superAdmin, owner, admin, bartender bool) bool {
	switch r {
	case RoleSuperAdmin:
		return superAdmin
	case RoleOwner:
		return owner
	case RoleAdmin:
		return admin
	case RoleBartender:
		return bartender
	}
	return false
}

func (r Role) Valid() bool { return r.decide(true, true, true, true) }

// SeesAllTenants is the platform capability that bypasses tenant filtering.
func (r Role) SeesAllTenants() bool { return r.decide(true, false, false, false) }

// RequiresBusiness reports whether a user with this role must belong to a tenant.
func (r Role) RequiresBusiness() bool { return r.decide(false, true, true, true) }

func (r Role) CanSell() bool { return r.decide(true, true, true, true) }

func (r Role) CanManageInventory() bool { return r.decide(true, true, true, false) }

func (r Role) CanManageStaff() bool { return r.decide(true, true, true, false) }

func (r Role) CanManageBusiness() bool { return r.decide(true, true, false, false) }

func (r Role) CanViewReports() bool { return r.decide(true, true, true, false) }

// CanAssign reports whether r may create or edit a user holding target.
func (r Role) CanAssign(target Role) bool {
	switch target {
	case RoleSuperAdmin:
		return r.decide(true, false, false, false)
	case RoleOwner:
		return r.decide(true, true, false, false)
	case RoleAdmin, RoleBartender:
		return r.decide(true, true, true, false)
	}
	return false
}
