package models

import "testing"

func TestRoleCapabilities(t *testing.T) {
	tests := []struct {
		role                                     Role
		all, business, inventory, staff, reports bool
	}{
		{RoleSuperAdmin, true, true, true, true, true},
		{RoleOwner, false, true, true, true, true},
		{RoleAdmin, false, false, true, true, true},
		{RoleBartender, false, false, false, false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			if !tt.role.Valid() || !tt.role.CanSell() {
				t.Errorf("%s should be valid and able to sell", tt.role)
			}
			if got := tt.role.SeesAllTenants(); got != tt.all {
				t.Errorf("SeesAllTenants() = %t, want %t", got, tt.all)
			}
			if got := tt.role.RequiresBusiness(); got == tt.all {
				t.Errorf("RequiresBusiness() = %t, want %t", got, !tt.all)
			}
			if got := tt.role.CanManageBusiness(); got != tt.business {
				t.Errorf("CanManageBusiness() = %t, want %t", got, tt.business)
			}
			if got := tt.role.CanManageInventory(); got != tt.inventory {
				t.Errorf("CanManageInventory() = %t, want %t", got, tt.inventory)
			}
			if got := tt.role.CanManageStaff(); got != tt.staff {
				t.Errorf("CanManageStaff() = %t, want %t", got, tt.staff)
			}
			if got := tt.role.CanViewReports(); got != tt.reports {
				t.Errorf("CanViewReports() = %t, want %t", got, tt.reports)
			}
		})
	}
}

func TestUnknownRoleHasNoCapabilities(t *testing.T) {
	r := Role("admin")
	if r.Valid() || r.CanSell() || r.CanViewReports() || r.CanAssign(RoleBartender) {
		t.Errorf("lower-case %q must not match any role", r)
	}
}

func TestCanAssign(t *testing.T) {
	tests := []struct {
		actor, target Role
		want          bool
	}{
		{RoleSuperAdmin, RoleSuperAdmin, true},
		{RoleSuperAdmin, RoleOwner, true},
		{RoleOwner, RoleSuperAdmin, false},
		{RoleOwner, RoleOwner, true},
		{RoleOwner, RoleAdmin, true},
		{RoleAdmin, RoleOwner, false},
		{RoleAdmin, RoleAdmin, true},
		{RoleAdmin, RoleBartender, true},
		{RoleBartender, RoleBartender, false},
		{RoleOwner, Role("CASHIER"), false},
	}

	for _, tt := range tests {
		if got := tt.actor.CanAssign(tt.target); got != tt.want {
			t.Errorf("%s.CanAssign(%s) = %t, want %t", tt.actor, tt.target, got, tt.want)
		}
	}
}
